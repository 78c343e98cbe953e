package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/born-ml/gradkit/internal/autodiff"
	"github.com/born-ml/gradkit/internal/backend/cpu"
	"github.com/born-ml/gradkit/internal/optim"
	"github.com/born-ml/gradkit/internal/tensor"
)

type backendT = *autodiff.AutodiffBackend[*cpu.CPUBackend]

type minimizeFlags struct {
	optimizer  string
	lr         float32
	initialAcc float32
	steps      int
	init       []float32
	checkpoint string
}

func newMinimizeCmd() *cobra.Command {
	var f minimizeFlags
	cmd := &cobra.Command{
		Use:   "minimize",
		Short: "Minimize sum(x²) eagerly and print the trajectory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMinimize(cmd, f)
		},
	}
	cmd.Flags().StringVar(&f.optimizer, "optimizer", "adagrad", "optimizer name: adagrad, adam or sgd")
	cmd.Flags().Float32Var(&f.lr, "lr", 0.1, "learning rate")
	cmd.Flags().Float32Var(&f.initialAcc, "initial-accumulator", 0.1, "initial accumulator value (adagrad)")
	cmd.Flags().IntVar(&f.steps, "steps", 10, "number of optimization steps")
	cmd.Flags().Float32SliceVar(&f.init, "init", []float32{1, 2}, "initial value of x")
	cmd.Flags().StringVar(&f.checkpoint, "checkpoint", "", "write the optimizer state to this SafeTensors file")
	return cmd
}

func newOptimizer(name string, vars []*tensor.Variable[backendT], lr, initialAcc float32, backend backendT) (optim.Optimizer[backendT], error) {
	if name == "adagrad" {
		return optim.NewAdagrad(vars, optim.AdagradConfig{LR: lr, InitialAccumulatorValue: initialAcc}, backend)
	}
	return optim.ByName(name, vars, lr, backend)
}

func runMinimize(cmd *cobra.Command, f minimizeFlags) error {
	if f.steps <= 0 {
		return errors.Errorf("--steps must be positive, got %d", f.steps)
	}
	backend := autodiff.New(cpu.New())
	arena := backend.Arena()
	init, err := tensor.FromSlice(f.init, tensor.Shape{len(f.init)}, backend)
	if err != nil {
		return err
	}
	x := tensor.NewVariable("x", init)
	defer x.Dispose()

	opt, err := newOptimizer(f.optimizer, []*tensor.Variable[backendT]{x}, f.lr, f.initialAcc, backend)
	if err != nil {
		return err
	}
	defer opt.Dispose()

	loss := func() *tensor.Tensor[float32, backendT] {
		return x.Tensor().Square().Sum()
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-6s %-12s %s\n", "step", "cost", "x")
	for step := 1; step <= f.steps; step++ {
		cost, err := opt.Minimize(loss, true)
		if err != nil {
			return errors.WithMessagef(err, "step %d", step)
		}
		fmt.Fprintf(out, "%-6d %-12.6g %v\n", step, cost.Item(), x.Tensor().Values())
		cost.Release()
	}
	fmt.Fprintf(out, "live tensors: %s (%s)\n", humanize.Comma(int64(arena.NumTensors())), humanize.IBytes(uint64(arena.NumBytes())))

	if f.checkpoint != "" {
		if err := optim.SaveState(f.checkpoint, opt, map[string]string{"steps": fmt.Sprint(f.steps)}); err != nil {
			return err
		}
		klog.Infof("optimizer state written to %s", f.checkpoint)
	}
	return nil
}
