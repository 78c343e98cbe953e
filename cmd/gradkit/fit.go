package main

import (
	"fmt"
	"math/rand/v2"

	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/born-ml/gradkit/internal/autodiff"
	"github.com/born-ml/gradkit/internal/backend/cpu"
	"github.com/born-ml/gradkit/internal/nn"
	"github.com/born-ml/gradkit/internal/tensor"
)

type fitFlags struct {
	optimizer  string
	lr         float32
	initialAcc float32
	epochs     int
	samples    int
	hidden     int
	seed       uint64
	checkpoint string
	resume     string
}

func newFitCmd() *cobra.Command {
	var f fitFlags
	cmd := &cobra.Command{
		Use:   "fit",
		Short: "Fit a dense network to y = 3*x0 - 2*x1 + 1 with eager Minimize",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFit(cmd, f)
		},
	}
	cmd.Flags().StringVar(&f.optimizer, "optimizer", "adagrad", "optimizer name: adagrad, adam or sgd")
	cmd.Flags().Float32Var(&f.lr, "lr", 0.5, "learning rate")
	cmd.Flags().Float32Var(&f.initialAcc, "initial-accumulator", 0.1, "initial accumulator value (adagrad)")
	cmd.Flags().IntVar(&f.epochs, "epochs", 200, "number of full-batch steps")
	cmd.Flags().IntVar(&f.samples, "samples", 64, "number of synthetic samples")
	cmd.Flags().IntVar(&f.hidden, "hidden", 0, "width of a hidden linear layer, 0 for none")
	cmd.Flags().Uint64Var(&f.seed, "seed", 1, "seed for data and weight initialization")
	cmd.Flags().StringVar(&f.checkpoint, "checkpoint", "", "write the fitted variables to this SafeTensors file")
	cmd.Flags().StringVar(&f.resume, "resume", "", "load variables from this SafeTensors file before fitting")
	return cmd
}

func runFit(cmd *cobra.Command, f fitFlags) error {
	if f.epochs <= 0 || f.samples <= 0 || f.hidden < 0 {
		return errors.Errorf("invalid sizes: epochs=%d samples=%d hidden=%d", f.epochs, f.samples, f.hidden)
	}
	backend := autodiff.New(cpu.New())
	rng := rand.New(rand.NewPCG(f.seed, f.seed^0x9e3779b97f4a7c15))

	xs := make([]float32, 2*f.samples)
	ys := make([]float32, f.samples)
	for i := range f.samples {
		x0, x1 := float32(rng.NormFloat64()), float32(rng.NormFloat64())
		xs[2*i], xs[2*i+1] = x0, x1
		ys[i] = 3*x0 - 2*x1 + 1
	}
	x, err := tensor.FromSlice(xs, tensor.Shape{f.samples, 2}, backend)
	if err != nil {
		return err
	}
	y, err := tensor.FromSlice(ys, tensor.Shape{f.samples, 1}, backend)
	if err != nil {
		return err
	}
	x, y = x.Keep(), y.Keep()
	defer x.Release()
	defer y.Release()

	model := nn.NewSequential[backendT]()
	if f.hidden > 0 {
		model.Add(nn.NewLinear("hidden", 2, f.hidden, backend, rng))
		model.Add(nn.NewLinear("out", f.hidden, 1, backend, rng))
	} else {
		model.Add(nn.NewLinear("out", 2, 1, backend, rng))
	}
	defer nn.Dispose[backendT](model)

	if f.resume != "" {
		metadata, err := nn.Load[backendT](f.resume, model, backend)
		if err != nil {
			return err
		}
		klog.Infof("resumed from %s (%d metadata entries)", f.resume, len(metadata))
	}

	opt, err := newOptimizer(f.optimizer, model.Variables(), f.lr, f.initialAcc, backend)
	if err != nil {
		return err
	}
	defer opt.Dispose()

	loss := func() *tensor.Tensor[float32, backendT] {
		return nn.MSE(model.Forward(x), y)
	}
	bar := progressbar.NewOptions(f.epochs,
		progressbar.OptionSetDescription("fitting"),
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.ThemeASCII),
	)
	var last float32
	for epoch := 1; epoch <= f.epochs; epoch++ {
		cost, err := opt.Minimize(loss, true)
		if err != nil {
			return errors.WithMessagef(err, "epoch %d", epoch)
		}
		last = cost.Item()
		cost.Release()
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nmse: %.6g\n", last)
	for _, v := range model.Variables() {
		fmt.Fprintf(out, "%-14s %v\n", v.Name(), v.Tensor().Values())
	}

	if f.checkpoint != "" {
		metadata := map[string]string{"optimizer": opt.Name(), "epochs": fmt.Sprint(f.epochs)}
		if err := nn.Save[backendT](f.checkpoint, model, metadata); err != nil {
			return err
		}
		klog.Infof("variables written to %s", f.checkpoint)
	}
	return nil
}
