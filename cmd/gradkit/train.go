package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/born-ml/gradkit/internal/autodiff"
	"github.com/born-ml/gradkit/internal/backend/cpu"
	"github.com/born-ml/gradkit/internal/graph"
	"github.com/born-ml/gradkit/internal/tensor"
)

type trainFlags struct {
	optimizer  string
	lr         float32
	initialAcc float32
	batches    int
	batchSize  int
	input      []float32
	checkpoint string
	resume     string
}

func newTrainCmd() *cobra.Command {
	var f trainFlags
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train y = reduce_sum(w·x + b) in a graph session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTrain(cmd, f)
		},
	}
	cmd.Flags().StringVar(&f.optimizer, "optimizer", "adagrad", "optimizer name: adagrad, adam or sgd")
	cmd.Flags().Float32Var(&f.lr, "lr", 0.1, "learning rate")
	cmd.Flags().Float32Var(&f.initialAcc, "initial-accumulator", 0, "initial accumulator value (adagrad)")
	cmd.Flags().IntVar(&f.batches, "batches", 2, "number of Train calls")
	cmd.Flags().IntVar(&f.batchSize, "batch-size", 1, "iterations per Train call")
	cmd.Flags().Float32SliceVar(&f.input, "input", []float32{2, 4}, "value fed to x")
	cmd.Flags().StringVar(&f.checkpoint, "checkpoint", "", "write the variables to this SafeTensors file")
	cmd.Flags().StringVar(&f.resume, "resume", "", "load the variables from this SafeTensors file first")
	return cmd
}

func runTrain(cmd *cobra.Command, f trainFlags) error {
	if f.batches <= 0 {
		return errors.Errorf("--batches must be positive, got %d", f.batches)
	}
	g := graph.New("linear")
	x := g.Placeholder("x", tensor.Shape{len(f.input)})
	w := g.Variable("w", tensor.Shape{1, len(f.input)})
	b := g.Variable("b", tensor.Shape{1})
	y := graph.ReduceSum(graph.Add(graph.MatMul(w, x), b))

	backend := autodiff.New(cpu.New())
	sess, err := graph.NewSession(g, backend)
	if err != nil {
		return err
	}
	defer sess.Dispose()
	if f.resume != "" {
		meta, err := sess.LoadVariables(f.resume)
		if err != nil {
			return err
		}
		klog.Infof("resumed from %s (run %s)", f.resume, meta[graph.MetadataRunID])
	}

	opt, err := newOptimizer(f.optimizer, sess.Variables(), f.lr, f.initialAcc, backend)
	if err != nil {
		return err
	}
	defer opt.Dispose()

	provider, err := graph.NewConstantProvider(x.Shape(), f.input...)
	if err != nil {
		return err
	}
	feeds := []graph.FeedEntry{{Node: x, Data: provider}}

	out := cmd.OutOrStdout()
	bar := progressbar.NewOptions(f.batches,
		progressbar.OptionSetDescription("training"),
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("batches"),
		progressbar.OptionSetTheme(progressbar.ThemeASCII),
	)
	var last float32
	for i := 0; i < f.batches; i++ {
		cost, err := sess.Train(y, feeds, f.batchSize, opt, graph.CostReductionMean)
		if err != nil {
			return err
		}
		last = cost.Item()
		cost.Release()
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	for _, v := range sess.Variables() {
		fmt.Fprintf(out, "%s = %v\n", v.Name(), v.Tensor().Values())
	}
	fmt.Fprintf(out, "last mean cost: %.6g, run %s\n", last, sess.RunID())

	if f.checkpoint != "" {
		if err := sess.SaveVariables(f.checkpoint, map[string]string{"optimizer": opt.Name()}); err != nil {
			return err
		}
		klog.Infof("variables written to %s", f.checkpoint)
	}
	return nil
}
