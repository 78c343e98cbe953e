// Package main provides the gradkit CLI.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

const version = "v0.1.0-dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "gradkit",
		Short:         "Adagrad, SGD and Adam over an arena-managed tensor runtime",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	klogFlags := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(klogFlags)
	root.PersistentFlags().AddGoFlagSet(klogFlags)

	root.AddCommand(
		&cobra.Command{
			Use:   "version",
			Short: "Show version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "gradkit %s\n", version)
			},
		},
		newMinimizeCmd(),
		newTrainCmd(),
		newFitCmd(),
	)
	return root
}

func main() {
	defer klog.Flush()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "gradkit: %+v\n", err)
		os.Exit(1)
	}
}
