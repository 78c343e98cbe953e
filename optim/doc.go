// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides gradient-based optimizers.
//
// Available optimizers:
//   - Adagrad: per-variable learning rates from accumulated squared gradients
//   - SGD: Stochastic Gradient Descent with optional momentum
//   - Adam: Adaptive Moment Estimation with bias correction
//
// Eager usage:
//
//	backend := autodiff.New(cpu.New())
//	x := tensor.NewVariable("x", xInit)
//	opt, _ := optim.NewAdagrad([]*tensor.Variable[B]{x}, optim.AdagradConfig{LR: 0.1}, backend)
//	defer opt.Dispose()
//
//	for step := 0; step < 100; step++ {
//	    if _, err := opt.Minimize(loss, false); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//
// Graph sessions call ApplyGradients instead, see package graph.
package optim
