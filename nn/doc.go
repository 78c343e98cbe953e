// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides dense network modules whose trainable state is a set
// of tensor variables, so any optimizer can train them through Minimize.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	model := nn.NewSequential[B](nn.NewLinear("fc", 2, 1, backend, nil))
//	opt, _ := optim.NewAdagrad(model.Variables(), optim.AdagradConfig{LR: 0.5}, backend)
//	defer opt.Dispose()
//
//	for range 100 {
//	    _, err := opt.Minimize(func() *tensor.Tensor[float32, B] {
//	        return nn.MSE(model.Forward(x), y)
//	    }, false)
//	}
package nn
