// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the pure Go CPU backend.
//
// Element-wise kernels follow NumPy broadcasting and split large loops
// across goroutines; MatMul splits over output rows. Every kernel returns
// a new handle allocated in the backend's arena.
//
// Example:
//
//	backend := cpu.New()
//	x := tensor.Ones[float32](tensor.Shape{2, 3}, backend)
//	y := x.MulScalar(2)
package cpu
