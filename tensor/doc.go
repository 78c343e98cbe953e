// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides type-safe tensors, variables and the allocation
// arena of gradkit.
//
// # Overview
//
// Every tensor handle is allocated through the Arena of its backend and
// gets a unique ID. The arena reports live handles (NumTensors) and
// releases temporaries in scopes:
//
//	backend := cpu.New()
//	arena := backend.Arena()
//
//	arena.StartScope()
//	x := tensor.Ones[float32](tensor.Shape{2, 3}, backend)
//	y := x.Add(x)        // released by EndScope
//	arena.EndScope()     // only kept or returned handles survive
//
// # Variables
//
// A Variable is a named float32 tensor that optimizers mutate in place.
// It keeps the same ID for its whole life and is released by Dispose.
//
//	w := tensor.NewVariable("w", tensor.Zeros[float32](tensor.Shape{2}, backend))
//	defer w.Dispose()
package tensor
