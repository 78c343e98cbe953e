// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package autodiff provides reverse-mode automatic differentiation.
//
// Backend wraps any tensor backend and records operations on a gradient
// tape. ValueAndGrads evaluates a scalar function and returns its
// gradients with respect to chosen tensors; optimizers use it to
// implement Minimize.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	x, _ := tensor.FromSlice([]float32{1, 2}, tensor.Shape{2}, backend)
//	value, grads, err := backend.ValueAndGrads(func() *tensor.RawTensor {
//	    return x.Mul(x).Sum().Raw()
//	}, []*tensor.RawTensor{x.Raw()})
//	// grads[0] = [2, 4]
package autodiff

import (
	"github.com/born-ml/gradkit/internal/autodiff"
	"github.com/born-ml/gradkit/internal/tensor"
)

// Backend is the autodiff-enabled backend.
type Backend[B tensor.Backend] = autodiff.AutodiffBackend[B]

// Differentiable is a backend able to compute values and gradients.
type Differentiable = autodiff.Differentiable

// GradientTape records operations for automatic differentiation.
type GradientTape = autodiff.GradientTape

// New creates a new autodiff backend wrapping the given backend.
func New[B tensor.Backend](backend B) *Backend[B] {
	return autodiff.New(backend)
}

// Backward computes the gradients of t from the operations recorded on
// the backend's tape, keyed by tensor ID.
func Backward[T tensor.DType, B autodiff.BackwardCapable](t *tensor.Tensor[T, B], backend B) map[tensor.ID]*tensor.RawTensor {
	return autodiff.Backward(t, backend)
}
