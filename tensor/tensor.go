// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/gradkit/internal/tensor"
)

// DType is a constraint for tensor element types: float32 and float64.
type DType = tensor.DType

// DataType represents the underlying data type of a tensor.
type DataType = tensor.DataType

// Data type constants.
const (
	Float32 DataType = tensor.Float32
	Float64 DataType = tensor.Float64
)

// Device represents the device where tensor data resides.
type Device = tensor.Device

// CPU is the only device gradkit computes on.
const CPU Device = tensor.CPU

// Shape represents the dimensions of a tensor.
// Example: Shape{2, 3, 4} represents a 3D tensor with dimensions 2×3×4.
type Shape = tensor.Shape

// ID is the identity of a tensor handle.
type ID = tensor.ID

// RawTensor is the low-level tensor handle: shape, dtype, a
// reference-counted buffer and an ID.
//
// Most users should use the high-level Tensor[T, B] type instead.
type RawTensor = tensor.RawTensor

// Arena tracks live handles and provides scoped cleanup.
type Arena = tensor.Arena

// Backend is the contract compute backends implement. Backends allocate
// every result through their Arena.
//
// Implementations:
//   - backend/cpu: pure Go kernels
//   - autodiff: decorator recording operations for gradients
type Backend = tensor.Backend

// Tensor is a generic type-safe tensor.
//
// Example:
//
//	backend := cpu.New()
//	x := tensor.Zeros[float32](tensor.Shape{2, 3}, backend)
//	y := tensor.Ones[float32](tensor.Shape{2, 3}, backend)
//	z := x.Add(y)
type Tensor[T DType, B Backend] = tensor.Tensor[T, B]

// Variable is a named, mutable float32 tensor used as an optimization parameter.
type Variable[B Backend] = tensor.Variable[B]

// NewArena creates an empty arena.
func NewArena() *Arena {
	return tensor.NewArena()
}

// New wraps raw as a typed tensor on backend b.
func New[T DType, B Backend](raw *RawTensor, b B) *Tensor[T, B] {
	return tensor.New[T](raw, b)
}

// FromSlice creates a tensor from a Go slice. The data is copied.
func FromSlice[T DType, B Backend](data []T, shape Shape, b B) (*Tensor[T, B], error) {
	return tensor.FromSlice(data, shape, b)
}

// Zeros creates a tensor filled with zeros.
func Zeros[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	return tensor.Zeros[T](shape, b)
}

// Ones creates a tensor filled with ones.
func Ones[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	return tensor.Ones[T](shape, b)
}

// Full creates a tensor filled with value.
func Full[T DType, B Backend](shape Shape, value T, b B) *Tensor[T, B] {
	return tensor.Full(shape, value, b)
}

// Scalar creates a 0-D tensor.
func Scalar[T DType, B Backend](value T, b B) *Tensor[T, B] {
	return tensor.Scalar(value, b)
}

// NewVariable wraps an initialized tensor as a trainable variable and
// takes ownership of it.
func NewVariable[B Backend](name string, t *Tensor[float32, B]) *Variable[B] {
	return tensor.NewVariable(name, t)
}

// BroadcastShapes returns the NumPy broadcast of a and b.
func BroadcastShapes(a, b Shape) (Shape, bool, error) {
	return tensor.BroadcastShapes(a, b)
}
