// Package ops defines the differentiable operations recorded on the
// gradient tape.
//
// An operation keeps the handles of its forward inputs and output and maps
// an output gradient to one gradient per input. Backward implementations
// allocate through the backend they are given, so every gradient lives in
// the same arena as the forward values.
package ops

import "github.com/born-ml/gradkit/internal/tensor"

// Operation is one recorded step of the forward pass.
type Operation interface {
	// Backward returns one gradient per input, in input order. Every
	// returned gradient is a distinct handle, even when two inputs receive
	// the same values (as for a + b).
	Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor

	// Inputs returns the forward inputs.
	Inputs() []*tensor.RawTensor

	// Output returns the forward output.
	Output() *tensor.RawTensor
}

// record holds the forward handles shared by every operation.
type record struct {
	inputs []*tensor.RawTensor
	output *tensor.RawTensor
}

func (r record) Inputs() []*tensor.RawTensor { return r.inputs }

func (r record) Output() *tensor.RawTensor { return r.output }
