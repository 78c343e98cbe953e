package autodiff

import (
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"

	"github.com/born-ml/gradkit/internal/tensor"
)

// Differentiable is a backend that can evaluate a scalar expression and
// return its gradients with respect to a set of tensors.
// AutodiffBackend implements this interface; optimizers and the graph
// session consume it.
type Differentiable interface {
	tensor.Backend

	// ValueAndGrads evaluates f and returns its value together with the
	// gradient of that value with respect to each of xs. A gradient is nil
	// when the value does not depend on the corresponding tensor.
	ValueAndGrads(f func() *tensor.RawTensor, xs []*tensor.RawTensor) (*tensor.RawTensor, []*tensor.RawTensor, error)
}

// BackwardCapable is an interface for backends that expose their tape.
type BackwardCapable interface {
	tensor.Backend
	// GetTape returns the gradient tape for backward computation.
	GetTape() *GradientTape
}

// Verify that AutodiffBackend implements the capability interfaces.
var (
	_ Differentiable  = (*AutodiffBackend[tensor.Backend])(nil)
	_ BackwardCapable = (*AutodiffBackend[tensor.Backend])(nil)
)

// GetTape returns the gradient tape (implements BackwardCapable interface).
func (b *AutodiffBackend[B]) GetTape() *GradientTape {
	return b.tape
}

// ValueAndGrads records f on a fresh tape, checks that its value holds a
// single element and backpropagates from it.
//
// Every tensor created here (intermediates, gradients) is allocated in
// the backend's arena; callers run ValueAndGrads inside an arena scope to
// release them. Panics raised by kernels while evaluating f are returned
// as errors.
func (b *AutodiffBackend[B]) ValueAndGrads(f func() *tensor.RawTensor, xs []*tensor.RawTensor) (*tensor.RawTensor, []*tensor.RawTensor, error) {
	var (
		value *tensor.RawTensor
		grads []*tensor.RawTensor
	)
	b.tape.Clear()
	b.tape.StartRecording()
	defer func() {
		b.tape.StopRecording()
		b.tape.Clear()
	}()

	err := exceptions.TryCatch[error](func() {
		value = f()
		b.tape.StopRecording()
		if value == nil {
			exceptions.Panicf("function returned no value")
		}
		if value.NumElements() != 1 {
			exceptions.Panicf("gradients require a scalar value, got shape %v", value.Shape())
		}

		seed := tensor.FullRaw(value.Shape(), value.DType(), 1, b.inner)
		all := b.tape.Backward(value, seed, b.inner)
		grads = make([]*tensor.RawTensor, len(xs))
		for i, x := range xs {
			grads[i] = all[x.ID()]
		}
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "value and gradients")
	}
	return value, grads, nil
}

// Backward computes gradients of t using the backend's tape.
//
// The output gradient is ones shaped like t. Returns a map from tensor ID
// to gradient.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//	x := tensor.Ones[float32](tensor.Shape{2}, backend)
//	y := x.Mul(x) // y = x²
//	gradients := autodiff.Backward(y, backend)
//	grad := gradients[x.ID()] // 2x
func Backward[T tensor.DType, B BackwardCapable](t *tensor.Tensor[T, B], backend B) map[tensor.ID]*tensor.RawTensor {
	tape := backend.GetTape()
	if tape.NumOps() == 0 {
		exceptions.Panicf("backward: no operations recorded (did you forget to call Tape().StartRecording()?)")
	}
	outputGrad := tensor.FullRaw(t.Shape(), t.DType(), 1, backend)
	return tape.Backward(t.Raw(), outputGrad, backend)
}
