package tensor

import "github.com/gomlx/exceptions"

// Variable is a named, mutable float32 tensor used as an optimization
// parameter.
//
// A Variable owns its handle: the handle is kept (never released by a
// scope) and its ID is the variable's identity for the whole of its
// life. Optimizers mutate the contents in place through Assign and never
// reallocate it.
//
// Example:
//
//	x := tensor.NewVariable("x", tensor.Full[float32](Shape{2}, 1, backend))
//	defer x.Dispose()
type Variable[B Backend] struct {
	name      string
	tensor    *Tensor[float32, B]
	trainable bool
}

// NewVariable wraps an initialized tensor as a trainable variable and
// keeps it in the arena. The variable takes ownership of t.
func NewVariable[B Backend](name string, t *Tensor[float32, B]) *Variable[B] {
	t.Keep()
	return &Variable[B]{
		name:      name,
		tensor:    t,
		trainable: true,
	}
}

// Name returns the variable name.
func (v *Variable[B]) Name() string {
	return v.name
}

// ID returns the stable identity of the variable.
func (v *Variable[B]) ID() ID {
	return v.tensor.ID()
}

// Tensor returns the variable's current value. The returned tensor is
// the variable itself, not a copy.
func (v *Variable[B]) Tensor() *Tensor[float32, B] {
	return v.tensor
}

// Shape returns the variable's shape.
func (v *Variable[B]) Shape() Shape {
	return v.tensor.Shape()
}

// Trainable reports whether optimizers should update the variable.
func (v *Variable[B]) Trainable() bool {
	return v.trainable
}

// SetTrainable marks the variable as (not) trainable.
func (v *Variable[B]) SetTrainable(trainable bool) {
	v.trainable = trainable
}

// Assign overwrites the variable contents with src. Shapes must match.
func (v *Variable[B]) Assign(src *RawTensor) {
	if !src.Shape().Equal(v.Shape()) {
		exceptions.Panicf("variable %q: cannot assign shape %v to shape %v", v.name, src.Shape(), v.Shape())
	}
	v.tensor.Raw().Assign(src)
}

// Disposed reports whether the variable has been released.
func (v *Variable[B]) Disposed() bool {
	return v.tensor.Raw().Released()
}

// Dispose releases the variable's tensor.
func (v *Variable[B]) Dispose() {
	v.tensor.Release()
}
