package optim

import (
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/gradkit/internal/autodiff"
	"github.com/born-ml/gradkit/internal/tensor"
)

// Adagrad implements the Adagrad optimizer.
//
// Each variable v has an accumulator acc of the same shape holding the
// running sum of squared gradients. For a gradient g:
//
//	acc = acc + g²
//	v   = v - lr * g / sqrt(acc + eps)
//
// Accumulators are created lazily on the first update of a variable,
// filled with InitialAccumulatorValue, and released by Dispose.
//
// Reference: "Adaptive Subgradient Methods for Online Learning and
// Stochastic Optimization" (Duchi et al., 2011)
type Adagrad[B autodiff.Differentiable] struct {
	base[B]
	initialAccumulatorValue float32
	eps                     float32
	accumulators            *slots
}

// AdagradConfig holds configuration for the Adagrad optimizer.
type AdagradConfig struct {
	LR                      float32 // Learning rate (default: 0.01)
	InitialAccumulatorValue float32 // Starting value of every accumulator (zero is valid)
	Epsilon                 float32 // Term for numerical stability (default: 1e-8)
}

// Validate checks the configuration.
func (c AdagradConfig) Validate() error {
	if c.LR < 0 {
		return errors.Errorf("adagrad: learning rate must be positive, got %g", c.LR)
	}
	if c.InitialAccumulatorValue < 0 {
		return errors.Errorf("adagrad: initial accumulator value must be non-negative, got %g", c.InitialAccumulatorValue)
	}
	if c.Epsilon < 0 {
		return errors.Errorf("adagrad: epsilon must be non-negative, got %g", c.Epsilon)
	}
	return nil
}

// NewAdagrad creates a new Adagrad optimizer for params.
//
// Default hyperparameters:
//   - LR: 0.01
//   - Epsilon: 1e-8
func NewAdagrad[B autodiff.Differentiable](params []*tensor.Variable[B], config AdagradConfig, backend B) (*Adagrad[B], error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.LR == 0 {
		config.LR = 0.01
	}
	if config.Epsilon == 0 {
		config.Epsilon = 1e-8
	}
	klog.V(1).Infof("adagrad: lr=%g initial_accumulator=%g eps=%g, %d variables",
		config.LR, config.InitialAccumulatorValue, config.Epsilon, len(params))

	return &Adagrad[B]{
		base: base[B]{
			name:    "adagrad",
			params:  params,
			backend: backend,
			lr:      config.LR,
		},
		initialAccumulatorValue: config.InitialAccumulatorValue,
		eps:                     config.Epsilon,
		accumulators:            newSlots("accumulator", backend.Arena()),
	}, nil
}

// Minimize evaluates lossFn, differentiates it and applies one Adagrad
// update to every trainable variable. See Optimizer.Minimize.
func (a *Adagrad[B]) Minimize(lossFn func() *tensor.Tensor[float32, B], returnCost bool, varList ...*tensor.Variable[B]) (*tensor.Tensor[float32, B], error) {
	return a.minimize(lossFn, returnCost, varList, a.ApplyGradients)
}

// ApplyGradients applies one Adagrad update to each variable that has a
// gradient in grads. All gradients are validated before any variable is
// modified.
func (a *Adagrad[B]) ApplyGradients(vars []*tensor.Variable[B], grads map[tensor.ID]*tensor.RawTensor) error {
	if err := a.checkUsable("ApplyGradients"); err != nil {
		return err
	}
	if err := checkGradients(a.name, vars, grads); err != nil {
		return err
	}

	return a.backend.Arena().Tidy(func() error {
		return exceptions.TryCatch[error](func() {
			for _, v := range vars {
				g, ok := grads[v.ID()]
				if !ok || g == nil {
					continue
				}
				if err := a.update(v, g); err != nil {
					panic(err)
				}
				g.Release()
			}
			a.state = active
		})
	})
}

func (a *Adagrad[B]) update(v *tensor.Variable[B], gRaw *tensor.RawTensor) error {
	acc, err := a.accumulators.get(v.ID(), v.Name(), v.Shape(), func() *tensor.RawTensor {
		return tensor.FullRaw(v.Shape(), tensor.Float32, float64(a.initialAccumulatorValue), a.backend)
	})
	if err != nil {
		return err
	}

	g := tensor.New[float32](gRaw, a.backend)
	newAcc := tensor.New[float32](acc, a.backend).Add(g.Square())
	a.accumulators.replace(v.ID(), newAcc.Raw())

	update := g.Div(newAcc.AddScalar(a.eps).Sqrt()).MulScalar(a.lr)
	v.Assign(v.Tensor().Sub(update).Raw())

	if klog.V(2).Enabled() {
		klog.Infof("adagrad: updated %q %v", v.Name(), v.Shape())
	}
	return nil
}

// StateDict returns the accumulators keyed by "accumulator.<variable name>".
func (a *Adagrad[B]) StateDict() map[string]*tensor.RawTensor {
	state := make(map[string]*tensor.RawTensor)
	a.accumulators.stateDict(state)
	return state
}

// LoadStateDict copies accumulators from a StateDict.
func (a *Adagrad[B]) LoadStateDict(state map[string]*tensor.RawTensor) error {
	if err := a.checkUsable("LoadStateDict"); err != nil {
		return err
	}
	return a.accumulators.load(state)
}

// NumAccumulators returns the number of live accumulators.
func (a *Adagrad[B]) NumAccumulators() int {
	return a.accumulators.len()
}

// Dispose releases every accumulator. Further calls to Minimize or
// ApplyGradients return ErrDisposed.
func (a *Adagrad[B]) Dispose() {
	if !a.markDisposed() {
		return
	}
	klog.V(1).Infof("adagrad: disposing %d accumulators", a.accumulators.len())
	a.accumulators.release()
}
