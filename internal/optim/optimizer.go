// Package optim implements gradient-based optimizers over tensor variables.
//
// This package provides:
//   - Optimizer interface: Minimize (eager) and ApplyGradients (graph mode)
//   - Adagrad: per-variable accumulators of squared gradients
//   - SGD: Stochastic Gradient Descent with momentum
//   - Adam: Adaptive Moment Estimation
//
// Every optimizer allocates through the backend's arena. A Minimize call
// runs inside an arena scope: the only tensors that outlive it are the
// variables (mutated in place), the optimizer state (kept) and, when
// requested, the returned cost.
//
// Example usage:
//
//	backend := autodiff.New(cpu.New())
//	x := tensor.NewVariable("x", xInit)
//	opt, _ := optim.NewAdagrad([]*tensor.Variable[B]{x}, optim.AdagradConfig{LR: 0.1}, backend)
//	defer opt.Dispose()
//
//	cost, err := opt.Minimize(func() *tensor.Tensor[float32, B] {
//	    return x.Tensor().Square().Sum()
//	}, true)
//	defer cost.Release()
package optim

import (
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/gradkit/internal/autodiff"
	"github.com/born-ml/gradkit/internal/tensor"
)

var (
	// ErrShapeMismatch is returned when a gradient (or loaded state) does
	// not have the shape of its variable. The variable is not modified.
	ErrShapeMismatch = errors.New("gradient shape does not match variable shape")

	// ErrDisposed is returned when an optimizer is used after Dispose.
	ErrDisposed = errors.New("optimizer has been disposed")

	// ErrNoVariables is returned by Minimize when there is nothing to optimize.
	ErrNoVariables = errors.New("no variables to optimize")
)

// Optimizer is the contract shared by all optimization algorithms.
//
// B is the differentiable backend the loss is evaluated on.
type Optimizer[B autodiff.Differentiable] interface {
	// Minimize evaluates lossFn, differentiates it with respect to the
	// optimizer's variables (or varList, when given) and applies one update.
	//
	// When returnCost is true the scalar cost is returned and the caller
	// owns it (must Release it); otherwise the cost is released and nil is
	// returned.
	Minimize(lossFn func() *tensor.Tensor[float32, B], returnCost bool, varList ...*tensor.Variable[B]) (*tensor.Tensor[float32, B], error)

	// ApplyGradients applies one update to vars using grads, keyed by
	// variable ID. Variables without a gradient are skipped. Consumed
	// gradients are released.
	ApplyGradients(vars []*tensor.Variable[B], grads map[tensor.ID]*tensor.RawTensor) error

	// StateDict returns the optimizer state keyed by "<slot>.<variable>".
	// The tensors are owned by the optimizer.
	StateDict() map[string]*tensor.RawTensor

	// LoadStateDict copies state from a StateDict. Entries are bound to
	// variables by name on their next update.
	LoadStateDict(state map[string]*tensor.RawTensor) error

	// GetLR returns the current learning rate.
	GetLR() float32

	// SetLR updates the learning rate.
	SetLR(lr float32)

	// Name returns the algorithm name ("adagrad", "sgd", "adam").
	Name() string

	// Dispose releases all optimizer state. The optimizer is unusable afterwards.
	Dispose()
}

// Config is the base configuration for all optimizers.
type Config struct {
	LR float32 // Learning rate
}

// ByName builds an optimizer with default hyperparameters from its name.
// Known names are "adagrad", "sgd" and "adam" (case-insensitive).
func ByName[B autodiff.Differentiable](name string, params []*tensor.Variable[B], lr float32, backend B) (Optimizer[B], error) {
	switch strings.ToLower(name) {
	case "adagrad":
		return NewAdagrad(params, AdagradConfig{LR: lr, InitialAccumulatorValue: 0.1}, backend)
	case "sgd":
		return NewSGD(params, SGDConfig{LR: lr}, backend), nil
	case "adam":
		return NewAdam(params, AdamConfig{LR: lr}, backend), nil
	default:
		return nil, errors.Errorf("unknown optimizer %q, known optimizers: %s", name, strings.Join(Names(), ", "))
	}
}

// Names lists the optimizers known to ByName.
func Names() []string {
	return []string{"adagrad", "adam", "sgd"}
}

// lifecycle is the state machine every optimizer follows:
// Uninitialized -> Active -> Disposed, never back.
type lifecycle int

const (
	uninitialized lifecycle = iota
	active
	disposed
)

func (l lifecycle) String() string {
	switch l {
	case uninitialized:
		return "uninitialized"
	case active:
		return "active"
	default:
		return "disposed"
	}
}

// base carries what all optimizers share: the variables, the backend and
// the Minimize orchestration.
type base[B autodiff.Differentiable] struct {
	name    string
	params  []*tensor.Variable[B]
	backend B
	lr      float32
	state   lifecycle
}

func (o *base[B]) Name() string { return o.name }

// GetLR returns the current learning rate.
func (o *base[B]) GetLR() float32 { return o.lr }

// SetLR updates the learning rate.
//
// Useful for learning rate scheduling during training.
func (o *base[B]) SetLR(lr float32) { o.lr = lr }

func (o *base[B]) checkUsable(op string) error {
	if o.state == disposed {
		return errors.Wrapf(ErrDisposed, "%s.%s", o.name, op)
	}
	return nil
}

// markDisposed moves to the Disposed state and reports whether this was
// the first call.
func (o *base[B]) markDisposed() bool {
	if o.state == disposed {
		klog.Warningf("%s optimizer disposed twice", o.name)
		return false
	}
	o.state = disposed
	return true
}

// minimize runs lossFn inside an arena scope, computes gradients for the
// trainable variables and hands them to apply. Only the cost (if
// requested) and whatever apply keeps survive the scope.
func (o *base[B]) minimize(
	lossFn func() *tensor.Tensor[float32, B],
	returnCost bool,
	varList []*tensor.Variable[B],
	apply func(vars []*tensor.Variable[B], grads map[tensor.ID]*tensor.RawTensor) error,
) (cost *tensor.Tensor[float32, B], err error) {
	if err := o.checkUsable("Minimize"); err != nil {
		return nil, err
	}
	vars := trainable(varList)
	if len(varList) == 0 {
		vars = trainable(o.params)
	}
	if len(vars) == 0 {
		return nil, errors.Wrapf(ErrNoVariables, "%s.Minimize", o.name)
	}

	arena := o.backend.Arena()
	arena.StartScope()
	var value *tensor.RawTensor
	defer func() {
		if err == nil && returnCost {
			arena.EndScope(value)
			return
		}
		arena.EndScope()
	}()

	xs := make([]*tensor.RawTensor, len(vars))
	for i, v := range vars {
		xs[i] = v.Tensor().Raw()
	}
	value, gradList, err := o.backend.ValueAndGrads(func() *tensor.RawTensor {
		return lossFn().Raw()
	}, xs)
	if err != nil {
		return nil, errors.WithMessagef(err, "%s.Minimize", o.name)
	}

	grads := make(map[tensor.ID]*tensor.RawTensor, len(vars))
	for i, g := range gradList {
		if g != nil {
			grads[vars[i].ID()] = g
		}
	}
	if err = apply(vars, grads); err != nil {
		return nil, err
	}

	if !returnCost {
		return nil, nil
	}
	return tensor.New[float32, B](value, o.backend), nil
}

// checkGradients validates every gradient before any variable is touched.
func checkGradients[B tensor.Backend](name string, vars []*tensor.Variable[B], grads map[tensor.ID]*tensor.RawTensor) error {
	for _, v := range vars {
		g, ok := grads[v.ID()]
		if !ok || g == nil {
			continue
		}
		if v.Disposed() {
			return errors.Errorf("%s: variable %q has been disposed", name, v.Name())
		}
		if !g.Shape().Equal(v.Shape()) {
			return errors.Wrapf(ErrShapeMismatch, "%s: variable %q has shape %v, gradient has shape %v",
				name, v.Name(), v.Shape(), g.Shape())
		}
		if g.DType() != tensor.Float32 {
			return errors.Errorf("%s: variable %q expects a float32 gradient, got %s", name, v.Name(), g.DType())
		}
	}
	return nil
}

func trainable[B tensor.Backend](vars []*tensor.Variable[B]) []*tensor.Variable[B] {
	out := make([]*tensor.Variable[B], 0, len(vars))
	for _, v := range vars {
		if v != nil && v.Trainable() {
			out = append(out, v)
		}
	}
	return out
}
