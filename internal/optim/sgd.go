package optim

import (
	"github.com/gomlx/exceptions"
	"k8s.io/klog/v2"

	"github.com/born-ml/gradkit/internal/autodiff"
	"github.com/born-ml/gradkit/internal/tensor"
)

// SGD implements Stochastic Gradient Descent with optional momentum.
//
// Without momentum:
//
//	v = v - lr * g
//
// With momentum:
//
//	velocity = momentum * velocity + g
//	v = v - lr * velocity
//
// Example:
//
//	optimizer := optim.NewSGD(vars, optim.SGDConfig{
//	    LR:       0.01,
//	    Momentum: 0.9,
//	}, backend)
type SGD[B autodiff.Differentiable] struct {
	base[B]
	momentum   float32
	velocities *slots
}

// SGDConfig holds configuration for SGD optimizer.
type SGDConfig struct {
	LR       float32 // Learning rate (default: 0.01)
	Momentum float32 // Momentum factor (default: 0.0, range: [0, 1))
}

// NewSGD creates a new SGD optimizer.
//
// If Momentum is 0, performs vanilla SGD.
func NewSGD[B autodiff.Differentiable](params []*tensor.Variable[B], config SGDConfig, backend B) *SGD[B] {
	if config.LR == 0 {
		config.LR = 0.01
	}
	klog.V(1).Infof("sgd: lr=%g momentum=%g, %d variables", config.LR, config.Momentum, len(params))

	return &SGD[B]{
		base: base[B]{
			name:    "sgd",
			params:  params,
			backend: backend,
			lr:      config.LR,
		},
		momentum:   config.Momentum,
		velocities: newSlots("velocity", backend.Arena()),
	}
}

// Minimize evaluates lossFn and applies one SGD step. See Optimizer.Minimize.
func (s *SGD[B]) Minimize(lossFn func() *tensor.Tensor[float32, B], returnCost bool, varList ...*tensor.Variable[B]) (*tensor.Tensor[float32, B], error) {
	return s.minimize(lossFn, returnCost, varList, s.ApplyGradients)
}

// ApplyGradients applies one SGD step to every variable with a gradient.
func (s *SGD[B]) ApplyGradients(vars []*tensor.Variable[B], grads map[tensor.ID]*tensor.RawTensor) error {
	if err := s.checkUsable("ApplyGradients"); err != nil {
		return err
	}
	if err := checkGradients(s.name, vars, grads); err != nil {
		return err
	}

	return s.backend.Arena().Tidy(func() error {
		return exceptions.TryCatch[error](func() {
			for _, v := range vars {
				g, ok := grads[v.ID()]
				if !ok || g == nil {
					continue
				}
				if err := s.update(v, tensor.New[float32](g, s.backend)); err != nil {
					panic(err)
				}
				g.Release()
			}
			s.state = active
		})
	})
}

func (s *SGD[B]) update(v *tensor.Variable[B], g *tensor.Tensor[float32, B]) error {
	step := g
	if s.momentum != 0 {
		velocity, err := s.velocities.get(v.ID(), v.Name(), v.Shape(), func() *tensor.RawTensor {
			return tensor.FullRaw(v.Shape(), tensor.Float32, 0, s.backend)
		})
		if err != nil {
			return err
		}
		next := tensor.New[float32](velocity, s.backend).MulScalar(s.momentum).Add(g)
		s.velocities.replace(v.ID(), next.Raw())
		step = next
	}
	v.Assign(v.Tensor().Sub(step.MulScalar(s.lr)).Raw())
	return nil
}

// StateDict returns the velocities keyed by "velocity.<variable name>".
// Empty without momentum.
func (s *SGD[B]) StateDict() map[string]*tensor.RawTensor {
	state := make(map[string]*tensor.RawTensor)
	s.velocities.stateDict(state)
	return state
}

// LoadStateDict copies velocities from a StateDict. Ignored without momentum.
func (s *SGD[B]) LoadStateDict(state map[string]*tensor.RawTensor) error {
	if err := s.checkUsable("LoadStateDict"); err != nil {
		return err
	}
	if s.momentum == 0 {
		return nil
	}
	return s.velocities.load(state)
}

// Dispose releases the velocities.
func (s *SGD[B]) Dispose() {
	if !s.markDisposed() {
		return
	}
	s.velocities.release()
}
