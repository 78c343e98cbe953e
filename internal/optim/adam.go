package optim

import (
	"math"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/gradkit/internal/autodiff"
	"github.com/born-ml/gradkit/internal/tensor"
)

// Adam implements the Adam (Adaptive Moment Estimation) optimizer.
//
// Update rule:
//
//	m_t = beta1 * m_{t-1} + (1-beta1) * gradient       // First moment
//	v_t = beta2 * v_{t-1} + (1-beta2) * gradient²      // Second moment
//	m_hat = m_t / (1 - beta1^t)                        // Bias correction
//	v_hat = v_t / (1 - beta2^t)                        // Bias correction
//	param = param - lr * m_hat / (sqrt(v_hat) + eps)  // Parameter update
//
// The moments are updated in place.
//
// Reference: "Adam: A Method for Stochastic Optimization" (Kingma & Ba, 2014)
type Adam[B autodiff.Differentiable] struct {
	base[B]
	beta1 float32
	beta2 float32
	eps   float32
	t     int // Timestep for bias correction
	m     *slots
	v     *slots
	step  *tensor.RawTensor // t as a tensor, for StateDict
}

// AdamConfig holds configuration for Adam optimizer.
type AdamConfig struct {
	LR    float32    // Learning rate (default: 0.001)
	Betas [2]float32 // Coefficients for computing running averages (default: [0.9, 0.999])
	Eps   float32    // Term for numerical stability (default: 1e-8)
}

// NewAdam creates a new Adam optimizer.
//
// Default hyperparameters:
//   - LR: 0.001
//   - Beta1: 0.9
//   - Beta2: 0.999
//   - Eps: 1e-8
func NewAdam[B autodiff.Differentiable](params []*tensor.Variable[B], config AdamConfig, backend B) *Adam[B] {
	if config.LR == 0 {
		config.LR = 0.001
	}
	if config.Betas[0] == 0 {
		config.Betas[0] = 0.9
	}
	if config.Betas[1] == 0 {
		config.Betas[1] = 0.999
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}
	klog.V(1).Infof("adam: lr=%g betas=%v eps=%g, %d variables", config.LR, config.Betas, config.Eps, len(params))

	return &Adam[B]{
		base: base[B]{
			name:    "adam",
			params:  params,
			backend: backend,
			lr:      config.LR,
		},
		beta1: config.Betas[0],
		beta2: config.Betas[1],
		eps:   config.Eps,
		m:     newSlots("m", backend.Arena()),
		v:     newSlots("v", backend.Arena()),
	}
}

// Minimize evaluates lossFn and applies one Adam step. See Optimizer.Minimize.
func (a *Adam[B]) Minimize(lossFn func() *tensor.Tensor[float32, B], returnCost bool, varList ...*tensor.Variable[B]) (*tensor.Tensor[float32, B], error) {
	return a.minimize(lossFn, returnCost, varList, a.ApplyGradients)
}

// ApplyGradients performs a single optimization step using Adam algorithm.
//
// Variables with no gradient are skipped. The timestep advances once per call.
func (a *Adam[B]) ApplyGradients(vars []*tensor.Variable[B], grads map[tensor.ID]*tensor.RawTensor) error {
	if err := a.checkUsable("ApplyGradients"); err != nil {
		return err
	}
	if err := checkGradients(a.name, vars, grads); err != nil {
		return err
	}

	a.t++
	biasCorrection1 := float32(1.0 - math.Pow(float64(a.beta1), float64(a.t)))
	biasCorrection2 := float32(1.0 - math.Pow(float64(a.beta2), float64(a.t)))

	return a.backend.Arena().Tidy(func() error {
		return exceptions.TryCatch[error](func() {
			for _, v := range vars {
				g, ok := grads[v.ID()]
				if !ok || g == nil {
					continue
				}
				if err := a.update(v, g, biasCorrection1, biasCorrection2); err != nil {
					panic(err)
				}
				g.Release()
			}
			a.state = active
		})
	})
}

func (a *Adam[B]) update(param *tensor.Variable[B], grad *tensor.RawTensor, biasCorrection1, biasCorrection2 float32) error {
	zeros := func() *tensor.RawTensor {
		return tensor.FullRaw(param.Shape(), tensor.Float32, 0, a.backend)
	}
	m, err := a.m.get(param.ID(), param.Name(), param.Shape(), zeros)
	if err != nil {
		return err
	}
	v, err := a.v.get(param.ID(), param.Name(), param.Shape(), zeros)
	if err != nil {
		return err
	}

	gradData := grad.AsFloat32()
	mData := m.AsFloat32()
	vData := v.AsFloat32()
	// The new value goes through Assign so views of the variable keep the old one.
	next := a.backend.Arena().MustNewRaw(param.Shape(), tensor.Float32, a.backend.Device())
	copy(next.Data(), param.Tensor().Raw().Data())
	paramData := next.AsFloat32()

	for i := range paramData {
		g := gradData[i]
		mData[i] = a.beta1*mData[i] + (1.0-a.beta1)*g
		vData[i] = a.beta2*vData[i] + (1.0-a.beta2)*g*g
		mHat := mData[i] / biasCorrection1
		vHat := vData[i] / biasCorrection2
		paramData[i] -= a.lr * mHat / (float32(math.Sqrt(float64(vHat))) + a.eps)
	}
	param.Assign(next)
	return nil
}

// GetTimestep returns the current timestep.
func (a *Adam[B]) GetTimestep() int {
	return a.t
}

// StateDict returns the moments keyed by "m.<variable>" and "v.<variable>"
// plus the timestep under "step".
func (a *Adam[B]) StateDict() map[string]*tensor.RawTensor {
	state := make(map[string]*tensor.RawTensor)
	a.m.stateDict(state)
	a.v.stateDict(state)
	if a.step == nil {
		a.step = a.backend.Arena().Keep(tensor.FullRaw(tensor.Shape{}, tensor.Float32, 0, a.backend))
	}
	a.step.AsFloat32()[0] = float32(a.t)
	state["step"] = a.step
	return state
}

// LoadStateDict copies moments and timestep from a StateDict.
func (a *Adam[B]) LoadStateDict(state map[string]*tensor.RawTensor) error {
	if err := a.checkUsable("LoadStateDict"); err != nil {
		return err
	}
	if step, ok := state["step"]; ok {
		if step.DType() != tensor.Float32 || step.NumElements() != 1 {
			return errors.Errorf("adam: invalid step tensor %s%v", step.DType(), step.Shape())
		}
		a.t = int(step.AsFloat32()[0])
	}
	if err := a.m.load(state); err != nil {
		return err
	}
	return a.v.load(state)
}

// Dispose releases both moment estimates.
func (a *Adam[B]) Dispose() {
	if !a.markDisposed() {
		return
	}
	a.m.release()
	a.v.release()
	if a.step != nil {
		a.step.Release()
	}
}
