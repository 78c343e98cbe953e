// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package optim

import (
	"github.com/born-ml/gradkit/internal/autodiff"
	"github.com/born-ml/gradkit/internal/optim"
	"github.com/born-ml/gradkit/internal/tensor"
)

// Optimizer is the contract shared by all optimizers.
type Optimizer[B autodiff.Differentiable] = optim.Optimizer[B]

// Config represents the base configuration for optimizers.
type Config = optim.Config

// Errors returned by optimizers.
var (
	ErrShapeMismatch = optim.ErrShapeMismatch
	ErrDisposed      = optim.ErrDisposed
	ErrNoVariables   = optim.ErrNoVariables
)

// Adagrad

// Adagrad represents the Adagrad optimizer.
type Adagrad[B autodiff.Differentiable] = optim.Adagrad[B]

// AdagradConfig contains configuration for the Adagrad optimizer.
type AdagradConfig = optim.AdagradConfig

// NewAdagrad creates a new Adagrad optimizer.
//
// Example:
//
//	optimizer, err := optim.NewAdagrad(vars, optim.AdagradConfig{
//	    LR:                      0.1,
//	    InitialAccumulatorValue: 0.1,
//	}, backend)
func NewAdagrad[B autodiff.Differentiable](params []*tensor.Variable[B], config AdagradConfig, backend B) (*Adagrad[B], error) {
	return optim.NewAdagrad(params, config, backend)
}

// SGD (Stochastic Gradient Descent)

// SGD represents the SGD optimizer with optional momentum.
type SGD[B autodiff.Differentiable] = optim.SGD[B]

// SGDConfig contains configuration for SGD optimizer.
type SGDConfig = optim.SGDConfig

// NewSGD creates a new SGD optimizer.
func NewSGD[B autodiff.Differentiable](params []*tensor.Variable[B], config SGDConfig, backend B) *SGD[B] {
	return optim.NewSGD(params, config, backend)
}

// Adam (Adaptive Moment Estimation)

// Adam represents the Adam optimizer.
type Adam[B autodiff.Differentiable] = optim.Adam[B]

// AdamConfig contains configuration for Adam optimizer.
type AdamConfig = optim.AdamConfig

// NewAdam creates a new Adam optimizer with bias correction.
func NewAdam[B autodiff.Differentiable](params []*tensor.Variable[B], config AdamConfig, backend B) *Adam[B] {
	return optim.NewAdam(params, config, backend)
}

// ByName builds an optimizer from its name ("adagrad", "sgd", "adam").
func ByName[B autodiff.Differentiable](name string, params []*tensor.Variable[B], lr float32, backend B) (Optimizer[B], error) {
	return optim.ByName(name, params, lr, backend)
}

// Names lists the optimizers known to ByName.
func Names() []string {
	return optim.Names()
}

// SaveState writes the optimizer state to a SafeTensors file.
func SaveState[B autodiff.Differentiable](path string, opt Optimizer[B], metadata map[string]string) error {
	return optim.SaveState(path, opt, metadata)
}

// LoadState restores the optimizer state written by SaveState.
func LoadState[B autodiff.Differentiable](path string, opt Optimizer[B], backend B) (map[string]string, error) {
	return optim.LoadState(path, opt, backend)
}
