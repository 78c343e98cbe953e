// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"math/rand/v2"

	"github.com/born-ml/gradkit/internal/nn"
	"github.com/born-ml/gradkit/internal/tensor"
)

// Module is the interface shared by all network components.
type Module[B tensor.Backend] = nn.Module[B]

// Linear is a fully connected layer.
type Linear[B tensor.Backend] = nn.Linear[B]

// Sequential chains modules.
type Sequential[B tensor.Backend] = nn.Sequential[B]

// ErrMissingVariable is returned by Load when a variable is absent from the checkpoint.
var ErrMissingVariable = nn.ErrMissingVariable

// NewLinear creates a Linear layer with variables "<name>.weight" and "<name>.bias".
func NewLinear[B tensor.Backend](name string, inFeatures, outFeatures int, backend B, rng *rand.Rand) *Linear[B] {
	return nn.NewLinear(name, inFeatures, outFeatures, backend, rng)
}

// NewSequential creates a Sequential container.
func NewSequential[B tensor.Backend](modules ...Module[B]) *Sequential[B] {
	return nn.NewSequential(modules...)
}

// MSE returns the mean squared error between predictions and targets.
func MSE[B tensor.Backend](predictions, targets *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return nn.MSE(predictions, targets)
}

// Xavier returns a Glorot-uniform initialized tensor.
func Xavier[B tensor.Backend](fanIn, fanOut int, shape tensor.Shape, backend B, rng *rand.Rand) *tensor.Tensor[float32, B] {
	return nn.Xavier(fanIn, fanOut, shape, backend, rng)
}

// StateDict maps variable names to their current values.
func StateDict[B tensor.Backend](m Module[B]) map[string]*tensor.RawTensor {
	return nn.StateDict(m)
}

// Save writes the variables of m to a SafeTensors file.
func Save[B tensor.Backend](path string, m Module[B], metadata map[string]string) error {
	return nn.Save(path, m, metadata)
}

// Load restores the variables of m from a SafeTensors file.
func Load[B tensor.Backend](path string, m Module[B], backend B) (map[string]string, error) {
	return nn.Load(path, m, backend)
}

// Dispose releases every variable of m.
func Dispose[B tensor.Backend](m Module[B]) {
	nn.Dispose(m)
}
