// Package nn implements small neural network modules on top of tensor
// variables.
//
// A module owns its trainable state as *tensor.Variable values, so any
// optimizer in the optim package can train it through Minimize:
//
//	model := nn.NewSequential[B](
//	    nn.NewLinear("hidden", 3, 8, backend, rng),
//	    nn.NewLinear("out", 8, 1, backend, rng),
//	)
//	opt, _ := optim.NewAdagrad(model.Variables(), optim.AdagradConfig{LR: 0.1}, backend)
//	_, err := opt.Minimize(func() *tensor.Tensor[float32, B] {
//	    return nn.MSE(model.Forward(x), y)
//	}, false)
package nn

import (
	"github.com/born-ml/gradkit/internal/tensor"
)

// Module is the interface shared by all network components.
type Module[B tensor.Backend] interface {
	// Forward computes the module output. It allocates in the backend's
	// current arena scope.
	Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]

	// Variables returns the trainable variables of the module, in a
	// stable order.
	Variables() []*tensor.Variable[B]
}

// StateDict maps "<variable name>" to the current value of every variable
// of m. The tensors are owned by the variables.
func StateDict[B tensor.Backend](m Module[B]) map[string]*tensor.RawTensor {
	state := make(map[string]*tensor.RawTensor)
	for _, v := range m.Variables() {
		state[v.Name()] = v.Tensor().Raw()
	}
	return state
}

// Dispose releases every variable of m.
func Dispose[B tensor.Backend](m Module[B]) {
	for _, v := range m.Variables() {
		v.Dispose()
	}
}
