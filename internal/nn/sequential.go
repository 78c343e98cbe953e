package nn

import (
	"github.com/born-ml/gradkit/internal/tensor"
)

// Sequential chains modules: each module's output is the next one's input.
type Sequential[B tensor.Backend] struct {
	modules []Module[B]
}

// NewSequential creates a Sequential container.
func NewSequential[B tensor.Backend](modules ...Module[B]) *Sequential[B] {
	return &Sequential[B]{modules: modules}
}

// Forward applies every module in order.
func (s *Sequential[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	out := input
	for _, m := range s.modules {
		out = m.Forward(out)
	}
	return out
}

// Variables collects the variables of every module, in order.
func (s *Sequential[B]) Variables() []*tensor.Variable[B] {
	var vars []*tensor.Variable[B]
	for _, m := range s.modules {
		vars = append(vars, m.Variables()...)
	}
	return vars
}

// Add appends a module.
func (s *Sequential[B]) Add(m Module[B]) {
	s.modules = append(s.modules, m)
}

// Len returns the number of modules.
func (s *Sequential[B]) Len() int {
	return len(s.modules)
}
