package nn

import (
	"math/rand/v2"

	"github.com/gomlx/exceptions"

	"github.com/born-ml/gradkit/internal/tensor"
)

// Linear is a fully connected layer computing y = x @ W.T + b, where
//   - x has shape [batch, in]
//   - W has shape [out, in]
//   - b has shape [out]
//
// Weights use Xavier initialization, biases start at zero. The variables
// are named "<name>.weight" and "<name>.bias".
type Linear[B tensor.Backend] struct {
	name        string
	inFeatures  int
	outFeatures int
	weight      *tensor.Variable[B]
	bias        *tensor.Variable[B]
}

// NewLinear creates a Linear layer whose variables live in backend's arena.
func NewLinear[B tensor.Backend](name string, inFeatures, outFeatures int, backend B, rng *rand.Rand) *Linear[B] {
	if inFeatures <= 0 || outFeatures <= 0 {
		exceptions.Panicf("nn.NewLinear(%q): features must be positive, got in=%d out=%d", name, inFeatures, outFeatures)
	}
	w := Xavier(inFeatures, outFeatures, tensor.Shape{outFeatures, inFeatures}, backend, rng)
	b := tensor.Zeros[float32](tensor.Shape{outFeatures}, backend)
	return &Linear[B]{
		name:        name,
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		weight:      tensor.NewVariable(name+".weight", w),
		bias:        tensor.NewVariable(name+".bias", b),
	}
}

// Forward computes x @ W.T + b for x of shape [batch, in].
func (l *Linear[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	if len(shape) != 2 || shape[1] != l.inFeatures {
		exceptions.Panicf("nn.Linear(%q).Forward: expected input [batch, %d], got %v", l.name, l.inFeatures, shape)
	}
	out := input.MatMul(l.weight.Tensor().T())
	return out.Add(l.bias.Tensor().Reshape(1, l.outFeatures))
}

// Variables returns [weight, bias].
func (l *Linear[B]) Variables() []*tensor.Variable[B] {
	return []*tensor.Variable[B]{l.weight, l.bias}
}

// Weight returns the [out, in] weight variable.
func (l *Linear[B]) Weight() *tensor.Variable[B] { return l.weight }

// Bias returns the [out] bias variable.
func (l *Linear[B]) Bias() *tensor.Variable[B] { return l.bias }

// InFeatures returns the number of input features.
func (l *Linear[B]) InFeatures() int { return l.inFeatures }

// OutFeatures returns the number of output features.
func (l *Linear[B]) OutFeatures() int { return l.outFeatures }
