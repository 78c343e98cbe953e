package graph

import (
	"math/rand/v2"

	"github.com/pkg/errors"

	"github.com/born-ml/gradkit/internal/tensor"
)

// ErrProviderExhausted is returned by a provider that has no more samples.
var ErrProviderExhausted = errors.New("input provider exhausted")

// InputProvider supplies the values of a Placeholder during training.
//
// NextCopy allocates a fresh tensor in backend's arena; the session hands
// it back through DisposeCopy once the iteration is done.
type InputProvider interface {
	NextCopy(backend tensor.Backend) (*tensor.RawTensor, error)
	DisposeCopy(raw *tensor.RawTensor)
}

// FeedEntry binds a Placeholder to the provider feeding it.
type FeedEntry struct {
	Node *Node
	Data InputProvider
}

// Sample is one input value.
type Sample struct {
	Shape  tensor.Shape
	Values []float32
}

func (s Sample) validate() error {
	if err := s.Shape.Validate(); err != nil {
		return err
	}
	if len(s.Values) != s.Shape.NumElements() {
		return errors.Errorf("sample of shape %v requires %d values, got %d", s.Shape, s.Shape.NumElements(), len(s.Values))
	}
	return nil
}

func (s Sample) copyTo(backend tensor.Backend) (*tensor.RawTensor, error) {
	raw, err := backend.Arena().NewRaw(s.Shape, tensor.Float32, backend.Device())
	if err != nil {
		return nil, err
	}
	copy(raw.AsFloat32(), s.Values)
	return raw, nil
}

// releaseCopy is the DisposeCopy shared by the providers here.
func releaseCopy(raw *tensor.RawTensor) {
	if raw != nil {
		raw.Release()
	}
}

// ConstantProvider returns the same sample forever.
type ConstantProvider struct {
	sample Sample
}

// NewConstantProvider creates a provider always returning values shaped as shape.
func NewConstantProvider(shape tensor.Shape, values ...float32) (*ConstantProvider, error) {
	s := Sample{Shape: shape.Clone(), Values: append([]float32(nil), values...)}
	if err := s.validate(); err != nil {
		return nil, errors.WithMessage(err, "constant provider")
	}
	return &ConstantProvider{sample: s}, nil
}

// NextCopy implements InputProvider.
func (p *ConstantProvider) NextCopy(backend tensor.Backend) (*tensor.RawTensor, error) {
	return p.sample.copyTo(backend)
}

// DisposeCopy implements InputProvider.
func (p *ConstantProvider) DisposeCopy(raw *tensor.RawTensor) { releaseCopy(raw) }

// SliceProvider returns its samples in order, then ErrProviderExhausted.
type SliceProvider struct {
	samples []Sample
	next    int
}

// NewSliceProvider creates a provider over samples.
func NewSliceProvider(samples ...Sample) (*SliceProvider, error) {
	for i, s := range samples {
		if err := s.validate(); err != nil {
			return nil, errors.WithMessagef(err, "slice provider sample #%d", i)
		}
	}
	return &SliceProvider{samples: samples}, nil
}

// NextCopy implements InputProvider.
func (p *SliceProvider) NextCopy(backend tensor.Backend) (*tensor.RawTensor, error) {
	if p.next >= len(p.samples) {
		return nil, errors.Wrapf(ErrProviderExhausted, "all %d samples consumed", len(p.samples))
	}
	raw, err := p.samples[p.next].copyTo(backend)
	if err != nil {
		return nil, err
	}
	p.next++
	return raw, nil
}

// DisposeCopy implements InputProvider.
func (p *SliceProvider) DisposeCopy(raw *tensor.RawTensor) { releaseCopy(raw) }

// Remaining returns how many samples are left.
func (p *SliceProvider) Remaining() int { return len(p.samples) - p.next }

// Reset rewinds the provider to its first sample.
func (p *SliceProvider) Reset() { p.next = 0 }

// ShuffledProviders serves several aligned inputs (for instance features
// and labels) in a shared random order. Sample i of every input is
// returned at the same position of an epoch, and the order is reshuffled
// for each epoch.
type ShuffledProviders struct {
	inputs  [][]Sample
	rng     *rand.Rand
	orders  map[int][]int // epoch -> permutation
	cursors []int
}

// NewShuffledProviders creates shuffled providers over inputs, which must
// all have the same number of samples. The same seed yields the same order.
func NewShuffledProviders(seed uint64, inputs ...[]Sample) (*ShuffledProviders, error) {
	if len(inputs) == 0 {
		return nil, errors.New("shuffled providers: no inputs")
	}
	n := len(inputs[0])
	if n == 0 {
		return nil, errors.New("shuffled providers: inputs are empty")
	}
	for i, in := range inputs {
		if len(in) != n {
			return nil, errors.Errorf("shuffled providers: input #%d has %d samples, input #0 has %d", i, len(in), n)
		}
		for j, s := range in {
			if err := s.validate(); err != nil {
				return nil, errors.WithMessagef(err, "shuffled providers: input #%d sample #%d", i, j)
			}
		}
	}
	return &ShuffledProviders{
		inputs:  inputs,
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		orders:  make(map[int][]int),
		cursors: make([]int, len(inputs)),
	}, nil
}

// Providers returns one InputProvider per input, in the order given.
func (s *ShuffledProviders) Providers() []InputProvider {
	out := make([]InputProvider, len(s.inputs))
	for i := range s.inputs {
		out[i] = &shuffledProvider{parent: s, input: i}
	}
	return out
}

// order returns the permutation of the given epoch, drawing it on first use
// and forgetting epochs every input has moved past.
func (s *ShuffledProviders) order(epoch int) []int {
	if perm, ok := s.orders[epoch]; ok {
		return perm
	}
	perm := s.rng.Perm(len(s.inputs[0]))
	s.orders[epoch] = perm

	n := len(s.inputs[0])
	oldest := epoch
	for _, c := range s.cursors {
		oldest = min(oldest, c/n)
	}
	for e := range s.orders {
		if e < oldest {
			delete(s.orders, e)
		}
	}
	return perm
}

type shuffledProvider struct {
	parent *ShuffledProviders
	input  int
}

func (p *shuffledProvider) NextCopy(backend tensor.Backend) (*tensor.RawTensor, error) {
	s := p.parent
	n := len(s.inputs[p.input])
	cursor := s.cursors[p.input]
	idx := s.order(cursor / n)[cursor%n]
	raw, err := s.inputs[p.input][idx].copyTo(backend)
	if err != nil {
		return nil, err
	}
	s.cursors[p.input]++
	return raw, nil
}

func (p *shuffledProvider) DisposeCopy(raw *tensor.RawTensor) { releaseCopy(raw) }
