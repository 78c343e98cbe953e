package optim

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/born-ml/gradkit/internal/tensor"
)

// slots holds one kept state tensor per variable (an Adagrad accumulator,
// an Adam moment, an SGD velocity), keyed by the variable ID.
//
// State loaded from a StateDict is held by variable name until the
// variable is first updated.
type slots struct {
	prefix  string
	arena   *tensor.Arena
	byID    map[tensor.ID]*tensor.RawTensor
	names   map[tensor.ID]string
	pending map[string]*tensor.RawTensor
}

func newSlots(prefix string, arena *tensor.Arena) *slots {
	return &slots{
		prefix:  prefix,
		arena:   arena,
		byID:    make(map[tensor.ID]*tensor.RawTensor),
		names:   make(map[tensor.ID]string),
		pending: make(map[string]*tensor.RawTensor),
	}
}

// get returns the slot for v, binding loaded state or calling init (whose
// result is kept) when v has none yet.
func (s *slots) get(id tensor.ID, name string, shape tensor.Shape, init func() *tensor.RawTensor) (*tensor.RawTensor, error) {
	if r, ok := s.byID[id]; ok {
		return r, nil
	}
	if r, ok := s.pending[name]; ok {
		if !r.Shape().Equal(shape) {
			return nil, errors.Wrapf(ErrShapeMismatch, "loaded %s for %q has shape %v, variable has shape %v",
				s.prefix, name, r.Shape(), shape)
		}
		delete(s.pending, name)
		s.byID[id] = r
		s.names[id] = name
		return r, nil
	}
	r := s.arena.Keep(init())
	s.byID[id] = r
	s.names[id] = name
	return r, nil
}

// replace installs next as the slot for id and releases the previous one.
func (s *slots) replace(id tensor.ID, next *tensor.RawTensor) {
	s.arena.Keep(next)
	if prev, ok := s.byID[id]; ok && prev != next {
		prev.Release()
	}
	s.byID[id] = next
}

func (s *slots) len() int {
	return len(s.byID)
}

// stateDict adds "<prefix>.<variable name>" entries to dst.
func (s *slots) stateDict(dst map[string]*tensor.RawTensor) {
	for id, r := range s.byID {
		dst[s.prefix+"."+s.names[id]] = r
	}
	for name, r := range s.pending {
		dst[s.prefix+"."+name] = r
	}
}

// load copies every "<prefix>.*" entry of src into private kept tensors.
func (s *slots) load(src map[string]*tensor.RawTensor) error {
	for key, r := range src {
		name, ok := strings.CutPrefix(key, s.prefix+".")
		if !ok {
			continue
		}
		if r.DType() != tensor.Float32 {
			return errors.Errorf("state %q: expected float32, got %s", key, r.DType())
		}
		cp := s.arena.Keep(s.arena.MustNewRaw(r.Shape(), r.DType(), r.Device()))
		copy(cp.Data(), r.Data())

		// Drop whatever is bound to that name already.
		for id, n := range s.names {
			if n == name {
				s.byID[id].Release()
				delete(s.byID, id)
				delete(s.names, id)
			}
		}
		if prev, ok := s.pending[name]; ok {
			prev.Release()
		}
		s.pending[name] = cp
	}
	return nil
}

// release frees every slot.
func (s *slots) release() {
	for id, r := range s.byID {
		r.Release()
		delete(s.byID, id)
		delete(s.names, id)
	}
	for name, r := range s.pending {
		r.Release()
		delete(s.pending, name)
	}
}
