package tensor

import (
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
)

// Arena tracks every tensor handle allocated through it.
//
// It answers "how many tensors are alive right now" (NumTensors) and
// provides scoped cleanup: handles allocated between StartScope and
// EndScope are released when the scope ends, unless they were kept
// (Keep) or returned from the scope (EndScope results), in which case
// they move to the enclosing scope.
//
// Example:
//
//	arena := tensor.NewArena()
//	err := arena.Tidy(func() error {
//	    tmp := x.Mul(x)       // released when Tidy returns
//	    acc.Assign(tmp.Raw()) // acc survives, it was created outside
//	    return nil
//	})
type Arena struct {
	mu     sync.Mutex
	live   map[ID]*RawTensor
	kept   map[ID]struct{}
	bytes  int
	scopes []*scope
}

type scope struct {
	tracked []*RawTensor
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{
		live: make(map[ID]*RawTensor),
		kept: make(map[ID]struct{}),
	}
}

// NewRaw allocates a zero-filled tensor tracked by the arena.
func (a *Arena) NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}

	byteSize := shape.NumElements() * dtype.Size()
	r := &RawTensor{
		id:     nextID(),
		arena:  a,
		buffer: newTensorBuffer(byteSize, a),
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  dtype,
		device: device,
	}
	a.allocBytes(byteSize)
	a.track(r)
	return r, nil
}

// MustNewRaw is NewRaw for callers that already validated the shape.
// It panics (with an error value) on failure.
func (a *Arena) MustNewRaw(shape Shape, dtype DataType, device Device) *RawTensor {
	r, err := a.NewRaw(shape, dtype, device)
	if err != nil {
		exceptions.Panicf("allocation of %s%v failed: %v", dtype, shape, err)
	}
	return r
}

// NumTensors returns the number of live (unreleased) handles.
func (a *Arena) NumTensors() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.live)
}

// NumBytes returns the number of bytes held by live buffers.
func (a *Arena) NumBytes() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bytes
}

// Depth returns the number of open scopes.
func (a *Arena) Depth() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.scopes)
}

// IsLive reports whether the handle with the given id is still tracked.
func (a *Arena) IsLive(id ID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.live[id]
	return ok
}

// StartScope opens a new scope. Every handle allocated until the matching
// EndScope is owned by it.
func (a *Arena) StartScope() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scopes = append(a.scopes, &scope{})
}

// EndScope closes the innermost scope. Handles allocated inside it are
// released, except kept handles and the given results, which move to the
// enclosing scope (or become unscoped at the top level).
func (a *Arena) EndScope(results ...*RawTensor) {
	a.mu.Lock()
	if len(a.scopes) == 0 {
		a.mu.Unlock()
		exceptions.Panicf("EndScope called without a matching StartScope")
	}
	s := a.scopes[len(a.scopes)-1]
	a.scopes = a.scopes[:len(a.scopes)-1]

	promoted := make(map[ID]struct{}, len(results))
	for _, r := range results {
		if r != nil {
			promoted[r.id] = struct{}{}
		}
	}

	var toRelease []*RawTensor
	for _, r := range s.tracked {
		if r.released.Load() {
			continue
		}
		if _, ok := a.kept[r.id]; ok {
			continue
		}
		if _, ok := promoted[r.id]; ok {
			if len(a.scopes) > 0 {
				parent := a.scopes[len(a.scopes)-1]
				parent.tracked = append(parent.tracked, r)
			}
			continue
		}
		toRelease = append(toRelease, r)
	}
	a.mu.Unlock()

	// Release outside the lock: it calls back into forget/freeBytes.
	for _, r := range toRelease {
		r.Release()
	}
}

// Keep exempts a handle from scope cleanup. It stays live until Release
// is called on it explicitly.
func (a *Arena) Keep(r *RawTensor) *RawTensor {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.live[r.id]; ok {
		a.kept[r.id] = struct{}{}
	}
	return r
}

// Tidy runs fn inside a scope and releases everything fn allocated that
// was not kept. The scope ends even if fn panics.
func (a *Arena) Tidy(fn func() error) error {
	a.StartScope()
	defer a.EndScope()
	return fn()
}

// String summarizes the arena, e.g. "arena{tensors=3, bytes=24 B, scopes=0}".
func (a *Arena) String() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return fmt.Sprintf("arena{tensors=%d, bytes=%s, scopes=%d}",
		len(a.live), humanize.IBytes(uint64(a.bytes)), len(a.scopes))
}

func (a *Arena) track(r *RawTensor) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.live[r.id] = r
	if len(a.scopes) > 0 {
		s := a.scopes[len(a.scopes)-1]
		s.tracked = append(s.tracked, r)
	}
}

func (a *Arena) forget(r *RawTensor) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.live, r.id)
	delete(a.kept, r.id)
}

func (a *Arena) allocBytes(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bytes += n
}

func (a *Arena) freeBytes(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bytes -= n
}
