package tensor

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/gomlx/exceptions"
)

// Device represents the compute device for tensor operations.
type Device int

// Supported compute devices.
const (
	CPU Device = iota
)

// String returns a human-readable device name.
func (d Device) String() string {
	switch d {
	case CPU:
		return "CPU"
	default:
		return "Unknown"
	}
}

// ID is the stable identity of a tensor handle. IDs are unique for the
// lifetime of the process and are never reused, so they are safe map keys
// for per-variable optimizer state.
type ID uint64

var lastID atomic.Uint64

func nextID() ID {
	return ID(lastID.Add(1))
}

// tensorBuffer is a reference-counted shared buffer for Copy-on-Write semantics.
// Several handles (clones, reshape views) may point at the same buffer.
type tensorBuffer struct {
	data     []byte
	refCount atomic.Int32
	mu       sync.Mutex // For safe deallocation
	arena    *Arena
}

// newTensorBuffer creates a new reference-counted buffer with refCount = 1.
func newTensorBuffer(size int, arena *Arena) *tensorBuffer {
	buf := &tensorBuffer{
		data:  make([]byte, size),
		arena: arena,
	}
	buf.refCount.Store(1)
	return buf
}

// addRef increments the reference count (for Clone operations).
func (tb *tensorBuffer) addRef() {
	tb.refCount.Add(1)
}

// release decrements the reference count and deallocates if it reaches 0.
func (tb *tensorBuffer) release() {
	if tb.refCount.Add(-1) == 0 {
		tb.mu.Lock()
		defer tb.mu.Unlock()
		if tb.arena != nil {
			tb.arena.freeBytes(len(tb.data))
		}
		tb.data = nil
	}
}

// isUnique returns true if this buffer has only one reference.
func (tb *tensorBuffer) isUnique() bool {
	return tb.refCount.Load() == 1
}

// RawTensor is the low-level tensor handle.
// Every handle is created by an Arena, carries a unique ID and stays live
// until Release is called on it (directly or by the end of a scope).
type RawTensor struct {
	id       ID
	arena    *Arena
	buffer   *tensorBuffer // Shared reference-counted buffer
	shape    Shape         // Tensor dimensions
	stride   []int         // Memory strides (row-major)
	dtype    DataType      // Runtime type information
	device   Device        // Compute device
	released atomic.Bool
}

// ID returns the handle identity.
func (r *RawTensor) ID() ID {
	return r.id
}

// Arena returns the arena that tracks this handle.
func (r *RawTensor) Arena() *Arena {
	return r.arena
}

// Shape returns the tensor's shape.
func (r *RawTensor) Shape() Shape {
	return r.shape
}

// Strides returns the tensor's memory strides.
func (r *RawTensor) Strides() []int {
	return r.stride
}

// DType returns the tensor's data type.
func (r *RawTensor) DType() DataType {
	return r.dtype
}

// Device returns the tensor's compute device.
func (r *RawTensor) Device() Device {
	return r.device
}

// NumElements returns the total number of elements.
func (r *RawTensor) NumElements() int {
	return r.shape.NumElements()
}

// ByteSize returns the total memory size in bytes.
func (r *RawTensor) ByteSize() int {
	return r.NumElements() * r.dtype.Size()
}

// Data returns the raw byte slice.
// WARNING: Direct access to underlying memory. Use with caution.
func (r *RawTensor) Data() []byte {
	r.assertLive()
	return r.buffer.data
}

// AsFloat32 interprets the data as []float32.
// Panics if the tensor's dtype is not Float32.
func (r *RawTensor) AsFloat32() []float32 {
	if r.dtype != Float32 {
		exceptions.Panicf("tensor dtype is %s, not float32", r.dtype)
	}
	data := r.Data()
	//nolint:gosec // unsafe.Slice for zero-copy performance, bounds checked by NumElements()
	return unsafe.Slice((*float32)(unsafe.Pointer(&data[0])), r.NumElements())
}

// AsFloat64 interprets the data as []float64.
// Panics if the tensor's dtype is not Float64.
func (r *RawTensor) AsFloat64() []float64 {
	if r.dtype != Float64 {
		exceptions.Panicf("tensor dtype is %s, not float64", r.dtype)
	}
	data := r.Data()
	//nolint:gosec // unsafe.Slice for zero-copy performance, bounds checked by NumElements()
	return unsafe.Slice((*float64)(unsafe.Pointer(&data[0])), r.NumElements())
}

// Clone creates a new handle sharing the buffer (copy-on-write).
// The clone is a separate live tensor in the arena and must be released
// independently.
func (r *RawTensor) Clone() *RawTensor {
	return r.View(r.shape)
}

// View returns a new handle over the same buffer with a different shape.
// The number of elements must match.
func (r *RawTensor) View(shape Shape) *RawTensor {
	r.assertLive()
	if shape.NumElements() != r.NumElements() {
		exceptions.Panicf("view: incompatible shapes %v -> %v", r.shape, shape)
	}
	r.buffer.addRef()
	view := &RawTensor{
		id:     nextID(),
		arena:  r.arena,
		buffer: r.buffer,
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  r.dtype,
		device: r.device,
	}
	if r.arena != nil {
		r.arena.track(view)
	}
	return view
}

// Assign copies the contents of src into r. The identity (ID) and shape of
// r are preserved. If r shares its buffer with other handles, r first gets
// a private copy so the other handles are not affected.
func (r *RawTensor) Assign(src *RawTensor) {
	r.assertLive()
	if !r.shape.Equal(src.shape) || r.dtype != src.dtype {
		exceptions.Panicf("assign: cannot assign %s%v into %s%v", src.dtype, src.shape, r.dtype, r.shape)
	}
	if src.buffer == r.buffer {
		return
	}
	if !r.buffer.isUnique() {
		fresh := newTensorBuffer(len(r.buffer.data), r.arena)
		if r.arena != nil {
			r.arena.allocBytes(len(fresh.data))
		}
		old := r.buffer
		r.buffer = fresh
		old.release()
	}
	copy(r.buffer.data, src.Data())
}

// Release drops this handle. The buffer is freed once the last handle
// sharing it is released. Releasing twice is a no-op.
func (r *RawTensor) Release() {
	if !r.released.CompareAndSwap(false, true) {
		return
	}
	if r.arena != nil {
		r.arena.forget(r)
	}
	r.buffer.release()
}

// Released reports whether Release was called on this handle.
func (r *RawTensor) Released() bool {
	return r.released.Load()
}

// IsUnique returns true if this tensor is the only reference to the buffer.
func (r *RawTensor) IsUnique() bool {
	return r.buffer.isUnique()
}

func (r *RawTensor) assertLive() {
	if r.released.Load() {
		exceptions.Panicf("tensor #%d %s%v used after release", r.id, r.dtype, r.shape)
	}
}
