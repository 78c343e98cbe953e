// Package cpu implements the pure Go CPU backend.
package cpu

import (
	"github.com/born-ml/gradkit/internal/parallel"
	"github.com/born-ml/gradkit/internal/tensor"
)

// Verify that CPUBackend implements tensor.Backend.
var _ tensor.Backend = (*CPUBackend)(nil)

// CPUBackend implements tensor operations on CPU.
//
// Every kernel allocates a fresh result through the backend's arena; no
// kernel writes into its inputs, so tensor identities stay stable.
type CPUBackend struct {
	device   tensor.Device
	arena    *tensor.Arena
	parallel parallel.Config
}

// New creates a new CPU backend with its own arena.
func New() *CPUBackend {
	return NewWithArena(tensor.NewArena())
}

// NewWithArena creates a CPU backend allocating through arena.
func NewWithArena(arena *tensor.Arena) *CPUBackend {
	return &CPUBackend{
		device:   tensor.CPU,
		arena:    arena,
		parallel: parallel.DefaultConfig(),
	}
}

// SetParallel overrides the parallel execution config used by element-wise
// and matmul kernels.
func (cpu *CPUBackend) SetParallel(cfg parallel.Config) {
	cpu.parallel = cfg
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}

// Arena returns the arena tracking every tensor this backend creates.
func (cpu *CPUBackend) Arena() *tensor.Arena {
	return cpu.arena
}

func (cpu *CPUBackend) alloc(shape tensor.Shape, dtype tensor.DataType) *tensor.RawTensor {
	return cpu.arena.MustNewRaw(shape, dtype, cpu.device)
}
