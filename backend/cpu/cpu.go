// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package cpu

import (
	internalcpu "github.com/born-ml/gradkit/internal/backend/cpu"
	"github.com/born-ml/gradkit/internal/parallel"
	"github.com/born-ml/gradkit/tensor"
)

// Backend represents the CPU backend implementation.
type Backend = internalcpu.CPUBackend

// ParallelConfig controls how kernels split work across goroutines.
type ParallelConfig = parallel.Config

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)

// New creates a CPU backend with its own arena.
//
// Example:
//
//	backend := cpu.New()
//	x := tensor.Zeros[float32](tensor.Shape{2, 3}, backend)
func New() *Backend {
	return internalcpu.New()
}

// NewWithArena creates a CPU backend allocating through an existing arena.
func NewWithArena(arena *tensor.Arena) *Backend {
	return internalcpu.NewWithArena(arena)
}

// DefaultParallelConfig returns the configuration New uses.
func DefaultParallelConfig() ParallelConfig {
	return parallel.DefaultConfig()
}
