// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/gradkit/backend/cpu"
	"github.com/born-ml/gradkit/tensor"
)

// TestBackendInterface verifies that the CPU backend implements tensor.Backend.
func TestBackendInterface(_ *testing.T) {
	var _ tensor.Backend = (*cpu.Backend)(nil)
}

func TestPublicAPI(t *testing.T) {
	backend := cpu.New()
	arena := backend.Arena()

	x, err := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2}, backend)
	require.NoError(t, err)
	assert.Equal(t, tensor.Float32, x.DType())

	arena.StartScope()
	y := x.Add(tensor.Ones[float32](tensor.Shape{2}, backend)).MatMul(x)
	assert.Equal(t, []float32{11, 16, 19, 28}, y.Values())
	arena.EndScope(y.Raw())

	assert.Equal(t, 2, arena.NumTensors())
	y.Release()
	x.Release()
	assert.Equal(t, 0, arena.NumTensors())
}

func TestPublicVariable(t *testing.T) {
	backend := cpu.New()
	w := tensor.NewVariable("w", tensor.Zeros[float32](tensor.Shape{2}, backend))
	id := w.ID()

	w.Assign(tensor.Full[float32](tensor.Shape{2}, 3, backend).Raw())
	assert.Equal(t, []float32{3, 3}, w.Tensor().Values())
	assert.Equal(t, id, w.ID())

	w.Dispose()
	assert.True(t, w.Disposed())
}
