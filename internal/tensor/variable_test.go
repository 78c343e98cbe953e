package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVariable_Lifecycle(t *testing.T) {
	b := NewMockBackend()
	x, err := FromSlice([]float32{1, 2}, Shape{2}, b)
	require.NoError(t, err)

	v := NewVariable("x", x)
	assert.Equal(t, "x", v.Name())
	assert.Equal(t, x.ID(), v.ID())
	assert.True(t, v.Trainable())
	assert.Equal(t, Shape{2}, v.Shape())

	v.SetTrainable(false)
	assert.False(t, v.Trainable())

	v.Dispose()
	assert.True(t, v.Disposed())
	assert.Equal(t, 0, b.Arena().NumTensors())
	v.Dispose()
}

func TestVariable_SurvivesScopes(t *testing.T) {
	b := NewMockBackend()
	var v *Variable[*MockBackend]
	b.Arena().StartScope()
	v = NewVariable("w", Zeros[float32](Shape{1, 2}, b))
	b.Arena().EndScope()
	assert.False(t, v.Disposed())
}

func TestVariable_AssignKeepsIdentity(t *testing.T) {
	b := NewMockBackend()
	v := NewVariable("w", Zeros[float32](Shape{2}, b))
	id := v.ID()

	src, err := FromSlice([]float32{3, 4}, Shape{2}, b)
	require.NoError(t, err)
	v.Assign(src.Raw())

	assert.Equal(t, id, v.ID())
	assert.Equal(t, []float32{3, 4}, v.Tensor().Values())

	bad := Zeros[float32](Shape{3}, b)
	assert.Panics(t, func() { v.Assign(bad.Raw()) })
	assert.Equal(t, []float32{3, 4}, v.Tensor().Values())
}
