package autodiff_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/gradkit/internal/autodiff"
	"github.com/born-ml/gradkit/internal/backend/cpu"
	"github.com/born-ml/gradkit/internal/tensor"
)

func floatsClose(a, b []float32, tol float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(float64(a[i]-b[i])) > tol {
			return false
		}
	}
	return true
}

// TestAutodiffBackend_Name tests the Name method.
func TestAutodiffBackend_Name(t *testing.T) {
	backend := autodiff.New(cpu.New())
	expected := "Autodiff(CPU)"
	if backend.Name() != expected {
		t.Errorf("Name() = %s, want %s", backend.Name(), expected)
	}
	if backend.Device() != tensor.CPU {
		t.Errorf("Device() = %v, want %v", backend.Device(), tensor.CPU)
	}
	if backend.Arena() != backend.Inner().Arena() {
		t.Error("Arena() should be the wrapped backend's arena")
	}
}

// TestTape_Recording tests tape recording on/off.
func TestTape_Recording(t *testing.T) {
	backend := autodiff.New(cpu.New())
	tape := backend.Tape()

	if tape.IsRecording() {
		t.Error("Tape should not be recording initially")
	}

	tape.StartRecording()
	if !tape.IsRecording() {
		t.Error("Tape should be recording after StartRecording()")
	}

	tape.StopRecording()
	if tape.IsRecording() {
		t.Error("Tape should not be recording after StopRecording()")
	}
}

// TestTape_Clear tests tape clearing.
func TestTape_Clear(t *testing.T) {
	backend := autodiff.New(cpu.New())
	tape := backend.Tape()

	a, _ := tensor.FromSlice([]float32{1, 2}, tensor.Shape{2}, backend)
	b, _ := tensor.FromSlice([]float32{3, 4}, tensor.Shape{2}, backend)

	backend.Add(a.Raw(), b.Raw())
	if tape.NumOps() != 0 {
		t.Errorf("Tape should not record while stopped, got %d ops", tape.NumOps())
	}

	tape.StartRecording()
	backend.Add(a.Raw(), b.Raw())
	if tape.NumOps() != 1 {
		t.Errorf("Tape should have recorded 1 op, got %d", tape.NumOps())
	}

	tape.Clear()
	if tape.NumOps() != 0 {
		t.Errorf("Tape should be empty after Clear(), got %d ops", tape.NumOps())
	}
	if !tape.IsRecording() {
		t.Error("Tape should still be recording after Clear()")
	}
}

// TestBackward_Square checks d(sum(x*x))/dx = 2x.
func TestBackward_Square(t *testing.T) {
	backend := autodiff.New(cpu.New())
	x, _ := tensor.FromSlice([]float32{1, 2}, tensor.Shape{2}, backend)

	backend.Tape().StartRecording()
	y := x.Mul(x).Sum()
	grads := autodiff.Backward(y, backend)

	got := grads[x.ID()].AsFloat32()
	if !floatsClose(got, []float32{2, 4}, 1e-6) {
		t.Errorf("grad = %v, want [2 4]", got)
	}
}

func TestValueAndGrads(t *testing.T) {
	backend := autodiff.New(cpu.New())
	x, err := tensor.FromSlice([]float32{1, 2}, tensor.Shape{2}, backend)
	require.NoError(t, err)
	unused, err := tensor.FromSlice([]float32{5}, tensor.Shape{1}, backend)
	require.NoError(t, err)

	value, grads, err := backend.ValueAndGrads(func() *tensor.RawTensor {
		return x.Square().Sum().Raw()
	}, []*tensor.RawTensor{x.Raw(), unused.Raw()})
	require.NoError(t, err)

	assert.InDelta(t, 5.0, value.AsFloat32()[0], 1e-6)
	require.Len(t, grads, 2)
	assert.Equal(t, []float32{2, 4}, grads[0].AsFloat32())
	assert.Nil(t, grads[1])
	assert.False(t, backend.Tape().IsRecording())
	assert.Equal(t, 0, backend.Tape().NumOps())
}

func TestValueAndGrads_NonScalar(t *testing.T) {
	backend := autodiff.New(cpu.New())
	x, err := tensor.FromSlice([]float32{1, 2}, tensor.Shape{2}, backend)
	require.NoError(t, err)

	_, _, err = backend.ValueAndGrads(func() *tensor.RawTensor {
		return x.Square().Raw()
	}, []*tensor.RawTensor{x.Raw()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scalar")
}

func TestValueAndGrads_KernelPanicBecomesError(t *testing.T) {
	backend := autodiff.New(cpu.New())
	a, _ := tensor.FromSlice([]float32{1, 2}, tensor.Shape{2}, backend)
	b, _ := tensor.FromSlice([]float32{1, 2, 3}, tensor.Shape{3}, backend)

	_, _, err := backend.ValueAndGrads(func() *tensor.RawTensor {
		return a.Add(b).Sum().Raw()
	}, []*tensor.RawTensor{a.Raw()})
	require.Error(t, err)
	assert.False(t, backend.Tape().IsRecording())
}

func TestValueAndGrads_ScopeReleasesTemporaries(t *testing.T) {
	backend := autodiff.New(cpu.New())
	arena := backend.Arena()
	x, err := tensor.FromSlice([]float32{1, 2, 3}, tensor.Shape{3}, backend)
	require.NoError(t, err)

	arena.StartScope()
	value, _, err := backend.ValueAndGrads(func() *tensor.RawTensor {
		return x.Square().Sum().Raw()
	}, []*tensor.RawTensor{x.Raw()})
	require.NoError(t, err)
	arena.EndScope(value)

	assert.Equal(t, 2, arena.NumTensors())
	value.Release()
	assert.Equal(t, 1, arena.NumTensors())
}
