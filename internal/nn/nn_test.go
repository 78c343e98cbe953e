package nn_test

import (
	"math"
	"math/rand/v2"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/gradkit/internal/autodiff"
	"github.com/born-ml/gradkit/internal/backend/cpu"
	"github.com/born-ml/gradkit/internal/nn"
	"github.com/born-ml/gradkit/internal/optim"
	"github.com/born-ml/gradkit/internal/tensor"
)

type backendT = *autodiff.AutodiffBackend[*cpu.CPUBackend]

func fromSlice(t *testing.T, backend backendT, shape tensor.Shape, values ...float32) *tensor.Tensor[float32, backendT] {
	t.Helper()
	x, err := tensor.FromSlice(values, shape, backend)
	require.NoError(t, err)
	return x
}

func TestXavier(t *testing.T) {
	backend := cpu.New()
	a := nn.Xavier(4, 2, tensor.Shape{2, 4}, backend, rand.New(rand.NewPCG(1, 2)))
	b := nn.Xavier(4, 2, tensor.Shape{2, 4}, backend, rand.New(rand.NewPCG(1, 2)))

	bound := float32(math.Sqrt(6.0 / 6.0))
	for _, v := range a.Values() {
		assert.LessOrEqual(t, v, bound)
		assert.GreaterOrEqual(t, v, -bound)
	}
	assert.Equal(t, a.Values(), b.Values(), "same seed, same weights")
}

func TestLinear_Forward(t *testing.T) {
	backend := autodiff.New(cpu.New())
	layer := nn.NewLinear("fc", 3, 2, backend, rand.New(rand.NewPCG(7, 7)))

	require.Equal(t, "fc.weight", layer.Weight().Name())
	require.Equal(t, "fc.bias", layer.Bias().Name())
	assert.Equal(t, tensor.Shape{2, 3}, layer.Weight().Shape())
	assert.Equal(t, tensor.Shape{2}, layer.Bias().Shape())

	layer.Weight().Assign(fromSlice(t, backend, tensor.Shape{2, 3}, 1, 0, -1, 2, 1, 0).Raw())
	layer.Bias().Assign(fromSlice(t, backend, tensor.Shape{2}, 0.5, -0.5).Raw())

	x := fromSlice(t, backend, tensor.Shape{2, 3}, 1, 2, 3, 4, 5, 6)
	y := layer.Forward(x)
	require.Equal(t, tensor.Shape{2, 2}, y.Shape())
	// Row 0: [1-3, 2+2] + b, row 1: [4-6, 8+5] + b.
	assert.InDeltaSlice(t, []float32{-1.5, 3.5, -1.5, 12.5}, y.Values(), 1e-6)
}

func TestLinear_InvalidInputPanics(t *testing.T) {
	backend := autodiff.New(cpu.New())
	layer := nn.NewLinear("fc", 3, 1, backend, nil)
	assert.Panics(t, func() { layer.Forward(fromSlice(t, backend, tensor.Shape{3}, 1, 2, 3)) })
	assert.Panics(t, func() { layer.Forward(fromSlice(t, backend, tensor.Shape{1, 2}, 1, 2)) })
	assert.Panics(t, func() { nn.NewLinear("bad", 0, 1, backend, nil) })
}

func TestSequential_Variables(t *testing.T) {
	backend := autodiff.New(cpu.New())
	rng := rand.New(rand.NewPCG(3, 4))
	model := nn.NewSequential[backendT](
		nn.NewLinear("hidden", 3, 4, backend, rng),
	)
	model.Add(nn.NewLinear("out", 4, 1, backend, rng))
	require.Equal(t, 2, model.Len())

	var names []string
	for _, v := range model.Variables() {
		names = append(names, v.Name())
	}
	assert.Equal(t, []string{"hidden.weight", "hidden.bias", "out.weight", "out.bias"}, names)

	y := model.Forward(fromSlice(t, backend, tensor.Shape{5, 3}, make([]float32, 15)...))
	assert.Equal(t, tensor.Shape{5, 1}, y.Shape())

	state := nn.StateDict[backendT](model)
	assert.Len(t, state, 4)
	assert.Equal(t, tensor.Shape{4, 3}, state["hidden.weight"].Shape())

	before := backend.Arena().NumTensors()
	nn.Dispose[backendT](model)
	assert.Equal(t, before-4, backend.Arena().NumTensors())
}

func TestMSE(t *testing.T) {
	backend := cpu.New()
	pred := fromSliceCPU(t, backend, 1, 2, 3, 4)
	target := fromSliceCPU(t, backend, 1, 0, 3, 0)
	// (0 + 4 + 0 + 16) / 4
	assert.InDelta(t, 5.0, nn.MSE(pred, target).Item(), 1e-6)

	assert.Panics(t, func() { nn.MSE(pred, fromSliceCPU(t, backend, 1, 2)) })
}

func fromSliceCPU(t *testing.T, backend *cpu.CPUBackend, values ...float32) *tensor.Tensor[float32, *cpu.CPUBackend] {
	t.Helper()
	x, err := tensor.FromSlice(values, tensor.Shape{len(values)}, backend)
	require.NoError(t, err)
	return x
}

func TestLinear_TrainWithAdagrad(t *testing.T) {
	backend := autodiff.New(cpu.New())
	layer := nn.NewLinear("fc", 2, 1, backend, rand.New(rand.NewPCG(11, 13)))

	// y = 2*x0 - x1 + 0.5
	x := fromSlice(t, backend, tensor.Shape{4, 2}, 0, 0, 1, 0, 0, 1, 1, 1).Keep()
	y := fromSlice(t, backend, tensor.Shape{4, 1}, 0.5, 2.5, -0.5, 1.5).Keep()

	opt, err := optim.NewAdagrad(layer.Variables(), optim.AdagradConfig{LR: 0.5, InitialAccumulatorValue: 0.1}, backend)
	require.NoError(t, err)
	defer opt.Dispose()

	loss := func() *tensor.Tensor[float32, backendT] {
		return nn.MSE(layer.Forward(x), y)
	}
	first, err := opt.Minimize(loss, true)
	require.NoError(t, err)
	initial := first.Item()
	first.Release()

	live := backend.Arena().NumTensors()
	var last float32
	for range 300 {
		cost, err := opt.Minimize(loss, true)
		require.NoError(t, err)
		last = cost.Item()
		cost.Release()
	}
	assert.Equal(t, live, backend.Arena().NumTensors(), "no tensors leak across steps")
	assert.Less(t, last, initial)
	assert.Less(t, last, float32(0.05))
	assert.Equal(t, 2, opt.NumAccumulators())
}

func TestSaveLoad(t *testing.T) {
	backend := autodiff.New(cpu.New())
	path := filepath.Join(t.TempDir(), "model.safetensors")

	src := nn.NewLinear("fc", 3, 2, backend, rand.New(rand.NewPCG(5, 6)))
	require.NoError(t, nn.Save[backendT](path, src, map[string]string{"epochs": "3"}))

	dst := nn.NewLinear("fc", 3, 2, backend, rand.New(rand.NewPCG(9, 9)))
	before := backend.Arena().NumTensors()
	metadata, err := nn.Load[backendT](path, dst, backend)
	require.NoError(t, err)
	assert.Equal(t, "3", metadata["epochs"])
	assert.Equal(t, src.Weight().Tensor().Values(), dst.Weight().Tensor().Values())
	assert.Equal(t, before, backend.Arena().NumTensors(), "loaded tensors are released")

	other := nn.NewLinear("other", 3, 2, backend, nil)
	_, err = nn.Load[backendT](path, other, backend)
	require.ErrorIs(t, err, nn.ErrMissingVariable)

	wrong := nn.NewLinear("fc", 2, 2, backend, nil)
	want := wrong.Weight().Tensor().Values()
	_, err = nn.Load[backendT](path, wrong, backend)
	require.Error(t, err)
	assert.Equal(t, want, wrong.Weight().Tensor().Values())
}
