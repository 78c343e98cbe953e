package optim_test

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/gradkit/internal/autodiff"
	"github.com/born-ml/gradkit/internal/backend/cpu"
	"github.com/born-ml/gradkit/internal/optim"
	"github.com/born-ml/gradkit/internal/tensor"
)

type backendT = *autodiff.AutodiffBackend[*cpu.CPUBackend]

// Helper to check float equality with tolerance.
func floatEqual(a, b, eps float32) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff < eps
}

func newVar(t *testing.T, backend backendT, name string, shape tensor.Shape, values ...float32) *tensor.Variable[backendT] {
	t.Helper()
	x, err := tensor.FromSlice(values, shape, backend)
	require.NoError(t, err)
	return tensor.NewVariable(name, x)
}

func grad(t *testing.T, backend backendT, shape tensor.Shape, values ...float32) *tensor.RawTensor {
	t.Helper()
	g, err := tensor.FromSlice(values, shape, backend)
	require.NoError(t, err)
	return g.Raw()
}

func squaredNorm(v *tensor.Variable[backendT]) func() *tensor.Tensor[float32, backendT] {
	return func() *tensor.Tensor[float32, backendT] {
		return v.Tensor().Square().Sum()
	}
}

// adagradStep is the reference update in float64.
func adagradStep(x, g, acc []float64, lr, eps float64) {
	for i := range x {
		acc[i] += g[i] * g[i]
		x[i] -= lr * g[i] / math.Sqrt(acc[i]+eps)
	}
}

func TestAdagrad_MinimizeSquaredNorm(t *testing.T) {
	backend := autodiff.New(cpu.New())
	x := newVar(t, backend, "x", tensor.Shape{2}, 1, 2)
	opt, err := optim.NewAdagrad([]*tensor.Variable[backendT]{x},
		optim.AdagradConfig{LR: 0.1, InitialAccumulatorValue: 0.1}, backend)
	require.NoError(t, err)
	defer opt.Dispose()

	cost, err := opt.Minimize(squaredNorm(x), true)
	require.NoError(t, err)
	require.NotNil(t, cost)
	assert.InDelta(t, 5.0, cost.Item(), 1e-6)
	cost.Release()

	got := x.Tensor().Values()
	assert.InDelta(t, 0.9012270405, got[0], 1e-6)
	assert.InDelta(t, 1.9003110428, got[1], 1e-6)

	// Second step against the reference update.
	want := []float64{1, 2}
	acc := []float64{0.1, 0.1}
	for range 2 {
		adagradStep(want, []float64{2 * want[0], 2 * want[1]}, acc, 0.1, 1e-8)
	}
	_, err = opt.Minimize(squaredNorm(x), false)
	require.NoError(t, err)
	got = x.Tensor().Values()
	assert.InDelta(t, want[0], got[0], 1e-5)
	assert.InDelta(t, want[1], got[1], 1e-5)
}

func TestAdagrad_ApplyGradientsFormula(t *testing.T) {
	backend := autodiff.New(cpu.New())
	w := newVar(t, backend, "w", tensor.Shape{3}, 0.5, -1, 2)
	opt, err := optim.NewAdagrad([]*tensor.Variable[backendT]{w},
		optim.AdagradConfig{LR: 0.2, InitialAccumulatorValue: 0.5, Epsilon: 1e-6}, backend)
	require.NoError(t, err)
	defer opt.Dispose()

	x := []float64{0.5, -1, 2}
	acc := []float64{0.5, 0.5, 0.5}
	steps := [][]float32{{1, -2, 0.5}, {0.25, 3, -1}, {-4, 0, 2}}
	for _, g := range steps {
		adagradStep(x, []float64{float64(g[0]), float64(g[1]), float64(g[2])}, acc, 0.2, 1e-6)
		grads := map[tensor.ID]*tensor.RawTensor{w.ID(): grad(t, backend, tensor.Shape{3}, g...)}
		require.NoError(t, opt.ApplyGradients([]*tensor.Variable[backendT]{w}, grads))
	}

	got := w.Tensor().Values()
	for i := range x {
		assert.InDelta(t, x[i], got[i], 1e-5, "element %d", i)
	}
	accumulator := opt.StateDict()["accumulator.w"]
	require.NotNil(t, accumulator)
	for i, a := range accumulator.AsFloat32() {
		assert.InDelta(t, acc[i], a, 1e-4, "accumulator %d", i)
	}
}

func TestAdagrad_LiveTensorCount(t *testing.T) {
	backend := autodiff.New(cpu.New())
	arena := backend.Arena()
	x := newVar(t, backend, "x", tensor.Shape{2}, 1, 2)
	opt, err := optim.NewAdagrad([]*tensor.Variable[backendT]{x}, optim.AdagradConfig{LR: 0.1}, backend)
	require.NoError(t, err)

	before := arena.NumTensors()
	cost, err := opt.Minimize(squaredNorm(x), true)
	require.NoError(t, err)
	assert.Equal(t, before+2, arena.NumTensors(), "cost and one accumulator")

	_, err = opt.Minimize(squaredNorm(x), false)
	require.NoError(t, err)
	assert.Equal(t, before+2, arena.NumTensors(), "accumulator replaced, no cost")

	cost.Release()
	opt.Dispose()
	assert.Equal(t, before, arena.NumTensors())
	x.Dispose()
	assert.Equal(t, before-1, arena.NumTensors())
	assert.Equal(t, 0, arena.Depth())
}

func TestAdagrad_ShapeMismatchLeavesVariablesUntouched(t *testing.T) {
	backend := autodiff.New(cpu.New())
	a := newVar(t, backend, "a", tensor.Shape{2}, 1, 2)
	b := newVar(t, backend, "b", tensor.Shape{2}, 3, 4)
	opt, err := optim.NewAdagrad([]*tensor.Variable[backendT]{a, b}, optim.AdagradConfig{LR: 0.1}, backend)
	require.NoError(t, err)
	defer opt.Dispose()

	grads := map[tensor.ID]*tensor.RawTensor{
		a.ID(): grad(t, backend, tensor.Shape{2}, 1, 1),
		b.ID(): grad(t, backend, tensor.Shape{3}, 1, 1, 1),
	}
	err = opt.ApplyGradients([]*tensor.Variable[backendT]{a, b}, grads)
	require.Error(t, err)
	assert.True(t, errors.Is(err, optim.ErrShapeMismatch))
	assert.Equal(t, []float32{1, 2}, a.Tensor().Values())
	assert.Equal(t, []float32{3, 4}, b.Tensor().Values())
	assert.Equal(t, 0, opt.NumAccumulators())
}

func TestAdagrad_SkipsVariablesWithoutGradient(t *testing.T) {
	backend := autodiff.New(cpu.New())
	x := newVar(t, backend, "x", tensor.Shape{1}, 3)
	y := newVar(t, backend, "y", tensor.Shape{1}, 5)
	opt, err := optim.NewAdagrad([]*tensor.Variable[backendT]{x, y}, optim.AdagradConfig{LR: 0.1}, backend)
	require.NoError(t, err)
	defer opt.Dispose()

	_, err = opt.Minimize(squaredNorm(x), false)
	require.NoError(t, err)
	assert.NotEqual(t, float32(3), x.Tensor().Item())
	assert.Equal(t, float32(5), y.Tensor().Item())
	assert.Equal(t, 1, opt.NumAccumulators())
}

func TestAdagrad_VarListAndTrainable(t *testing.T) {
	backend := autodiff.New(cpu.New())
	x := newVar(t, backend, "x", tensor.Shape{1}, 3)
	y := newVar(t, backend, "y", tensor.Shape{1}, 5)
	opt, err := optim.NewAdagrad([]*tensor.Variable[backendT]{x, y}, optim.AdagradConfig{LR: 0.1}, backend)
	require.NoError(t, err)
	defer opt.Dispose()

	loss := func() *tensor.Tensor[float32, backendT] {
		return x.Tensor().Mul(y.Tensor()).Sum()
	}
	_, err = opt.Minimize(loss, false, y)
	require.NoError(t, err)
	assert.Equal(t, float32(3), x.Tensor().Item())
	assert.NotEqual(t, float32(5), y.Tensor().Item())

	x.SetTrainable(false)
	y.SetTrainable(false)
	_, err = opt.Minimize(loss, false)
	assert.True(t, errors.Is(err, optim.ErrNoVariables))
}

func TestAdagrad_LossErrors(t *testing.T) {
	backend := autodiff.New(cpu.New())
	x := newVar(t, backend, "x", tensor.Shape{2}, 1, 2)
	opt, err := optim.NewAdagrad([]*tensor.Variable[backendT]{x}, optim.AdagradConfig{LR: 0.1}, backend)
	require.NoError(t, err)
	defer opt.Dispose()
	before := backend.Arena().NumTensors()

	t.Run("non scalar", func(t *testing.T) {
		_, err := opt.Minimize(func() *tensor.Tensor[float32, backendT] {
			return x.Tensor().Square()
		}, true)
		assert.Error(t, err)
	})
	t.Run("kernel failure", func(t *testing.T) {
		other := tensor.Ones[float32](tensor.Shape{3}, backend)
		defer other.Release()
		_, err := opt.Minimize(func() *tensor.Tensor[float32, backendT] {
			return x.Tensor().Add(other).Sum()
		}, true)
		assert.Error(t, err)
	})

	assert.Equal(t, before, backend.Arena().NumTensors())
	assert.Equal(t, []float32{1, 2}, x.Tensor().Values())
}

func TestAdagrad_Disposed(t *testing.T) {
	backend := autodiff.New(cpu.New())
	x := newVar(t, backend, "x", tensor.Shape{1}, 1)
	opt, err := optim.NewAdagrad([]*tensor.Variable[backendT]{x}, optim.AdagradConfig{LR: 0.1}, backend)
	require.NoError(t, err)

	opt.Dispose()
	opt.Dispose()

	_, err = opt.Minimize(squaredNorm(x), true)
	assert.True(t, errors.Is(err, optim.ErrDisposed))
	err = opt.ApplyGradients([]*tensor.Variable[backendT]{x}, nil)
	assert.True(t, errors.Is(err, optim.ErrDisposed))
}

func TestAdagradConfig_Validate(t *testing.T) {
	backend := autodiff.New(cpu.New())
	_, err := optim.NewAdagrad[backendT](nil, optim.AdagradConfig{LR: -1}, backend)
	assert.Error(t, err)
	_, err = optim.NewAdagrad[backendT](nil, optim.AdagradConfig{InitialAccumulatorValue: -0.1}, backend)
	assert.Error(t, err)

	opt, err := optim.NewAdagrad[backendT](nil, optim.AdagradConfig{}, backend)
	require.NoError(t, err)
	assert.Equal(t, float32(0.01), opt.GetLR())
}

func TestAdagrad_SaveLoadState(t *testing.T) {
	backend := autodiff.New(cpu.New())
	x1 := newVar(t, backend, "x", tensor.Shape{2}, 1, 2)
	opt1, err := optim.NewAdagrad([]*tensor.Variable[backendT]{x1}, optim.AdagradConfig{LR: 0.1, InitialAccumulatorValue: 0.1}, backend)
	require.NoError(t, err)
	defer opt1.Dispose()
	_, err = opt1.Minimize(squaredNorm(x1), false)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "adagrad.safetensors")
	require.NoError(t, optim.SaveState[backendT](path, opt1, map[string]string{"epoch": "1"}))

	x2 := newVar(t, backend, "x", tensor.Shape{2}, x1.Tensor().Values()...)
	opt2, err := optim.NewAdagrad([]*tensor.Variable[backendT]{x2}, optim.AdagradConfig{LR: 0.1, InitialAccumulatorValue: 0.1}, backend)
	require.NoError(t, err)
	defer opt2.Dispose()
	meta, err := optim.LoadState[backendT](path, opt2, backend)
	require.NoError(t, err)
	assert.Equal(t, "1", meta["epoch"])

	_, err = opt1.Minimize(squaredNorm(x1), false)
	require.NoError(t, err)
	_, err = opt2.Minimize(squaredNorm(x2), false)
	require.NoError(t, err)
	assert.InDeltaSlice(t, x1.Tensor().Values(), x2.Tensor().Values(), 1e-6)

	sgd := optim.NewSGD([]*tensor.Variable[backendT]{x2}, optim.SGDConfig{LR: 0.1}, backend)
	_, err = optim.LoadState[backendT](path, sgd, backend)
	assert.Error(t, err, "state written by another algorithm")
}

func TestAdagrad_LoadedStateShapeMismatch(t *testing.T) {
	backend := autodiff.New(cpu.New())
	x := newVar(t, backend, "x", tensor.Shape{2}, 1, 2)
	opt, err := optim.NewAdagrad([]*tensor.Variable[backendT]{x}, optim.AdagradConfig{LR: 0.1}, backend)
	require.NoError(t, err)
	defer opt.Dispose()

	wrong := grad(t, backend, tensor.Shape{3}, 1, 1, 1)
	require.NoError(t, opt.LoadStateDict(map[string]*tensor.RawTensor{"accumulator.x": wrong}))
	_, err = opt.Minimize(squaredNorm(x), false)
	assert.True(t, errors.Is(err, optim.ErrShapeMismatch))
}

// TestSGD_SimpleUpdate tests SGD without momentum.
func TestSGD_SimpleUpdate(t *testing.T) {
	backend := autodiff.New(cpu.New())
	x := newVar(t, backend, "x", tensor.Shape{1}, 2.0)
	optimizer := optim.NewSGD([]*tensor.Variable[backendT]{x}, optim.SGDConfig{LR: 0.1}, backend)

	grads := map[tensor.ID]*tensor.RawTensor{x.ID(): grad(t, backend, tensor.Shape{1}, 1.0)}
	require.NoError(t, optimizer.ApplyGradients([]*tensor.Variable[backendT]{x}, grads))

	// x_new = x_old - lr * grad = 2.0 - 0.1 * 1.0 = 1.9
	if actual := x.Tensor().Item(); !floatEqual(actual, 1.9, 1e-6) {
		t.Errorf("SGD update: got %f, want 1.9", actual)
	}
}

// TestSGD_WithMomentum tests SGD with momentum.
func TestSGD_WithMomentum(t *testing.T) {
	backend := autodiff.New(cpu.New())
	x := newVar(t, backend, "x", tensor.Shape{1}, 1.0)
	optimizer := optim.NewSGD([]*tensor.Variable[backendT]{x}, optim.SGDConfig{LR: 0.1, Momentum: 0.9}, backend)
	vars := []*tensor.Variable[backendT]{x}

	// v_1 = 1.0, x_1 = 1.0 - 0.1 * 1.0 = 0.9
	require.NoError(t, optimizer.ApplyGradients(vars, map[tensor.ID]*tensor.RawTensor{x.ID(): grad(t, backend, tensor.Shape{1}, 1)}))
	if actual := x.Tensor().Item(); !floatEqual(actual, 0.9, 1e-6) {
		t.Errorf("SGD momentum step 1: got %f, want 0.9", actual)
	}

	// v_2 = 0.9 * 1.0 + 1.0 = 1.9, x_2 = 0.9 - 0.1 * 1.9 = 0.71
	require.NoError(t, optimizer.ApplyGradients(vars, map[tensor.ID]*tensor.RawTensor{x.ID(): grad(t, backend, tensor.Shape{1}, 1)}))
	if actual := x.Tensor().Item(); !floatEqual(actual, 0.71, 1e-5) {
		t.Errorf("SGD momentum step 2: got %f, want 0.71", actual)
	}
	assert.Contains(t, optimizer.StateDict(), "velocity.x")
}

// TestSGD_GetSetLR tests learning rate getter/setter.
func TestSGD_GetSetLR(t *testing.T) {
	backend := autodiff.New(cpu.New())
	x := newVar(t, backend, "x", tensor.Shape{1}, 1.0)
	optimizer := optim.NewSGD([]*tensor.Variable[backendT]{x}, optim.SGDConfig{LR: 0.01}, backend)

	assert.Equal(t, float32(0.01), optimizer.GetLR())
	optimizer.SetLR(0.001)
	assert.Equal(t, float32(0.001), optimizer.GetLR())
}

// TestAdam_SimpleUpdate tests Adam optimizer update.
func TestAdam_SimpleUpdate(t *testing.T) {
	backend := autodiff.New(cpu.New())
	x := newVar(t, backend, "x", tensor.Shape{1}, 1.0)
	optimizer := optim.NewAdam([]*tensor.Variable[backendT]{x},
		optim.AdamConfig{LR: 0.001, Betas: [2]float32{0.9, 0.999}, Eps: 1e-8}, backend)

	grads := map[tensor.ID]*tensor.RawTensor{x.ID(): grad(t, backend, tensor.Shape{1}, 1.0)}
	require.NoError(t, optimizer.ApplyGradients([]*tensor.Variable[backendT]{x}, grads))

	// m_hat = v_hat = 1.0 after bias correction, so x_new ≈ 1.0 - 0.001
	if actual := x.Tensor().Item(); !floatEqual(actual, 0.999, 1e-5) {
		t.Errorf("Adam first step: got %f, want 0.999", actual)
	}
}

// TestAdam_BiasCorrection tests that the timestep advances once per step.
func TestAdam_BiasCorrection(t *testing.T) {
	backend := autodiff.New(cpu.New())
	x := newVar(t, backend, "x", tensor.Shape{1}, 1.0)
	optimizer := optim.NewAdam([]*tensor.Variable[backendT]{x},
		optim.AdamConfig{LR: 0.01, Betas: [2]float32{0.9, 0.999}, Eps: 1e-8}, backend)
	defer optimizer.Dispose()
	require.Equal(t, 0, optimizer.GetTimestep())

	for i := 1; i <= 3; i++ {
		grads := map[tensor.ID]*tensor.RawTensor{x.ID(): grad(t, backend, tensor.Shape{1}, 1.0)}
		require.NoError(t, optimizer.ApplyGradients([]*tensor.Variable[backendT]{x}, grads))
		assert.Equal(t, i, optimizer.GetTimestep())
	}
	assert.Less(t, x.Tensor().Item(), float32(1.0))

	state := optimizer.StateDict()
	assert.Equal(t, float32(3), state["step"].AsFloat32()[0])
	assert.Contains(t, state, "m.x")
	assert.Contains(t, state, "v.x")
}

// TestConvergence_SimpleQuadratic checks that every optimizer minimizes
// f(x) = x² through Minimize. The minimum is at x = 0.
func TestConvergence_SimpleQuadratic(t *testing.T) {
	tests := []struct {
		name  string
		build func(vars []*tensor.Variable[backendT], backend backendT) optim.Optimizer[backendT]
	}{
		{"SGD", func(vars []*tensor.Variable[backendT], backend backendT) optim.Optimizer[backendT] {
			return optim.NewSGD(vars, optim.SGDConfig{LR: 0.1, Momentum: 0.9}, backend)
		}},
		{"Adam", func(vars []*tensor.Variable[backendT], backend backendT) optim.Optimizer[backendT] {
			return optim.NewAdam(vars, optim.AdamConfig{LR: 0.1}, backend)
		}},
		{"Adagrad", func(vars []*tensor.Variable[backendT], backend backendT) optim.Optimizer[backendT] {
			opt, err := optim.NewAdagrad(vars, optim.AdagradConfig{LR: 1, InitialAccumulatorValue: 0.1}, backend)
			require.NoError(t, err)
			return opt
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := autodiff.New(cpu.New())
			x := newVar(t, backend, "x", tensor.Shape{1}, 3.0)
			opt := tt.build([]*tensor.Variable[backendT]{x}, backend)
			defer opt.Dispose()

			for range 100 {
				_, err := opt.Minimize(squaredNorm(x), false)
				require.NoError(t, err)
			}
			if final := x.Tensor().Item(); math.Abs(float64(final)) > 0.1 {
				t.Errorf("%s convergence: x = %f, expected close to 0", tt.name, final)
			}
		})
	}
}

// TestMultipleParameters tests optimizers with multiple parameters.
func TestMultipleParameters(t *testing.T) {
	backend := autodiff.New(cpu.New())
	x1 := newVar(t, backend, "x1", tensor.Shape{2}, 1.0, 2.0)
	x2 := newVar(t, backend, "x2", tensor.Shape{1}, 3.0)
	vars := []*tensor.Variable[backendT]{x1, x2}
	optimizer := optim.NewSGD(vars, optim.SGDConfig{LR: 0.1}, backend)

	grads := map[tensor.ID]*tensor.RawTensor{
		x1.ID(): grad(t, backend, tensor.Shape{2}, 1.0, 2.0),
		x2.ID(): grad(t, backend, tensor.Shape{1}, 0.5),
	}
	require.NoError(t, optimizer.ApplyGradients(vars, grads))

	// [1.0, 2.0] - 0.1 * [1.0, 2.0] = [0.9, 1.8]
	p1 := x1.Tensor().Values()
	if !floatEqual(p1[0], 0.9, 1e-6) || !floatEqual(p1[1], 1.8, 1e-6) {
		t.Errorf("x1: got [%f, %f], want [0.9, 1.8]", p1[0], p1[1])
	}
	// 3.0 - 0.1 * 0.5 = 2.95
	if p2 := x2.Tensor().Item(); !floatEqual(p2, 2.95, 1e-6) {
		t.Errorf("x2: got %f, want 2.95", p2)
	}
}

func TestByName(t *testing.T) {
	backend := autodiff.New(cpu.New())
	x := newVar(t, backend, "x", tensor.Shape{1}, 1)
	for _, name := range optim.Names() {
		opt, err := optim.ByName(name, []*tensor.Variable[backendT]{x}, 0.05, backend)
		require.NoError(t, err, name)
		assert.Equal(t, name, opt.Name())
		assert.Equal(t, float32(0.05), opt.GetLR())
		opt.Dispose()
	}
	_, err := optim.ByName("ADAGRAD", []*tensor.Variable[backendT]{x}, 0.05, backend)
	assert.NoError(t, err)
	_, err = optim.ByName("rmsprop", []*tensor.Variable[backendT]{x}, 0.05, backend)
	assert.Error(t, err)
}
