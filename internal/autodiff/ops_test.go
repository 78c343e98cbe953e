package autodiff_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/gradkit/internal/autodiff"
	"github.com/born-ml/gradkit/internal/backend/cpu"
	"github.com/born-ml/gradkit/internal/tensor"
)

type adBackend = *autodiff.AutodiffBackend[*cpu.CPUBackend]

func mustFromSlice(t *testing.T, b adBackend, data []float32, shape tensor.Shape) *tensor.Tensor[float32, adBackend] {
	t.Helper()
	x, err := tensor.FromSlice(data, shape, b)
	require.NoError(t, err)
	return x
}

// gradsOf returns d(f)/d(xs) as float32 slices.
func gradsOf(t *testing.T, b adBackend, f func() *tensor.Tensor[float32, adBackend], xs ...*tensor.Tensor[float32, adBackend]) [][]float32 {
	t.Helper()
	raws := make([]*tensor.RawTensor, len(xs))
	for i, x := range xs {
		raws[i] = x.Raw()
	}
	_, grads, err := b.ValueAndGrads(func() *tensor.RawTensor { return f().Raw() }, raws)
	require.NoError(t, err)
	out := make([][]float32, len(grads))
	for i, g := range grads {
		require.NotNil(t, g, "missing gradient for input %d", i)
		out[i] = g.AsFloat32()
	}
	return out
}

func TestOps_AddBroadcast(t *testing.T) {
	b := autodiff.New(cpu.New())
	m := mustFromSlice(t, b, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
	bias := mustFromSlice(t, b, []float32{0}, tensor.Shape{1})

	g := gradsOf(t, b, func() *tensor.Tensor[float32, adBackend] {
		return m.Add(bias).Sum()
	}, m, bias)
	assert.Equal(t, []float32{1, 1, 1, 1, 1, 1}, g[0])
	assert.Equal(t, []float32{6}, g[1])
}

func TestOps_SubColumnBroadcast(t *testing.T) {
	b := autodiff.New(cpu.New())
	m := mustFromSlice(t, b, []float32{1, 2, 3, 4}, tensor.Shape{2, 2})
	col := mustFromSlice(t, b, []float32{1, 1}, tensor.Shape{2, 1})

	g := gradsOf(t, b, func() *tensor.Tensor[float32, adBackend] {
		return m.Sub(col).Sum()
	}, m, col)
	assert.Equal(t, []float32{1, 1, 1, 1}, g[0])
	assert.Equal(t, []float32{-2, -2}, g[1])
}

func TestOps_MulDiv(t *testing.T) {
	b := autodiff.New(cpu.New())
	x := mustFromSlice(t, b, []float32{2, 4}, tensor.Shape{2})
	y := mustFromSlice(t, b, []float32{1, 2}, tensor.Shape{2})

	g := gradsOf(t, b, func() *tensor.Tensor[float32, adBackend] {
		return x.Mul(y).Sum()
	}, x, y)
	assert.Equal(t, []float32{1, 2}, g[0])
	assert.Equal(t, []float32{2, 4}, g[1])

	// d(x/y)/dx = 1/y, d(x/y)/dy = -x/y²
	g = gradsOf(t, b, func() *tensor.Tensor[float32, adBackend] {
		return x.Div(y).Sum()
	}, x, y)
	assert.True(t, floatsClose(g[0], []float32{1, 0.5}, 1e-6), "got %v", g[0])
	assert.True(t, floatsClose(g[1], []float32{-2, -1}, 1e-6), "got %v", g[1])
}

func TestOps_MatMulReshape(t *testing.T) {
	b := autodiff.New(cpu.New())
	w := mustFromSlice(t, b, []float32{0, 0}, tensor.Shape{1, 2})
	x := mustFromSlice(t, b, []float32{2, 4}, tensor.Shape{2})

	g := gradsOf(t, b, func() *tensor.Tensor[float32, adBackend] {
		return w.MatMul(x.Reshape(2, 1)).Sum()
	}, w, x)
	assert.Equal(t, []float32{2, 4}, g[0])
	assert.Equal(t, []float32{0, 0}, g[1])
}

func TestOps_Transpose(t *testing.T) {
	b := autodiff.New(cpu.New())
	x := mustFromSlice(t, b, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
	weights := mustFromSlice(t, b, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{3, 2})

	// sum(x^T * weights): gradient is weights^T laid out like x.
	g := gradsOf(t, b, func() *tensor.Tensor[float32, adBackend] {
		return x.T().Mul(weights).Sum()
	}, x)
	assert.Equal(t, []float32{1, 3, 5, 2, 4, 6}, g[0])
}

func TestOps_SqrtAndScalars(t *testing.T) {
	b := autodiff.New(cpu.New())
	x := mustFromSlice(t, b, []float32{4, 16}, tensor.Shape{2})

	// d(sqrt(3x + 1 - 1))/dx = 3 / (2 sqrt(3x))
	g := gradsOf(t, b, func() *tensor.Tensor[float32, adBackend] {
		return x.MulScalar(3).AddScalar(1).AddScalar(-1).Sqrt().Sum()
	}, x)
	assert.True(t, floatsClose(g[0], []float32{0.4330127, 0.21650635}, 1e-6), "got %v", g[0])
}

func TestOps_SharedGradientHandlesAreDistinct(t *testing.T) {
	b := autodiff.New(cpu.New())
	x := mustFromSlice(t, b, []float32{1}, tensor.Shape{1})
	y := mustFromSlice(t, b, []float32{2}, tensor.Shape{1})

	_, grads, err := b.ValueAndGrads(func() *tensor.RawTensor {
		return x.Add(y).Sum().Raw()
	}, []*tensor.RawTensor{x.Raw(), y.Raw()})
	require.NoError(t, err)
	assert.NotEqual(t, grads[0].ID(), grads[1].ID())

	grads[0].Release()
	assert.Equal(t, []float32{1}, grads[1].AsFloat32())
}
