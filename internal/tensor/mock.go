package tensor

import (
	"math"

	"github.com/gomlx/exceptions"
)

// Verify that MockBackend implements Backend.
var _ Backend = (*MockBackend)(nil)

// MockBackend is a naive reference backend for tests.
// Every kernel converts to float64, loops, and converts back.
type MockBackend struct {
	arena *Arena
}

// NewMockBackend creates a MockBackend with its own arena.
func NewMockBackend() *MockBackend {
	return &MockBackend{arena: NewArena()}
}

// Name returns the backend name.
func (m *MockBackend) Name() string {
	return "mock"
}

// Device returns the device type.
func (m *MockBackend) Device() Device {
	return CPU
}

// Arena returns the arena that owns every tensor created by this backend.
func (m *MockBackend) Arena() *Arena {
	return m.arena
}

// Add performs element-wise addition with broadcasting.
func (m *MockBackend) Add(a, b *RawTensor) *RawTensor {
	return m.elementWise(a, b, func(x, y float64) float64 { return x + y })
}

// Sub performs element-wise subtraction with broadcasting.
func (m *MockBackend) Sub(a, b *RawTensor) *RawTensor {
	return m.elementWise(a, b, func(x, y float64) float64 { return x - y })
}

// Mul performs element-wise multiplication with broadcasting.
func (m *MockBackend) Mul(a, b *RawTensor) *RawTensor {
	return m.elementWise(a, b, func(x, y float64) float64 { return x * y })
}

// Div performs element-wise division with broadcasting.
func (m *MockBackend) Div(a, b *RawTensor) *RawTensor {
	return m.elementWise(a, b, func(x, y float64) float64 { return x / y })
}

// MulScalar multiplies every element by s.
func (m *MockBackend) MulScalar(x *RawTensor, s float64) *RawTensor {
	return m.unary(x, func(v float64) float64 { return v * s })
}

// AddScalar adds s to every element.
func (m *MockBackend) AddScalar(x *RawTensor, s float64) *RawTensor {
	return m.unary(x, func(v float64) float64 { return v + s })
}

// Sqrt computes the element-wise square root.
func (m *MockBackend) Sqrt(x *RawTensor) *RawTensor {
	return m.unary(x, math.Sqrt)
}

// Sum reduces all elements to a 0-D tensor.
func (m *MockBackend) Sum(x *RawTensor) *RawTensor {
	total := 0.0
	for _, v := range m.toFloat64Slice(x) {
		total += v
	}
	return FullRaw(Shape{}, x.DType(), total, m)
}

func (m *MockBackend) unary(x *RawTensor, op func(float64) float64) *RawTensor {
	result := m.arena.MustNewRaw(x.Shape(), x.DType(), m.Device())
	data := m.toFloat64Slice(x)
	for i, v := range data {
		data[i] = op(v)
	}
	m.fromFloat64Slice(data, result)
	return result
}

func (m *MockBackend) elementWise(a, b *RawTensor, op func(float64, float64) float64) *RawTensor {
	outShape, _, err := BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		exceptions.Panicf("mock: %v", err)
	}
	result := m.arena.MustNewRaw(outShape, a.DType(), m.Device())

	aData := m.toFloat64Slice(a)
	bData := m.toFloat64Slice(b)
	resultData := make([]float64, outShape.NumElements())
	for i := range resultData {
		resultData[i] = op(aData[BroadcastIndex(i, outShape, a.Shape())], bData[BroadcastIndex(i, outShape, b.Shape())])
	}

	m.fromFloat64Slice(resultData, result)
	return result
}

// MatMul performs 2-D matrix multiplication.
func (m *MockBackend) MatMul(a, b *RawTensor) *RawTensor {
	aShape, bShape := a.Shape(), b.Shape()
	if len(aShape) != 2 || len(bShape) != 2 || aShape[1] != bShape[0] {
		exceptions.Panicf("mock: incompatible shapes for MatMul: %v @ %v", aShape, bShape)
	}

	M, K, N := aShape[0], aShape[1], bShape[1]
	result := m.arena.MustNewRaw(Shape{M, N}, a.DType(), m.Device())

	aData := m.toFloat64Slice(a)
	bData := m.toFloat64Slice(b)
	resultData := make([]float64, M*N)
	for i := 0; i < M; i++ {
		for j := 0; j < N; j++ {
			sum := 0.0
			for k := 0; k < K; k++ {
				sum += aData[i*K+k] * bData[k*N+j]
			}
			resultData[i*N+j] = sum
		}
	}

	m.fromFloat64Slice(resultData, result)
	return result
}

// Reshape copies t into a tensor of the new shape.
func (m *MockBackend) Reshape(t *RawTensor, newShape Shape) *RawTensor {
	if err := newShape.Validate(); err != nil {
		exceptions.Panicf("mock: %v", err)
	}
	if t.NumElements() != newShape.NumElements() {
		exceptions.Panicf("mock: cannot reshape %v to %v", t.Shape(), newShape)
	}
	result := m.arena.MustNewRaw(newShape, t.DType(), m.Device())
	copy(result.Data(), t.Data())
	return result
}

// Transpose permutes dimensions; with no axes it reverses them.
func (m *MockBackend) Transpose(t *RawTensor, axes ...int) *RawTensor {
	shape := t.Shape()
	if len(axes) == 0 {
		axes = make([]int, len(shape))
		for i := range axes {
			axes[i] = len(shape) - 1 - i
		}
	}
	if len(axes) != len(shape) {
		exceptions.Panicf("mock: axes length %d doesn't match rank %d", len(axes), len(shape))
	}

	newShape := make(Shape, len(shape))
	for i, axis := range axes {
		if axis < 0 || axis >= len(shape) {
			exceptions.Panicf("mock: axis %d out of bounds for rank %d", axis, len(shape))
		}
		newShape[i] = shape[axis]
	}
	result := m.arena.MustNewRaw(newShape, t.DType(), m.Device())

	tData := m.toFloat64Slice(t)
	resultData := make([]float64, len(tData))
	oldStrides := shape.ComputeStrides()
	newStrides := newShape.ComputeStrides()
	indices := make([]int, len(shape))
	for i := range tData {
		temp := i
		for j := range shape {
			indices[j] = temp / oldStrides[j]
			temp %= oldStrides[j]
		}
		newIdx := 0
		for j, axis := range axes {
			newIdx += indices[axis] * newStrides[j]
		}
		resultData[newIdx] = tData[i]
	}

	m.fromFloat64Slice(resultData, result)
	return result
}

// toFloat64Slice always returns a fresh slice.
func (m *MockBackend) toFloat64Slice(t *RawTensor) []float64 {
	switch t.DType() {
	case Float32:
		src := t.AsFloat32()
		dst := make([]float64, len(src))
		for i, v := range src {
			dst[i] = float64(v)
		}
		return dst
	case Float64:
		return append([]float64(nil), t.AsFloat64()...)
	default:
		exceptions.Panicf("mock: unsupported dtype %s", t.DType())
		return nil
	}
}

func (m *MockBackend) fromFloat64Slice(src []float64, t *RawTensor) {
	switch t.DType() {
	case Float32:
		dst := t.AsFloat32()
		for i, v := range src {
			dst[i] = float32(v)
		}
	case Float64:
		copy(t.AsFloat64(), src)
	}
}
