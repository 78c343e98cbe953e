package cpu

import (
	"github.com/gomlx/exceptions"

	"github.com/born-ml/gradkit/internal/tensor"
)

// Reshape returns a view with the same data and a different shape.
// The view is a new tensor handle sharing the buffer copy-on-write.
func (cpu *CPUBackend) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	if err := newShape.Validate(); err != nil {
		exceptions.Panicf("reshape: invalid shape: %v", err)
	}
	if t.NumElements() != newShape.NumElements() {
		exceptions.Panicf("reshape: incompatible shapes: %v -> %v (different number of elements)",
			t.Shape(), newShape)
	}
	return t.View(newShape)
}

// Transpose transposes the tensor by permuting its dimensions.
// With no axes the dimensions are reversed.
func (cpu *CPUBackend) Transpose(t *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	shape := t.Shape()
	ndim := len(shape)

	if len(axes) == 0 {
		axes = make([]int, ndim)
		for i := range axes {
			axes[i] = ndim - 1 - i
		}
	}
	if len(axes) != ndim {
		exceptions.Panicf("transpose: axes length %d != ndim %d", len(axes), ndim)
	}

	seen := make([]bool, ndim)
	for _, ax := range axes {
		if ax < 0 || ax >= ndim {
			exceptions.Panicf("transpose: invalid axis %d for %dD tensor", ax, ndim)
		}
		if seen[ax] {
			exceptions.Panicf("transpose: duplicate axis %d", ax)
		}
		seen[ax] = true
	}

	newShape := make(tensor.Shape, ndim)
	for i, ax := range axes {
		newShape[i] = shape[ax]
	}

	result := cpu.alloc(newShape, t.DType())
	switch t.DType() {
	case tensor.Float32:
		transpose(result.AsFloat32(), t.AsFloat32(), shape, newShape, axes)
	case tensor.Float64:
		transpose(result.AsFloat64(), t.AsFloat64(), shape, newShape, axes)
	default:
		exceptions.Panicf("transpose: unsupported dtype %s", t.DType())
	}
	return result
}

func transpose[T tensor.DType](dst, src []T, shape, newShape tensor.Shape, axes []int) {
	oldStrides := shape.ComputeStrides()
	newStrides := newShape.ComputeStrides()
	indices := make([]int, len(shape))
	for i := range src {
		temp := i
		for j := range shape {
			indices[j] = temp / oldStrides[j]
			temp %= oldStrides[j]
		}
		newIdx := 0
		for j, ax := range axes {
			newIdx += indices[ax] * newStrides[j]
		}
		dst[newIdx] = src[i]
	}
}
