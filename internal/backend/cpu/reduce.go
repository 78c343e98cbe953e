package cpu

import (
	"github.com/gomlx/exceptions"

	"github.com/born-ml/gradkit/internal/tensor"
)

// Sum computes the total sum of all elements and returns a 0-D tensor.
// Float32 inputs are accumulated in float64.
func (cpu *CPUBackend) Sum(x *tensor.RawTensor) *tensor.RawTensor {
	result := cpu.alloc(tensor.Shape{}, x.DType())
	switch x.DType() {
	case tensor.Float32:
		result.AsFloat32()[0] = float32(sum(x.AsFloat32()))
	case tensor.Float64:
		result.AsFloat64()[0] = sum(x.AsFloat64())
	default:
		exceptions.Panicf("sum: unsupported dtype %s", x.DType())
	}
	return result
}

func sum[T tensor.DType](data []T) float64 {
	var total float64
	for _, v := range data {
		total += float64(v)
	}
	return total
}
