package cpu

import (
	"math"

	"github.com/gomlx/exceptions"

	"github.com/born-ml/gradkit/internal/parallel"
	"github.com/born-ml/gradkit/internal/tensor"
)

// Add performs element-wise addition with NumPy-style broadcasting.
func (cpu *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("add", a, b,
		func(x, y float32) float32 { return x + y },
		func(x, y float64) float64 { return x + y })
}

// Sub performs element-wise subtraction with broadcasting.
func (cpu *CPUBackend) Sub(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("sub", a, b,
		func(x, y float32) float32 { return x - y },
		func(x, y float64) float64 { return x - y })
}

// Mul performs element-wise multiplication with broadcasting.
func (cpu *CPUBackend) Mul(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("mul", a, b,
		func(x, y float32) float32 { return x * y },
		func(x, y float64) float64 { return x * y })
}

// Div performs element-wise division with broadcasting.
// Division by zero follows IEEE 754 (±Inf or NaN).
func (cpu *CPUBackend) Div(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("div", a, b,
		func(x, y float32) float32 { return x / y },
		func(x, y float64) float64 { return x / y })
}

// MulScalar multiplies every element by scalar.
func (cpu *CPUBackend) MulScalar(x *tensor.RawTensor, scalar float64) *tensor.RawTensor {
	s32 := float32(scalar)
	return cpu.unary("mul_scalar", x,
		func(v float32) float32 { return v * s32 },
		func(v float64) float64 { return v * scalar })
}

// AddScalar adds scalar to every element.
func (cpu *CPUBackend) AddScalar(x *tensor.RawTensor, scalar float64) *tensor.RawTensor {
	s32 := float32(scalar)
	return cpu.unary("add_scalar", x,
		func(v float32) float32 { return v + s32 },
		func(v float64) float64 { return v + scalar })
}

// Sqrt computes the element-wise square root. Negative inputs give NaN.
func (cpu *CPUBackend) Sqrt(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("sqrt", x,
		func(v float32) float32 { return float32(math.Sqrt(float64(v))) },
		math.Sqrt)
}

func (cpu *CPUBackend) binary(name string, a, b *tensor.RawTensor,
	f32 func(x, y float32) float32, f64 func(x, y float64) float64,
) *tensor.RawTensor {
	if a.DType() != b.DType() {
		exceptions.Panicf("%s: dtype mismatch %s vs %s", name, a.DType(), b.DType())
	}
	outShape, needsBroadcast, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		exceptions.Panicf("%s: %v", name, err)
	}

	result := cpu.alloc(outShape, a.DType())
	switch a.DType() {
	case tensor.Float32:
		binaryKernel(result.AsFloat32(), a.AsFloat32(), b.AsFloat32(),
			outShape, a.Shape(), b.Shape(), needsBroadcast, cpu.parallel, f32)
	case tensor.Float64:
		binaryKernel(result.AsFloat64(), a.AsFloat64(), b.AsFloat64(),
			outShape, a.Shape(), b.Shape(), needsBroadcast, cpu.parallel, f64)
	default:
		exceptions.Panicf("%s: unsupported dtype %s", name, a.DType())
	}
	return result
}

func (cpu *CPUBackend) unary(name string, x *tensor.RawTensor,
	f32 func(float32) float32, f64 func(float64) float64,
) *tensor.RawTensor {
	result := cpu.alloc(x.Shape(), x.DType())
	switch x.DType() {
	case tensor.Float32:
		unaryKernel(result.AsFloat32(), x.AsFloat32(), cpu.parallel, f32)
	case tensor.Float64:
		unaryKernel(result.AsFloat64(), x.AsFloat64(), cpu.parallel, f64)
	default:
		exceptions.Panicf("%s: unsupported dtype %s", name, x.DType())
	}
	return result
}

func binaryKernel[T tensor.DType](dst, a, b []T, outShape, aShape, bShape tensor.Shape,
	broadcast bool, cfg parallel.Config, op func(x, y T) T,
) {
	if !broadcast {
		parallel.ForRange(len(dst), cfg, func(start, end int) {
			for i := start; i < end; i++ {
				dst[i] = op(a[i], b[i])
			}
		})
		return
	}
	parallel.ForRange(len(dst), cfg, func(start, end int) {
		for i := start; i < end; i++ {
			dst[i] = op(a[tensor.BroadcastIndex(i, outShape, aShape)], b[tensor.BroadcastIndex(i, outShape, bShape)])
		}
	})
}

func unaryKernel[T tensor.DType](dst, x []T, cfg parallel.Config, op func(T) T) {
	parallel.ForRange(len(dst), cfg, func(start, end int) {
		for i := start; i < end; i++ {
			dst[i] = op(x[i])
		}
	})
}
