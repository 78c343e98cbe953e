package cpu

import (
	"github.com/gomlx/exceptions"

	"github.com/born-ml/gradkit/internal/parallel"
	"github.com/born-ml/gradkit/internal/tensor"
)

// MatMul performs matrix multiplication.
// For 2D tensors: (M, K) @ (K, N) -> (M, N)
// Rows of the result are computed in parallel.
func (cpu *CPUBackend) MatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	aShape := a.Shape()
	bShape := b.Shape()

	if len(aShape) != 2 || len(bShape) != 2 {
		exceptions.Panicf("matmul: only 2D tensors supported, got %dD and %dD", len(aShape), len(bShape))
	}
	if a.DType() != b.DType() {
		exceptions.Panicf("matmul: dtype mismatch %s vs %s", a.DType(), b.DType())
	}

	m, k := aShape[0], aShape[1]
	kAlt, n := bShape[0], bShape[1]
	if k != kAlt {
		exceptions.Panicf("matmul: shape mismatch [%d,%d] @ [%d,%d]", m, k, kAlt, n)
	}

	result := cpu.alloc(tensor.Shape{m, n}, a.DType())
	switch a.DType() {
	case tensor.Float32:
		matmul(result.AsFloat32(), a.AsFloat32(), b.AsFloat32(), m, k, n, cpu.parallel)
	case tensor.Float64:
		matmul(result.AsFloat64(), a.AsFloat64(), b.AsFloat64(), m, k, n, cpu.parallel)
	default:
		exceptions.Panicf("matmul: unsupported dtype %s", a.DType())
	}
	return result
}

// matmul computes C[i,j] = sum_k A[i,k] * B[k,j] using the i-k-j loop order.
func matmul[T tensor.DType](c, a, b []T, m, k, n int, cfg parallel.Config) {
	// Chunking is by rows, so scale the threshold to elements per row.
	rowCfg := cfg
	if n > 0 {
		rowCfg.MinChunkSize = max(1, cfg.MinChunkSize/(n*k+1))
	}
	parallel.ForRange(m, rowCfg, func(start, end int) {
		for i := start; i < end; i++ {
			row := c[i*n : (i+1)*n]
			for kk := 0; kk < k; kk++ {
				aik := a[i*k+kk]
				bRow := b[kk*n : (kk+1)*n]
				for j := range row {
					row[j] += aik * bRow[j]
				}
			}
		}
	})
}
