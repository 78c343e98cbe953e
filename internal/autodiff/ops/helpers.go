package ops

import (
	"github.com/gomlx/exceptions"

	"github.com/born-ml/gradkit/internal/tensor"
)

// reduceBroadcast reduces a gradient tensor to match the target shape.
// This is necessary when broadcasting was used in the forward pass.
//
// Example:
//
//	Forward: a[3,1] + b[3,4] -> c[3,4]  (a was broadcast along dim 1)
//	Backward: grad_c[3,4] -> grad_a[3,1] (sum along dim 1)
//
// When the shapes already match the result is a new handle over the same
// buffer, so each input owns its own gradient handle.
func reduceBroadcast(grad *tensor.RawTensor, targetShape tensor.Shape, backend tensor.Backend) *tensor.RawTensor {
	gradShape := grad.Shape()
	if gradShape.Equal(targetShape) {
		return grad.Clone()
	}
	if targetShape.NumElements() == gradShape.NumElements() {
		return backend.Reshape(grad, targetShape)
	}

	result := backend.Arena().MustNewRaw(targetShape, grad.DType(), backend.Device())
	switch grad.DType() {
	case tensor.Float32:
		sumToShape(result.AsFloat32(), grad.AsFloat32(), gradShape, targetShape)
	case tensor.Float64:
		sumToShape(result.AsFloat64(), grad.AsFloat64(), gradShape, targetShape)
	default:
		exceptions.Panicf("reduceBroadcast: unsupported dtype %s", grad.DType())
	}
	return result
}

// sumToShape accumulates every element of src into the position of dst it
// was broadcast from.
func sumToShape[T tensor.DType](dst, src []T, srcShape, dstShape tensor.Shape) {
	for i, v := range src {
		dst[tensor.BroadcastIndex(i, srcShape, dstShape)] += v
	}
}
