package nn

import (
	"github.com/gomlx/exceptions"

	"github.com/born-ml/gradkit/internal/tensor"
)

// MSE returns the scalar mean squared error mean((predictions - targets)²).
func MSE[B tensor.Backend](predictions, targets *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if !predictions.Shape().Equal(targets.Shape()) {
		exceptions.Panicf("nn.MSE: predictions %v and targets %v must have the same shape",
			predictions.Shape(), targets.Shape())
	}
	n := predictions.NumElements()
	return predictions.Sub(targets).Square().Sum().MulScalar(1 / float32(n))
}
