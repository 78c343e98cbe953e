package nn

import (
	"math"
	"math/rand/v2"

	"github.com/gomlx/exceptions"

	"github.com/born-ml/gradkit/internal/tensor"
)

// Xavier returns a tensor drawn from the Glorot uniform distribution
// U(-sqrt(6/(fanIn+fanOut)), sqrt(6/(fanIn+fanOut))).
//
// rng makes initialization reproducible; a nil rng uses the global source.
func Xavier[B tensor.Backend](fanIn, fanOut int, shape tensor.Shape, backend B, rng *rand.Rand) *tensor.Tensor[float32, B] {
	if fanIn+fanOut <= 0 {
		exceptions.Panicf("nn.Xavier: fanIn+fanOut must be positive, got %d+%d", fanIn, fanOut)
	}
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))
	uniform := rand.Float64
	if rng != nil {
		uniform = rng.Float64
	}

	raw := backend.Arena().MustNewRaw(shape, tensor.Float32, backend.Device())
	data := raw.AsFloat32()
	for i := range data {
		data[i] = float32((uniform()*2.0 - 1.0) * bound)
	}
	return tensor.New[float32](raw, backend)
}
