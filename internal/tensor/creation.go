package tensor

// Zeros creates a tensor filled with zeros.
//
// Example:
//
//	backend := cpu.New()
//	t := tensor.Zeros[float32](Shape{3, 4}, backend)
func Zeros[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	var dummy T
	raw := b.Arena().MustNewRaw(shape, inferDataType(dummy), b.Device())
	// Data is already zero-initialized by make()
	return New[T, B](raw, b)
}

// Ones creates a tensor filled with ones.
func Ones[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	return Full[T](shape, 1, b)
}

// Full creates a tensor filled with a specific value.
//
// Example:
//
//	t := tensor.Full[float32](Shape{3, 3}, 0.1, backend)
func Full[T DType, B Backend](shape Shape, value T, b B) *Tensor[T, B] {
	t := Zeros[T, B](shape, b)
	data := t.Data()
	for i := range data {
		data[i] = value
	}
	return t
}

// Scalar creates a 0-D tensor holding value.
func Scalar[T DType, B Backend](value T, b B) *Tensor[T, B] {
	return Full[T](Shape{}, value, b)
}

// FullRaw allocates a raw tensor of the given dtype filled with value.
// Used by kernels and autodiff operations that work below the typed API.
func FullRaw(shape Shape, dtype DataType, value float64, b Backend) *RawTensor {
	raw := b.Arena().MustNewRaw(shape, dtype, b.Device())
	switch dtype {
	case Float32:
		data := raw.AsFloat32()
		for i := range data {
			data[i] = float32(value)
		}
	case Float64:
		data := raw.AsFloat64()
		for i := range data {
			data[i] = value
		}
	}
	return raw
}
