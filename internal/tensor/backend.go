package tensor

// Backend defines the interface that all compute backends must implement.
// Backends handle the actual computation for tensor operations and
// allocate every result through their Arena.
//
// Kernels panic (with an error value) on invalid input such as
// incompatible shapes; callers at API boundaries recover those panics
// into errors.
//
// Implementations:
//   - CPU: pure Go kernels (internal/backend/cpu)
//   - Autodiff: decorator recording operations for backpropagation
type Backend interface {
	// Element-wise binary operations (NumPy broadcasting)
	Add(a, b *RawTensor) *RawTensor
	Sub(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor
	Div(a, b *RawTensor) *RawTensor

	// Matrix operations: (M, K) @ (K, N) -> (M, N)
	MatMul(a, b *RawTensor) *RawTensor

	// Shape operations
	Reshape(t *RawTensor, newShape Shape) *RawTensor
	Transpose(t *RawTensor, axes ...int) *RawTensor

	// Scalar operations (element-wise with scalar)
	MulScalar(x *RawTensor, scalar float64) *RawTensor
	AddScalar(x *RawTensor, scalar float64) *RawTensor

	// Math operations (element-wise)
	Sqrt(x *RawTensor) *RawTensor

	// Reduction operations
	Sum(x *RawTensor) *RawTensor // total sum (scalar result, shape [])

	// Metadata
	Name() string
	Device() Device
	Arena() *Arena
}
