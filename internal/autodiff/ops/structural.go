package ops

import "github.com/born-ml/gradkit/internal/tensor"

// MatMulOp records out = a @ b for 2-D a and b.
// ga = g @ bᵀ and gb = aᵀ @ g.
type MatMulOp struct {
	record
}

// NewMatMulOp records output = a @ b.
func NewMatMulOp(a, b, output *tensor.RawTensor) *MatMulOp {
	return &MatMulOp{record{inputs: []*tensor.RawTensor{a, b}, output: output}}
}

// Backward implements Operation.
func (op *MatMulOp) Backward(g *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	a, b := op.inputs[0], op.inputs[1]
	return []*tensor.RawTensor{
		backend.MatMul(g, backend.Transpose(b, 1, 0)),
		backend.MatMul(backend.Transpose(a, 1, 0), g),
	}
}

// ReshapeOp records a reshape. The gradient is g viewed in the input shape.
type ReshapeOp struct {
	record
	from tensor.Shape
}

// NewReshapeOp records output = reshape(input).
func NewReshapeOp(input, output *tensor.RawTensor) *ReshapeOp {
	return &ReshapeOp{
		record: record{inputs: []*tensor.RawTensor{input}, output: output},
		from:   input.Shape().Clone(),
	}
}

// Backward implements Operation.
func (op *ReshapeOp) Backward(g *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Reshape(g, op.from)}
}

// TransposeOp records a permutation of axes. The gradient is g permuted
// back with the inverse permutation.
type TransposeOp struct {
	record
	perm []int
}

// NewTransposeOp records output = transpose(input, axes...). Empty axes
// reverse the dimensions.
func NewTransposeOp(input, output *tensor.RawTensor, axes []int) *TransposeOp {
	perm := axes
	if len(perm) == 0 {
		n := len(input.Shape())
		perm = make([]int, n)
		for i := range perm {
			perm[i] = n - 1 - i
		}
	}
	return &TransposeOp{record: record{inputs: []*tensor.RawTensor{input}, output: output}, perm: perm}
}

// Backward implements Operation.
func (op *TransposeOp) Backward(g *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	inverse := make([]int, len(op.perm))
	for i, axis := range op.perm {
		inverse[axis] = i
	}
	return []*tensor.RawTensor{backend.Transpose(g, inverse...)}
}

// SumOp records a full reduction to a 0-D tensor. Every input element
// receives the output gradient.
type SumOp struct {
	record
}

// NewSumOp records output = sum(input).
func NewSumOp(input, output *tensor.RawTensor) *SumOp {
	return &SumOp{record{inputs: []*tensor.RawTensor{input}, output: output}}
}

// Backward implements Operation.
func (op *SumOp) Backward(g *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	x := op.inputs[0]
	ones := tensor.FullRaw(x.Shape(), x.DType(), 1, backend)
	return []*tensor.RawTensor{backend.Mul(ones, g)}
}
