package ops

import (
	"github.com/gomlx/exceptions"

	"github.com/born-ml/gradkit/internal/tensor"
)

// Arith names a broadcasting binary operator.
type Arith int

const (
	Add Arith = iota
	Sub
	Mul
	Div
)

func (k Arith) String() string {
	switch k {
	case Add:
		return "add"
	case Sub:
		return "sub"
	case Mul:
		return "mul"
	case Div:
		return "div"
	}
	return "unknown"
}

// BinaryOp records out = a <op> b with broadcasting. Input gradients are
// summed back over the broadcast dimensions.
//
//	add: ga = g,      gb = g
//	sub: ga = g,      gb = -g
//	mul: ga = g*b,    gb = g*a
//	div: ga = g/b,    gb = -g*out/b
type BinaryOp struct {
	record
	kind Arith
}

func newBinary(kind Arith, a, b, output *tensor.RawTensor) *BinaryOp {
	return &BinaryOp{record: record{inputs: []*tensor.RawTensor{a, b}, output: output}, kind: kind}
}

// NewAddOp records output = a + b.
func NewAddOp(a, b, output *tensor.RawTensor) *BinaryOp { return newBinary(Add, a, b, output) }

// NewSubOp records output = a - b.
func NewSubOp(a, b, output *tensor.RawTensor) *BinaryOp { return newBinary(Sub, a, b, output) }

// NewMulOp records output = a * b.
func NewMulOp(a, b, output *tensor.RawTensor) *BinaryOp { return newBinary(Mul, a, b, output) }

// NewDivOp records output = a / b.
func NewDivOp(a, b, output *tensor.RawTensor) *BinaryOp { return newBinary(Div, a, b, output) }

// Kind returns the operator.
func (op *BinaryOp) Kind() Arith { return op.kind }

// Backward implements Operation.
func (op *BinaryOp) Backward(g *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	a, b := op.inputs[0], op.inputs[1]
	var ga, gb *tensor.RawTensor
	switch op.kind {
	case Add:
		ga, gb = g, g
	case Sub:
		ga, gb = g, backend.MulScalar(g, -1)
	case Mul:
		ga, gb = backend.Mul(g, b), backend.Mul(g, a)
	case Div:
		ga = backend.Div(g, b)
		gb = backend.MulScalar(backend.Div(backend.Mul(g, op.output), b), -1)
	default:
		exceptions.Panicf("ops: unknown binary operator %d", op.kind)
	}
	return []*tensor.RawTensor{
		reduceBroadcast(ga, a.Shape(), backend),
		reduceBroadcast(gb, b.Shape(), backend),
	}
}

// ScaleOp records y = x*s (scale) or y = x+s (shift) for a constant s.
type ScaleOp struct {
	record
	factor float64 // 1 for a shift
}

// NewMulScalarOp records output = input * s.
func NewMulScalarOp(input, output *tensor.RawTensor, s float64) *ScaleOp {
	return &ScaleOp{record: record{inputs: []*tensor.RawTensor{input}, output: output}, factor: s}
}

// NewAddScalarOp records output = input + s.
func NewAddScalarOp(input, output *tensor.RawTensor) *ScaleOp {
	return &ScaleOp{record: record{inputs: []*tensor.RawTensor{input}, output: output}, factor: 1}
}

// Backward implements Operation.
func (op *ScaleOp) Backward(g *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	if op.factor == 1 {
		return []*tensor.RawTensor{g.Clone()}
	}
	return []*tensor.RawTensor{backend.MulScalar(g, op.factor)}
}

// SqrtOp records y = sqrt(x). The gradient 0.5*g/y reuses the forward output.
type SqrtOp struct {
	record
}

// NewSqrtOp records output = sqrt(input).
func NewSqrtOp(input, output *tensor.RawTensor) *SqrtOp {
	return &SqrtOp{record{inputs: []*tensor.RawTensor{input}, output: output}}
}

// Backward implements Operation.
func (op *SqrtOp) Backward(g *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Div(backend.MulScalar(g, 0.5), op.output)}
}
