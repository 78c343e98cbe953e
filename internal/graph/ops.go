package graph

import (
	"github.com/gomlx/exceptions"

	"github.com/born-ml/gradkit/internal/tensor"
)

// validateBuildingGraphFromInputs checks that all inputs are non-nil and
// belong to the same graph, and returns it.
func validateBuildingGraphFromInputs(inputs ...*Node) *Graph {
	var g *Graph
	for i, n := range inputs {
		if n == nil {
			exceptions.Panicf("input #%d is nil", i)
		}
		if g == nil {
			g = n.graph
		} else if n.graph != g {
			exceptions.Panicf("input #%d belongs to graph %q, expected %q", i, n.graph.name, g.name)
		}
	}
	return g
}

func binaryOp(typ NodeType, x, y *Node) *Node {
	g := validateBuildingGraphFromInputs(x, y)
	shape, _, err := tensor.BroadcastShapes(x.shape, y.shape)
	if err != nil {
		exceptions.Panicf("%s: %v", typ, err)
	}
	return g.newNode(typ, shape, nil, x, y)
}

// Add returns x + y element-wise, with broadcasting.
func Add(x, y *Node) *Node { return binaryOp(NodeTypeAdd, x, y) }

// Subtract returns x - y element-wise, with broadcasting.
func Subtract(x, y *Node) *Node { return binaryOp(NodeTypeSubtract, x, y) }

// Multiply returns x * y element-wise, with broadcasting.
func Multiply(x, y *Node) *Node { return binaryOp(NodeTypeMultiply, x, y) }

// Divide returns x / y element-wise, with broadcasting.
func Divide(x, y *Node) *Node { return binaryOp(NodeTypeDivide, x, y) }

// MatMul multiplies matrices and vectors:
//
//	(M, K) x (K, N) -> (M, N)
//	(M, K) x (K)    -> (M)
//	(K) x (K, N)    -> (N)
//	(K) x (K)       -> scalar
func MatMul(x, y *Node) *Node {
	g := validateBuildingGraphFromInputs(x, y)
	if x.shape.Rank() < 1 || x.shape.Rank() > 2 || y.shape.Rank() < 1 || y.shape.Rank() > 2 {
		exceptions.Panicf("MatMul: operands must be vectors or matrices, got %v and %v", x.shape, y.shape)
	}
	xk := x.shape[x.shape.Rank()-1]
	yk := y.shape[0]
	if xk != yk {
		exceptions.Panicf("MatMul: inner dimensions differ, %v x %v", x.shape, y.shape)
	}
	var shape tensor.Shape
	switch {
	case x.shape.Rank() == 2 && y.shape.Rank() == 2:
		shape = tensor.Shape{x.shape[0], y.shape[1]}
	case x.shape.Rank() == 2:
		shape = tensor.Shape{x.shape[0]}
	case y.shape.Rank() == 2:
		shape = tensor.Shape{y.shape[1]}
	default:
		shape = tensor.Shape{}
	}
	return g.newNode(NodeTypeMatMul, shape, nil, x, y)
}

// ReduceSum sums every element of x into a scalar.
func ReduceSum(x *Node) *Node {
	g := validateBuildingGraphFromInputs(x)
	return g.newNode(NodeTypeReduceSum, tensor.Shape{}, nil, x)
}

// Square returns x² element-wise.
func Square(x *Node) *Node {
	g := validateBuildingGraphFromInputs(x)
	return g.newNode(NodeTypeSquare, x.shape, nil, x)
}

// Sqrt returns the element-wise square root of x.
func Sqrt(x *Node) *Node {
	g := validateBuildingGraphFromInputs(x)
	return g.newNode(NodeTypeSqrt, x.shape, nil, x)
}

// Reshape returns x with a new shape holding the same number of elements.
func Reshape(x *Node, dims ...int) *Node {
	g := validateBuildingGraphFromInputs(x)
	shape := tensor.Shape(dims)
	if err := shape.Validate(); err != nil {
		exceptions.Panicf("Reshape: %v", err)
	}
	if shape.NumElements() != x.shape.NumElements() {
		exceptions.Panicf("Reshape: cannot reshape %v into %v", x.shape, shape)
	}
	return g.newNode(NodeTypeReshape, shape, nil, x)
}
