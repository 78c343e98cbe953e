package graph

import (
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/gradkit/internal/tensor"
)

func TestShapeInference(t *testing.T) {
	g := New("shapes")
	m := g.Placeholder("m", tensor.Shape{3, 2})
	v := g.Placeholder("v", tensor.Shape{2})
	w := g.Variable("w", tensor.Shape{2, 4})
	row := g.Variable("row", tensor.Shape{3})

	assert.Equal(t, tensor.Shape{3, 4}, MatMul(m, w).Shape())
	assert.Equal(t, tensor.Shape{3}, MatMul(m, v).Shape())
	assert.Equal(t, tensor.Shape{4}, MatMul(v, w).Shape())
	assert.Equal(t, tensor.Shape{}, MatMul(v, v).Shape())
	assert.Equal(t, tensor.Shape{3, 2}, Add(m, v).Shape())
	assert.Equal(t, tensor.Shape{}, ReduceSum(Multiply(m, m)).Shape())
	assert.Equal(t, tensor.Shape{3}, Sqrt(Square(row)).Shape())
	assert.Equal(t, tensor.Shape{2, 3}, Reshape(m, 2, 3).Shape())
	assert.Equal(t, tensor.Shape{2}, Divide(Subtract(v, v), g.Constant(tensor.Shape{}, 2)).Shape())
}

func TestNodesFollowCreationOrder(t *testing.T) {
	g := New("order")
	x := g.Placeholder("x", tensor.Shape{2})
	y := Square(x)
	z := ReduceSum(y)
	assert.Equal(t, 3, g.NumNodes())
	assert.Less(t, x.ID(), y.ID())
	assert.Less(t, y.ID(), z.ID())
	assert.Equal(t, []*Node{y}, z.Inputs())
	assert.Equal(t, NodeTypeReduceSum, z.Type())
	assert.Equal(t, "ReduceSum", z.Type().String())
	assert.Same(t, x, g.NodeByName("x"))
	assert.Nil(t, g.NodeByName("y"))
}

func TestInvalidGraphsPanic(t *testing.T) {
	g := New("bad")
	other := New("other")
	a := g.Placeholder("a", tensor.Shape{2, 3})
	b := g.Placeholder("b", tensor.Shape{4})

	tests := map[string]func(){
		"broadcast":       func() { Add(a, b) },
		"matmul inner":    func() { MatMul(a, b) },
		"matmul rank":     func() { MatMul(g.Placeholder("r3", tensor.Shape{1, 2, 3}), a) },
		"reshape size":    func() { Reshape(a, 5) },
		"mixed graphs":    func() { Add(a, other.Placeholder("c", tensor.Shape{2, 3})) },
		"duplicate name":  func() { g.Variable("a", tensor.Shape{1}) },
		"empty name":      func() { g.Placeholder("", tensor.Shape{1}) },
		"wrong num value": func() { g.Variable("v", tensor.Shape{3}, 1, 2) },
		"nil input":       func() { Square(nil) },
	}
	for name, build := range tests {
		t.Run(name, func(t *testing.T) {
			err := exceptions.TryCatch[error](build)
			require.Error(t, err)
		})
	}
}

func TestInitialValues(t *testing.T) {
	g := New("init")
	assert.Equal(t, []float32{0, 0, 0}, g.Variable("zeros", tensor.Shape{3}).values)
	assert.Equal(t, []float32{7, 7}, g.Variable("fill", tensor.Shape{2}, 7).values)
	assert.Equal(t, []float32{1, 2}, g.Constant(tensor.Shape{2}, 1, 2).values)
}
