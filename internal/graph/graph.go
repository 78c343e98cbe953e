// Package graph builds small symbolic computation graphs and trains their
// variables through a Session.
//
// A Graph is a list of nodes created in dependency order: Placeholders
// (fed at run time), Variables (trained by an optimizer), Constants and
// the arithmetic ops in ops.go. Shapes are known when a node is built;
// building an invalid node panics with an error value (see
// github.com/gomlx/exceptions), and Session entry points turn those
// panics into errors.
//
// Example:
//
//	g := graph.New("linear")
//	x := g.Placeholder("x", tensor.Shape{2})
//	w := g.Variable("w", tensor.Shape{1, 2})
//	b := g.Variable("b", tensor.Shape{1})
//	y := graph.ReduceSum(graph.Add(graph.MatMul(w, x), b))
//
//	sess, _ := graph.NewSession(g, backend)
//	defer sess.Dispose()
//	_, err := sess.Train(y, []graph.FeedEntry{{Node: x, Data: provider}}, 1, opt, graph.CostReductionNone)
package graph

import (
	"fmt"

	"github.com/gomlx/exceptions"

	"github.com/born-ml/gradkit/internal/tensor"
)

// NodeID identifies a node within its graph. IDs follow creation order,
// so inputs always have smaller IDs than the nodes using them.
type NodeID int

// NodeType is the operation a node performs.
type NodeType int

// Node types.
const (
	NodeTypePlaceholder NodeType = iota
	NodeTypeVariable
	NodeTypeConstant
	NodeTypeAdd
	NodeTypeSubtract
	NodeTypeMultiply
	NodeTypeDivide
	NodeTypeMatMul
	NodeTypeReduceSum
	NodeTypeSquare
	NodeTypeSqrt
	NodeTypeReshape
)

var nodeTypeNames = [...]string{
	NodeTypePlaceholder: "Placeholder",
	NodeTypeVariable:    "Variable",
	NodeTypeConstant:    "Constant",
	NodeTypeAdd:         "Add",
	NodeTypeSubtract:    "Subtract",
	NodeTypeMultiply:    "Multiply",
	NodeTypeDivide:      "Divide",
	NodeTypeMatMul:      "MatMul",
	NodeTypeReduceSum:   "ReduceSum",
	NodeTypeSquare:      "Square",
	NodeTypeSqrt:        "Sqrt",
	NodeTypeReshape:     "Reshape",
}

func (t NodeType) String() string {
	if t < 0 || int(t) >= len(nodeTypeNames) {
		return fmt.Sprintf("NodeType(%d)", int(t))
	}
	return nodeTypeNames[t]
}

// Node is the result of an operation in a Graph.
type Node struct {
	graph  *Graph
	id     NodeID
	typ    NodeType
	name   string
	shape  tensor.Shape
	inputs []*Node

	// values holds the initial contents of Variable and Constant nodes.
	values []float32
}

// Graph returns the graph the node belongs to.
func (n *Node) Graph() *Graph { return n.graph }

// ID returns the node id within its graph.
func (n *Node) ID() NodeID { return n.id }

// Type returns the operation of the node.
func (n *Node) Type() NodeType { return n.typ }

// Name returns the name of a Placeholder or Variable, empty for other nodes.
func (n *Node) Name() string { return n.name }

// Shape returns the shape of the node's value.
func (n *Node) Shape() tensor.Shape { return n.shape }

// Inputs returns the nodes this node consumes.
func (n *Node) Inputs() []*Node { return n.inputs }

func (n *Node) String() string {
	if n.name != "" {
		return fmt.Sprintf("#%d %s(%q)%v", n.id, n.typ, n.name, n.shape)
	}
	return fmt.Sprintf("#%d %s%v", n.id, n.typ, n.shape)
}

// Graph holds the nodes of a computation.
type Graph struct {
	name  string
	nodes []*Node
	named map[string]*Node
}

// New creates an empty graph.
func New(name string) *Graph {
	return &Graph{name: name, named: make(map[string]*Node)}
}

// Name of the graph.
func (g *Graph) Name() string { return g.name }

// NumNodes returns the number of nodes built so far.
func (g *Graph) NumNodes() int { return len(g.nodes) }

// Nodes returns every node in creation order.
func (g *Graph) Nodes() []*Node { return g.nodes }

// NodeByName returns the Placeholder or Variable with the given name, or nil.
func (g *Graph) NodeByName(name string) *Node { return g.named[name] }

// Placeholder creates an input node whose value is supplied by a feed
// when the graph runs.
func (g *Graph) Placeholder(name string, shape tensor.Shape) *Node {
	return g.newNamed(NodeTypePlaceholder, name, shape, nil)
}

// Variable creates a trainable node. With no values it starts as zeros,
// with one value it is filled with it, otherwise values must hold every
// element.
func (g *Graph) Variable(name string, shape tensor.Shape, values ...float32) *Node {
	return g.newNamed(NodeTypeVariable, name, shape, initialValues(shape, values))
}

// Constant creates a node with a fixed value, following the same value
// rules as Variable.
func (g *Graph) Constant(shape tensor.Shape, values ...float32) *Node {
	if err := shape.Validate(); err != nil {
		exceptions.Panicf("graph %q: constant: %v", g.name, err)
	}
	return g.newNode(NodeTypeConstant, shape, initialValues(shape, values))
}

func (g *Graph) newNamed(typ NodeType, name string, shape tensor.Shape, values []float32) *Node {
	if name == "" {
		exceptions.Panicf("graph %q: %s requires a name", g.name, typ)
	}
	if prev, found := g.named[name]; found {
		exceptions.Panicf("graph %q: name %q already used by %s", g.name, name, prev)
	}
	if err := shape.Validate(); err != nil {
		exceptions.Panicf("graph %q: %s %q: %v", g.name, typ, name, err)
	}
	n := g.newNode(typ, shape, values)
	n.name = name
	g.named[name] = n
	return n
}

func (g *Graph) newNode(typ NodeType, shape tensor.Shape, values []float32, inputs ...*Node) *Node {
	n := &Node{
		graph:  g,
		id:     NodeID(len(g.nodes)),
		typ:    typ,
		shape:  shape.Clone(),
		inputs: inputs,
		values: values,
	}
	g.nodes = append(g.nodes, n)
	return n
}

func initialValues(shape tensor.Shape, values []float32) []float32 {
	size := shape.NumElements()
	switch len(values) {
	case 0:
		return make([]float32, size)
	case 1:
		out := make([]float32, size)
		for i := range out {
			out[i] = values[0]
		}
		return out
	case size:
		return append([]float32(nil), values...)
	default:
		exceptions.Panicf("shape %v requires %d values, got %d", shape, size, len(values))
		return nil
	}
}
