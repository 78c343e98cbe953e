// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package graph builds symbolic computation graphs and trains their
// variables with a Session.
//
// Example:
//
//	g := graph.New("linear")
//	x := g.Placeholder("x", tensor.Shape{2})
//	w := g.Variable("w", tensor.Shape{1, 2})
//	y := graph.ReduceSum(graph.MatMul(w, x))
//
//	sess, _ := graph.NewSession(g, autodiff.New(cpu.New()))
//	defer sess.Dispose()
package graph

import (
	"github.com/born-ml/gradkit/internal/autodiff"
	"github.com/born-ml/gradkit/internal/graph"
	"github.com/born-ml/gradkit/internal/tensor"
)

// Graph holds the nodes of a computation.
type Graph = graph.Graph

// Node is the result of an operation in a Graph.
type Node = graph.Node

// Session executes a Graph and holds its variables.
type Session[B autodiff.Differentiable] = graph.Session[B]

// InputProvider supplies Placeholder values during training.
type InputProvider = graph.InputProvider

// FeedEntry binds a Placeholder to its provider.
type FeedEntry = graph.FeedEntry

// Sample is one input value.
type Sample = graph.Sample

// CostReduction selects the cost returned by Session.Train.
type CostReduction = graph.CostReduction

// Cost reductions.
const (
	CostReductionNone = graph.CostReductionNone
	CostReductionSum  = graph.CostReductionSum
	CostReductionMean = graph.CostReductionMean
)

// Errors.
var (
	ErrUnknownNode       = graph.ErrUnknownNode
	ErrMissingFeed       = graph.ErrMissingFeed
	ErrSessionDisposed   = graph.ErrSessionDisposed
	ErrProviderExhausted = graph.ErrProviderExhausted
)

// New creates an empty graph.
func New(name string) *Graph { return graph.New(name) }

// NewSession creates the variables of g on backend.
func NewSession[B autodiff.Differentiable](g *Graph, backend B) (*Session[B], error) {
	return graph.NewSession(g, backend)
}

// Add returns x + y with broadcasting.
func Add(x, y *Node) *Node { return graph.Add(x, y) }

// Subtract returns x - y with broadcasting.
func Subtract(x, y *Node) *Node { return graph.Subtract(x, y) }

// Multiply returns x * y with broadcasting.
func Multiply(x, y *Node) *Node { return graph.Multiply(x, y) }

// Divide returns x / y with broadcasting.
func Divide(x, y *Node) *Node { return graph.Divide(x, y) }

// MatMul multiplies matrices and vectors.
func MatMul(x, y *Node) *Node { return graph.MatMul(x, y) }

// ReduceSum sums every element of x.
func ReduceSum(x *Node) *Node { return graph.ReduceSum(x) }

// Square returns x² element-wise.
func Square(x *Node) *Node { return graph.Square(x) }

// Sqrt returns the element-wise square root.
func Sqrt(x *Node) *Node { return graph.Sqrt(x) }

// Reshape returns x with a new shape.
func Reshape(x *Node, dims ...int) *Node { return graph.Reshape(x, dims...) }

// NewConstantProvider returns the same sample forever.
func NewConstantProvider(shape tensor.Shape, values ...float32) (*graph.ConstantProvider, error) {
	return graph.NewConstantProvider(shape, values...)
}

// NewSliceProvider returns samples in order, then ErrProviderExhausted.
func NewSliceProvider(samples ...Sample) (*graph.SliceProvider, error) {
	return graph.NewSliceProvider(samples...)
}

// NewShuffledProviders serves aligned inputs in a shared shuffled order.
func NewShuffledProviders(seed uint64, inputs ...[]Sample) (*graph.ShuffledProviders, error) {
	return graph.NewShuffledProviders(seed, inputs...)
}
