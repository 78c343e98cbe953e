package graph

import (
	"maps"
	"strconv"

	"github.com/gomlx/exceptions"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/gradkit/internal/autodiff"
	"github.com/born-ml/gradkit/internal/optim"
	"github.com/born-ml/gradkit/internal/serialization"
	"github.com/born-ml/gradkit/internal/tensor"
)

var (
	// ErrUnknownNode is returned for a node that is not part of the
	// session's graph, or not of the kind the call expects.
	ErrUnknownNode = errors.New("unknown node")

	// ErrMissingFeed is returned when a Placeholder needed by the target
	// has no FeedEntry.
	ErrMissingFeed = errors.New("missing feed for placeholder")

	// ErrSessionDisposed is returned when a session is used after Dispose.
	ErrSessionDisposed = errors.New("session has been disposed")
)

// CostReduction selects the cost Train returns for a batch.
type CostReduction int

const (
	// CostReductionNone returns no cost.
	CostReductionNone CostReduction = iota
	// CostReductionSum returns the sum of the target over the batch.
	CostReductionSum
	// CostReductionMean returns the mean of the target over the batch.
	CostReductionMean
)

func (r CostReduction) String() string {
	switch r {
	case CostReductionNone:
		return "none"
	case CostReductionSum:
		return "sum"
	case CostReductionMean:
		return "mean"
	default:
		return "CostReduction(" + strconv.Itoa(int(r)) + ")"
	}
}

// Metadata keys written by SaveVariables.
const (
	MetadataRunID = "run_id"
	MetadataGraph = "graph"
)

// Session executes a Graph on a differentiable backend and holds the
// current value of each of its Variables.
//
// A session is not safe for concurrent use.
type Session[B autodiff.Differentiable] struct {
	graph     *Graph
	backend   B
	runID     string
	vars      map[NodeID]*tensor.Variable[B]
	varOrder  []*tensor.Variable[B]
	constants map[NodeID]*tensor.Tensor[float32, B]
	disposed  bool
}

// NewSession creates the variables and constants of g on backend.
func NewSession[B autodiff.Differentiable](g *Graph, backend B) (*Session[B], error) {
	s := &Session[B]{
		graph:     g,
		backend:   backend,
		runID:     uuid.NewString(),
		vars:      make(map[NodeID]*tensor.Variable[B]),
		constants: make(map[NodeID]*tensor.Tensor[float32, B]),
	}
	for _, n := range g.nodes {
		switch n.typ {
		case NodeTypeVariable:
			t, err := tensor.FromSlice(n.values, n.shape, backend)
			if err != nil {
				s.Dispose()
				return nil, errors.WithMessagef(err, "variable %q", n.name)
			}
			v := tensor.NewVariable(n.name, t)
			s.vars[n.id] = v
			s.varOrder = append(s.varOrder, v)
		case NodeTypeConstant:
			t, err := tensor.FromSlice(n.values, n.shape, backend)
			if err != nil {
				s.Dispose()
				return nil, errors.WithMessagef(err, "constant %s", n)
			}
			s.constants[n.id] = t.Keep()
		}
	}
	klog.V(1).Infof("session %s: graph %q with %d nodes, %d variables", s.runID, g.name, len(g.nodes), len(s.varOrder))
	return s, nil
}

// Graph returns the session's graph.
func (s *Session[B]) Graph() *Graph { return s.graph }

// RunID returns the random identifier of this session, recorded in saved files.
func (s *Session[B]) RunID() string { return s.runID }

// Get returns the current value of a Variable node. The tensor is owned by
// the session.
func (s *Session[B]) Get(node *Node) (*tensor.Tensor[float32, B], error) {
	if s.disposed {
		return nil, ErrSessionDisposed
	}
	if node == nil || node.graph != s.graph {
		return nil, errors.Wrap(ErrUnknownNode, "node is not part of the session graph")
	}
	v, ok := s.vars[node.id]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownNode, "%s is not a variable", node)
	}
	return v.Tensor(), nil
}

// Variable returns the variable of the Variable node with the given name.
func (s *Session[B]) Variable(name string) (*tensor.Variable[B], error) {
	n := s.graph.NodeByName(name)
	if n == nil || n.typ != NodeTypeVariable {
		return nil, errors.Wrapf(ErrUnknownNode, "no variable named %q", name)
	}
	return s.vars[n.id], nil
}

// Variables returns every variable in creation order.
func (s *Session[B]) Variables() []*tensor.Variable[B] {
	return s.varOrder
}

// Eval computes node once, pulling one copy from each feed. The caller
// owns the result.
func (s *Session[B]) Eval(node *Node, feeds []FeedEntry) (result *tensor.Tensor[float32, B], err error) {
	if err := s.check(node, feeds); err != nil {
		return nil, err
	}
	arena := s.backend.Arena()
	arena.StartScope()
	defer func() {
		if result != nil {
			arena.EndScope(result.Raw())
			return
		}
		arena.EndScope()
	}()

	inputs, err := s.pull(feeds)
	defer s.dispose(feeds, inputs)
	if err != nil {
		return nil, err
	}
	var value *tensor.Tensor[float32, B]
	err = exceptions.TryCatch[error](func() {
		value = s.forward(node, inputs)
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "evaluating %s", node)
	}
	switch node.typ {
	case NodeTypePlaceholder, NodeTypeVariable, NodeTypeConstant:
		// The handle belongs to the session or to a feed.
		value = value.Clone()
	}
	return value, nil
}

// Train runs batchSize training iterations. Each iteration pulls the next
// copy from every feed, evaluates target (a single-element node) under the
// gradient tape, backpropagates to every trainable variable and hands the
// gradients to opt.ApplyGradients. Input copies go back to their providers
// and every temporary of the iteration is released before the next one.
//
// With a reduction other than CostReductionNone the batch cost is returned
// and owned by the caller.
//
// An error stops the batch. Updates from earlier iterations are kept.
func (s *Session[B]) Train(target *Node, feeds []FeedEntry, batchSize int, opt optim.Optimizer[B], reduction CostReduction) (*tensor.Tensor[float32, B], error) {
	if err := s.check(target, feeds); err != nil {
		return nil, err
	}
	if batchSize <= 0 {
		return nil, errors.Errorf("batch size must be positive, got %d", batchSize)
	}
	if opt == nil {
		return nil, errors.New("no optimizer given")
	}
	vars := make([]*tensor.Variable[B], 0, len(s.varOrder))
	xs := make([]*tensor.RawTensor, 0, len(s.varOrder))
	for _, v := range s.varOrder {
		if v.Trainable() {
			vars = append(vars, v)
			xs = append(xs, v.Tensor().Raw())
		}
	}

	var total float64
	for i := range batchSize {
		err := s.backend.Arena().Tidy(func() error {
			inputs, err := s.pull(feeds)
			defer s.dispose(feeds, inputs)
			if err != nil {
				return err
			}
			value, gradList, err := s.backend.ValueAndGrads(func() *tensor.RawTensor {
				return s.forward(target, inputs).Raw()
			}, xs)
			if err != nil {
				return err
			}
			grads := make(map[tensor.ID]*tensor.RawTensor, len(vars))
			for j, g := range gradList {
				if g != nil {
					grads[vars[j].ID()] = g
				}
			}
			if err := opt.ApplyGradients(vars, grads); err != nil {
				return err
			}
			if reduction != CostReductionNone {
				total += float64(tensor.New[float32](value, s.backend).Item())
			}
			return nil
		})
		if err != nil {
			return nil, errors.WithMessagef(err, "training %s, iteration %d of %d", target, i+1, batchSize)
		}
	}

	if klog.V(1).Enabled() {
		klog.Infof("session %s: trained %d iterations with %s", s.runID, batchSize, opt.Name())
	}
	switch reduction {
	case CostReductionSum:
		return tensor.Scalar(float32(total), s.backend), nil
	case CostReductionMean:
		return tensor.Scalar(float32(total/float64(batchSize)), s.backend), nil
	default:
		return nil, nil
	}
}

// SaveVariables writes every variable to a SafeTensors file, keyed by
// name. The session run id and graph name are added to metadata.
func (s *Session[B]) SaveVariables(path string, metadata map[string]string) error {
	if s.disposed {
		return ErrSessionDisposed
	}
	meta := make(map[string]string, len(metadata)+2)
	maps.Copy(meta, metadata)
	meta[MetadataRunID] = s.runID
	meta[MetadataGraph] = s.graph.name

	state := make(map[string]*tensor.RawTensor, len(s.varOrder))
	for _, v := range s.varOrder {
		state[v.Name()] = v.Tensor().Raw()
	}
	if err := serialization.WriteSafeTensors(path, state, meta); err != nil {
		return errors.WithMessagef(err, "session %s: saving variables", s.runID)
	}
	return nil
}

// LoadVariables assigns the variables stored by SaveVariables. Entries
// without a matching variable are ignored; a shape mismatch is an error
// and leaves every variable untouched. It returns the file metadata.
func (s *Session[B]) LoadVariables(path string) (map[string]string, error) {
	if s.disposed {
		return nil, ErrSessionDisposed
	}
	state, meta, err := serialization.ReadSafeTensors(path, s.backend)
	if err != nil {
		return nil, errors.WithMessagef(err, "session %s: loading variables", s.runID)
	}
	defer func() {
		for _, t := range state {
			t.Release()
		}
	}()

	for _, v := range s.varOrder {
		t, ok := state[v.Name()]
		if !ok {
			continue
		}
		if t.DType() != tensor.Float32 || !t.Shape().Equal(v.Shape()) {
			return nil, errors.Wrapf(optim.ErrShapeMismatch, "variable %q is %v, file has %s%v",
				v.Name(), v.Shape(), t.DType(), t.Shape())
		}
	}
	loaded := 0
	for _, v := range s.varOrder {
		if t, ok := state[v.Name()]; ok {
			v.Assign(t)
			loaded++
		}
	}
	klog.V(1).Infof("session %s: loaded %d variables from %s (run %s)", s.runID, loaded, path, meta[MetadataRunID])
	return meta, nil
}

// Dispose releases the variables and constants. Idempotent.
func (s *Session[B]) Dispose() {
	if s.disposed {
		return
	}
	s.disposed = true
	for _, v := range s.varOrder {
		v.Dispose()
	}
	for _, c := range s.constants {
		c.Release()
	}
}

// check validates the target and the feeds and verifies every
// Placeholder the target depends on is fed.
func (s *Session[B]) check(target *Node, feeds []FeedEntry) error {
	if s.disposed {
		return ErrSessionDisposed
	}
	if target == nil || target.graph != s.graph {
		return errors.Wrap(ErrUnknownNode, "target is not part of the session graph")
	}
	fed := make(map[NodeID]bool, len(feeds))
	for _, f := range feeds {
		if f.Node == nil || f.Node.graph != s.graph || f.Node.typ != NodeTypePlaceholder {
			return errors.Wrapf(ErrUnknownNode, "feed node %v is not a placeholder of graph %q", f.Node, s.graph.name)
		}
		if f.Data == nil {
			return errors.Errorf("feed for %s has no provider", f.Node)
		}
		fed[f.Node.id] = true
	}
	for _, p := range placeholders(target) {
		if !fed[p.id] {
			return errors.Wrapf(ErrMissingFeed, "%s", p)
		}
	}
	return nil
}

// pull takes one copy from every provider. On error the copies already
// taken are returned so they can be disposed.
func (s *Session[B]) pull(feeds []FeedEntry) (map[NodeID]*tensor.RawTensor, error) {
	inputs := make(map[NodeID]*tensor.RawTensor, len(feeds))
	for _, f := range feeds {
		raw, err := f.Data.NextCopy(s.backend)
		if err != nil {
			return inputs, errors.WithMessagef(err, "feeding %s", f.Node)
		}
		if raw.DType() != tensor.Float32 || !raw.Shape().Equal(f.Node.shape) {
			f.Data.DisposeCopy(raw)
			return inputs, errors.Errorf("feeding %s: provider returned %s%v", f.Node, raw.DType(), raw.Shape())
		}
		inputs[f.Node.id] = raw
	}
	return inputs, nil
}

func (s *Session[B]) dispose(feeds []FeedEntry, inputs map[NodeID]*tensor.RawTensor) {
	for _, f := range feeds {
		if raw, ok := inputs[f.Node.id]; ok {
			f.Data.DisposeCopy(raw)
			delete(inputs, f.Node.id)
		}
	}
}

// forward evaluates target with the session backend, visiting each node
// it depends on once. Kernel failures panic.
func (s *Session[B]) forward(target *Node, inputs map[NodeID]*tensor.RawTensor) *tensor.Tensor[float32, B] {
	values := make(map[NodeID]*tensor.Tensor[float32, B])
	var eval func(n *Node) *tensor.Tensor[float32, B]
	eval = func(n *Node) *tensor.Tensor[float32, B] {
		if v, ok := values[n.id]; ok {
			return v
		}
		var out *tensor.Tensor[float32, B]
		switch n.typ {
		case NodeTypePlaceholder:
			out = tensor.New[float32](inputs[n.id], s.backend)
		case NodeTypeVariable:
			out = s.vars[n.id].Tensor()
		case NodeTypeConstant:
			out = s.constants[n.id]
		case NodeTypeAdd:
			out = eval(n.inputs[0]).Add(eval(n.inputs[1]))
		case NodeTypeSubtract:
			out = eval(n.inputs[0]).Sub(eval(n.inputs[1]))
		case NodeTypeMultiply:
			out = eval(n.inputs[0]).Mul(eval(n.inputs[1]))
		case NodeTypeDivide:
			out = eval(n.inputs[0]).Div(eval(n.inputs[1]))
		case NodeTypeMatMul:
			out = matMul(eval(n.inputs[0]), eval(n.inputs[1]), n.shape)
		case NodeTypeReduceSum:
			out = eval(n.inputs[0]).Sum()
		case NodeTypeSquare:
			out = eval(n.inputs[0]).Square()
		case NodeTypeSqrt:
			out = eval(n.inputs[0]).Sqrt()
		case NodeTypeReshape:
			out = eval(n.inputs[0]).Reshape(n.shape...)
		default:
			exceptions.Panicf("cannot evaluate %s", n)
		}
		values[n.id] = out
		return out
	}
	return eval(target)
}

// matMul lifts vectors to matrices, multiplies and reshapes to the node shape.
func matMul[B tensor.Backend](x, y *tensor.Tensor[float32, B], shape tensor.Shape) *tensor.Tensor[float32, B] {
	if x.Shape().Rank() == 1 {
		x = x.Reshape(1, x.Shape()[0])
	}
	if y.Shape().Rank() == 1 {
		y = y.Reshape(y.Shape()[0], 1)
	}
	out := x.MatMul(y)
	if !out.Shape().Equal(shape) {
		out = out.Reshape(shape...)
	}
	return out
}

// placeholders lists the Placeholders target depends on.
func placeholders(target *Node) []*Node {
	var out []*Node
	seen := make(map[NodeID]bool)
	var visit func(n *Node)
	visit = func(n *Node) {
		if seen[n.id] {
			return
		}
		seen[n.id] = true
		if n.typ == NodeTypePlaceholder {
			out = append(out, n)
		}
		for _, in := range n.inputs {
			visit(in)
		}
	}
	visit(target)
	return out
}
