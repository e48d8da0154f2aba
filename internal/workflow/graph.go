package workflow

import (
	"context"
	"time"

	"github.com/finsight-ai/finsight/internal/expressions"
	"github.com/finsight-ai/finsight/internal/tools"
	"github.com/finsight-ai/finsight/pkg/schema"
)

// HookFunc transforms a node's input parameters (pre hook) or output data
// (post hook). Hooks receive the run's state and must not retain it.
type HookFunc func(ctx context.Context, st *State, data map[string]any) (map[string]any, error)

// Hook pairs an optional handler name with a default function. When the run
// configuration carries a custom handler under Name, it overrides Func.
type Hook struct {
	Name string
	Func HookFunc
}

// Node is a named unit of work bound to one capability. Nodes hold no
// execution state; the same Node value is shared across concurrent runs.
type Node struct {
	Name       string
	Capability tools.Adapter
	Params     map[string]any
	Pre        Hook // e.g. "plan_preprocess"
	Post       Hook // e.g. "result_formatter"
	Timeout    time.Duration
}

// Predicate guards an edge. Eval receives the state snapshot produced by
// State.Snapshot.
type Predicate interface {
	Eval(ctx context.Context, snapshot map[string]any) (bool, error)
}

// PredicateFunc adapts a plain function to the Predicate interface.
type PredicateFunc func(snapshot map[string]any) bool

func (f PredicateFunc) Eval(_ context.Context, snapshot map[string]any) (bool, error) {
	return f(snapshot), nil
}

// exprPredicate evaluates an expression string through one of the
// expression engines and coerces the result to bool.
type exprPredicate struct {
	engine expressions.Engine
	source string
}

// NewExprPredicate builds a Predicate from an expression string. The result
// of the expression must be a boolean; anything else fails the evaluation.
func NewExprPredicate(engine expressions.Engine, source string) Predicate {
	return &exprPredicate{engine: engine, source: source}
}

func (p *exprPredicate) Eval(ctx context.Context, snapshot map[string]any) (bool, error) {
	out, err := p.engine.Evaluate(ctx, p.source, snapshot)
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, schema.NewErrorf(schema.ErrCodeExecution,
			"predicate %q evaluated to non-boolean %T", p.source, out)
	}
	return b, nil
}

// Edge is a directed transition. A nil Predicate means the edge always
// matches. OnError edges are only considered after a failed node execution;
// normal edges only after a successful one.
type Edge struct {
	From    string
	To      string
	Pred    Predicate
	OnError bool
}

// EdgeOption configures an edge at AddEdge time.
type EdgeOption func(*Edge)

// WithPredicate guards the edge with a predicate.
func WithPredicate(p Predicate) EdgeOption {
	return func(e *Edge) { e.Pred = p }
}

// OnError marks the edge as the failure route out of its source node.
func OnError() EdgeOption {
	return func(e *Edge) { e.OnError = true }
}

// Graph is a named, directed workflow graph. It is a plain data structure
// with no execution behavior; after Validate succeeds it is read-only and
// safe to share across concurrent engine runs.
type Graph struct {
	name      string
	nodes     map[string]*Node
	order     []string          // node insertion order, for deterministic validation messages
	edges     map[string][]Edge // from node → outgoing edges in declaration order
	entry     string
	fallback  string
	validated bool
}

// NewGraph creates an empty graph.
func NewGraph(name string) *Graph {
	return &Graph{
		name:  name,
		nodes: make(map[string]*Node),
		edges: make(map[string][]Edge),
	}
}

// Name returns the graph name.
func (g *Graph) Name() string { return g.name }

// AddNode registers a node. Fails with GRAPH_ERROR on a duplicate name or a
// nil capability.
func (g *Graph) AddNode(n Node) error {
	if g.validated {
		return schema.NewError(schema.ErrCodeGraph, "graph is sealed after validation")
	}
	if n.Name == "" {
		return schema.NewError(schema.ErrCodeGraph, "node name is empty")
	}
	if n.Capability == nil {
		return schema.NewErrorf(schema.ErrCodeGraph, "node %q has no capability", n.Name)
	}
	if _, exists := g.nodes[n.Name]; exists {
		return schema.NewErrorf(schema.ErrCodeGraph, "duplicate node name %q", n.Name)
	}
	g.nodes[n.Name] = &n
	g.order = append(g.order, n.Name)
	if g.entry == "" {
		g.entry = n.Name
	}
	return nil
}

// AddEdge registers a directed transition. Edges are evaluated in
// declaration order (first-match policy).
func (g *Graph) AddEdge(from, to string, opts ...EdgeOption) error {
	if g.validated {
		return schema.NewError(schema.ErrCodeGraph, "graph is sealed after validation")
	}
	e := Edge{From: from, To: to}
	for _, opt := range opts {
		opt(&e)
	}
	g.edges[from] = append(g.edges[from], e)
	return nil
}

// SetEntry designates the entry node. By default the first added node is
// the entry.
func (g *Graph) SetEntry(name string) { g.entry = name }

// SetFallback designates the node the engine forces a transition to when
// the iteration budget is exhausted.
func (g *Graph) SetFallback(name string) { g.fallback = name }

// Entry returns the entry node name.
func (g *Graph) Entry() string { return g.entry }

// Fallback returns the fallback node name, or "".
func (g *Graph) Fallback() string { return g.fallback }

// Validate checks structural integrity and seals the graph. Fails with
// GRAPH_ERROR if any edge references an undefined node, the entry node is
// missing, the fallback (when set) is undefined, or no terminal node is
// reachable from the entry. A terminal node is any node with no outgoing
// edges.
func (g *Graph) Validate() error {
	if len(g.nodes) == 0 {
		return schema.NewError(schema.ErrCodeGraph, "graph has no nodes")
	}
	if _, ok := g.nodes[g.entry]; !ok {
		return schema.NewErrorf(schema.ErrCodeGraph, "entry node %q is not defined", g.entry)
	}
	if g.fallback != "" {
		if _, ok := g.nodes[g.fallback]; !ok {
			return schema.NewErrorf(schema.ErrCodeGraph, "fallback node %q is not defined", g.fallback)
		}
	}

	for from, edges := range g.edges {
		if _, ok := g.nodes[from]; !ok {
			return schema.NewErrorf(schema.ErrCodeGraph, "edge references undefined node %q", from)
		}
		for _, e := range edges {
			if _, ok := g.nodes[e.To]; !ok {
				return schema.NewErrorf(schema.ErrCodeGraph,
					"edge %s -> %s references undefined node %q", e.From, e.To, e.To)
			}
		}
	}

	// A terminal node must be reachable from the entry, otherwise every run
	// would spin until the iteration cap.
	if !g.terminalReachable() {
		return schema.NewErrorf(schema.ErrCodeGraph,
			"no terminal node reachable from entry %q", g.entry)
	}

	g.validated = true
	return nil
}

// terminalReachable walks the graph from the entry looking for a node with
// no outgoing edges.
func (g *Graph) terminalReachable() bool {
	seen := make(map[string]bool, len(g.nodes))
	stack := []string{g.entry}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		if g.isTerminal(cur) {
			return true
		}
		for _, e := range g.edges[cur] {
			stack = append(stack, e.To)
		}
	}
	// The fallback node is a forced exit even when unreachable by edges.
	if g.fallback != "" {
		return true
	}
	return false
}

// node returns a node by name; callers must hold a validated graph.
func (g *Graph) node(name string) *Node { return g.nodes[name] }

// outgoing returns the declared outgoing edges of a node filtered by error
// routing: onError=false yields normal edges, onError=true yields error
// edges, both in declaration order.
func (g *Graph) outgoing(name string, onError bool) []Edge {
	all := g.edges[name]
	out := make([]Edge, 0, len(all))
	for _, e := range all {
		if e.OnError == onError {
			out = append(out, e)
		}
	}
	return out
}

// isTerminal reports whether the node has no outgoing normal edges.
func (g *Graph) isTerminal(name string) bool {
	return len(g.outgoing(name, false)) == 0
}
