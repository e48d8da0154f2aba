package workflow

import (
	"sort"
	"sync"
	"time"

	"github.com/finsight-ai/finsight/internal/expressions"
	"github.com/finsight-ai/finsight/internal/tools"
	"github.com/finsight-ai/finsight/pkg/schema"
)

// Defaults is the per-template default configuration merged under any
// caller-supplied overrides by the agent facade.
type Defaults struct {
	MaxIterations int
	EnableMemory  bool
	NodeTimeout   time.Duration
	MemoryWindow  int
}

// BuildEnv carries the shared dependencies templates need to wire a graph.
type BuildEnv struct {
	Tools *tools.Registry
	Expr  expressions.Engine
	CEL   expressions.Engine
	// Sources lists the configured news source URLs, handed to collect
	// nodes as their "sources" parameter.
	Sources []string
}

// sourceParams builds the collect node parameters from the configured
// sources. Empty when none are configured; collect then falls back to the
// planner's task URLs.
func sourceParams(env BuildEnv) map[string]any {
	if len(env.Sources) == 0 {
		return nil
	}
	urls := make([]any, len(env.Sources))
	for i, u := range env.Sources {
		urls[i] = u
	}
	return map[string]any{"sources": urls}
}

// Template is a named, immutable factory producing a fresh graph with
// default configuration. Templates are constructed once at startup and
// never mutated.
type Template struct {
	Name        string
	Description string
	Defaults    Defaults
	Build       func(env BuildEnv) (*Graph, error)
}

// TemplateRegistry is an explicit, injectable template registry. There is
// no process-wide registry; callers construct one at startup and hand it to
// the agent facade.
type TemplateRegistry struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewTemplateRegistry creates a registry pre-populated with the built-in
// templates.
func NewTemplateRegistry() *TemplateRegistry {
	r := &TemplateRegistry{templates: make(map[string]Template)}
	for _, t := range builtinTemplates() {
		// Built-in names are unique by construction.
		_ = r.Register(t)
	}
	return r
}

// Register adds a template. Fails with CONFLICT on a duplicate name.
func (r *TemplateRegistry) Register(t Template) error {
	if t.Name == "" {
		return schema.NewError(schema.ErrCodeConfig, "template name is empty")
	}
	if t.Build == nil {
		return schema.NewErrorf(schema.ErrCodeConfig, "template %q has no builder", t.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.templates[t.Name]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "template %q already registered", t.Name)
	}
	r.templates[t.Name] = t
	return nil
}

// Get retrieves a template by name.
func (r *TemplateRegistry) Get(name string) (Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.templates[name]
	if !ok {
		return Template{}, schema.NewErrorf(schema.ErrCodeNotFound, "template %q not registered", name)
	}
	return t, nil
}

// Names returns the registered template names, sorted.
func (r *TemplateRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// builtinTemplates returns the preset topologies. Capability names refer to
// adapters registered in the tools registry at startup.
func builtinTemplates() []Template {
	return []Template{
		{
			Name:        "basic",
			Description: "Linear plan, collect, parse, summarize pipeline.",
			Defaults:    Defaults{MaxIterations: 3, MemoryWindow: 10},
			Build:       buildBasic,
		},
		{
			Name:        "iterative_improvement",
			Description: "Plan-act-review loop that replans while the review rejects the summary.",
			Defaults:    Defaults{MaxIterations: 3, EnableMemory: true, MemoryWindow: 10},
			Build:       buildIterativeImprovement,
		},
		{
			Name:        "deep_analysis",
			Description: "Retrieval-augmented analysis with review loop and collection fallback.",
			Defaults:    Defaults{MaxIterations: 5, EnableMemory: true, MemoryWindow: 20},
			Build:       buildDeepAnalysis,
		},
	}
}

func buildBasic(env BuildEnv) (*Graph, error) {
	g := NewGraph("basic")
	if err := addCapabilityNodes(g, env, map[string]Node{
		"plan":      {Pre: Hook{Name: "plan_preprocess"}},
		"collect":   {Params: sourceParams(env)},
		"parse":     {},
		"summarize": {Post: Hook{Name: "result_formatter"}},
	}); err != nil {
		return nil, err
	}
	g.SetEntry("plan")

	for _, e := range [][2]string{{"plan", "collect"}, {"collect", "parse"}, {"parse", "summarize"}} {
		if err := g.AddEdge(e[0], e[1]); err != nil {
			return nil, err
		}
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

func buildIterativeImprovement(env BuildEnv) (*Graph, error) {
	g := NewGraph("iterative_improvement")
	if err := addCapabilityNodes(g, env, map[string]Node{
		"plan":      {Pre: Hook{Name: "plan_preprocess"}},
		"collect":   {Params: sourceParams(env)},
		"parse":     {},
		"summarize": {},
		"review":    {},
		"respond":   {Post: Hook{Name: "result_formatter"}},
	}); err != nil {
		return nil, err
	}
	g.SetEntry("plan")
	g.SetFallback("respond")

	for _, e := range [][2]string{{"plan", "collect"}, {"collect", "parse"}, {"parse", "summarize"}, {"summarize", "review"}} {
		if err := g.AddEdge(e[0], e[1]); err != nil {
			return nil, err
		}
	}
	// Replan while the review rejects the summary; first-match order puts the
	// retry edge ahead of the acceptance edge.
	if err := g.AddEdge("review", "plan",
		WithPredicate(NewExprPredicate(env.Expr, `last.output.quality == false`))); err != nil {
		return nil, err
	}
	if err := g.AddEdge("review", "respond"); err != nil {
		return nil, err
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

func buildDeepAnalysis(env BuildEnv) (*Graph, error) {
	g := NewGraph("deep_analysis")
	if err := addCapabilityNodes(g, env, map[string]Node{
		"plan":      {Pre: Hook{Name: "plan_preprocess"}},
		"collect":   {Params: sourceParams(env)},
		"parse":     {},
		"retrieve":  {},
		"summarize": {},
		"review":    {},
		"respond":   {Post: Hook{Name: "result_formatter"}},
	}); err != nil {
		return nil, err
	}
	g.SetEntry("plan")
	g.SetFallback("respond")

	for _, e := range [][2]string{{"plan", "collect"}, {"collect", "parse"}, {"parse", "retrieve"}, {"retrieve", "summarize"}, {"summarize", "review"}} {
		if err := g.AddEdge(e[0], e[1]); err != nil {
			return nil, err
		}
	}
	// Live collection failure degrades to the indexed corpus.
	if err := g.AddEdge("collect", "retrieve", OnError()); err != nil {
		return nil, err
	}
	if err := g.AddEdge("review", "plan",
		WithPredicate(NewExprPredicate(env.Expr, `last.output.quality == false`))); err != nil {
		return nil, err
	}
	if err := g.AddEdge("review", "respond"); err != nil {
		return nil, err
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// addCapabilityNodes resolves each node's capability from the tools
// registry, using the node key as the capability name.
func addCapabilityNodes(g *Graph, env BuildEnv, nodes map[string]Node) error {
	// Deterministic insertion order keeps the entry default stable.
	names := make([]string, 0, len(nodes))
	for name := range nodes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		n := nodes[name]
		cap, err := env.Tools.Get(name)
		if err != nil {
			return err
		}
		n.Name = name
		n.Capability = cap
		if err := g.AddNode(n); err != nil {
			return err
		}
	}
	return nil
}
