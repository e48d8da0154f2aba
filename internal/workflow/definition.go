package workflow

import (
	"time"

	"github.com/finsight-ai/finsight/pkg/schema"
)

// BuildFromDefinition compiles a JSON graph definition into an executable,
// validated Graph. The definition is first checked against the embedded
// JSON Schema, then node capabilities are resolved from the tools registry
// and edge predicates compiled with the requested expression engine.
func BuildFromDefinition(def *schema.GraphDefinition, env BuildEnv) (*Graph, error) {
	v, err := schema.NewGraphValidator()
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeGraph, "graph validator unavailable").WithCause(err)
	}
	if err := v.Validate(def); err != nil {
		return nil, err
	}

	name := def.Name
	if name == "" {
		name = "custom"
	}
	g := NewGraph(name)

	for _, nd := range def.Nodes {
		capability, err := env.Tools.Get(nd.Capability)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeGraph,
				"node %q: unknown capability %q", nd.Name, nd.Capability).WithCause(err)
		}

		node := Node{
			Name:       nd.Name,
			Capability: capability,
			Params:     nd.Params,
		}
		if nd.Timeout != "" {
			d, err := time.ParseDuration(nd.Timeout)
			if err != nil {
				return nil, schema.NewErrorf(schema.ErrCodeGraph,
					"node %q: invalid timeout %q", nd.Name, nd.Timeout).WithCause(err)
			}
			node.Timeout = d
		}
		for _, hook := range nd.Hooks {
			switch hook {
			case "plan_preprocess":
				node.Pre = Hook{Name: hook}
			case "result_formatter":
				node.Post = Hook{Name: hook}
			default:
				return nil, schema.NewErrorf(schema.ErrCodeGraph,
					"node %q: unknown hook %q", nd.Name, hook)
			}
		}
		if err := g.AddNode(node); err != nil {
			return nil, err
		}
	}

	g.SetEntry(def.Entry)
	if def.Fallback != "" {
		g.SetFallback(def.Fallback)
	}

	for _, ed := range def.Edges {
		var opts []EdgeOption
		if ed.OnError {
			opts = append(opts, OnError())
		}
		if ed.Predicate != "" {
			engine := env.Expr
			if ed.Engine == "cel" {
				engine = env.CEL
			}
			if engine == nil {
				return nil, schema.NewErrorf(schema.ErrCodeGraph,
					"edge %s -> %s: expression engine %q unavailable", ed.From, ed.To, ed.Engine)
			}
			opts = append(opts, WithPredicate(NewExprPredicate(engine, ed.Predicate)))
		}
		if err := g.AddEdge(ed.From, ed.To, opts...); err != nil {
			return nil, err
		}
	}

	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}
