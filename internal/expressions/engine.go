package expressions

import "context"

// Engine evaluates expressions against a workflow state snapshot.
// Three implementations: Expr (edge predicates, default), CEL (edge
// predicates in graph definitions), GoJQ (payload extraction in the parse
// adapter).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
