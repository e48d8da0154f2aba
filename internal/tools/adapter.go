package tools

// Adapter is a callable workflow capability: web collection, parsing,
// vectorized retrieval, summarization. Implementations must not panic or
// leak raw downstream errors across the boundary; every failure is returned
// as a *schema.AgentError with code ADAPTER_ERROR (or TIMEOUT_ERROR).
//
// Adapters are stateless with respect to runs: the same Adapter value is
// invoked concurrently by independent workflow executions.

import (
	"context"
)

// Input is the slice of workflow state handed to an adapter at invocation
// time. Params carry node-level static configuration merged with any
// caller-supplied parameters; State is a read-only snapshot of the run's
// state slots.
type Input struct {
	Params map[string]any `json:"params,omitempty"`
	State  map[string]any `json:"state,omitempty"`
}

// Output is the result of an adapter invocation. Data entries are treated
// as immutable once captured into the run's tool output log.
type Output struct {
	Data map[string]any `json:"data,omitempty"`
}

// Adapter is the uniform capability interface consumed by the workflow
// engine.
type Adapter interface {
	Name() string
	Invoke(ctx context.Context, input Input) (Output, error)
}

// Query extracts the analyst query from the state snapshot, or "".
func (in Input) Query() string {
	req, _ := in.State["request"].(map[string]any)
	q, _ := req["user_query"].(string)
	return q
}

// StringParam returns a string parameter or the given default.
func (in Input) StringParam(key, def string) string {
	v, ok := in.Params[key]
	if !ok {
		return def
	}
	s, ok := v.(string)
	if !ok {
		return def
	}
	return s
}

// IntParam returns an integer parameter or the given default.
func (in Input) IntParam(key string, def int) int {
	v, ok := in.Params[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return def
	}
}
