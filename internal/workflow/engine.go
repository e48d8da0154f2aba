package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/finsight-ai/finsight/internal/logging"
	"github.com/finsight-ai/finsight/internal/tools"
	"github.com/finsight-ai/finsight/pkg/schema"
)

// DefaultNodeTimeout bounds a single capability invocation when the run
// configuration does not set one.
const DefaultNodeTimeout = 60 * time.Second

// RunConfig is the engine-facing slice of the agent configuration.
type RunConfig struct {
	MaxIterations int
	NodeTimeout   time.Duration
	Debug         bool
	Handlers      map[string]HookFunc // custom handler overrides by hook name
}

// Engine executes a validated Graph against a State. A single run is
// strictly sequential; concurrent runs share the graph read-only and each
// own an independent State.
type Engine struct {
	logger *slog.Logger
}

// NewEngine creates an Engine. A nil logger falls back to slog.Default.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger}
}

// Run drives the graph from its entry node until a terminal node, the
// forced fallback, or a fatal failure. On success the returned State
// carries the terminal node's (post-processed) output in Result. On failure
// no partial result is returned: the error identifies the failing node and
// kind, and any appended tool outputs are diagnostic only.
func (e *Engine) Run(ctx context.Context, g *Graph, st *State, cfg RunConfig) (*State, error) {
	if g == nil || !g.validated {
		return nil, schema.NewError(schema.ErrCodeGraph, "graph is not validated")
	}
	if cfg.MaxIterations <= 0 {
		return nil, schema.NewError(schema.ErrCodeConfig, "max_iterations must be positive")
	}
	if cfg.NodeTimeout <= 0 {
		cfg.NodeTimeout = DefaultNodeTimeout
	}

	visited := make(map[string]bool, len(g.nodes))
	current := g.entry
	forced := false

	for {
		// Cancellation is observed between nodes: no new dispatch after the
		// caller gives up, but in-flight work is never forcibly interrupted.
		if err := ctx.Err(); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeCancelled, "run cancelled before node %s", current).
				WithNode(current).WithCause(err)
		}

		node := g.node(current)
		nodeCtx := logging.WithNode(ctx, current)
		visited[current] = true

		out, invErr := e.invoke(nodeCtx, node, st, cfg)
		if invErr != nil {
			next, routed, err := e.routeError(nodeCtx, g, current, st, invErr)
			if err != nil {
				return nil, err
			}
			if !routed {
				return nil, invErr
			}
			var ok bool
			current, forced, ok = e.transition(g, st, cfg, visited, next)
			if !ok {
				return e.finish(nodeCtx, g, st, cfg, visited, forced)
			}
			continue
		}

		st.Slots[current] = out
		if plan, hasPlan := out["plan"]; hasPlan {
			st.Plan = plan
		}

		if cfg.Debug {
			e.logger.DebugContext(nodeCtx, "node completed",
				slog.Int("iteration_count", st.IterationCount),
				slog.Int("outputs", len(st.Outputs())))
		}

		if forced || g.isTerminal(current) {
			st.Result = out
			return st, nil
		}

		next, matched, err := e.selectEdge(nodeCtx, g, current, st)
		if err != nil {
			return nil, err
		}
		if !matched {
			return nil, schema.NewErrorf(schema.ErrCodeGraph, "no viable transition").WithNode(current)
		}

		var ok bool
		current, forced, ok = e.transition(g, st, cfg, visited, next)
		if !ok {
			return e.finish(nodeCtx, g, st, cfg, visited, forced)
		}
	}
}

// transition applies the iteration-budget rule to a selected next node.
// Re-entering a previously visited node consumes budget; pure forward
// progress is free. When the budget is exhausted on a revisit, the engine
// forces a final transition to the fallback node instead. A fallback that
// was already visited is unusable, like a missing one: the run finishes
// where it stands with the last successful output. The third return value
// is false in that case.
func (e *Engine) transition(g *Graph, st *State, cfg RunConfig, visited map[string]bool, next string) (string, bool, bool) {
	if !visited[next] {
		return next, false, true
	}
	if st.IterationCount >= cfg.MaxIterations {
		if g.fallback == "" || visited[g.fallback] {
			return "", false, false
		}
		return g.fallback, true, true
	}
	st.IterationCount++
	return next, false, true
}

// finish handles budget exhaustion without a usable fallback: the run
// terminates where it stands with the last successful output as result.
func (e *Engine) finish(ctx context.Context, g *Graph, st *State, cfg RunConfig, visited map[string]bool, forced bool) (*State, error) {
	if last, ok := st.LastOutput(); ok && !last.Failed {
		st.Result = last.Data
		e.logger.WarnContext(ctx, "iteration budget exhausted, terminating run",
			slog.Int("max_iterations", cfg.MaxIterations))
		return st, nil
	}
	return nil, schema.NewErrorf(schema.ErrCodeExecution,
		"iteration budget exhausted with no usable output (max_iterations=%d)", cfg.MaxIterations)
}

// invoke executes a node's capability with pre/post hooks, a per-invocation
// timeout, and failure capture. On error the failed entry has already been
// appended to the tool output log.
func (e *Engine) invoke(ctx context.Context, node *Node, st *State, cfg RunConfig) (map[string]any, error) {
	params := make(map[string]any, len(node.Params))
	for k, v := range node.Params {
		params[k] = v
	}

	if pre := resolveHook(node.Pre, cfg.Handlers); pre != nil {
		transformed, err := pre(ctx, st, params)
		if err != nil {
			return nil, e.fail(ctx, st, node.Name, schema.NewErrorf(schema.ErrCodeAdapter,
				"pre hook failed: %s", err.Error()).WithNode(node.Name).WithCause(err), 0)
		}
		params = transformed
	}

	timeout := cfg.NodeTimeout
	if node.Timeout > 0 {
		timeout = node.Timeout
	}

	start := time.Now()
	data, err := e.invokeWithTimeout(ctx, node, params, st, timeout)
	elapsed := time.Since(start)
	if err != nil {
		var agentErr *schema.AgentError
		if !errors.As(err, &agentErr) {
			agentErr = schema.NewError(schema.ErrCodeAdapter, err.Error()).WithCause(err)
		}
		agentErr.Node = node.Name
		return nil, e.fail(ctx, st, node.Name, agentErr, elapsed)
	}

	if post := resolveHook(node.Post, cfg.Handlers); post != nil {
		data, err = post(ctx, st, data)
		if err != nil {
			return nil, e.fail(ctx, st, node.Name, schema.NewErrorf(schema.ErrCodeAdapter,
				"post hook failed: %s", err.Error()).WithNode(node.Name).WithCause(err), elapsed)
		}
	}

	st.AppendOutput(ToolOutput{
		Node:     node.Name,
		Data:     data,
		Duration: elapsed,
	})
	return data, nil
}

// invokeWithTimeout runs the capability under a deadline. The adapter
// receives the deadline through its context; if it overruns anyway, the
// late result is discarded and the invocation fails with TIMEOUT_ERROR.
func (e *Engine) invokeWithTimeout(ctx context.Context, node *Node, params map[string]any, st *State, timeout time.Duration) (map[string]any, error) {
	invCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		out tools.Output
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := node.Capability.Invoke(invCtx, tools.Input{
			Params: params,
			State:  st.Snapshot(),
		})
		done <- result{out: out, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		return r.out.Data, nil
	case <-invCtx.Done():
		if errors.Is(invCtx.Err(), context.DeadlineExceeded) {
			return nil, schema.NewErrorf(schema.ErrCodeTimeout,
				"capability exceeded %s deadline", timeout).WithNode(node.Name)
		}
		return nil, schema.NewError(schema.ErrCodeCancelled, "capability cancelled").
			WithNode(node.Name).WithCause(invCtx.Err())
	}
}

// fail records a failed invocation in the tool output log and returns err.
func (e *Engine) fail(ctx context.Context, st *State, node string, err *schema.AgentError, elapsed time.Duration) error {
	st.AppendOutput(ToolOutput{
		Node:     node,
		Failed:   true,
		ErrCode:  err.Code,
		ErrMsg:   err.Message,
		Duration: elapsed,
	})
	e.logger.ErrorContext(ctx, "node failed",
		slog.String("code", err.Code),
		slog.String("error", err.Message))
	return err
}

// routeError offers a node failure to the node's declared error edges.
// Cancellations and graph faults are never routed. The bool reports whether
// an error edge accepted the failure.
func (e *Engine) routeError(ctx context.Context, g *Graph, current string, st *State, invErr error) (string, bool, error) {
	var agentErr *schema.AgentError
	if !errors.As(invErr, &agentErr) || !agentErr.IsRoutable() {
		return "", false, nil
	}

	snapshot := st.Snapshot()
	for _, edge := range g.outgoing(current, true) {
		if edge.Pred == nil {
			return edge.To, true, nil
		}
		ok, err := edge.Pred.Eval(ctx, snapshot)
		if err != nil {
			return "", false, schema.NewErrorf(schema.ErrCodeExecution,
				"error-edge predicate failed: %s", err.Error()).WithNode(current).WithCause(err)
		}
		if ok {
			return edge.To, true, nil
		}
	}
	return "", false, nil
}

// selectEdge evaluates the node's normal outgoing edges in declaration
// order and returns the first match. Predicate absence always matches.
func (e *Engine) selectEdge(ctx context.Context, g *Graph, current string, st *State) (string, bool, error) {
	snapshot := st.Snapshot()
	for _, edge := range g.outgoing(current, false) {
		if edge.Pred == nil {
			return edge.To, true, nil
		}
		ok, err := edge.Pred.Eval(ctx, snapshot)
		if err != nil {
			return "", false, schema.NewErrorf(schema.ErrCodeExecution,
				"edge predicate failed: %s", err.Error()).WithNode(current).WithCause(err)
		}
		if ok {
			return edge.To, true, nil
		}
	}
	return "", false, nil
}

// resolveHook applies the custom-handler override policy: a named hook is
// replaced by a handler of the same name from the run configuration.
func resolveHook(h Hook, handlers map[string]HookFunc) HookFunc {
	if h.Name != "" && handlers != nil {
		if override, ok := handlers[h.Name]; ok {
			return override
		}
	}
	return h.Func
}
