// Package agent is the facade over the workflow engine: it normalizes
// requests, resolves templates and configuration, threads conversation
// memory and returns a single structured result per request.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/finsight-ai/finsight/internal/logging"
	"github.com/finsight-ai/finsight/internal/memory"
	"github.com/finsight-ai/finsight/internal/workflow"
	"github.com/finsight-ai/finsight/pkg/schema"
)

// Result is the outcome of one processed request.
type Result struct {
	RunID      string                `json:"run_id"`
	SessionID  string                `json:"session_id"`
	Template   string                `json:"template"`
	Answer     map[string]any        `json:"answer"`
	Iterations int                   `json:"iterations"`
	Outputs    []workflow.ToolOutput `json:"outputs,omitempty"`
	Warnings   []string              `json:"warnings,omitempty"`
	Duration   time.Duration         `json:"duration"`
}

// Agent coordinates template resolution, engine runs and memory.
type Agent struct {
	templates *workflow.TemplateRegistry
	env       workflow.BuildEnv
	engine    *workflow.Engine
	memory    memory.Store
	logger    *slog.Logger
}

// Options configures a new Agent. Memory may be nil, which behaves like
// EnableMemory=false for every request.
type Options struct {
	Templates *workflow.TemplateRegistry
	Env       workflow.BuildEnv
	Memory    memory.Store
	Logger    *slog.Logger
}

// New creates an Agent.
func New(opts Options) (*Agent, error) {
	if opts.Templates == nil {
		return nil, schema.NewError(schema.ErrCodeConfig, "agent requires a template registry")
	}
	if opts.Env.Tools == nil {
		return nil, schema.NewError(schema.ErrCodeConfig, "agent requires a tools registry")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		templates: opts.Templates,
		env:       opts.Env,
		engine:    workflow.NewEngine(logger),
		memory:    opts.Memory,
		logger:    logger,
	}, nil
}

// ProcessRequest runs one request end to end. raw accepts a plain query
// string or a structured request; templateName selects the workflow shape
// (empty means "basic"). Memory writes are best-effort: their failures
// surface as warnings on the Result, never as a run failure.
func (a *Agent) ProcessRequest(ctx context.Context, raw any, templateName string, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	req, err := schema.NormalizeRequest(raw)
	if err != nil {
		return nil, err
	}

	if templateName == "" {
		templateName = "basic"
	}
	tpl, err := a.templates.Get(templateName)
	if err != nil {
		return nil, err
	}

	graph, err := tpl.Build(a.env)
	if err != nil {
		return nil, err
	}
	return a.run(ctx, req, graph, templateName, resolve(tpl.Defaults, cfg), cfg)
}

// ProcessGraph runs one request over a caller-supplied graph definition
// instead of a preset template. The definition is validated and compiled per
// request; configuration resolves against the built-in defaults since a
// custom graph carries none.
func (a *Agent) ProcessGraph(ctx context.Context, raw any, def *schema.GraphDefinition, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if def == nil {
		return nil, schema.NewError(schema.ErrCodeConfig, "graph definition is nil")
	}

	req, err := schema.NormalizeRequest(raw)
	if err != nil {
		return nil, err
	}

	graph, err := workflow.BuildFromDefinition(def, a.env)
	if err != nil {
		return nil, err
	}
	return a.run(ctx, req, graph, graph.Name(), resolve(workflow.Defaults{}, cfg), cfg)
}

// run is the shared execution path: correlation IDs, history injection, the
// engine run, and best-effort persistence of the exchange.
func (a *Agent) run(ctx context.Context, req *schema.Request, graph *workflow.Graph, label string, eff resolved, cfg Config) (*Result, error) {
	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)
	ctx = logging.WithSessionID(ctx, req.SessionID)

	result := &Result{
		RunID:     runID,
		SessionID: req.SessionID,
		Template:  label,
	}

	if eff.EnableMemory && a.memory != nil {
		a.injectHistory(ctx, req, eff.MemoryWindow, result)
	}

	a.logger.InfoContext(ctx, "processing request",
		slog.String("template", label),
		slog.Int("max_iterations", eff.MaxIterations))

	start := time.Now()
	st, runErr := a.engine.Run(ctx, graph, workflow.NewState(req), workflow.RunConfig{
		MaxIterations: eff.MaxIterations,
		NodeTimeout:   eff.NodeTimeout,
		Debug:         cfg.Debug,
		Handlers:      cfg.CustomHandlers,
	})
	result.Duration = time.Since(start)

	if runErr != nil {
		a.logger.ErrorContext(ctx, "request failed",
			slog.String("error", runErr.Error()),
			slog.Duration("duration", result.Duration))
		return nil, runErr
	}

	result.Answer = st.Result
	result.Iterations = st.IterationCount
	result.Outputs = st.Outputs()

	if eff.EnableMemory && a.memory != nil {
		a.persistExchange(ctx, req, runID, label, result)
	}

	a.logger.InfoContext(ctx, "request completed",
		slog.Int("iterations", result.Iterations),
		slog.Duration("duration", result.Duration))
	return result, nil
}

// injectHistory prepends recent conversation turns to the request context.
// A read failure degrades to running without history.
func (a *Agent) injectHistory(ctx context.Context, req *schema.Request, window int, result *Result) {
	records, err := a.memory.Recent(ctx, req.SessionID, window)
	if err != nil {
		a.warn(ctx, result, fmt.Sprintf("memory read failed: %s", err.Error()))
		return
	}
	if len(records) == 0 {
		return
	}

	var b strings.Builder
	b.WriteString("Previous conversation:\n")
	for _, rec := range records {
		fmt.Fprintf(&b, "%s: %s\n", rec.Role, rec.Content)
	}
	if req.Context != "" {
		b.WriteString("\n")
		b.WriteString(req.Context)
	}
	req.Context = b.String()
}

// persistExchange appends the user turn and the assistant turn. Each write
// is independent; a duplicate or store failure becomes a warning.
func (a *Agent) persistExchange(ctx context.Context, req *schema.Request, runID, templateName string, result *Result) {
	now := time.Now().UTC()

	if err := a.memory.Append(ctx, memory.Record{
		SessionID: req.SessionID,
		MessageID: runID + ":user",
		Role:      memory.RoleUser,
		Content:   req.Query,
		TaskType:  templateName,
		Status:    "completed",
		CreatedAt: now,
	}); err != nil {
		a.warn(ctx, result, fmt.Sprintf("memory write failed for user turn: %s", err.Error()))
	}

	if err := a.memory.Append(ctx, memory.Record{
		SessionID: req.SessionID,
		MessageID: runID + ":assistant",
		Role:      memory.RoleAssistant,
		Content:   renderAnswer(result.Answer),
		TaskType:  templateName,
		Status:    "completed",
		Metadata:  map[string]any{"run_id": runID, "iterations": result.Iterations},
		CreatedAt: now,
	}); err != nil {
		a.warn(ctx, result, fmt.Sprintf("memory write failed for assistant turn: %s", err.Error()))
	}
}

func (a *Agent) warn(ctx context.Context, result *Result, msg string) {
	result.Warnings = append(result.Warnings, msg)
	a.logger.WarnContext(ctx, msg)
}

// renderAnswer picks the human-readable answer out of the result map,
// falling back to its JSON encoding.
func renderAnswer(answer map[string]any) string {
	for _, key := range []string{"answer", "summary"} {
		if s, ok := answer[key].(string); ok && s != "" {
			return s
		}
	}
	raw, err := json.Marshal(answer)
	if err != nil {
		return ""
	}
	return string(raw)
}
