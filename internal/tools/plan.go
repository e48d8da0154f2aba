package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/finsight-ai/finsight/internal/model"
	"github.com/finsight-ai/finsight/pkg/schema"
)

const planSystemPrompt = `You are a planning assistant for a financial news analysis agent.
Given a user query, produce a JSON array of tasks. Each task has the fields
"id" (integer, starting at 1), "name" (short snake_case label), "tool" (one of
"collect", "retrieve", "parse", "summarize") and "parameters" (object).
Respond with the JSON array only, no prose.`

// Task is a single planned unit of work.
type Task struct {
	ID         int            `json:"id"`
	Name       string         `json:"name"`
	Tool       string         `json:"tool"`
	Parameters map[string]any `json:"parameters"`
}

// PlanAdapter turns the user query into an ordered task list using a model
// provider. When the provider fails or returns malformed output it degrades
// to a single general-query task rather than failing the run.
type PlanAdapter struct {
	Provider model.Provider
}

func (a *PlanAdapter) Name() string { return "plan" }

func (a *PlanAdapter) Invoke(ctx context.Context, in Input) (Output, error) {
	query := in.Query()
	if query == "" {
		return Output{}, schema.NewError(schema.ErrCodeConfig, "plan requires a user query").WithNode("plan")
	}

	tasks := a.draft(ctx, in, query)
	planned := make([]any, len(tasks))
	for i, t := range tasks {
		planned[i] = map[string]any{
			"id":         t.ID,
			"name":       t.Name,
			"tool":       t.Tool,
			"parameters": t.Parameters,
		}
	}

	return Output{Data: map[string]any{
		"plan":       planned,
		"task_count": len(tasks),
	}}, nil
}

func (a *PlanAdapter) draft(ctx context.Context, in Input, query string) []Task {
	if a.Provider == nil {
		return defaultPlan(query)
	}

	prompt := fmt.Sprintf("User query: %s", query)
	if fb, ok := in.State["last"].(map[string]any); ok {
		if out, ok := fb["output"].(map[string]any); ok {
			if feedback, _ := out["feedback"].(string); feedback != "" {
				prompt += "\nReviewer feedback on the previous attempt: " + feedback
			}
		}
	}

	raw, err := a.Provider.Complete(ctx, model.Request{System: planSystemPrompt, Prompt: prompt})
	if err != nil {
		return defaultPlan(query)
	}

	var tasks []Task
	if err := json.Unmarshal([]byte(extractJSONArray(raw)), &tasks); err != nil || len(tasks) == 0 {
		return defaultPlan(query)
	}
	for i := range tasks {
		if tasks[i].ID == 0 {
			tasks[i].ID = i + 1
		}
		if tasks[i].Parameters == nil {
			tasks[i].Parameters = map[string]any{}
		}
	}
	return tasks
}

func defaultPlan(query string) []Task {
	return []Task{{
		ID:         1,
		Name:       "general_query",
		Tool:       "summarize",
		Parameters: map[string]any{"query": query},
	}}
}

// extractJSONArray tolerates models that wrap the array in markdown fences
// or leading prose.
func extractJSONArray(raw string) string {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
