package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight-ai/finsight/internal/model"
	"github.com/finsight-ai/finsight/pkg/schema"
)

func stateWithQuery(q string) map[string]any {
	return map[string]any{
		"request": map[string]any{"user_query": q},
	}
}

func TestPlanAdapter_ModelDrivenPlan(t *testing.T) {
	mock := model.NewMock(`[
		{"id": 1, "name": "fetch_news", "tool": "collect", "parameters": {"url": "https://example.com/feed"}},
		{"id": 2, "name": "condense", "tool": "summarize", "parameters": {}}
	]`)
	a := &PlanAdapter{Provider: mock}

	out, err := a.Invoke(context.Background(), Input{State: stateWithQuery("AAPL earnings")})
	require.NoError(t, err)

	plan := out.Data["plan"].([]any)
	require.Len(t, plan, 2)
	assert.Equal(t, 2, out.Data["task_count"])

	first := plan[0].(map[string]any)
	assert.Equal(t, "collect", first["tool"])
	assert.Equal(t, "fetch_news", first["name"])
	assert.Equal(t, 1, mock.Calls())
}

// Markdown fences around the JSON array are tolerated.
func TestPlanAdapter_FencedOutput(t *testing.T) {
	mock := model.NewMock("Here is the plan:\n```json\n[{\"id\":1,\"name\":\"t\",\"tool\":\"summarize\"}]\n```")
	a := &PlanAdapter{Provider: mock}

	out, err := a.Invoke(context.Background(), Input{State: stateWithQuery("q")})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Data["task_count"])
}

// Provider failures and malformed output degrade to the single-task default
// instead of failing the run.
func TestPlanAdapter_DegradesToDefault(t *testing.T) {
	t.Run("provider error", func(t *testing.T) {
		mock := model.NewMock("")
		mock.Err = errors.New("rate limited")
		a := &PlanAdapter{Provider: mock}

		out, err := a.Invoke(context.Background(), Input{State: stateWithQuery("q")})
		require.NoError(t, err)
		assert.Equal(t, 1, out.Data["task_count"])
		task := out.Data["plan"].([]any)[0].(map[string]any)
		assert.Equal(t, "general_query", task["name"])
	})

	t.Run("malformed output", func(t *testing.T) {
		a := &PlanAdapter{Provider: model.NewMock("I cannot produce JSON today.")}

		out, err := a.Invoke(context.Background(), Input{State: stateWithQuery("q")})
		require.NoError(t, err)
		assert.Equal(t, 1, out.Data["task_count"])
	})

	t.Run("no provider", func(t *testing.T) {
		a := &PlanAdapter{}

		out, err := a.Invoke(context.Background(), Input{State: stateWithQuery("q")})
		require.NoError(t, err)
		assert.Equal(t, 1, out.Data["task_count"])
	})
}

func TestPlanAdapter_IncludesReviewFeedback(t *testing.T) {
	mock := model.NewMock(`[{"id":1,"name":"retry","tool":"collect"}]`)
	mock.Responses["missing revenue figures"] = `[{"id":1,"name":"targeted","tool":"retrieve"}]`
	a := &PlanAdapter{Provider: mock}

	state := stateWithQuery("q")
	state["last"] = map[string]any{
		"output": map[string]any{"feedback": "missing revenue figures"},
	}

	out, err := a.Invoke(context.Background(), Input{State: state})
	require.NoError(t, err)
	task := out.Data["plan"].([]any)[0].(map[string]any)
	assert.Equal(t, "targeted", task["name"])
}

func TestPlanAdapter_RequiresQuery(t *testing.T) {
	a := &PlanAdapter{Provider: model.NewMock("[]")}

	_, err := a.Invoke(context.Background(), Input{})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeConfig, schema.CodeOf(err))
}
