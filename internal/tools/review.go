package tools

import (
	"context"
	"strings"

	"github.com/finsight-ai/finsight/internal/model"
	"github.com/finsight-ai/finsight/pkg/schema"
)

const reviewSystemPrompt = `You are reviewing an analyst's draft answer.
Reply with exactly "OK" if the draft answers the question adequately.
Otherwise reply with "REVISE: " followed by one sentence of feedback.`

// ReviewAdapter judges the latest summary. It emits {"quality": bool} which
// iterative templates use to decide whether to loop back to planning.
type ReviewAdapter struct {
	Provider model.Provider
}

func (a *ReviewAdapter) Name() string { return "review" }

func (a *ReviewAdapter) Invoke(ctx context.Context, in Input) (Output, error) {
	if a.Provider == nil {
		return Output{}, schema.NewError(schema.ErrCodeConfig, "review requires a model provider").WithNode("review")
	}

	summary := latestSummary(in.State)
	if summary == "" {
		return Output{Data: map[string]any{
			"quality":  false,
			"feedback": "no summary to review",
		}}, nil
	}

	prompt := "Question: " + in.Query() + "\n\nDraft answer:\n" + summary
	verdict, err := a.Provider.Complete(ctx, model.Request{System: reviewSystemPrompt, Prompt: prompt})
	if err != nil {
		var agentErr *schema.AgentError
		if schema.AsAgentError(err, &agentErr) {
			return Output{}, agentErr.WithNode("review")
		}
		return Output{}, schema.NewErrorf(schema.ErrCodeAdapter, "review: %s", err.Error()).
			WithNode("review").WithCause(err)
	}

	verdict = strings.TrimSpace(verdict)
	ok := strings.HasPrefix(strings.ToUpper(verdict), "OK")
	feedback := ""
	if !ok {
		feedback = strings.TrimSpace(strings.TrimPrefix(verdict, "REVISE:"))
	}

	return Output{Data: map[string]any{
		"quality":  ok,
		"feedback": feedback,
	}}, nil
}

func latestSummary(state map[string]any) string {
	slots, _ := state["slots"].(map[string]any)
	if out, ok := slots["summarize"].(map[string]any); ok {
		if s, _ := out["summary"].(string); s != "" {
			return s
		}
	}
	last, _ := state["last"].(map[string]any)
	if out, ok := last["output"].(map[string]any); ok {
		s, _ := out["summary"].(string)
		return s
	}
	return ""
}
