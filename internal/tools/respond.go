package tools

import (
	"context"

	"github.com/finsight-ai/finsight/pkg/schema"
)

// RespondAdapter shapes the final response from accumulated state. It is
// the terminal capability in templates that separate review from delivery:
// it never calls a model, so a forced fallback to it cannot fail the same
// way the nodes before it did.
type RespondAdapter struct{}

func (a *RespondAdapter) Name() string { return "respond" }

func (a *RespondAdapter) Invoke(ctx context.Context, in Input) (Output, error) {
	summary := latestSummary(in.State)
	if summary == "" {
		return Output{}, schema.NewError(schema.ErrCodeExecution, "respond found no summary in state").WithNode("respond")
	}

	data := map[string]any{
		"answer": summary,
		"query":  in.Query(),
	}

	slots, _ := in.State["slots"].(map[string]any)
	if out, ok := slots["review"].(map[string]any); ok {
		if quality, isBool := out["quality"].(bool); isBool {
			data["reviewed"] = true
			data["quality"] = quality
		}
	}
	if out, ok := slots["parse"].(map[string]any); ok {
		if n, isFloat := out["count"].(float64); isFloat {
			data["source_count"] = int(n)
		} else if n, isInt := out["count"].(int); isInt {
			data["source_count"] = n
		}
	}

	return Output{Data: data}, nil
}
