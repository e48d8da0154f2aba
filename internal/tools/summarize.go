package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/finsight-ai/finsight/internal/model"
	"github.com/finsight-ai/finsight/pkg/schema"
)

const summarizeSystemPrompt = `You are a financial analyst. Summarize the
provided material and answer the user's question concisely. Cite figures
from the material when they exist. If the material is empty, answer from
general financial knowledge and say so.`

// maxContextChars bounds the document context passed to the model.
const maxContextChars = 16000

// SummarizeAdapter condenses parsed or retrieved documents into an answer
// for the user's query.
type SummarizeAdapter struct {
	Provider model.Provider
}

func (a *SummarizeAdapter) Name() string { return "summarize" }

func (a *SummarizeAdapter) Invoke(ctx context.Context, in Input) (Output, error) {
	if a.Provider == nil {
		return Output{}, schema.NewError(schema.ErrCodeConfig, "summarize requires a model provider").WithNode("summarize")
	}
	query := in.Query()
	if query == "" {
		return Output{}, schema.NewError(schema.ErrCodeConfig, "summarize requires a user query").WithNode("summarize")
	}

	docs := gatherDocuments(in.State)
	prompt := buildSummaryPrompt(query, docs)

	answer, err := a.Provider.Complete(ctx, model.Request{System: summarizeSystemPrompt, Prompt: prompt})
	if err != nil {
		var agentErr *schema.AgentError
		if schema.AsAgentError(err, &agentErr) {
			return Output{}, agentErr.WithNode("summarize")
		}
		return Output{}, schema.NewErrorf(schema.ErrCodeAdapter, "summarize: %s", err.Error()).
			WithNode("summarize").WithCause(err)
	}

	return Output{Data: map[string]any{
		"summary":      strings.TrimSpace(answer),
		"source_count": len(docs),
	}}, nil
}

// gatherDocuments collects "documents" entries from every prior tool output
// so summarize sees both parsed and retrieved material.
func gatherDocuments(state map[string]any) []any {
	outputs, _ := state["outputs"].([]any)
	var docs []any
	for _, o := range outputs {
		m, ok := o.(map[string]any)
		if !ok {
			continue
		}
		if failed, _ := m["failed"].(bool); failed {
			continue
		}
		out, ok := m["output"].(map[string]any)
		if !ok {
			continue
		}
		if d, ok := out["documents"].([]any); ok {
			docs = append(docs, d...)
		}
	}
	return docs
}

func buildSummaryPrompt(query string, docs []any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nMaterial:\n", query)
	if len(docs) == 0 {
		b.WriteString("(none)\n")
		return b.String()
	}
	for i, d := range docs {
		raw, err := json.Marshal(d)
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "[%d] %s\n", i+1, raw)
		if b.Len() > maxContextChars {
			break
		}
	}
	return b.String()
}
