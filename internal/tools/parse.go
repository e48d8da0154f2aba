package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/finsight-ai/finsight/internal/expressions"
	"github.com/finsight-ai/finsight/pkg/schema"
)

// ParseAdapter extracts structured documents from collected content.
// JSON payloads run through a configurable jq program; anything else is
// wrapped as a plain-text document.
//
// Params:
//
//	program (string, optional jq program applied to JSON content)
type ParseAdapter struct {
	JQ expressions.Engine
}

func (a *ParseAdapter) Name() string { return "parse" }

func (a *ParseAdapter) Invoke(ctx context.Context, in Input) (Output, error) {
	raw := a.collected(in)
	if len(raw) == 0 {
		return Output{}, schema.NewError(schema.ErrCodeExecution, "parse found no collected documents").WithNode("parse")
	}

	program := in.StringParam("program", "")

	docs := make([]any, 0, len(raw))
	for i, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if _, failed := m["error"]; failed {
			continue
		}
		content, _ := m["content"].(string)
		url, _ := m["url"].(string)

		parsed, err := a.parseOne(ctx, content, program)
		if err != nil {
			return Output{}, err
		}
		for j, p := range parsed {
			doc := map[string]any{
				"id":      fmt.Sprintf("doc-%d-%d", i, j),
				"url":     url,
				"content": p,
			}
			if pm, ok := p.(map[string]any); ok {
				if title, _ := pm["title"].(string); title != "" {
					doc["title"] = title
				}
			}
			docs = append(docs, doc)
		}
	}

	if len(docs) == 0 {
		return Output{}, schema.NewError(schema.ErrCodeExecution, "parse produced no documents").WithNode("parse")
	}
	return Output{Data: map[string]any{
		"documents": docs,
		"count":     len(docs),
	}}, nil
}

// collected pulls the raw document list from the previous node's output.
func (a *ParseAdapter) collected(in Input) []any {
	last, ok := in.State["last"].(map[string]any)
	if !ok {
		return nil
	}
	out, ok := last["output"].(map[string]any)
	if !ok {
		return nil
	}
	docs, _ := out["documents"].([]any)
	return docs
}

func (a *ParseAdapter) parseOne(ctx context.Context, content, program string) ([]any, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, nil
	}

	// Non-JSON content becomes a single text document.
	if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
		return []any{map[string]any{"text": trimmed}}, nil
	}

	var payload any
	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
		return []any{map[string]any{"text": trimmed}}, nil
	}

	if program == "" || a.JQ == nil {
		if arr, ok := payload.([]any); ok {
			return arr, nil
		}
		return []any{payload}, nil
	}

	result, err := a.JQ.Evaluate(ctx, program, map[string]any{"input": payload})
	if err != nil {
		var agentErr *schema.AgentError
		if schema.AsAgentError(err, &agentErr) {
			return nil, agentErr.WithNode("parse")
		}
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "jq program failed: %s", err.Error()).
			WithNode("parse").WithCause(err)
	}
	if arr, ok := result.([]any); ok {
		return arr, nil
	}
	if result == nil {
		return nil, nil
	}
	return []any{result}, nil
}
