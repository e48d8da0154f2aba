package tools

import (
	"context"

	"github.com/finsight-ai/finsight/internal/vector"
	"github.com/finsight-ai/finsight/pkg/schema"
)

// RetrieveAdapter runs a similarity search over previously ingested topics.
//
// Params:
//
//	top_k (int, default 5)
type RetrieveAdapter struct {
	Index *vector.Index
}

func (a *RetrieveAdapter) Name() string { return "retrieve" }

func (a *RetrieveAdapter) Invoke(ctx context.Context, in Input) (Output, error) {
	if a.Index == nil {
		return Output{}, schema.NewError(schema.ErrCodeConfig, "retrieve requires a vector index").WithNode("retrieve")
	}
	query := in.StringParam("query", in.Query())
	if query == "" {
		return Output{}, schema.NewError(schema.ErrCodeConfig, "retrieve requires a query").WithNode("retrieve")
	}

	hits, err := a.Index.Search(ctx, query, in.IntParam("top_k", 5))
	if err != nil {
		return Output{}, schema.NewErrorf(schema.ErrCodeAdapter, "similarity search: %s", err.Error()).
			WithNode("retrieve").WithCause(err)
	}

	docs := make([]any, len(hits))
	for i, h := range hits {
		doc := map[string]any{
			"id":      h.ID,
			"content": h.Content,
			"score":   float64(h.Similarity),
		}
		for k, v := range h.Metadata {
			doc[k] = v
		}
		docs[i] = doc
	}

	return Output{Data: map[string]any{
		"documents": docs,
		"count":     len(docs),
	}}, nil
}
