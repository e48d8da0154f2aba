// Package vector provides the embedded similarity index over ingested
// topics, backed by chromem-go. Vectors live in memory with optional file
// persistence; this keeps retrieval free of external services.
package vector

import (
	"context"
	"os"
	"path/filepath"

	chromem "github.com/philippgille/chromem-go"

	"github.com/finsight-ai/finsight/pkg/schema"
)

// Document is one indexable unit of ingested content.
type Document struct {
	ID       string
	Content  string
	Metadata map[string]string
}

// Hit is a single similarity search result.
type Hit struct {
	ID         string
	Content    string
	Similarity float32
	Metadata   map[string]string
}

// Config configures the index.
type Config struct {
	// PersistPath enables gzip-compressed file persistence when set.
	PersistPath string
	// Collection names the topic collection (default "topics").
	Collection string
	// EmbeddingFunc overrides the embedder; defaults to the chromem default
	// (OpenAI, API key from the environment). Tests inject a local one.
	EmbeddingFunc chromem.EmbeddingFunc
}

// Index wraps a single chromem collection. Safe for concurrent use.
type Index struct {
	db  *chromem.DB
	col *chromem.Collection
}

// NewIndex opens (or creates) the index.
func NewIndex(cfg Config) (*Index, error) {
	var db *chromem.DB
	var err error

	if cfg.PersistPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.PersistPath), 0o755); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeStore, "create index directory: %s", err.Error()).WithCause(err)
		}
		db, err = chromem.NewPersistentDB(cfg.PersistPath, true)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeStore, "open vector db: %s", err.Error()).WithCause(err)
		}
	} else {
		db = chromem.NewDB()
	}

	name := cfg.Collection
	if name == "" {
		name = "topics"
	}
	embed := cfg.EmbeddingFunc
	if embed == nil {
		embed = chromem.NewEmbeddingFuncDefault()
	}

	col, err := db.GetOrCreateCollection(name, nil, embed)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "open collection %q: %s", name, err.Error()).WithCause(err)
	}
	return &Index{db: db, col: col}, nil
}

// Add indexes documents, replacing any existing entries with the same ID.
func (ix *Index) Add(ctx context.Context, docs []Document) error {
	for _, d := range docs {
		if d.ID == "" || d.Content == "" {
			return schema.NewError(schema.ErrCodeStore, "document requires id and content")
		}
		if err := ix.col.AddDocument(ctx, chromem.Document{
			ID:       d.ID,
			Content:  d.Content,
			Metadata: d.Metadata,
		}); err != nil {
			return schema.NewErrorf(schema.ErrCodeStore, "index document %s: %s", d.ID, err.Error()).WithCause(err)
		}
	}
	return nil
}

// Search returns up to k documents most similar to the query, best first.
func (ix *Index) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	if k <= 0 {
		k = 5
	}
	if count := ix.col.Count(); count < k {
		k = count
	}
	if k == 0 {
		return nil, nil
	}

	results, err := ix.col.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "vector query: %s", err.Error()).WithCause(err)
	}

	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{
			ID:         r.ID,
			Content:    r.Content,
			Similarity: r.Similarity,
			Metadata:   r.Metadata,
		}
	}
	return hits, nil
}

// Count returns the number of indexed documents.
func (ix *Index) Count() int { return ix.col.Count() }
