// Package ingest pulls content from configured news sources into the
// persistent topic store and the similarity index, on demand or on a cron
// schedule.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/finsight-ai/finsight/internal/store"
	"github.com/finsight-ai/finsight/internal/tools"
	"github.com/finsight-ai/finsight/internal/vector"
)

// Source is one configured news source.
type Source struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	// Program optionally post-processes JSON feeds (jq syntax).
	Program string `json:"program,omitempty"`
	// Cron schedules periodic ingestion (standard 5-field expression).
	Cron string `json:"cron,omitempty"`
}

// Ingester fetches, parses, stores and indexes topics from a source.
type Ingester struct {
	collect *tools.CollectAdapter
	parse   *tools.ParseAdapter
	store   store.Store
	index   *vector.Index
	logger  *slog.Logger
}

// NewIngester wires the ingestion pipeline. index may be nil to skip
// similarity indexing.
func NewIngester(collect *tools.CollectAdapter, parse *tools.ParseAdapter, st store.Store, index *vector.Index, logger *slog.Logger) *Ingester {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingester{collect: collect, parse: parse, store: st, index: index, logger: logger}
}

// Ingest runs one fetch-parse-store pass for the source and returns the
// number of topics written.
func (ig *Ingester) Ingest(ctx context.Context, src Source) (int, error) {
	collected, err := ig.collect.Invoke(ctx, tools.Input{
		Params: map[string]any{"url": src.URL},
	})
	if err != nil {
		return 0, err
	}

	parsed, err := ig.parse.Invoke(ctx, tools.Input{
		Params: map[string]any{"program": src.Program},
		State: map[string]any{
			"last": map[string]any{"output": collected.Data},
		},
	})
	if err != nil {
		return 0, err
	}

	docs, _ := parsed.Data["documents"].([]any)
	now := time.Now().UTC()
	written := 0
	for _, d := range docs {
		m, ok := d.(map[string]any)
		if !ok {
			continue
		}
		topic := topicFromDocument(src, m, now)
		if topic.Content == "" {
			continue
		}
		if err := ig.store.UpsertTopic(ctx, topic); err != nil {
			return written, err
		}
		written++

		if ig.index != nil {
			doc := vector.Document{
				ID:      topic.ID,
				Content: topic.Content,
				Metadata: map[string]string{
					"source": topic.Source,
					"url":    topic.URL,
					"title":  topic.Title,
				},
			}
			if err := ig.index.Add(ctx, []vector.Document{doc}); err != nil {
				ig.logger.WarnContext(ctx, "topic indexing failed",
					slog.String("topic_id", topic.ID),
					slog.String("error", err.Error()))
			}
		}
	}

	ig.logger.InfoContext(ctx, "source ingested",
		slog.String("source", src.Name),
		slog.Int("topics", written))
	return written, nil
}

func topicFromDocument(src Source, doc map[string]any, now time.Time) *store.Topic {
	title, _ := doc["title"].(string)
	url, _ := doc["url"].(string)
	if url == "" {
		url = src.URL
	}

	content := ""
	switch c := doc["content"].(type) {
	case string:
		content = c
	case map[string]any:
		if text, _ := c["text"].(string); text != "" {
			content = text
		} else {
			content = fmt.Sprintf("%v", c)
		}
	default:
		if c != nil {
			content = fmt.Sprintf("%v", c)
		}
	}

	return &store.Topic{
		ID:         topicID(src.Name, url, title, content),
		Source:     src.Name,
		URL:        url,
		Title:      title,
		Content:    content,
		IngestedAt: now,
	}
}

// topicID is deterministic so re-ingesting the same item updates in place.
func topicID(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:32]
}
