package tools

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/finsight-ai/finsight/pkg/schema"
)

const (
	defaultCollectTimeout = 30 * time.Second
	maxCollectBody        = 4 << 20 // 4 MiB
)

// CollectAdapter fetches raw content from news sources over HTTP.
//
// Params:
//
//	url     (string)
//	sources ([]string; fetched in order, failures recorded per source)
//
// When neither parameter is set, URLs are taken from the planner's collect
// tasks in state. Having no source at all is an ADAPTER_ERROR so graphs can
// route it through an error edge (e.g. degrade to indexed retrieval).
type CollectAdapter struct {
	Client *http.Client
}

func (a *CollectAdapter) Name() string { return "collect" }

func (a *CollectAdapter) client() *http.Client {
	if a.Client != nil {
		return a.Client
	}
	return &http.Client{Timeout: defaultCollectTimeout}
}

func (a *CollectAdapter) Invoke(ctx context.Context, in Input) (Output, error) {
	urls := a.sourceURLs(in)
	if len(urls) == 0 {
		return Output{}, schema.NewError(schema.ErrCodeAdapter, "no url or sources available for collection").WithNode("collect")
	}

	fetched := make([]any, 0, len(urls))
	var lastErr error
	for _, u := range urls {
		doc, err := a.fetch(ctx, u)
		if err != nil {
			lastErr = err
			fetched = append(fetched, map[string]any{"url": u, "error": err.Error()})
			continue
		}
		fetched = append(fetched, doc)
		lastErr = nil
	}

	// All sources failed: surface the last error so error edges can route.
	if lastErr != nil && len(urls) == countFailed(fetched) {
		return Output{}, lastErr
	}

	return Output{Data: map[string]any{
		"documents": fetched,
		"fetched":   len(fetched) - countFailed(fetched),
	}}, nil
}

func (a *CollectAdapter) sourceURLs(in Input) []string {
	if u := in.StringParam("url", ""); u != "" {
		return []string{u}
	}
	if urls := urlList(in.Params["sources"]); len(urls) > 0 {
		return urls
	}
	return plannedURLs(in.State)
}

// plannedURLs extracts URLs from the planner's collect tasks, so a plan that
// names concrete sources drives collection without node parameters.
func plannedURLs(state map[string]any) []string {
	tasks, _ := state["plan"].([]any)
	var urls []string
	for _, t := range tasks {
		task, ok := t.(map[string]any)
		if !ok {
			continue
		}
		if tool, _ := task["tool"].(string); tool != "collect" {
			continue
		}
		params, _ := task["parameters"].(map[string]any)
		if u, _ := params["url"].(string); u != "" {
			urls = append(urls, u)
		}
		urls = append(urls, urlList(params["sources"])...)
	}
	return urls
}

func urlList(raw any) []string {
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		urls := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok && s != "" {
				urls = append(urls, s)
			}
		}
		return urls
	}
	return nil
}

func (a *CollectAdapter) fetch(ctx context.Context, url string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeAdapter, "build request for %s: %s", url, err.Error()).
			WithNode("collect").WithCause(err)
	}
	req.Header.Set("User-Agent", "finsight/1.0")

	resp, err := a.client().Do(req)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeAdapter, "fetch %s: %s", url, err.Error()).
			WithNode("collect").WithCause(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCollectBody))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeAdapter, "read %s: %s", url, err.Error()).
			WithNode("collect").WithCause(err)
	}

	if resp.StatusCode >= 400 {
		return nil, schema.NewErrorf(schema.ErrCodeAdapter, "fetch %s: status %d", url, resp.StatusCode).
			WithNode("collect").
			WithDetails(map[string]any{"status": resp.StatusCode, "url": url})
	}

	return map[string]any{
		"url":          url,
		"status":       resp.StatusCode,
		"content_type": resp.Header.Get("Content-Type"),
		"content":      string(body),
	}, nil
}

func countFailed(docs []any) int {
	n := 0
	for _, d := range docs {
		if m, ok := d.(map[string]any); ok {
			if _, failed := m["error"]; failed {
				n++
			}
		}
	}
	return n
}
