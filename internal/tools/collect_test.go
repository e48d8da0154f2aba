package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight-ai/finsight/pkg/schema"
)

func TestCollectAdapter_FetchesURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "finsight/1.0", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"headline": "markets up"}`))
	}))
	defer srv.Close()

	a := &CollectAdapter{}
	out, err := a.Invoke(context.Background(), Input{Params: map[string]any{"url": srv.URL}})
	require.NoError(t, err)

	docs := out.Data["documents"].([]any)
	require.Len(t, docs, 1)
	doc := docs[0].(map[string]any)
	assert.Equal(t, srv.URL, doc["url"])
	assert.Equal(t, 200, doc["status"])
	assert.Equal(t, `{"headline": "markets up"}`, doc["content"])
	assert.Equal(t, 1, out.Data["fetched"])
}

func TestCollectAdapter_HTTPErrorIsAdapterError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := &CollectAdapter{}
	_, err := a.Invoke(context.Background(), Input{Params: map[string]any{"url": srv.URL}})
	require.Error(t, err)

	var agentErr *schema.AgentError
	require.ErrorAs(t, err, &agentErr)
	assert.Equal(t, schema.ErrCodeAdapter, agentErr.Code)
	assert.True(t, agentErr.IsRoutable())
	assert.Equal(t, 503, agentErr.Details["status"])
}

// With multiple sources, one failure is recorded per source and the batch
// still succeeds; only an all-sources failure errors out.
func TestCollectAdapter_PartialSourceFailure(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer bad.Close()

	a := &CollectAdapter{}
	out, err := a.Invoke(context.Background(), Input{Params: map[string]any{
		"sources": []string{bad.URL, good.URL},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Data["fetched"])

	docs := out.Data["documents"].([]any)
	require.Len(t, docs, 2)
	_, failed := docs[0].(map[string]any)["error"]
	assert.True(t, failed)
}

func TestCollectAdapter_AllSourcesFailed(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer bad.Close()

	a := &CollectAdapter{}
	_, err := a.Invoke(context.Background(), Input{Params: map[string]any{
		"sources": []any{bad.URL, bad.URL + "/other"},
	}})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeAdapter, schema.CodeOf(err))
}

// No parameters, no planned sources: the failure must be routable so graphs
// can degrade (e.g. fall back to indexed retrieval).
func TestCollectAdapter_NoSourcesIsRoutable(t *testing.T) {
	a := &CollectAdapter{}
	_, err := a.Invoke(context.Background(), Input{})
	require.Error(t, err)

	var agentErr *schema.AgentError
	require.ErrorAs(t, err, &agentErr)
	assert.Equal(t, schema.ErrCodeAdapter, agentErr.Code)
	assert.True(t, agentErr.IsRoutable())
}

func TestCollectAdapter_FallsBackToPlannedURLs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("headline body"))
	}))
	defer srv.Close()

	state := map[string]any{
		"plan": []any{
			map[string]any{
				"tool":       "collect",
				"parameters": map[string]any{"url": srv.URL},
			},
			map[string]any{
				"tool":       "summarize",
				"parameters": map[string]any{"query": "q"},
			},
		},
	}

	a := &CollectAdapter{}
	out, err := a.Invoke(context.Background(), Input{State: state})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Data["fetched"])
}

// Node parameters win over the planner's task URLs.
func TestCollectAdapter_ParamsOverridePlannedURLs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("configured source"))
	}))
	defer srv.Close()

	state := map[string]any{
		"plan": []any{map[string]any{
			"tool":       "collect",
			"parameters": map[string]any{"url": "http://127.0.0.1:1"},
		}},
	}

	a := &CollectAdapter{}
	out, err := a.Invoke(context.Background(), Input{
		Params: map[string]any{"sources": []any{srv.URL}},
		State:  state,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Data["fetched"])

	docs := out.Data["documents"].([]any)
	require.Len(t, docs, 1)
	assert.Equal(t, "configured source", docs[0].(map[string]any)["content"])
}

func TestCollectAdapter_HonorsContext(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := &CollectAdapter{}
	_, err := a.Invoke(ctx, Input{Params: map[string]any{"url": srv.URL}})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeAdapter, schema.CodeOf(err))
}
