package ingest

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(sources []Source) *Scheduler {
	return NewScheduler(newTestIngester(newFakeStore()), sources, slog.New(slog.DiscardHandler))
}

// --- Next-run calculation ---

func TestScheduler_CalculateNextRun(t *testing.T) {
	s := newTestScheduler(nil)
	from := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

	next, err := s.CalculateNextRun("0 * * * *", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC), next)

	next, err = s.CalculateNextRun("*/15 * * * *", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 10, 9, 45, 0, 0, time.UTC), next)

	next, err = s.CalculateNextRun("0 6 * * 1", from) // Mondays 06:00
	require.NoError(t, err)
	assert.Equal(t, time.Weekday(1), next.Weekday())
	assert.Equal(t, 6, next.Hour())
}

func TestScheduler_CalculateNextRunInvalidExpression(t *testing.T) {
	s := newTestScheduler(nil)
	_, err := s.CalculateNextRun("not a cron", time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse cron expression")
}

// --- Lifecycle ---

func TestScheduler_StartRejectsInvalidCron(t *testing.T) {
	s := newTestScheduler([]Source{
		{Name: "good", URL: "http://example.com", Cron: "0 * * * *"},
		{Name: "bad", URL: "http://example.com", Cron: "sixty * * * *"},
	})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `source "bad"`)
}

func TestScheduler_StartIgnoresSourcesWithoutCron(t *testing.T) {
	s := newTestScheduler([]Source{
		{Name: "manual", URL: "http://example.com"},
		{Name: "scheduled", URL: "http://example.com", Cron: "0 * * * *"},
	})

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	s.nextMu.Lock()
	defer s.nextMu.Unlock()
	assert.Len(t, s.nextRun, 1)
	assert.Contains(t, s.nextRun, "scheduled")
}

func TestScheduler_DoubleStartFails(t *testing.T) {
	s := newTestScheduler([]Source{{Name: "a", URL: "http://example.com", Cron: "0 * * * *"}})

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already started")
}

func TestScheduler_StopIsIdempotent(t *testing.T) {
	s := newTestScheduler([]Source{{Name: "a", URL: "http://example.com", Cron: "0 * * * *"}})

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
}

func TestScheduler_RestartAfterStop(t *testing.T) {
	s := newTestScheduler([]Source{{Name: "a", URL: "http://example.com", Cron: "0 * * * *"}})

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop())
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop())
}

// --- In-flight deduplication ---

func TestScheduler_TryAcquireDedupesPerSource(t *testing.T) {
	s := newTestScheduler(nil)

	assert.True(t, s.tryAcquire("wire"))
	assert.False(t, s.tryAcquire("wire"))
	assert.True(t, s.tryAcquire("other"))

	s.release("wire")
	assert.True(t, s.tryAcquire("wire"))
}
