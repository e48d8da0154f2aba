package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs the ingester on each source's cron schedule.
type Scheduler struct {
	ingester  *Ingester
	sources   []Source
	parser    cron.Parser
	logger    *slog.Logger
	tickEvery time.Duration

	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex

	nextMu  sync.Mutex
	nextRun map[string]time.Time

	inflightMu sync.Mutex
	inflight   map[string]struct{} // source names currently ingesting (dedup)
}

// NewScheduler creates a Scheduler over the given sources. Sources without
// a cron expression are ignored.
func NewScheduler(ingester *Ingester, sources []Source, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		ingester:  ingester,
		sources:   sources,
		parser:    cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		logger:    logger,
		tickEvery: 60 * time.Second,
		nextRun:   make(map[string]time.Time),
		inflight:  make(map[string]struct{}),
	}
}

// Start launches the background scheduling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("ingest scheduler already started")
	}

	now := time.Now().UTC()
	for _, src := range s.sources {
		if src.Cron == "" {
			continue
		}
		next, err := s.CalculateNextRun(src.Cron, now)
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("source %q: %w", src.Name, err)
		}
		s.nextRun[src.Name] = next
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("ingest scheduler started", slog.Int("sources", len(s.nextRun)))
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.tickEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick ingests every source whose next run is due.
func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now().UTC()
	for _, src := range s.sources {
		if src.Cron == "" {
			continue
		}
		s.nextMu.Lock()
		due := !s.nextRun[src.Name].After(now)
		s.nextMu.Unlock()
		if !due {
			continue
		}
		if !s.tryAcquire(src.Name) {
			continue // previous run still in flight
		}
		if _, err := s.ingester.Ingest(ctx, src); err != nil {
			s.logger.Error("scheduled ingestion failed",
				slog.String("source", src.Name),
				slog.String("error", err.Error()),
			)
		}
		s.release(src.Name)
		s.advance(src, now)
	}
}

func (s *Scheduler) advance(src Source, now time.Time) {
	next, err := s.CalculateNextRun(src.Cron, now)
	if err != nil {
		// Validated at Start; a parse failure here disables the source.
		s.logger.Error("cron expression became invalid",
			slog.String("source", src.Name),
			slog.String("error", err.Error()),
		)
		next = now.Add(24 * time.Hour)
	}
	s.nextMu.Lock()
	s.nextRun[src.Name] = next
	s.nextMu.Unlock()
}

// tryAcquire returns true and marks the source as in-flight if it is not
// already ingesting.
func (s *Scheduler) tryAcquire(name string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[name]; ok {
		return false
	}
	s.inflight[name] = struct{}{}
	return true
}

func (s *Scheduler) release(name string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, name)
}

// CalculateNextRun computes the next run time for a cron expression.
func (s *Scheduler) CalculateNextRun(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return schedule.Next(from), nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("ingest scheduler stopped")
	return nil
}
