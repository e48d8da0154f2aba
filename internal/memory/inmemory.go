package memory

import (
	"context"
	"sync"
	"time"
)

// InMemory is the process-local Store used for tests and for deployments
// without Redis or SQL configured.
type InMemory struct {
	mu       sync.RWMutex
	sessions map[string][]Record
	seen     map[string]struct{}
}

// NewInMemory creates an empty in-process store.
func NewInMemory() *InMemory {
	return &InMemory{
		sessions: make(map[string][]Record),
		seen:     make(map[string]struct{}),
	}
}

func recordKey(sessionID, messageID string) string {
	return sessionID + "\x00" + messageID
}

func (s *InMemory) Append(ctx context.Context, rec Record) error {
	if err := validate(rec); err != nil {
		return err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey(rec.SessionID, rec.MessageID)
	if _, dup := s.seen[key]; dup {
		return conflict(rec)
	}
	s.seen[key] = struct{}{}
	s.sessions[rec.SessionID] = append(s.sessions[rec.SessionID], rec)
	return nil
}

func (s *InMemory) Recent(ctx context.Context, sessionID string, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.sessions[sessionID]
	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	out := make([]Record, len(records))
	copy(out, records)
	return out, nil
}

func (s *InMemory) Clear(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.sessions[sessionID] {
		delete(s.seen, recordKey(sessionID, rec.MessageID))
	}
	delete(s.sessions, sessionID)
	return nil
}
