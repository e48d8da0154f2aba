package memory

import (
	"context"
	"time"

	"github.com/finsight-ai/finsight/internal/store"
)

// SQL adapts the persistent store's conversation tables to the memory
// Store interface, so history survives process restarts.
type SQL struct {
	store store.Store
}

// NewSQL wraps a persistent store.
func NewSQL(s store.Store) *SQL {
	return &SQL{store: s}
}

func (s *SQL) Append(ctx context.Context, rec Record) error {
	if err := validate(rec); err != nil {
		return err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	return s.store.AppendConversation(ctx, &store.Conversation{
		SessionID: rec.SessionID,
		MessageID: rec.MessageID,
		Role:      rec.Role,
		Content:   rec.Content,
		TaskType:  rec.TaskType,
		Status:    rec.Status,
		Metadata:  rec.Metadata,
		CreatedAt: rec.CreatedAt,
	})
}

func (s *SQL) Recent(ctx context.Context, sessionID string, limit int) ([]Record, error) {
	rows, err := s.store.RecentConversations(ctx, sessionID, limit)
	if err != nil {
		return nil, err
	}
	records := make([]Record, len(rows))
	for i, row := range rows {
		records[i] = Record{
			SessionID: row.SessionID,
			MessageID: row.MessageID,
			Role:      row.Role,
			Content:   row.Content,
			TaskType:  row.TaskType,
			Status:    row.Status,
			Metadata:  row.Metadata,
			CreatedAt: row.CreatedAt,
		}
	}
	return records, nil
}

func (s *SQL) Clear(ctx context.Context, sessionID string) error {
	return s.store.ClearSession(ctx, sessionID)
}
