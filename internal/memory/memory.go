// Package memory persists conversation records per session. Records are
// append-only: a (session_id, message_id) pair is written at most once and
// a duplicate append fails with CONFLICT, leaving the stored history
// untouched.
package memory

import (
	"context"
	"time"

	"github.com/finsight-ai/finsight/pkg/schema"
)

// Role values for conversation records.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Record is one conversation entry.
type Record struct {
	SessionID string         `json:"session_id"`
	MessageID string         `json:"message_id"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	TaskType  string         `json:"task_type,omitempty"`
	Status    string         `json:"status,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Store is the conversation memory contract. Implementations must preserve
// per-session append order in Recent and reject duplicate
// (session_id, message_id) pairs with a CONFLICT error.
type Store interface {
	// Append stores one record. CreatedAt is set by the store when zero.
	Append(ctx context.Context, rec Record) error
	// Recent returns up to limit most recent records for the session, oldest
	// first. limit <= 0 means all records.
	Recent(ctx context.Context, sessionID string, limit int) ([]Record, error)
	// Clear removes all records for the session.
	Clear(ctx context.Context, sessionID string) error
}

func validate(rec Record) error {
	if rec.SessionID == "" {
		return schema.NewError(schema.ErrCodeConfig, "memory record requires session_id")
	}
	if rec.MessageID == "" {
		return schema.NewError(schema.ErrCodeConfig, "memory record requires message_id")
	}
	if rec.Role != RoleUser && rec.Role != RoleAssistant {
		return schema.NewErrorf(schema.ErrCodeConfig, "unknown memory role %q", rec.Role)
	}
	return nil
}

func conflict(rec Record) error {
	return schema.NewErrorf(schema.ErrCodeConflict, "record %s already exists in session %s", rec.MessageID, rec.SessionID).
		WithDetails(map[string]any{"session_id": rec.SessionID, "message_id": rec.MessageID})
}
