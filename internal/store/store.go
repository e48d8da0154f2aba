// Package store provides durable persistence for conversations and
// ingested news topics on libSQL (embedded SQLite fork).
package store

import (
	"context"
	"time"
)

// Conversation is one persisted conversation record.
type Conversation struct {
	SessionID string
	MessageID string
	Role      string
	Content   string
	TaskType  string
	Status    string
	Metadata  map[string]any
	CreatedAt time.Time
}

// Topic is one unit of ingested news content.
type Topic struct {
	ID          string
	Source      string
	URL         string
	Title       string
	Content     string
	PublishedAt *time.Time
	IngestedAt  time.Time
}

// TopicFilter narrows ListTopics.
type TopicFilter struct {
	Source string
	Since  *time.Time
	Until  *time.Time
	Limit  int
}

// Store is the persistence contract.
type Store interface {
	// Conversations. AppendConversation returns CONFLICT when the
	// (session_id, message_id) pair already exists.
	AppendConversation(ctx context.Context, rec *Conversation) error
	RecentConversations(ctx context.Context, sessionID string, limit int) ([]*Conversation, error)
	ClearSession(ctx context.Context, sessionID string) error

	// Topics.
	UpsertTopic(ctx context.Context, topic *Topic) error
	GetTopic(ctx context.Context, id string) (*Topic, error)
	SearchTopics(ctx context.Context, query string, limit int) ([]*Topic, error)
	ListTopics(ctx context.Context, filter TopicFilter) ([]*Topic, error)

	Migrate(ctx context.Context) error
	Close() error
}
