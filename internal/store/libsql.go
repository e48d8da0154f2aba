package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/finsight-ai/finsight/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Conversations ---

func (s *LibSQLStore) AppendConversation(ctx context.Context, rec *Conversation) error {
	metadata, err := nullableJSON(rec.Metadata)
	if err != nil {
		return fmt.Errorf("marshal conversation metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversations (session_id, message_id, role, content, task_type, status, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.MessageID, rec.Role, rec.Content,
		nullStr(rec.TaskType), nullStr(rec.Status), metadata, timeOrNow(rec.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return schema.NewErrorf(schema.ErrCodeConflict, "record %s already exists in session %s", rec.MessageID, rec.SessionID).
				WithDetails(map[string]any{"session_id": rec.SessionID, "message_id": rec.MessageID}).
				WithCause(err)
		}
		return schema.NewErrorf(schema.ErrCodeStore, "append conversation: %s", err.Error()).WithCause(err)
	}
	return nil
}

func (s *LibSQLStore) RecentConversations(ctx context.Context, sessionID string, limit int) ([]*Conversation, error) {
	query := `SELECT session_id, message_id, role, content, task_type, status, metadata, created_at
	 FROM conversations WHERE session_id = ? ORDER BY id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "list conversations: %s", err.Error()).WithCause(err)
	}
	defer rows.Close()

	var records []*Conversation
	for rows.Next() {
		rec := &Conversation{}
		var taskType, status, metadata sql.NullString
		if err := rows.Scan(&rec.SessionID, &rec.MessageID, &rec.Role, &rec.Content,
			&taskType, &status, &metadata, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.TaskType = taskType.String
		rec.Status = status.String
		if metadata.Valid && metadata.String != "" {
			_ = json.Unmarshal([]byte(metadata.String), &rec.Metadata)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query returns newest first; callers expect chronological order.
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

func (s *LibSQLStore) ClearSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE session_id = ?`, sessionID)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "clear session: %s", err.Error()).WithCause(err)
	}
	return nil
}

// --- Topics ---

func (s *LibSQLStore) UpsertTopic(ctx context.Context, topic *Topic) error {
	if topic.ID == "" || topic.Source == "" || topic.Content == "" {
		return schema.NewError(schema.ErrCodeConfig, "topic requires id, source and content")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO topics (id, source, url, title, content, published_at, ingested_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   source=excluded.source, url=excluded.url, title=excluded.title,
		   content=excluded.content, published_at=excluded.published_at,
		   ingested_at=excluded.ingested_at`,
		topic.ID, topic.Source, nullStr(topic.URL), nullStr(topic.Title),
		topic.Content, nullTime(topic.PublishedAt), timeOrNow(topic.IngestedAt),
	)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "upsert topic: %s", err.Error()).WithCause(err)
	}
	return nil
}

func (s *LibSQLStore) GetTopic(ctx context.Context, id string) (*Topic, error) {
	t := &Topic{}
	var url, title sql.NullString
	var publishedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, source, url, title, content, published_at, ingested_at FROM topics WHERE id = ?`, id,
	).Scan(&t.ID, &t.Source, &url, &title, &t.Content, &publishedAt, &t.IngestedAt)
	if err == sql.ErrNoRows {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "topic %q not found", id)
	}
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "get topic: %s", err.Error()).WithCause(err)
	}
	t.URL = url.String
	t.Title = title.String
	if publishedAt.Valid {
		t.PublishedAt = &publishedAt.Time
	}
	return t, nil
}

// SearchTopics runs a full-text query over topic titles and bodies, ranked
// by FTS5 relevance.
func (s *LibSQLStore) SearchTopics(ctx context.Context, query string, limit int) ([]*Topic, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.id, t.source, t.url, t.title, t.content, t.published_at, t.ingested_at
		 FROM topics_fts f JOIN topics t ON t.rowid = f.rowid
		 WHERE topics_fts MATCH ? ORDER BY f.rank LIMIT ?`,
		ftsQuery(query), limit,
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "search topics: %s", err.Error()).WithCause(err)
	}
	defer rows.Close()
	return scanTopics(rows)
}

func (s *LibSQLStore) ListTopics(ctx context.Context, filter TopicFilter) ([]*Topic, error) {
	var where []string
	var args []any

	if filter.Source != "" {
		where = append(where, "source = ?")
		args = append(args, filter.Source)
	}
	if filter.Since != nil {
		where = append(where, "ingested_at >= ?")
		args = append(args, *filter.Since)
	}
	if filter.Until != nil {
		where = append(where, "ingested_at < ?")
		args = append(args, *filter.Until)
	}

	query := `SELECT id, source, url, title, content, published_at, ingested_at FROM topics`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ingested_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "list topics: %s", err.Error()).WithCause(err)
	}
	defer rows.Close()
	return scanTopics(rows)
}

func scanTopics(rows *sql.Rows) ([]*Topic, error) {
	var topics []*Topic
	for rows.Next() {
		t := &Topic{}
		var url, title sql.NullString
		var publishedAt sql.NullTime
		if err := rows.Scan(&t.ID, &t.Source, &url, &title, &t.Content, &publishedAt, &t.IngestedAt); err != nil {
			return nil, err
		}
		t.URL = url.String
		t.Title = title.String
		if publishedAt.Valid {
			t.PublishedAt = &publishedAt.Time
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

// ftsQuery quotes each term so user input cannot inject FTS5 operators.
func ftsQuery(q string) string {
	terms := strings.Fields(q)
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		quoted = append(quoted, `"`+strings.ReplaceAll(t, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " ")
}

// --- Helpers ---

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableJSON(m map[string]any) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}
