package memory

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/finsight-ai/finsight/pkg/schema"
)

const redisKeyPrefix = "finsight:session:"

// appendScript inserts the record only when its message id is new for the
// session, keeping the dedupe check and the list push atomic.
var appendScript = redis.NewScript(`
if redis.call("SADD", KEYS[1], ARGV[1]) == 0 then
  return 0
end
redis.call("RPUSH", KEYS[2], ARGV[2])
if tonumber(ARGV[3]) > 0 then
  redis.call("EXPIRE", KEYS[1], ARGV[3])
  redis.call("EXPIRE", KEYS[2], ARGV[3])
end
return 1
`)

// Redis is a Store backed by Redis lists, one list per session.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedis wraps an existing client. ttl of zero keeps sessions forever.
func NewRedis(client redis.UniversalClient, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func (s *Redis) idsKey(sessionID string) string {
	return redisKeyPrefix + sessionID + ":ids"
}

func (s *Redis) listKey(sessionID string) string {
	return redisKeyPrefix + sessionID + ":messages"
}

func (s *Redis) Append(ctx context.Context, rec Record) error {
	if err := validate(rec); err != nil {
		return err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "encode record: %s", err.Error()).WithCause(err)
	}

	keys := []string{s.idsKey(rec.SessionID), s.listKey(rec.SessionID)}
	ttlSeconds := int64(s.ttl / time.Second)
	added, err := appendScript.Run(ctx, s.client, keys, rec.MessageID, payload, ttlSeconds).Int()
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "append record: %s", err.Error()).WithCause(err)
	}
	if added == 0 {
		return conflict(rec)
	}
	return nil
}

func (s *Redis) Recent(ctx context.Context, sessionID string, limit int) ([]Record, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	raw, err := s.client.LRange(ctx, s.listKey(sessionID), start, -1).Result()
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "read session %s: %s", sessionID, err.Error()).WithCause(err)
	}

	records := make([]Record, 0, len(raw))
	for _, item := range raw {
		var rec Record
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeStore, "decode record: %s", err.Error()).WithCause(err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *Redis) Clear(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.listKey(sessionID), s.idsKey(sessionID)).Err(); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "clear session %s: %s", sessionID, err.Error()).WithCause(err)
	}
	return nil
}
