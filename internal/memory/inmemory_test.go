package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight-ai/finsight/pkg/schema"
)

func rec(session, message, role, content string) Record {
	return Record{SessionID: session, MessageID: message, Role: role, Content: content}
}

func TestInMemory_AppendAndRecent(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, rec("s1", "m1", RoleUser, "first")))
	require.NoError(t, s.Append(ctx, rec("s1", "m2", RoleAssistant, "second")))
	require.NoError(t, s.Append(ctx, rec("s2", "m1", RoleUser, "other session")))

	records, err := s.Recent(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "first", records[0].Content)
	assert.Equal(t, "second", records[1].Content)
	assert.False(t, records[0].CreatedAt.IsZero())
}

func TestInMemory_RecentWindow(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(ctx, rec("s1", fmt.Sprintf("m%d", i), RoleUser, fmt.Sprintf("msg %d", i))))
	}

	records, err := s.Recent(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "msg 3", records[0].Content)
	assert.Equal(t, "msg 4", records[1].Content)
}

// A duplicate (session_id, message_id) pair fails with CONFLICT and leaves
// the stored history untouched.
func TestInMemory_DuplicateAppendConflicts(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, rec("s1", "m1", RoleUser, "original")))

	err := s.Append(ctx, rec("s1", "m1", RoleUser, "imposter"))
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeConflict, schema.CodeOf(err))

	records, err := s.Recent(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "original", records[0].Content)
}

// The same message id in a different session is not a conflict.
func TestInMemory_MessageIDScopedToSession(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, rec("s1", "m1", RoleUser, "a")))
	require.NoError(t, s.Append(ctx, rec("s2", "m1", RoleUser, "b")))
}

func TestInMemory_Clear(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, rec("s1", "m1", RoleUser, "x")))
	require.NoError(t, s.Clear(ctx, "s1"))

	records, err := s.Recent(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Empty(t, records)

	// Cleared ids are reusable.
	require.NoError(t, s.Append(ctx, rec("s1", "m1", RoleUser, "again")))
}

func TestInMemory_Validation(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	cases := []Record{
		{MessageID: "m1", Role: RoleUser},
		{SessionID: "s1", Role: RoleUser},
		{SessionID: "s1", MessageID: "m1", Role: "narrator"},
	}
	for _, c := range cases {
		err := s.Append(ctx, c)
		require.Error(t, err)
		assert.Equal(t, schema.ErrCodeConfig, schema.CodeOf(err))
	}
}

func TestInMemory_ConcurrentSessions(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			session := fmt.Sprintf("s%d", i)
			for j := 0; j < 20; j++ {
				_ = s.Append(ctx, Record{
					SessionID: session,
					MessageID: fmt.Sprintf("m%d", j),
					Role:      RoleUser,
					Content:   fmt.Sprintf("msg %d", j),
					CreatedAt: time.Now().UTC(),
				})
			}
		}()
	}
	wg.Wait()

	for i := 0; i < 10; i++ {
		records, err := s.Recent(ctx, fmt.Sprintf("s%d", i), 0)
		require.NoError(t, err)
		require.Len(t, records, 20)
		for j, r := range records {
			assert.Equal(t, fmt.Sprintf("m%d", j), r.MessageID)
		}
	}
}
