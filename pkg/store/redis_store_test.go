package store

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRedisStateStore_Integration requires a running Redis.
// We skip if connection fails.
func TestRedisStateStore_Integration(t *testing.T) {
	prefix := "agentkernel-test-" + uuid.NewString()[:8] + ":"
	s := NewRedisStateStore("localhost:6379", "", 0, prefix)
	ctx := context.Background()
	if err := s.Ping(ctx); err != nil {
		t.Skip("Skipping Redis integration test: redis not available")
	}
	defer func() { _ = s.Close() }()
	defer func() {
		keys, _ := s.client.Keys(ctx, prefix+"*").Result()
		if len(keys) > 0 {
			_ = s.client.Del(ctx, keys...).Err()
		}
	}()

	require.NoError(t, s.PutState(ctx, "session_state", doc{Name: "s", Count: 3}))
	var got doc
	ok, err := s.GetState(ctx, "session_state", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, got.Count)

	ok, err = s.GetState(ctx, "missing", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	for _, ev := range sampleEvents("run-r") {
		require.NoError(t, s.AppendEvent(ctx, "run-r", ev))
	}
	events, err := s.Events(ctx, "run-r")
	require.NoError(t, err)
	assert.Len(t, events, 3)

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"session_state"}, keys)
}
