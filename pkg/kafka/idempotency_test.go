package kafka

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ─── Memory store ────────────────────────────────────────────────────────────

func TestMemoryIdempotencyStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryIdempotencyStore(time.Minute)
	s.now = func() time.Time { return now }

	seen, err := s.Contains(ctx, "e-1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, s.Add(ctx, "e-1"))
	seen, _ = s.Contains(ctx, "e-1")
	assert.True(t, seen)

	now = now.Add(2 * time.Minute)
	seen, _ = s.Contains(ctx, "e-1")
	assert.False(t, seen, "expired entries are forgotten")
	assert.Equal(t, 0, s.Len())
}

func TestMemoryIdempotencyStore_Sweep(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryIdempotencyStore(time.Minute)
	s.now = func() time.Time { return now }

	for i := 0; i < sweepEvery-1; i++ {
		require.NoError(t, s.Add(ctx, fmt.Sprintf("old-%d", i)))
	}
	assert.Equal(t, sweepEvery-1, s.Len())

	now = now.Add(time.Hour)
	require.NoError(t, s.Add(ctx, "fresh"))
	assert.Equal(t, 1, s.Len())
}

// ─── Redis store ─────────────────────────────────────────────────────────────

func newRedisStore(t *testing.T, ttl time.Duration) (*RedisIdempotencyStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisIdempotencyStore(client, "forum-service:events", ttl), mr
}

func TestRedisIdempotencyStore(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t, time.Hour)

	seen, err := s.Contains(ctx, "e-1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, s.Add(ctx, "e-1"))
	assert.True(t, mr.Exists("forum-service:events:e-1"))
	assert.Equal(t, time.Hour, mr.TTL("forum-service:events:e-1"))

	seen, err = s.Contains(ctx, "e-1")
	require.NoError(t, err)
	assert.True(t, seen)

	mr.FastForward(61 * time.Minute)
	seen, err = s.Contains(ctx, "e-1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestRedisIdempotencyStore_Unavailable(t *testing.T) {
	s, mr := newRedisStore(t, time.Hour)
	mr.Close()

	_, err := s.Contains(context.Background(), "e-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "idempotency lookup e-1")

	err = s.Add(context.Background(), "e-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "idempotency record e-1")
}

// ─── Handler ─────────────────────────────────────────────────────────────────

type failingStore struct{ added []string }

func (s *failingStore) Contains(context.Context, string) (bool, error) {
	return false, errors.New("store down")
}

func (s *failingStore) Add(_ context.Context, id string) error {
	s.added = append(s.added, id)
	return nil
}

func TestIdempotentHandler(t *testing.T) {
	ctx := context.Background()
	const eventType = "ecommerce.forum.idempotency-test"
	store := NewMemoryIdempotencyStore(time.Hour)

	calls := 0
	h := IdempotentHandler(store, testGroup, func(context.Context, *Event) error {
		calls++
		return nil
	}, testLogger())

	evt := &Event{EventID: "e-1", EventType: eventType}
	require.NoError(t, h(ctx, evt))
	require.NoError(t, h(ctx, evt))

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(ConsumerMessagesDuplicate.WithLabelValues(eventType, testGroup)))
}

func TestIdempotentHandler_EmptyIDAlwaysHandled(t *testing.T) {
	store := NewMemoryIdempotencyStore(time.Hour)
	calls := 0
	h := IdempotentHandler(store, testGroup, func(context.Context, *Event) error {
		calls++
		return nil
	}, testLogger())

	require.NoError(t, h(context.Background(), &Event{}))
	require.NoError(t, h(context.Background(), &Event{}))
	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, store.Len())
}

func TestIdempotentHandler_FailureIsNotRecorded(t *testing.T) {
	store := NewMemoryIdempotencyStore(time.Hour)
	fail := true
	h := IdempotentHandler(store, testGroup, func(context.Context, *Event) error {
		if fail {
			return errors.New("index closed")
		}
		return nil
	}, testLogger())

	evt := &Event{EventID: "e-2", EventType: "t"}
	require.Error(t, h(context.Background(), evt))

	fail = false
	require.NoError(t, h(context.Background(), evt))
	seen, _ := store.Contains(context.Background(), "e-2")
	assert.True(t, seen)
}

func TestIdempotentHandler_StoreErrorStillProcesses(t *testing.T) {
	store := &failingStore{}
	calls := 0
	h := IdempotentHandler(store, testGroup, func(context.Context, *Event) error {
		calls++
		return nil
	}, testLogger())

	require.NoError(t, h(context.Background(), &Event{EventID: "e-3"}))
	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{"e-3"}, store.added)
}
