package redis

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flash-sale/internal/logging"
)

func newTestQueue(t *testing.T, client *goredis.Client, minIdle time.Duration) *StreamQueue {
	t.Helper()
	q := NewStreamQueue(client, StreamOptions{
		Stream:       "stream.orders",
		Group:        "g1",
		Batch:        10,
		ClaimMinIdle: minIdle,
	}, logging.NewNop())
	require.NoError(t, q.EnsureGroup(context.Background()))
	return q
}

func TestStreamQueue_EnsureGroupIsIdempotent(t *testing.T) {
	_, client := newTestClient(t)
	q := newTestQueue(t, client, time.Minute)
	assert.NoError(t, q.EnsureGroup(context.Background()))
}

func TestStreamQueue_ReadAndAck(t *testing.T) {
	_, client := newTestClient(t)
	q := newTestQueue(t, client, time.Minute)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, intentFor(1, 1)))
	require.NoError(t, q.Enqueue(ctx, intentFor(2, 1)))

	got, err := q.Read(ctx, "c1", 10*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].Intent.UserID)
	assert.Equal(t, int64(2), got[1].Intent.UserID)
	assert.False(t, got[0].Redelivered)

	for _, d := range got {
		require.NoError(t, q.Ack(ctx, d))
	}
	count, _, err := q.PendingSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestStreamQueue_ReadTimesOutEmpty(t *testing.T) {
	_, client := newTestClient(t)
	q := newTestQueue(t, client, time.Minute)

	got, err := q.Read(context.Background(), "c1", 20*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStreamQueue_PendingRedeliversUnacked(t *testing.T) {
	_, client := newTestClient(t)
	q := newTestQueue(t, client, time.Minute)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, intentFor(1, 1)))
	first, err := q.Read(ctx, "c1", 10*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// The consumer "crashed" before acking.
	pending, err := q.Pending(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, first[0].ID, pending[0].ID)
	assert.True(t, pending[0].Redelivered)

	require.NoError(t, q.Ack(ctx, pending[0]))
	pending, err = q.Pending(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestStreamQueue_PendingClaimsAbandonedEntries(t *testing.T) {
	_, client := newTestClient(t)
	q := newTestQueue(t, client, 5*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, intentFor(1, 1)))
	got, err := q.Read(ctx, "c1", 10*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, got, 1)

	time.Sleep(20 * time.Millisecond)

	claimed, err := q.Pending(ctx, "c2")
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, got[0].ID, claimed[0].ID)

	_, consumers, err := q.PendingSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), consumers["c2"])
	assert.Zero(t, consumers["c1"])
}

func TestStreamQueue_MalformedEntryIsDropped(t *testing.T) {
	_, client := newTestClient(t)
	q := newTestQueue(t, client, time.Minute)
	ctx := context.Background()

	require.NoError(t, client.XAdd(ctx, &goredis.XAddArgs{
		Stream: "stream.orders",
		Values: map[string]interface{}{"userId": "abc"},
	}).Err())

	got, err := q.Read(ctx, "c1", 10*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, got)

	count, _, err := q.PendingSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}
