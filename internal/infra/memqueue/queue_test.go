package memqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flash-sale/internal/domain"
)

func TestQueue_FIFO(t *testing.T) {
	q := New(4)
	ctx := context.Background()
	for i := int64(1); i <= 3; i++ {
		require.NoError(t, q.Enqueue(ctx, &domain.OrderIntent{OrderID: i, UserID: i, VoucherID: 1}))
	}
	assert.Equal(t, 3, q.Len())

	for i := int64(1); i <= 3; i++ {
		got, err := q.Read(ctx, "c1", 10*time.Millisecond)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, i, got[0].Intent.OrderID)
		assert.NoError(t, q.Ack(ctx, got[0]))
	}
}

func TestQueue_Full(t *testing.T) {
	q := New(1)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, &domain.OrderIntent{OrderID: 1}))
	assert.ErrorIs(t, q.Enqueue(ctx, &domain.OrderIntent{OrderID: 2}), domain.ErrQueueFull)
}

func TestQueue_ReadTimeout(t *testing.T) {
	q := New(1)
	got, err := q.Read(context.Background(), "c1", 5*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, got)

	pending, err := q.Pending(context.Background(), "c1")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestQueue_Closed(t *testing.T) {
	q := New(1)
	q.Close()
	q.Close()

	assert.ErrorIs(t, q.Enqueue(context.Background(), &domain.OrderIntent{OrderID: 1}), domain.ErrQueueClosed)
	_, err := q.Read(context.Background(), "c1", time.Second)
	assert.ErrorIs(t, err, domain.ErrQueueClosed)
}

func TestQueue_UnackedEntriesStayPending(t *testing.T) {
	q := New(4)
	ctx := context.Background()
	for i := int64(1); i <= 3; i++ {
		require.NoError(t, q.Enqueue(ctx, &domain.OrderIntent{OrderID: i}))
	}
	for _, consumer := range []string{"c1", "c2", "c1"} {
		got, err := q.Read(ctx, consumer, 10*time.Millisecond)
		require.NoError(t, err)
		require.Len(t, got, 1)
	}
	assert.Equal(t, 3, q.Len())

	pending, err := q.Pending(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, int64(1), pending[0].Intent.OrderID)
	assert.Equal(t, int64(3), pending[1].Intent.OrderID)
	assert.True(t, pending[0].Redelivered)

	require.NoError(t, q.Ack(ctx, pending[0]))
	pending, err = q.Pending(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, int64(3), pending[0].Intent.OrderID)
	assert.Equal(t, 2, q.Len())
}
