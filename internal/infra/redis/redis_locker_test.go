package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flash-sale/internal/domain"
	"flash-sale/internal/logging"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisLocker_TryLock(t *testing.T) {
	mr, client := newTestClient(t)
	locker := NewRedisLocker(client, logging.NewNop())
	ctx := context.Background()

	lock, err := locker.TryLock(ctx, "order:7", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "order:7", lock.Name())

	stored, err := mr.Get("lock:order:7")
	require.NoError(t, err)
	assert.Equal(t, lock.Token(), stored)
	assert.Equal(t, 10*time.Second, mr.TTL("lock:order:7"))

	_, err = locker.TryLock(ctx, "order:7", 10*time.Second)
	assert.ErrorIs(t, err, domain.ErrLockNotAcquired)

	require.NoError(t, lock.Unlock(ctx))
	assert.False(t, mr.Exists("lock:order:7"))

	again, err := locker.TryLock(ctx, "order:7", 10*time.Second)
	require.NoError(t, err)
	assert.NotEqual(t, lock.Token(), again.Token())
}

func TestRedisLocker_TokensDifferAcrossLockers(t *testing.T) {
	_, client := newTestClient(t)
	a := NewRedisLocker(client, logging.NewNop())
	b := NewRedisLocker(client, logging.NewNop())
	ctx := context.Background()

	la, err := a.TryLock(ctx, "x", time.Second)
	require.NoError(t, err)
	require.NoError(t, la.Unlock(ctx))
	lb, err := b.TryLock(ctx, "x", time.Second)
	require.NoError(t, err)

	assert.NotEqual(t, la.Token(), lb.Token())
}

func TestRedisLocker_ReleaseAfterExpiryKeepsNewHolder(t *testing.T) {
	mr, client := newTestClient(t)
	locker := NewRedisLocker(client, logging.NewNop())
	ctx := context.Background()

	first, err := locker.TryLock(ctx, "cache:shop:1", time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	second, err := locker.TryLock(ctx, "cache:shop:1", 10*time.Second)
	require.NoError(t, err)

	// The first holder wakes up late and releases: must not delete the new lock.
	require.NoError(t, first.Unlock(ctx))

	stored, err := mr.Get("lock:cache:shop:1")
	require.NoError(t, err)
	assert.Equal(t, second.Token(), stored)
}

func TestRedisLocker_RejectsNonPositiveTTL(t *testing.T) {
	_, client := newTestClient(t)
	locker := NewRedisLocker(client, logging.NewNop())

	_, err := locker.TryLock(context.Background(), "x", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestRedisLocker_WatchdogRenews(t *testing.T) {
	mr, client := newTestClient(t)
	locker := NewRedisLocker(client, logging.NewNop(), WithWatchdog(10*time.Millisecond))
	ctx := context.Background()

	lock, err := locker.TryLock(ctx, "order:1", 10*time.Second)
	require.NoError(t, err)

	mr.FastForward(8 * time.Second)
	require.Eventually(t, func() bool {
		return mr.TTL("lock:order:1") > 5*time.Second
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, lock.Unlock(ctx))
	assert.False(t, mr.Exists("lock:order:1"))
}

func TestRedisLocker_StoreDown(t *testing.T) {
	mr, client := newTestClient(t)
	locker := NewRedisLocker(client, logging.NewNop())
	mr.Close()

	_, err := locker.TryLock(context.Background(), "x", time.Second)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}
