package worker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flash-sale/internal/domain"
	rediskv "flash-sale/internal/infra/redis"
	"flash-sale/internal/logging"
)

func TestRegistry_ConsumerNamesAreExclusive(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	locker := rediskv.NewRedisLocker(rdb, logging.NewNop(), rediskv.WithWatchdog(time.Second))
	ctx := context.Background()

	first := NewRegistry(locker, 30*time.Second, logging.NewNop())
	require.NoError(t, first.Register(ctx, "stream.orders", []string{"c1-1", "c1-2"}))
	assert.True(t, mr.Exists("lock:consumer:stream.orders:c1-2"))

	// c2 is free but c1-2 is not, so nothing is claimed.
	second := NewRegistry(locker, 30*time.Second, logging.NewNop())
	err := second.Register(ctx, "stream.orders", []string{"c2", "c1-2"})
	assert.ErrorIs(t, err, domain.ErrLockNotAcquired)
	assert.False(t, mr.Exists("lock:consumer:stream.orders:c2"))

	// Another stream has its own names.
	require.NoError(t, second.Register(ctx, "stream.other", []string{"c1-1"}))
	require.NoError(t, second.Deregister(ctx))

	require.NoError(t, first.Deregister(ctx))
	require.NoError(t, second.Register(ctx, "stream.orders", []string{"c1-2"}))
	require.NoError(t, second.Deregister(ctx))
}
