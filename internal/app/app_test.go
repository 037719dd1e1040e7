package app

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flash-sale/internal/config"
	"flash-sale/internal/domain"
	"flash-sale/internal/infra/gormstore"
	"flash-sale/internal/logging"
)

func testConfig(t *testing.T, redisAddr string) *config.Config {
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	return &config.Config{
		Redis: config.RedisConfig{Addr: redisAddr, OpTimeout: time.Second, DialTimeout: time.Second},
		Database: config.DatabaseConfig{
			Driver:      "sqlite",
			DSN:         "file:" + name + "?mode=memory&cache=shared",
			AutoMigrate: true,
		},
		Lock: config.LockConfig{Backend: "redis"},
		Cache: config.CacheConfig{
			TTL: time.Minute, NullTTL: time.Minute, LogicalTTL: time.Minute, LockTTL: time.Second,
			RetryInterval: 10 * time.Millisecond, MaxWait: time.Second, RebuildWorkers: 2,
			DefaultMode: "mutex",
		},
		Admission: config.AdmissionConfig{Sequence: "order"},
		Queue: config.QueueConfig{
			Backend: "redis", Stream: "stream.orders", Group: "g1",
			Block: 20 * time.Millisecond, Batch: 1, ClaimMinIdle: time.Minute, MemoryCap: 16,
		},
		Worker: config.WorkerConfig{
			Consumer: "c1", Concurrency: 1, LockTTL: time.Second, RegistryTTL: 3 * time.Second,
			MaxRetries: 1, Backoff: time.Millisecond,
		},
	}
}

func TestOpen_StoreDown(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := Open(context.Background(), testConfig(t, addr), logging.NewNop())
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestFlashSaleEndToEnd(t *testing.T) {
	for _, backend := range []string{"redis", "memory"} {
		t.Run(backend, func(t *testing.T) {
			mr := miniredis.RunT(t)
			cfg := testConfig(t, mr.Addr())
			cfg.Queue.Backend = backend
			ctx := context.Background()

			in, err := Open(ctx, cfg, logging.NewNop())
			require.NoError(t, err)
			t.Cleanup(func() { _ = in.Close() })

			seckill := in.SeckillService()
			v := &domain.Voucher{
				ShopID:      1,
				Title:       "50 off",
				PayValue:    decimal.NewFromInt(50),
				ActualValue: decimal.NewFromInt(100),
				Stock:       2,
			}
			require.NoError(t, seckill.PublishVoucher(ctx, v))

			var admitted []int64
			for user := int64(1); user <= 3; user++ {
				orderID, status, err := seckill.TryAdmit(ctx, v.ID, user)
				require.NoError(t, err)
				if status == domain.AdmissionAdmitted {
					admitted = append(admitted, orderID)
				} else {
					assert.Equal(t, domain.AdmissionOutOfStock, status)
				}
			}
			require.Len(t, admitted, 2)

			runCtx, cancel := context.WithCancel(ctx)
			done := make(chan error, 1)
			go func() { done <- in.Processor().Run(runCtx) }()
			defer func() {
				cancel()
				assert.NoError(t, <-done)
			}()

			orders := gormstore.NewOrderRepository(in.DB)
			require.Eventually(t, func() bool {
				for _, id := range admitted {
					if _, err := orders.Get(ctx, id); err != nil {
						return false
					}
				}
				return true
			}, 2*time.Second, 10*time.Millisecond)

			stored, err := gormstore.NewVoucherRepository(in.DB).Get(ctx, v.ID)
			require.NoError(t, err)
			assert.Zero(t, stored.Stock)
		})
	}
}

func TestShopService_Wiring(t *testing.T) {
	mr := miniredis.RunT(t)
	in, err := Open(context.Background(), testConfig(t, mr.Addr()), logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = in.Close() })

	shops, client, err := in.ShopService()
	require.NoError(t, err)
	defer client.Wait()

	ctx := context.Background()
	require.NoError(t, gormstore.NewShopRepository(in.DB).Save(ctx, &domain.Shop{ID: 1, Name: "tea house", TypeID: 1}))

	got, err := shops.QueryByID(ctx, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, "tea house", got.Name)
	assert.True(t, mr.Exists("cache:shop:1"))

	assert.Nil(t, in.Election("api-tasks", "node-1"))
	require.NoError(t, in.PingRedis(ctx))
	require.NoError(t, in.PingDB(ctx))
}

func TestRegistry_ClaimUsesRegistryTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, mr.Addr())
	cfg.Worker.LockTTL = time.Minute
	in, err := Open(context.Background(), cfg, logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = in.Close() })

	ctx := context.Background()
	registry := in.Registry()
	require.NoError(t, registry.Register(ctx, cfg.Queue.Stream, []string{"c1"}))

	ttl := mr.TTL("lock:consumer:stream.orders:c1")
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, cfg.Worker.RegistryTTL)

	// Without deregistering, the names free up once the claim lapses.
	mr.FastForward(cfg.Worker.RegistryTTL + time.Second)
	assert.False(t, mr.Exists("lock:consumer:stream.orders:c1"))
	require.NoError(t, registry.Deregister(ctx))
}
