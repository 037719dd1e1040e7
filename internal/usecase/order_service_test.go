package usecase

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flash-sale/internal/config"
	"flash-sale/internal/domain"
	"flash-sale/internal/infra/gormstore"
	rediskv "flash-sale/internal/infra/redis"
	"flash-sale/internal/logging"
)

type orderFixture struct {
	svc      *OrderService
	orders   domain.OrderRepository
	vouchers domain.VoucherRepository
	locker   domain.Locker
	voucher  *domain.Voucher
}

func newOrderFixture(t *testing.T, stock int) *orderFixture {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gormstore.Open(config.DatabaseConfig{
		Driver:      "sqlite",
		DSN:         "file:" + name + "?mode=memory&cache=shared",
		AutoMigrate: true,
	}, logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	locker := rediskv.NewRedisLocker(rdb, logging.NewNop())

	vouchers := gormstore.NewVoucherRepository(db)
	v := &domain.Voucher{ShopID: 1, Title: "seckill", Stock: stock}
	require.NoError(t, vouchers.Save(context.Background(), v))

	orders := gormstore.NewOrderRepository(db)
	return &orderFixture{
		svc:      NewOrderService(orders, locker, 30*time.Second, logging.NewNop()),
		orders:   orders,
		vouchers: vouchers,
		locker:   locker,
		voucher:  v,
	}
}

func (f *orderFixture) intent(orderID, userID int64) *domain.OrderIntent {
	return &domain.OrderIntent{OrderID: orderID, UserID: userID, VoucherID: f.voucher.ID, CreatedAt: testNow}
}

func (f *orderFixture) stock(t *testing.T) int {
	t.Helper()
	v, err := f.vouchers.Get(context.Background(), f.voucher.ID)
	require.NoError(t, err)
	return v.Stock
}

func TestOrderService_HandleIsIdempotent(t *testing.T) {
	f := newOrderFixture(t, 5)
	ctx := context.Background()
	intent := f.intent(100, 7)

	outcome, err := f.svc.Handle(ctx, intent)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)

	outcome, err = f.svc.Handle(ctx, intent)
	require.NoError(t, err)
	assert.Equal(t, OutcomeExists, outcome)

	n, err := f.orders.Count(ctx, 7, f.voucher.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 4, f.stock(t))

	order, err := f.svc.Get(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusUnpaid, order.Status)
}

func TestOrderService_ConcurrentRedeliveries(t *testing.T) {
	f := newOrderFixture(t, 5)
	ctx := context.Background()
	intent := f.intent(100, 7)

	var mu sync.Mutex
	outcomes := map[Outcome]int{}
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Contended attempts are retried as the processor would.
			for {
				outcome, err := f.svc.Handle(ctx, intent)
				if err == nil {
					mu.Lock()
					outcomes[outcome]++
					mu.Unlock()
					return
				}
				if !assert.ErrorIs(t, err, domain.ErrLockNotAcquired) {
					return
				}
				time.Sleep(time.Millisecond)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, outcomes[OutcomeCreated])
	assert.Equal(t, 9, outcomes[OutcomeExists])
	assert.Equal(t, 4, f.stock(t))
}

func TestOrderService_LockContentionRetriesLater(t *testing.T) {
	f := newOrderFixture(t, 5)
	ctx := context.Background()

	held, err := f.locker.TryLock(ctx, "order:7", time.Minute)
	require.NoError(t, err)

	_, err = f.svc.Handle(ctx, f.intent(100, 7))
	assert.ErrorIs(t, err, domain.ErrLockNotAcquired)

	n, err := f.orders.Count(ctx, 7, f.voucher.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, held.Unlock(ctx))
	outcome, err := f.svc.Handle(ctx, f.intent(100, 7))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)
}

func TestOrderService_OutOfStockIsTerminal(t *testing.T) {
	f := newOrderFixture(t, 1)
	ctx := context.Background()

	outcome, err := f.svc.Handle(ctx, f.intent(1, 1))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)

	outcome, err = f.svc.Handle(ctx, f.intent(2, 2))
	require.NoError(t, err)
	assert.Equal(t, OutcomeOutOfStock, outcome)

	assert.Equal(t, 0, f.stock(t))
	n, err := f.orders.Count(ctx, 2, f.voucher.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOrderService_InvalidIntent(t *testing.T) {
	f := newOrderFixture(t, 1)
	outcome, err := f.svc.Handle(context.Background(), &domain.OrderIntent{OrderID: 1})
	require.NoError(t, err)
	assert.Equal(t, OutcomeInvalid, outcome)
	assert.Equal(t, "invalid", outcome.String())
}
