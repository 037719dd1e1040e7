package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flash-sale/internal/clock"
	"flash-sale/internal/domain"
	"flash-sale/internal/logging"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newSeckill(gate *fakeGate, queue *fakeQueue) *SeckillService {
	return NewSeckillService(gate, queue, &fakeIDs{}, newFakeVouchers(), clock.NewManual(testNow), "order", logging.NewNop())
}

func TestSeckillService_AdmittedIsEnqueued(t *testing.T) {
	gate := &fakeGate{status: domain.AdmissionAdmitted}
	queue := &fakeQueue{}
	svc := newSeckill(gate, queue)

	orderID, status, err := svc.TryAdmit(context.Background(), 10, 20)
	require.NoError(t, err)
	assert.Equal(t, domain.AdmissionAdmitted, status)
	assert.Equal(t, int64(1), orderID)

	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, domain.OrderIntent{OrderID: 1, UserID: 20, VoucherID: 10, CreatedAt: testNow}, queue.enqueued[0])
}

func TestSeckillService_RejectedIsNotEnqueued(t *testing.T) {
	for _, status := range []domain.AdmissionStatus{
		domain.AdmissionOutOfStock,
		domain.AdmissionDuplicate,
		domain.AdmissionNotStarted,
		domain.AdmissionEnded,
	} {
		t.Run(status.String(), func(t *testing.T) {
			queue := &fakeQueue{}
			svc := newSeckill(&fakeGate{status: status}, queue)

			orderID, got, err := svc.TryAdmit(context.Background(), 10, 20)
			require.NoError(t, err)
			assert.Equal(t, status, got)
			assert.Zero(t, orderID)
			assert.Empty(t, queue.enqueued)
		})
	}
}

func TestSeckillService_FusedGateSkipsEnqueue(t *testing.T) {
	gate := &fakeGate{status: domain.AdmissionAdmitted, fused: true}
	queue := &fakeQueue{}
	svc := newSeckill(gate, queue)

	orderID, status, err := svc.TryAdmit(context.Background(), 10, 20)
	require.NoError(t, err)
	assert.Equal(t, domain.AdmissionAdmitted, status)
	assert.NotZero(t, orderID)
	assert.Empty(t, queue.enqueued)
	assert.Len(t, gate.admitted, 1)
}

func TestSeckillService_EnqueueFailureRevokes(t *testing.T) {
	gate := &fakeGate{status: domain.AdmissionAdmitted}
	queue := &fakeQueue{err: domain.ErrQueueFull}
	svc := newSeckill(gate, queue)

	orderID, _, err := svc.TryAdmit(context.Background(), 10, 20)
	assert.ErrorIs(t, err, domain.ErrQueueFull)
	assert.Zero(t, orderID)
	assert.Equal(t, [][2]int64{{10, 20}}, gate.revoked)
}

func TestSeckillService_StoreUnavailable(t *testing.T) {
	gate := &fakeGate{err: fmt.Errorf("eval: %w", domain.ErrStoreUnavailable)}
	queue := &fakeQueue{}
	svc := newSeckill(gate, queue)

	_, _, err := svc.TryAdmit(context.Background(), 10, 20)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Empty(t, queue.enqueued)
}

func TestSeckillService_RejectsBadIDs(t *testing.T) {
	svc := newSeckill(&fakeGate{}, &fakeQueue{})
	_, _, err := svc.TryAdmit(context.Background(), 0, 20)
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
}

func TestSeckillService_PublishVoucher(t *testing.T) {
	gate := &fakeGate{}
	vouchers := newFakeVouchers()
	svc := NewSeckillService(gate, &fakeQueue{}, &fakeIDs{}, vouchers, clock.NewManual(testNow), "order", logging.NewNop())
	ctx := context.Background()

	v := &domain.Voucher{ShopID: 1, Title: "50 off", Stock: 100}
	require.NoError(t, svc.PublishVoucher(ctx, v))
	assert.Equal(t, int64(1), v.ID)
	assert.Equal(t, testNow, v.CreatedAt)
	require.Len(t, gate.published, 1)
	assert.Equal(t, 100, gate.published[0].Stock)

	again, err := svc.RepublishVoucher(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "50 off", again.Title)
	assert.Len(t, gate.published, 2)

	assert.ErrorIs(t, svc.PublishVoucher(ctx, &domain.Voucher{ShopID: 1, Title: "bad", Stock: -1}), domain.ErrInvalidArgument)
	_, err = svc.RepublishVoucher(ctx, 42)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
