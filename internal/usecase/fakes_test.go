package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"flash-sale/internal/domain"
)

type fakeGate struct {
	mu        sync.Mutex
	status    domain.AdmissionStatus
	err       error
	fused     bool
	admitted  []*domain.OrderIntent
	revoked   [][2]int64
	published []*domain.Voucher
}

func (g *fakeGate) TryAdmit(_ context.Context, intent *domain.OrderIntent) (domain.AdmissionStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return 0, g.err
	}
	if g.status == domain.AdmissionAdmitted {
		g.admitted = append(g.admitted, intent)
	}
	return g.status, nil
}

func (g *fakeGate) Revoke(_ context.Context, voucherID, userID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.revoked = append(g.revoked, [2]int64{voucherID, userID})
	return nil
}

func (g *fakeGate) Publish(_ context.Context, v *domain.Voucher) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.published = append(g.published, v)
	return nil
}

func (g *fakeGate) EnqueuesIntents() bool { return g.fused }

type fakeQueue struct {
	mu       sync.Mutex
	err      error
	enqueued []domain.OrderIntent
}

func (q *fakeQueue) Enqueue(_ context.Context, intent *domain.OrderIntent) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.enqueued = append(q.enqueued, *intent)
	return nil
}

func (q *fakeQueue) Read(context.Context, string, time.Duration) ([]domain.Delivery, error) {
	return nil, nil
}

func (q *fakeQueue) Pending(context.Context, string) ([]domain.Delivery, error) {
	return nil, nil
}

func (q *fakeQueue) Ack(context.Context, domain.Delivery) error { return nil }

type fakeIDs struct {
	n atomic.Int64
}

func (f *fakeIDs) NextID(context.Context, string) (int64, error) {
	return f.n.Add(1), nil
}

type fakeVouchers struct {
	mu   sync.Mutex
	next int64
	byID map[int64]*domain.Voucher
}

func newFakeVouchers() *fakeVouchers {
	return &fakeVouchers{byID: map[int64]*domain.Voucher{}}
}

func (r *fakeVouchers) Save(_ context.Context, v *domain.Voucher) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v.ID == 0 {
		r.next++
		v.ID = r.next
	}
	cp := *v
	r.byID[v.ID] = &cp
	return nil
}

func (r *fakeVouchers) Get(_ context.Context, id int64) (*domain.Voucher, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (r *fakeVouchers) DecrementStock(_ context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.byID[id]
	if !ok || v.Stock <= 0 {
		return false, nil
	}
	v.Stock--
	return true, nil
}

type fakeShops struct {
	mu    sync.Mutex
	gets  atomic.Int64
	shops map[int64]domain.Shop
}

func (r *fakeShops) Get(_ context.Context, id int64) (*domain.Shop, error) {
	r.gets.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.shops[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &s, nil
}

func (r *fakeShops) Save(_ context.Context, shop *domain.Shop) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shops[shop.ID] = *shop
	return nil
}
