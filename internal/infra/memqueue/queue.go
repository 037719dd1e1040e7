// Package memqueue is the in-process fallback order queue. Entries live only
// in memory: anything not yet acknowledged is lost if the process dies.
// Delivered entries stay pending per consumer until acknowledged, the same
// way a stream consumer group keeps them.
package memqueue

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"flash-sale/internal/domain"
)

// Queue is a bounded FIFO implementing domain.OrderQueue.
type Queue struct {
	entries chan domain.Delivery
	seq     atomic.Uint64

	mu      sync.Mutex
	pending map[string]pendingEntry

	closeOnce sync.Once
	closed    chan struct{}
}

var _ domain.OrderQueue = (*Queue)(nil)

type pendingEntry struct {
	consumer string
	seq      uint64
	delivery domain.Delivery
}

func New(capacity int) *Queue {
	return &Queue{
		entries: make(chan domain.Delivery, capacity),
		pending: make(map[string]pendingEntry),
		closed:  make(chan struct{}),
	}
}

// Enqueue never blocks: a full queue rejects with ErrQueueFull.
func (q *Queue) Enqueue(_ context.Context, intent *domain.OrderIntent) error {
	select {
	case <-q.closed:
		return domain.ErrQueueClosed
	default:
	}
	d := domain.Delivery{
		ID:     strconv.FormatUint(q.seq.Add(1), 10),
		Intent: *intent,
	}
	select {
	case q.entries <- d:
		return nil
	default:
		return domain.ErrQueueFull
	}
}

// Read returns at most one entry, waiting up to block for it. The entry is
// pending for consumer until acknowledged.
func (q *Queue) Read(ctx context.Context, consumer string, block time.Duration) ([]domain.Delivery, error) {
	timer := time.NewTimer(block)
	defer timer.Stop()

	select {
	case d := <-q.entries:
		seq, _ := strconv.ParseUint(d.ID, 10, 64)
		q.mu.Lock()
		q.pending[d.ID] = pendingEntry{consumer: consumer, seq: seq, delivery: d}
		q.mu.Unlock()
		return []domain.Delivery{d}, nil
	case <-timer.C:
		return nil, nil
	case <-q.closed:
		return nil, domain.ErrQueueClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Pending returns the entries delivered to consumer and not yet
// acknowledged, oldest first.
func (q *Queue) Pending(_ context.Context, consumer string) ([]domain.Delivery, error) {
	q.mu.Lock()
	entries := make([]pendingEntry, 0, len(q.pending))
	for _, e := range q.pending {
		if e.consumer == consumer {
			entries = append(entries, e)
		}
	}
	q.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	out := make([]domain.Delivery, len(entries))
	for i, e := range entries {
		out[i] = e.delivery
		out[i].Redelivered = true
	}
	return out, nil
}

func (q *Queue) Ack(_ context.Context, d domain.Delivery) error {
	q.mu.Lock()
	delete(q.pending, d.ID)
	q.mu.Unlock()
	return nil
}

// Len returns the number of entries not yet acknowledged, queued or pending.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries) + len(q.pending)
}

// Close stops accepting and handing out entries.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.closed) })
}
