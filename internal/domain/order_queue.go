package domain

import (
	"context"
	"time"
)

// Delivery is one queue entry handed to a consumer. ID is the queue's own
// entry id and is what Ack needs.
type Delivery struct {
	ID     string
	Intent OrderIntent
	// Redelivered is set when the entry came from the pending list.
	Redelivered bool
}

// OrderQueue carries order intents from admission to the order processor
// with at-least-once delivery.
type OrderQueue interface {
	Enqueue(ctx context.Context, intent *OrderIntent) error
	// Read returns new entries for consumer, waiting up to block when empty.
	// An empty result with a nil error means the wait timed out.
	Read(ctx context.Context, consumer string, block time.Duration) ([]Delivery, error)
	// Pending returns entries delivered but never acknowledged, including
	// entries abandoned by crashed consumers that the queue could reclaim.
	Pending(ctx context.Context, consumer string) ([]Delivery, error)
	Ack(ctx context.Context, d Delivery) error
}
