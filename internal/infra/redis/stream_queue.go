package redis

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"flash-sale/internal/domain"
)

// maxPendingPerSweep caps how many entries one Pending call returns.
const maxPendingPerSweep = 1000

// StreamOptions configures the stream-backed order queue.
type StreamOptions struct {
	Stream       string
	Group        string
	Batch        int64
	ClaimMinIdle time.Duration
}

// StreamQueue implements domain.OrderQueue on a stream with a consumer group.
// Entries stay in the group's pending list until acknowledged.
type StreamQueue struct {
	client goredis.Cmdable
	opts   StreamOptions
	logger *slog.Logger
	tracer trace.Tracer
}

var _ domain.OrderQueue = (*StreamQueue)(nil)

// NewStreamQueue creates the stream queue. Call EnsureGroup before reading.
func NewStreamQueue(client goredis.Cmdable, opts StreamOptions, logger *slog.Logger) *StreamQueue {
	if opts.Batch <= 0 {
		opts.Batch = 1
	}
	return &StreamQueue{
		client: client,
		opts:   opts,
		logger: logger.With("component", "stream-queue", "stream", opts.Stream),
		tracer: otel.Tracer("redis-stream-queue"),
	}
}

// EnsureGroup creates the stream and the consumer group if they are missing.
func (q *StreamQueue) EnsureGroup(ctx context.Context) error {
	err := q.client.XGroupCreateMkStream(ctx, q.opts.Stream, q.opts.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return storeErr("create consumer group "+q.opts.Group, err)
	}
	return nil
}

// Enqueue appends the intent to the stream.
func (q *StreamQueue) Enqueue(ctx context.Context, intent *domain.OrderIntent) error {
	ctx, span := q.tracer.Start(ctx, "queue.Enqueue")
	defer span.End()

	err := q.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: q.opts.Stream,
		Values: encodeIntent(intent),
	}).Err()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "xadd failed")
		return storeErr("enqueue order intent", err)
	}
	return nil
}

// Read delivers new entries to consumer, blocking up to block.
func (q *StreamQueue) Read(ctx context.Context, consumer string, block time.Duration) ([]domain.Delivery, error) {
	streams, err := q.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
		Group:    q.opts.Group,
		Consumer: consumer,
		Streams:  []string{q.opts.Stream, ">"},
		Count:    q.opts.Batch,
		Block:    block,
	}).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("read order stream", err)
	}
	var msgs []goredis.XMessage
	for _, s := range streams {
		msgs = append(msgs, s.Messages...)
	}
	return q.toDeliveries(ctx, msgs, false), nil
}

// Pending returns the entries delivered to consumer but not acknowledged,
// followed by entries of other consumers idle longer than ClaimMinIdle,
// which are claimed for consumer.
func (q *StreamQueue) Pending(ctx context.Context, consumer string) ([]domain.Delivery, error) {
	ctx, span := q.tracer.Start(ctx, "queue.Pending")
	defer span.End()

	own, err := q.ownPending(ctx, consumer)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read pending list failed")
		return nil, err
	}
	deliveries := q.toDeliveries(ctx, own, true)

	if q.opts.ClaimMinIdle > 0 && len(own) < maxPendingPerSweep {
		claimed, err := q.claimAbandoned(ctx, consumer, maxPendingPerSweep-len(own))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "claim abandoned entries failed")
			return nil, err
		}
		if len(claimed) > 0 {
			q.logger.Info("claimed abandoned entries", "consumer", consumer, "count", len(claimed))
		}
		deliveries = append(deliveries, q.toDeliveries(ctx, claimed, true)...)
	}
	return deliveries, nil
}

// ownPending pages through consumer's pending list by re-reading from id 0.
func (q *StreamQueue) ownPending(ctx context.Context, consumer string) ([]goredis.XMessage, error) {
	var out []goredis.XMessage
	start := "0"
	for len(out) < maxPendingPerSweep {
		streams, err := q.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
			Group:    q.opts.Group,
			Consumer: consumer,
			Streams:  []string{q.opts.Stream, start},
			Count:    q.opts.Batch,
			Block:    -1,
		}).Result()
		if errors.Is(err, goredis.Nil) {
			break
		}
		if err != nil {
			return nil, storeErr("read pending list", err)
		}
		var page []goredis.XMessage
		for _, s := range streams {
			page = append(page, s.Messages...)
		}
		if len(page) == 0 {
			break
		}
		out = append(out, page...)
		start = page[len(page)-1].ID
	}
	return out, nil
}

func (q *StreamQueue) claimAbandoned(ctx context.Context, consumer string, limit int) ([]goredis.XMessage, error) {
	var out []goredis.XMessage
	start := "0-0"
	for len(out) < limit {
		msgs, next, err := q.client.XAutoClaim(ctx, &goredis.XAutoClaimArgs{
			Stream:   q.opts.Stream,
			Group:    q.opts.Group,
			Consumer: consumer,
			MinIdle:  q.opts.ClaimMinIdle,
			Start:    start,
			Count:    q.opts.Batch,
		}).Result()
		if err != nil {
			return nil, storeErr("claim pending entries", err)
		}
		out = append(out, msgs...)
		if next == "0-0" || next == "" {
			break
		}
		start = next
	}
	return out, nil
}

// Ack removes the entry from the group's pending list.
func (q *StreamQueue) Ack(ctx context.Context, d domain.Delivery) error {
	if err := q.client.XAck(ctx, q.opts.Stream, q.opts.Group, d.ID).Err(); err != nil {
		return storeErr("ack entry "+d.ID, err)
	}
	return nil
}

// PendingSummary reports the group's pending count per consumer.
func (q *StreamQueue) PendingSummary(ctx context.Context) (int64, map[string]int64, error) {
	res, err := q.client.XPending(ctx, q.opts.Stream, q.opts.Group).Result()
	if err != nil {
		return 0, nil, storeErr("inspect pending entries", err)
	}
	return res.Count, res.Consumers, nil
}

// toDeliveries decodes entries. Entries that cannot be decoded are logged
// and acknowledged so they do not block the pending list forever.
func (q *StreamQueue) toDeliveries(ctx context.Context, msgs []goredis.XMessage, redelivered bool) []domain.Delivery {
	out := make([]domain.Delivery, 0, len(msgs))
	for _, m := range msgs {
		intent, err := decodeIntent(m.Values)
		if err != nil {
			q.logger.Error("dropping malformed stream entry", "entry_id", m.ID, "error", err)
			if ackErr := q.client.XAck(ctx, q.opts.Stream, q.opts.Group, m.ID).Err(); ackErr != nil {
				q.logger.Warn("failed to ack malformed entry", "entry_id", m.ID, "error", ackErr)
			}
			continue
		}
		out = append(out, domain.Delivery{ID: m.ID, Intent: intent, Redelivered: redelivered})
	}
	return out
}

