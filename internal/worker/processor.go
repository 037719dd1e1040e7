// internal/worker/processor.go
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"flash-sale/internal/config"
	"flash-sale/internal/domain"
	"flash-sale/internal/metrics"
	"flash-sale/internal/usecase"
)

// Handler persists one order intent. A non-nil error means "try again
// later"; the entry is then left unacknowledged.
type Handler interface {
	Handle(ctx context.Context, intent *domain.OrderIntent) (usecase.Outcome, error)
}

// Options configures the processor.
type Options struct {
	Consumer    string
	Concurrency int
	Block       time.Duration
	MaxRetries  int
	Backoff     time.Duration
}

// OptionsFromConfig builds processor options from the worker and queue sections.
func OptionsFromConfig(w config.WorkerConfig, q config.QueueConfig) Options {
	return Options{
		Consumer:    w.Consumer,
		Concurrency: w.Concurrency,
		Block:       q.Block,
		MaxRetries:  w.MaxRetries,
		Backoff:     w.Backoff,
	}
}

// Processor consumes the order queue. Every consumer first drains its
// pending list, then reads live entries. Sweeps also run on demand after a
// failed entry and whenever Sweep is called (by the scheduler).
type Processor struct {
	queue     domain.OrderQueue
	handler   Handler
	opts      Options
	consumers []string
	sweepMu   map[string]*sync.Mutex
	logger    *slog.Logger
	tracer    trace.Tracer
}

// NewProcessor creates a processor. With Concurrency 1 the consumer name is
// used as is, otherwise consumers are named <consumer>-<n>.
func NewProcessor(queue domain.OrderQueue, handler Handler, opts Options, logger *slog.Logger) *Processor {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	consumers := []string{opts.Consumer}
	if opts.Concurrency > 1 {
		consumers = make([]string, opts.Concurrency)
		for i := range consumers {
			consumers[i] = fmt.Sprintf("%s-%d", opts.Consumer, i+1)
		}
	}
	sweepMu := make(map[string]*sync.Mutex, len(consumers))
	for _, c := range consumers {
		sweepMu[c] = &sync.Mutex{}
	}
	return &Processor{
		queue:     queue,
		handler:   handler,
		opts:      opts,
		consumers: consumers,
		sweepMu:   sweepMu,
		logger:    logger.With("component", "order-processor"),
		tracer:    otel.Tracer("flash-sale-worker"),
	}
}

// Consumers returns the consumer names this processor reads as.
func (p *Processor) Consumers() []string {
	return p.consumers
}

// Run processes entries until ctx is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	p.logger.Info("order processor starting", "consumers", p.consumers)

	g, ctx := errgroup.WithContext(ctx)
	for _, consumer := range p.consumers {
		g.Go(func() error {
			return p.consume(ctx, consumer)
		})
	}
	err := g.Wait()
	p.logger.Info("order processor stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Sweep reprocesses the pending entries of every consumer.
func (p *Processor) Sweep(ctx context.Context) error {
	var errs []error
	for _, consumer := range p.consumers {
		if err := p.sweep(ctx, consumer); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Processor) consume(ctx context.Context, consumer string) error {
	logger := p.logger.With("consumer", consumer)

	// Anything left over by a previous incarnation goes first.
	if err := p.sweep(ctx, consumer); err != nil && ctx.Err() == nil {
		logger.Error("startup sweep failed", "error", err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		deliveries, err := p.queue.Read(ctx, consumer, p.opts.Block)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, domain.ErrQueueClosed) {
				logger.Info("order queue closed")
				return nil
			}
			logger.Error("failed to read order queue", "error", err)
			if serr := sleep(ctx, p.opts.Backoff); serr != nil {
				return serr
			}
			if err := p.sweep(ctx, consumer); err != nil && ctx.Err() == nil {
				logger.Error("recovery sweep failed", "error", err)
			}
			continue
		}

		for _, d := range deliveries {
			if err := p.process(ctx, consumer, d, "live"); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if err := p.sweep(ctx, consumer); err != nil && ctx.Err() == nil {
					logger.Error("recovery sweep failed", "error", err)
				}
			}
		}
	}
}

// sweep handles consumer's pending entries once. Entries that fail again
// stay pending for the next sweep.
func (p *Processor) sweep(ctx context.Context, consumer string) error {
	mu := p.sweepMu[consumer]
	if !mu.TryLock() {
		return nil
	}
	defer mu.Unlock()

	ctx, span := p.tracer.Start(ctx, "worker.Sweep", trace.WithAttributes(attribute.String("consumer", consumer)))
	defer span.End()

	deliveries, err := p.queue.Pending(ctx, consumer)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read pending entries")
		return fmt.Errorf("failed to read pending entries for %s: %w", consumer, err)
	}
	if len(deliveries) == 0 {
		return nil
	}
	p.logger.Info("recovering pending entries", "consumer", consumer, "count", len(deliveries))

	var failed int
	for _, d := range deliveries {
		if err := p.process(ctx, consumer, d, "pending"); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failed++
			continue
		}
		metrics.PendingRecoveredTotal.Inc()
	}
	span.SetAttributes(attribute.Int("pending.count", len(deliveries)), attribute.Int("pending.failed", failed))
	if failed > 0 {
		return fmt.Errorf("%d of %d pending entries still failing for %s", failed, len(deliveries), consumer)
	}
	return nil
}

// process handles one entry and acknowledges it once the outcome is final.
func (p *Processor) process(ctx context.Context, consumer string, d domain.Delivery, source string) error {
	ctx, span := p.tracer.Start(ctx, "worker.Process", trace.WithAttributes(
		attribute.String("entry.id", d.ID),
		attribute.Int64("order.id", d.Intent.OrderID),
		attribute.String("source", source),
	))
	defer span.End()

	logger := p.logger.With("consumer", consumer, "entry_id", d.ID, "order_id", d.Intent.OrderID)

	outcome, err := p.handleWithRetry(ctx, &d.Intent)
	if err != nil {
		result := "failed"
		if errors.Is(err, domain.ErrLockNotAcquired) {
			result = "contended"
			logger.Info("user lock busy, leaving entry pending")
		} else {
			logger.Error("failed to handle order intent", "error", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "handle failed")
		}
		metrics.OrdersProcessedTotal.WithLabelValues(result, source).Inc()
		return err
	}

	if err := p.queue.Ack(ctx, d); err != nil {
		logger.Error("failed to ack entry", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "ack failed")
		return err
	}
	metrics.OrdersProcessedTotal.WithLabelValues(outcome.String(), source).Inc()
	logger.Debug("order intent handled", "outcome", outcome.String())
	return nil
}

// handleWithRetry retries transient failures with a fixed backoff. Lock
// contention is returned at once: the holder is working on the same user.
func (p *Processor) handleWithRetry(ctx context.Context, intent *domain.OrderIntent) (usecase.Outcome, error) {
	var lastErr error
	for i := 0; i <= p.opts.MaxRetries; i++ {
		outcome, err := p.handler.Handle(ctx, intent)
		if err == nil {
			return outcome, nil
		}
		if errors.Is(err, domain.ErrLockNotAcquired) {
			return 0, err
		}
		lastErr = err

		if i == p.opts.MaxRetries {
			break
		}
		if serr := sleep(ctx, p.opts.Backoff); serr != nil {
			return 0, serr
		}
	}
	return 0, fmt.Errorf("order %d failed after %d retries: %w", intent.OrderID, p.opts.MaxRetries, lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
