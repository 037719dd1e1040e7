package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"flash-sale/internal/domain"
)

// Outcome is the terminal result of handling one order intent.
type Outcome int

const (
	// OutcomeCreated means the order row was written in this call.
	OutcomeCreated Outcome = iota + 1
	// OutcomeExists means an order for the pair already existed: a redelivery.
	OutcomeExists
	// OutcomeDuplicate means the unique index rejected the insert.
	OutcomeDuplicate
	// OutcomeOutOfStock means the persistent stock was already exhausted.
	OutcomeOutOfStock
	// OutcomeInvalid means the intent itself is malformed.
	OutcomeInvalid
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeExists:
		return "exists"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeOutOfStock:
		return "out_of_stock"
	case OutcomeInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

var errOrderExists = errors.New("order exists")

// OrderService persists admitted intents. Handle is idempotent: the same
// intent delivered any number of times yields at most one order row.
type OrderService struct {
	orders  domain.OrderRepository
	locker  domain.Locker
	lockTTL time.Duration
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewOrderService creates a new OrderService instance.
func NewOrderService(orders domain.OrderRepository, locker domain.Locker, lockTTL time.Duration, logger *slog.Logger) *OrderService {
	return &OrderService{
		orders:  orders,
		locker:  locker,
		lockTTL: lockTTL,
		logger:  logger.With("component", "order-service"),
		tracer:  otel.Tracer("flash-sale-usecase"),
	}
}

// Handle persists intent. A returned error means the intent should be
// retried later (lock contention or a transient store failure). Every
// Outcome with a nil error is final and the entry can be acknowledged.
func (s *OrderService) Handle(ctx context.Context, intent *domain.OrderIntent) (Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "service.HandleOrder")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("order.id", intent.OrderID),
		attribute.Int64("user.id", intent.UserID),
		attribute.Int64("voucher.id", intent.VoucherID),
	)

	if err := intent.Validate(); err != nil {
		s.logger.Error("discarding malformed order intent", "order_id", intent.OrderID, "error", err)
		return OutcomeInvalid, nil
	}

	lock, err := s.locker.TryLock(ctx, "order:"+strconv.FormatInt(intent.UserID, 10), s.lockTTL)
	if err != nil {
		if !errors.Is(err, domain.ErrLockNotAcquired) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to acquire user lock")
		}
		return 0, err
	}
	defer func() {
		if err := lock.Unlock(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("failed to release user lock", "lock", lock.Name(), "error", err)
		}
	}()

	n, err := s.orders.Count(ctx, intent.UserID, intent.VoucherID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to count orders")
		return 0, err
	}
	if n > 0 {
		return OutcomeExists, nil
	}

	err = s.orders.WithTx(ctx, func(store domain.OrderStore) error {
		n, err := store.Count(ctx, intent.UserID, intent.VoucherID)
		if err != nil {
			return err
		}
		if n > 0 {
			return errOrderExists
		}
		ok, err := store.DecrementStock(ctx, intent.VoucherID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrOutOfStock
		}
		return store.Insert(ctx, domain.NewVoucherOrder(intent))
	})

	switch {
	case err == nil:
		return OutcomeCreated, nil
	case errors.Is(err, errOrderExists):
		return OutcomeExists, nil
	case errors.Is(err, domain.ErrDuplicateOrder):
		s.logger.Warn("order rejected by unique index", "order_id", intent.OrderID, "user_id", intent.UserID, "voucher_id", intent.VoucherID)
		return OutcomeDuplicate, nil
	case errors.Is(err, domain.ErrOutOfStock):
		s.logger.Warn("admitted order found no persistent stock", "order_id", intent.OrderID, "voucher_id", intent.VoucherID)
		return OutcomeOutOfStock, nil
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, "order transaction failed")
		return 0, fmt.Errorf("failed to persist order %d: %w", intent.OrderID, err)
	}
}

// Get returns a persisted order.
func (s *OrderService) Get(ctx context.Context, id int64) (*domain.VoucherOrder, error) {
	ctx, span := s.tracer.Start(ctx, "service.GetOrder")
	defer span.End()
	span.SetAttributes(attribute.Int64("order.id", id))

	order, err := s.orders.Get(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get order from repository")
	}
	return order, err
}
