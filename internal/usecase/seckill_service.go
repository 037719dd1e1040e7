package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"flash-sale/internal/clock"
	"flash-sale/internal/domain"
)

// intentEnqueuer is implemented by gates that put admitted intents on the
// order queue themselves, in the same atomic step as the admission.
type intentEnqueuer interface {
	EnqueuesIntents() bool
}

// SeckillService is the request-path side of a flash sale: it decides
// admission and hands admitted intents to the order queue. Persisting the
// order happens later in OrderService.
type SeckillService struct {
	gate     domain.AdmissionGate
	queue    domain.OrderQueue
	ids      domain.IDGenerator
	vouchers domain.VoucherRepository
	clock    clock.Clock
	sequence string
	fused    bool
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewSeckillService creates a new SeckillService instance.
func NewSeckillService(
	gate domain.AdmissionGate,
	queue domain.OrderQueue,
	ids domain.IDGenerator,
	vouchers domain.VoucherRepository,
	clk clock.Clock,
	sequence string,
	logger *slog.Logger,
) *SeckillService {
	fused := false
	if e, ok := gate.(intentEnqueuer); ok {
		fused = e.EnqueuesIntents()
	}
	return &SeckillService{
		gate:     gate,
		queue:    queue,
		ids:      ids,
		vouchers: vouchers,
		clock:    clk,
		sequence: sequence,
		fused:    fused,
		logger:   logger.With("component", "seckill-service"),
		tracer:   otel.Tracer("flash-sale-usecase"),
	}
}

// TryAdmit runs the admission for (voucherID, userID). On AdmissionAdmitted
// the returned order id is already durable on the order queue. Any other
// status comes with a zero order id and a nil error.
func (s *SeckillService) TryAdmit(ctx context.Context, voucherID, userID int64) (int64, domain.AdmissionStatus, error) {
	ctx, span := s.tracer.Start(ctx, "service.TryAdmit")
	defer span.End()
	span.SetAttributes(attribute.Int64("voucher.id", voucherID), attribute.Int64("user.id", userID))

	if voucherID <= 0 || userID <= 0 {
		return 0, 0, fmt.Errorf("voucher and user id must be positive: %w", domain.ErrInvalidArgument)
	}

	orderID, err := s.ids.NextID(ctx, s.sequence)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to allocate order id")
		return 0, 0, err
	}
	intent := &domain.OrderIntent{
		OrderID:   orderID,
		UserID:    userID,
		VoucherID: voucherID,
		CreatedAt: s.clock.Now(),
	}

	status, err := s.gate.TryAdmit(ctx, intent)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "admission failed")
		return 0, 0, err
	}
	span.SetAttributes(attribute.String("admission.status", status.String()))
	if status != domain.AdmissionAdmitted {
		return 0, status, nil
	}

	if !s.fused {
		if err := s.queue.Enqueue(ctx, intent); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to enqueue order intent")
			// Give the unit back so the failed request does not burn stock.
			if rerr := s.gate.Revoke(context.WithoutCancel(ctx), voucherID, userID); rerr != nil {
				s.logger.Error("failed to revoke admission after enqueue failure",
					"voucher_id", voucherID, "user_id", userID, "order_id", orderID, "error", rerr)
			}
			return 0, 0, fmt.Errorf("failed to enqueue order %d: %w", orderID, err)
		}
	}

	s.logger.Debug("order admitted", "voucher_id", voucherID, "user_id", userID, "order_id", orderID)
	return orderID, domain.AdmissionAdmitted, nil
}

// PublishVoucher stores a flash-sale voucher and seeds the admission gate
// with its stock and sale window.
func (s *SeckillService) PublishVoucher(ctx context.Context, v *domain.Voucher) error {
	ctx, span := s.tracer.Start(ctx, "service.PublishVoucher")
	defer span.End()

	if err := v.Validate(); err != nil {
		return err
	}
	now := s.clock.Now()
	if v.ID == 0 {
		v.CreatedAt = now
	}
	v.UpdatedAt = now

	if err := s.vouchers.Save(ctx, v); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to save voucher to repository")
		return err
	}
	span.SetAttributes(attribute.Int64("voucher.id", v.ID))

	if err := s.gate.Publish(ctx, v); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to publish voucher to gate")
		return err
	}
	return nil
}

// RepublishVoucher re-seeds the gate from the stored voucher, e.g. after the
// coordination store lost its data.
func (s *SeckillService) RepublishVoucher(ctx context.Context, voucherID int64) (*domain.Voucher, error) {
	ctx, span := s.tracer.Start(ctx, "service.RepublishVoucher")
	defer span.End()
	span.SetAttributes(attribute.Int64("voucher.id", voucherID))

	v, err := s.vouchers.Get(ctx, voucherID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get voucher from repository")
		return nil, err
	}
	if err := s.gate.Publish(ctx, v); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to publish voucher to gate")
		return nil, err
	}
	return v, nil
}
