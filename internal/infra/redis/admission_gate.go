package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"flash-sale/internal/clock"
	"flash-sale/internal/domain"
	"flash-sale/internal/metrics"
)

// admitScript runs the whole eligibility decision in one indivisible step.
//
// KEYS: stock, admitted user set, window hash, order stream (fused mode only)
// ARGV: userId, voucherId, orderId, nowMillis, fused ("1"/"0"), createdAtMillis
//
// Returns 0 admitted, 1 out of stock, 2 duplicate, 3 not started, 4 ended.
var admitScript = goredis.NewScript(`
local now = tonumber(ARGV[4])
local window = redis.call('hmget', KEYS[3], 'begin', 'end')
if window[1] and tonumber(window[1]) > now then
  return 3
end
if window[2] and tonumber(window[2]) < now then
  return 4
end
local stock = tonumber(redis.call('get', KEYS[1]))
if stock == nil or stock <= 0 then
  return 1
end
if redis.call('sismember', KEYS[2], ARGV[1]) == 1 then
  return 2
end
redis.call('incrby', KEYS[1], -1)
redis.call('sadd', KEYS[2], ARGV[1])
if ARGV[5] == '1' then
  redis.call('xadd', KEYS[4], '*', 'userId', ARGV[1], 'voucherId', ARGV[2], 'id', ARGV[3], 'createdAt', ARGV[6])
end
return 0
`)

// revokeScript gives the unit back only if the user was actually admitted.
var revokeScript = goredis.NewScript(`
if redis.call('srem', KEYS[2], ARGV[1]) == 1 then
  redis.call('incrby', KEYS[1], 1)
  return 1
end
return 0
`)

// GateOptions configures the admission gate.
type GateOptions struct {
	// FusedStream, when set, makes the script append admitted intents to
	// this stream in the same atomic step.
	FusedStream string
}

// AdmissionGate implements domain.AdmissionGate with a server-side script.
type AdmissionGate struct {
	client goredis.Cmdable
	clock  clock.Clock
	opts   GateOptions
	logger *slog.Logger
	tracer trace.Tracer
}

var _ domain.AdmissionGate = (*AdmissionGate)(nil)

// NewAdmissionGate creates the script-backed admission gate.
func NewAdmissionGate(client goredis.Cmdable, clk clock.Clock, opts GateOptions, logger *slog.Logger) *AdmissionGate {
	return &AdmissionGate{
		client: client,
		clock:  clk,
		opts:   opts,
		logger: logger.With("component", "admission-gate"),
		tracer: otel.Tracer("redis-admission-gate"),
	}
}

// EnqueuesIntents reports whether admitted intents are already on the order
// stream when TryAdmit returns.
func (g *AdmissionGate) EnqueuesIntents() bool {
	return g.opts.FusedStream != ""
}

// TryAdmit decides eligibility for the intent. Transport failures are
// reported as ErrStoreUnavailable and never admit.
func (g *AdmissionGate) TryAdmit(ctx context.Context, intent *domain.OrderIntent) (domain.AdmissionStatus, error) {
	ctx, span := g.tracer.Start(ctx, "gate.TryAdmit", trace.WithAttributes(
		attribute.Int64("voucher.id", intent.VoucherID),
		attribute.Int64("user.id", intent.UserID),
	))
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.AdmissionLatency.Observe(time.Since(start).Seconds())
	}()

	fused := "0"
	stream := ""
	if g.EnqueuesIntents() {
		fused = "1"
		stream = g.opts.FusedStream
	}
	keys := []string{
		stockKey(intent.VoucherID),
		orderSetKey(intent.VoucherID),
		windowKey(intent.VoucherID),
	}
	if stream != "" {
		keys = append(keys, stream)
	}

	code, err := admitScript.Run(ctx, g.client, keys,
		intent.UserID,
		intent.VoucherID,
		intent.OrderID,
		g.clock.Now().UnixMilli(),
		fused,
		intent.CreatedAt.UnixMilli(),
	).Int64()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "admission script failed")
		metrics.AdmissionsTotal.WithLabelValues("error").Inc()
		return 0, storeErr("admit voucher "+strconv.FormatInt(intent.VoucherID, 10), err)
	}

	status, err := domain.ParseAdmissionStatus(code)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "bad admission code")
		return 0, err
	}
	span.SetAttributes(attribute.String("admission.status", status.String()))
	metrics.AdmissionsTotal.WithLabelValues(status.String()).Inc()
	return status, nil
}

// Revoke undoes an admission. It is a no-op if the user is not in the
// admitted set.
func (g *AdmissionGate) Revoke(ctx context.Context, voucherID, userID int64) error {
	n, err := revokeScript.Run(ctx, g.client,
		[]string{stockKey(voucherID), orderSetKey(voucherID)},
		userID,
	).Int64()
	if err != nil {
		return storeErr("revoke admission", err)
	}
	if n == 0 {
		g.logger.Warn("revoke found no admission to undo", "voucher_id", voucherID, "user_id", userID)
	}
	return nil
}

// Publish seeds the stock counter and the sale window for a voucher.
// The admitted user set is left alone so republishing cannot re-admit users.
func (g *AdmissionGate) Publish(ctx context.Context, v *domain.Voucher) error {
	if v.ID <= 0 {
		return fmt.Errorf("voucher id must be positive: %w", domain.ErrInvalidArgument)
	}
	wk := windowKey(v.ID)
	_, err := g.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, stockKey(v.ID), v.Stock, 0)
		pipe.Del(ctx, wk)
		fields := map[string]interface{}{}
		if !v.BeginTime.IsZero() {
			fields["begin"] = v.BeginTime.UnixMilli()
		}
		if !v.EndTime.IsZero() {
			fields["end"] = v.EndTime.UnixMilli()
		}
		if len(fields) > 0 {
			pipe.HSet(ctx, wk, fields)
		}
		return nil
	})
	if err != nil {
		return storeErr("publish voucher "+strconv.FormatInt(v.ID, 10), err)
	}
	g.logger.Info("voucher published to gate", "voucher_id", v.ID, "stock", v.Stock)
	return nil
}

// Remaining returns the gate's current stock counter for a voucher.
func (g *AdmissionGate) Remaining(ctx context.Context, voucherID int64) (int64, error) {
	n, err := g.client.Get(ctx, stockKey(voucherID)).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, storeErr("read stock", err)
	}
	return n, nil
}
