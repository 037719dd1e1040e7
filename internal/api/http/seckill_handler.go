package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"flash-sale/internal/domain"
)

// UserIDHeader carries the authenticated user. Authentication itself happens
// in front of this service.
const UserIDHeader = "X-User-ID"

// SeckillService is what the seckill handler needs from the use case layer.
type SeckillService interface {
	TryAdmit(ctx context.Context, voucherID, userID int64) (int64, domain.AdmissionStatus, error)
	PublishVoucher(ctx context.Context, v *domain.Voucher) error
}

// SeckillHandler serves the flash-sale endpoints.
type SeckillHandler struct {
	service  SeckillService
	timeout  time.Duration
	logger   *slog.Logger
	validate *validator.Validate
}

// NewSeckillHandler creates the handler. timeout bounds a single admission
// attempt including id allocation and enqueueing.
func NewSeckillHandler(service SeckillService, timeout time.Duration, logger *slog.Logger) *SeckillHandler {
	return &SeckillHandler{
		service:  service,
		timeout:  timeout,
		logger:   logger.With("component", "seckill-handler"),
		validate: newValidator(),
	}
}

// RegisterRoutes registers voucher routes to the http.ServeMux.
func (h *SeckillHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("POST /vouchers/{id}/seckill", instrument("/vouchers/{id}/seckill", h.handleSeckill))
	mux.Handle("POST /vouchers", instrument("/vouchers", h.handlePublish))
}

// handleSeckill handles POST /vouchers/{id}/seckill
func (h *SeckillHandler) handleSeckill(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handler.Seckill")
	defer span.End()

	voucherID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || voucherID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid", "Voucher id must be a positive integer")
		return
	}
	userID, err := strconv.ParseInt(r.Header.Get(UserIDHeader), 10, 64)
	if err != nil || userID <= 0 {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid "+UserIDHeader+" header")
		return
	}
	span.SetAttributes(attribute.Int64("voucher.id", voucherID), attribute.Int64("user.id", userID))

	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	orderID, status, err := h.service.TryAdmit(ctx, voucherID, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Admission failed")
		switch {
		case errors.Is(err, domain.ErrInvalidArgument):
			writeError(w, http.StatusBadRequest, "invalid", err.Error())
		case errors.Is(err, domain.ErrStoreUnavailable), errors.Is(err, context.DeadlineExceeded):
			h.logger.Warn("admission unavailable", "voucher_id", voucherID, "user_id", userID, "error", err)
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusServiceUnavailable, "unavailable", "Flash sale is busy, try again")
		default:
			h.logger.Error("error admitting order", "voucher_id", voucherID, "user_id", userID, "error", err)
			writeError(w, http.StatusInternalServerError, "error", "Internal server error")
		}
		return
	}

	switch status {
	case domain.AdmissionAdmitted:
		writeJSON(w, http.StatusOK, SeckillResponse{OrderID: orderID})
	case domain.AdmissionDuplicate:
		writeError(w, http.StatusConflict, status.String(), "User already ordered this voucher")
	case domain.AdmissionOutOfStock:
		writeError(w, http.StatusGone, status.String(), "Voucher is sold out")
	case domain.AdmissionEnded:
		writeError(w, http.StatusGone, status.String(), "Flash sale has ended")
	case domain.AdmissionNotStarted:
		writeError(w, http.StatusForbidden, status.String(), "Flash sale has not started")
	default:
		writeError(w, http.StatusInternalServerError, "error", "Internal server error")
	}
}

// handlePublish handles POST /vouchers
func (h *SeckillHandler) handlePublish(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handler.PublishVoucher")
	defer span.End()

	var req PublishVoucherRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		span.SetStatus(codes.Error, "Invalid request")
		return
	}

	v := req.ToDomainVoucher()
	if err := h.service.PublishVoucher(ctx, v); err != nil {
		span.SetStatus(codes.Error, "Failed to publish voucher")
		span.RecordError(err)
		if errors.Is(err, domain.ErrInvalidArgument) {
			writeError(w, http.StatusBadRequest, "invalid", err.Error())
			return
		}
		h.logger.Error("error publishing voucher", "error", err)
		writeError(w, http.StatusInternalServerError, "error", "Internal server error")
		return
	}
	span.SetAttributes(attribute.Int64("voucher.id", v.ID))

	writeJSON(w, http.StatusCreated, v)
}
