package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"flash-sale/internal/cache"
	"flash-sale/internal/domain"
)

// ShopService is what the shop handler needs from the use case layer.
type ShopService interface {
	QueryByID(ctx context.Context, id int64, strategy cache.Strategy) (*domain.Shop, error)
	Update(ctx context.Context, shop *domain.Shop) error
}

// ShopHandler serves cached shop reads and writes.
type ShopHandler struct {
	service  ShopService
	logger   *slog.Logger
	validate *validator.Validate
}

func NewShopHandler(service ShopService, logger *slog.Logger) *ShopHandler {
	return &ShopHandler{
		service:  service,
		logger:   logger.With("component", "shop-handler"),
		validate: newValidator(),
	}
}

// RegisterRoutes registers shop routes to the http.ServeMux.
func (h *ShopHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("GET /shops/{id}", instrument("/shops/{id}", h.handleGet))
	mux.Handle("PUT /shops/{id}", instrument("/shops/{id}", h.handleUpdate))
}

// handleGet handles GET /shops/{id}?strategy=null|mutex|logical
func (h *ShopHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handler.GetShop")
	defer span.End()

	id, ok := shopID(w, r)
	if !ok {
		return
	}
	span.SetAttributes(attribute.Int64("shop.id", id))

	var strategy cache.Strategy
	if raw := r.URL.Query().Get("strategy"); raw != "" {
		s, err := cache.ParseStrategy(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid", err.Error())
			return
		}
		strategy = s
	}

	shop, err := h.service.QueryByID(ctx, id, strategy)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", "Shop not found")
			return
		case errors.Is(err, domain.ErrRebuildTimeout), errors.Is(err, domain.ErrStoreUnavailable):
			span.SetStatus(codes.Error, "Shop temporarily unavailable")
			span.RecordError(err)
			h.logger.Warn("shop read unavailable", "shop_id", id, "error", err)
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusServiceUnavailable, "unavailable", "Shop is being refreshed, try again")
			return
		}
		span.SetStatus(codes.Error, "Failed to get shop")
		span.RecordError(err)
		h.logger.Error("error getting shop", "shop_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "error", "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, shop)
}

// handleUpdate handles PUT /shops/{id}
func (h *ShopHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handler.UpdateShop")
	defer span.End()

	id, ok := shopID(w, r)
	if !ok {
		return
	}
	span.SetAttributes(attribute.Int64("shop.id", id))

	var req UpdateShopRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		span.SetStatus(codes.Error, "Invalid request")
		return
	}

	shop := req.ToDomainShop(id)
	if err := h.service.Update(ctx, shop); err != nil {
		span.SetStatus(codes.Error, "Failed to update shop")
		span.RecordError(err)
		if errors.Is(err, domain.ErrInvalidArgument) {
			writeError(w, http.StatusBadRequest, "invalid", err.Error())
			return
		}
		h.logger.Error("error updating shop", "shop_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "error", "Internal server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func shopID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid", "Shop id must be a positive integer")
		return 0, false
	}
	return id, true
}
