package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"flash-sale/internal/cache"
	"flash-sale/internal/domain"
)

// ShopService serves shop records through the cache.
type ShopService struct {
	shops    domain.ShopRepository
	cache    *cache.Cache[domain.Shop]
	strategy cache.Strategy
	hot      map[int64]struct{}
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewShopService creates a new ShopService instance. hotShops are kept in
// the logical expiry form and re-warmed after updates.
func NewShopService(shops domain.ShopRepository, c *cache.Cache[domain.Shop], defaultStrategy cache.Strategy, hotShops []int64, logger *slog.Logger) *ShopService {
	hot := make(map[int64]struct{}, len(hotShops))
	for _, id := range hotShops {
		hot[id] = struct{}{}
	}
	return &ShopService{
		shops:    shops,
		cache:    c,
		strategy: defaultStrategy,
		hot:      hot,
		logger:   logger.With("component", "shop-service"),
		tracer:   otel.Tracer("flash-sale-usecase"),
	}
}

// QueryByID reads the shop with the given strategy, or the default when
// strategy is zero.
func (s *ShopService) QueryByID(ctx context.Context, id int64, strategy cache.Strategy) (*domain.Shop, error) {
	ctx, span := s.tracer.Start(ctx, "service.QueryShop")
	defer span.End()

	if strategy == 0 {
		strategy = s.strategy
	}
	span.SetAttributes(attribute.Int64("shop.id", id), attribute.String("cache.strategy", strategy.String()))

	shop, err := s.cache.ReadThrough(ctx, id, s.load, 0, strategy)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "cached read failed")
		}
		return nil, err
	}
	return &shop, nil
}

// Update writes the shop to the database first and then drops the cached
// copy, so readers reload the new version.
func (s *ShopService) Update(ctx context.Context, shop *domain.Shop) error {
	ctx, span := s.tracer.Start(ctx, "service.UpdateShop")
	defer span.End()
	span.SetAttributes(attribute.Int64("shop.id", shop.ID))

	if shop.ID <= 0 {
		return fmt.Errorf("shop id must be positive: %w", domain.ErrInvalidArgument)
	}
	if shop.Name == "" {
		return fmt.Errorf("shop name cannot be empty: %w", domain.ErrInvalidArgument)
	}

	if err := s.shops.Save(ctx, shop); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to save shop to repository")
		return err
	}
	if err := s.cache.Invalidate(ctx, shop.ID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to invalidate cached shop")
		return err
	}
	if _, ok := s.hot[shop.ID]; ok {
		// Logical expiry readers never load inline, refill right away.
		if err := s.cache.WriteLogicalExpiry(ctx, shop.ID, s.load, 0); err != nil {
			s.logger.Warn("failed to re-warm hot shop", "shop_id", shop.ID, "error", err)
		}
	}
	return nil
}

// Warm writes the given shops in the logical expiry form. Missing shops are
// skipped; other failures are collected.
func (s *ShopService) Warm(ctx context.Context, ids []int64) error {
	ctx, span := s.tracer.Start(ctx, "service.WarmShops")
	defer span.End()
	span.SetAttributes(attribute.Int("shop.count", len(ids)))

	var errs []error
	for _, id := range ids {
		err := s.cache.WriteLogicalExpiry(ctx, id, s.load, 0)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrNotFound):
			s.logger.Warn("skipping warm-up of missing shop", "shop_id", id)
		default:
			errs = append(errs, fmt.Errorf("shop %d: %w", id, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "warm-up incomplete")
		return err
	}
	return nil
}

// WarmHot warms the configured hot shops.
func (s *ShopService) WarmHot(ctx context.Context) error {
	ids := make([]int64, 0, len(s.hot))
	for id := range s.hot {
		ids = append(ids, id)
	}
	return s.Warm(ctx, ids)
}

func (s *ShopService) load(ctx context.Context, id int64) (domain.Shop, error) {
	shop, err := s.shops.Get(ctx, id)
	if err != nil {
		return domain.Shop{}, err
	}
	return *shop, nil
}
