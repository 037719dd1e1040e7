package gormstore

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"flash-sale/internal/domain"
)

type orderRepository struct {
	db     *gorm.DB
	tracer trace.Tracer
}

func NewOrderRepository(db *gorm.DB) domain.OrderRepository {
	return &orderRepository{
		db:     db,
		tracer: otel.Tracer("gorm-order-repository"),
	}
}

func (r *orderRepository) Count(ctx context.Context, userID, voucherID int64) (int64, error) {
	return countOrders(r.db.WithContext(ctx), userID, voucherID)
}

func (r *orderRepository) Get(ctx context.Context, id int64) (*domain.VoucherOrder, error) {
	var m orderModel
	err := r.db.WithContext(ctx).First(&m, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order %d: %w", id, err)
	}
	return m.toDomain(), nil
}

// WithTx runs fn in one transaction. Returning an error from fn rolls back.
func (r *orderRepository) WithTx(ctx context.Context, fn func(store domain.OrderStore) error) error {
	ctx, span := r.tracer.Start(ctx, "repository.WithTx")
	defer span.End()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&txStore{tx: tx})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transaction rolled back")
		return err
	}
	return nil
}

// txStore is the OrderStore bound to an open transaction.
type txStore struct {
	tx *gorm.DB
}

func (s *txStore) Count(ctx context.Context, userID, voucherID int64) (int64, error) {
	return countOrders(s.tx.WithContext(ctx), userID, voucherID)
}

func (s *txStore) DecrementStock(ctx context.Context, voucherID int64) (bool, error) {
	return decrementStock(s.tx.WithContext(ctx), voucherID)
}

func (s *txStore) Insert(ctx context.Context, order *domain.VoucherOrder) error {
	err := s.tx.WithContext(ctx).Create(orderFromDomain(order)).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("order %d: %w", order.ID, domain.ErrDuplicateOrder)
	}
	if err != nil {
		return fmt.Errorf("failed to insert order %d: %w", order.ID, err)
	}
	return nil
}

func countOrders(db *gorm.DB, userID, voucherID int64) (int64, error) {
	var n int64
	err := db.Model(&orderModel{}).
		Where("user_id = ? AND voucher_id = ?", userID, voucherID).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count orders: %w", err)
	}
	return n, nil
}
