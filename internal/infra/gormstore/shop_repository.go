package gormstore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"flash-sale/internal/domain"
)

type shopRepository struct {
	db *gorm.DB
}

func NewShopRepository(db *gorm.DB) domain.ShopRepository {
	return &shopRepository{db: db}
}

func (r *shopRepository) Get(ctx context.Context, id int64) (*domain.Shop, error) {
	var m shopModel
	err := r.db.WithContext(ctx).First(&m, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get shop %d: %w", id, err)
	}
	return m.toDomain(), nil
}

// Save inserts or updates the shop and writes the id back.
func (r *shopRepository) Save(ctx context.Context, shop *domain.Shop) error {
	m := shopFromDomain(shop)
	if err := r.db.WithContext(ctx).Save(m).Error; err != nil {
		return fmt.Errorf("failed to save shop: %w", err)
	}
	shop.ID = m.ID
	shop.UpdatedAt = m.UpdatedAt
	return nil
}
