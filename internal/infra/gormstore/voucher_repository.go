package gormstore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"flash-sale/internal/domain"
)

type voucherRepository struct {
	db *gorm.DB
}

func NewVoucherRepository(db *gorm.DB) domain.VoucherRepository {
	return &voucherRepository{db: db}
}

// Save inserts the voucher when ID is zero and updates it otherwise.
// The assigned id and timestamps are written back to v.
func (r *voucherRepository) Save(ctx context.Context, v *domain.Voucher) error {
	m := voucherFromDomain(v)
	if err := r.db.WithContext(ctx).Save(m).Error; err != nil {
		return fmt.Errorf("failed to save voucher: %w", err)
	}
	v.ID = m.ID
	v.CreatedAt = m.CreatedAt
	v.UpdatedAt = m.UpdatedAt
	return nil
}

func (r *voucherRepository) Get(ctx context.Context, id int64) (*domain.Voucher, error) {
	var m voucherModel
	err := r.db.WithContext(ctx).First(&m, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get voucher %d: %w", id, err)
	}
	return m.toDomain(), nil
}

func (r *voucherRepository) DecrementStock(ctx context.Context, id int64) (bool, error) {
	return decrementStock(r.db.WithContext(ctx), id)
}

// decrementStock is the conditional update that keeps stock non-negative.
func decrementStock(db *gorm.DB, id int64) (bool, error) {
	res := db.Model(&voucherModel{}).
		Where("id = ? AND stock > 0", id).
		UpdateColumn("stock", gorm.Expr("stock - 1"))
	if res.Error != nil {
		return false, fmt.Errorf("failed to decrement stock of voucher %d: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}
