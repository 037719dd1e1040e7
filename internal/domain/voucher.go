package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Voucher is a flash-sale voucher together with its inventory.
// Stock is owned by the persistent store and never goes below zero.
type Voucher struct {
	ID          int64           `json:"id"`
	ShopID      int64           `json:"shop_id"`
	Title       string          `json:"title"`
	PayValue    decimal.Decimal `json:"pay_value"`
	ActualValue decimal.Decimal `json:"actual_value"`
	Stock       int             `json:"stock"`
	BeginTime   time.Time       `json:"begin_time"`
	EndTime     time.Time       `json:"end_time"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Validate checks if the voucher definition is valid.
func (v *Voucher) Validate() error {
	if v.ShopID <= 0 {
		return fmt.Errorf("voucher shop id must be positive: %w", ErrInvalidArgument)
	}
	if v.Title == "" {
		return fmt.Errorf("voucher title cannot be empty: %w", ErrInvalidArgument)
	}
	if v.Stock < 0 {
		return fmt.Errorf("voucher stock cannot be negative: %w", ErrInvalidArgument)
	}
	if v.PayValue.IsNegative() || v.ActualValue.IsNegative() {
		return fmt.Errorf("voucher values cannot be negative: %w", ErrInvalidArgument)
	}
	if !v.BeginTime.IsZero() && !v.EndTime.IsZero() && !v.EndTime.After(v.BeginTime) {
		return fmt.Errorf("voucher end time must be after begin time: %w", ErrInvalidArgument)
	}
	return nil
}

// InWindow reports whether t falls inside the sale window. Zero bounds are open.
func (v *Voucher) InWindow(t time.Time) bool {
	if !v.BeginTime.IsZero() && t.Before(v.BeginTime) {
		return false
	}
	if !v.EndTime.IsZero() && t.After(v.EndTime) {
		return false
	}
	return true
}

// VoucherRepository is the persistent store for vouchers.
type VoucherRepository interface {
	Save(ctx context.Context, v *Voucher) error
	Get(ctx context.Context, id int64) (*Voucher, error)
	// DecrementStock decrements stock by one only if it is positive.
	// It reports false when nothing was decremented.
	DecrementStock(ctx context.Context, id int64) (bool, error)
}
