package domain

import (
	"context"
	"fmt"
	"time"
)

// OrderIntent is an admitted-but-not-yet-persisted order. The order id is
// assigned before enqueueing so the client can reference it immediately.
type OrderIntent struct {
	OrderID   int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	VoucherID int64     `json:"voucher_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks if the intent carries all identifiers.
func (i *OrderIntent) Validate() error {
	if i.OrderID <= 0 {
		return fmt.Errorf("order id must be positive: %w", ErrInvalidArgument)
	}
	if i.UserID <= 0 {
		return fmt.Errorf("user id must be positive: %w", ErrInvalidArgument)
	}
	if i.VoucherID <= 0 {
		return fmt.Errorf("voucher id must be positive: %w", ErrInvalidArgument)
	}
	return nil
}

// OrderStatus is the lifecycle state of a persisted voucher order.
type OrderStatus int

const (
	OrderStatusUnpaid OrderStatus = iota + 1
	OrderStatusPaid
	OrderStatusUsed
	OrderStatusCancelled
)

// VoucherOrder is the durable order row.
type VoucherOrder struct {
	ID        int64       `json:"id"`
	UserID    int64       `json:"user_id"`
	VoucherID int64       `json:"voucher_id"`
	Status    OrderStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
}

// NewVoucherOrder builds the unpaid order row for an intent.
func NewVoucherOrder(intent *OrderIntent) *VoucherOrder {
	return &VoucherOrder{
		ID:        intent.OrderID,
		UserID:    intent.UserID,
		VoucherID: intent.VoucherID,
		Status:    OrderStatusUnpaid,
		CreatedAt: intent.CreatedAt,
	}
}

// OrderStore is a view of the order tables bound to one transaction.
type OrderStore interface {
	// Count returns how many orders exist for the (user, voucher) pair.
	Count(ctx context.Context, userID, voucherID int64) (int64, error)
	// DecrementStock is the conditional "stock = stock - 1 where stock > 0".
	DecrementStock(ctx context.Context, voucherID int64) (bool, error)
	// Insert persists the order. A uniqueness conflict maps to ErrDuplicateOrder.
	Insert(ctx context.Context, order *VoucherOrder) error
}

// OrderRepository is the persistent store for orders. The transactional
// store is handed to fn explicitly; nothing is carried in ambient state.
type OrderRepository interface {
	Count(ctx context.Context, userID, voucherID int64) (int64, error)
	Get(ctx context.Context, id int64) (*VoucherOrder, error)
	WithTx(ctx context.Context, fn func(store OrderStore) error) error
}
