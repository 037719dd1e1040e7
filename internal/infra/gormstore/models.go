package gormstore

import (
	"time"

	"github.com/shopspring/decimal"

	"flash-sale/internal/domain"
)

type voucherModel struct {
	ID          int64           `gorm:"primaryKey;autoIncrement"`
	ShopID      int64           `gorm:"not null;index"`
	Title       string          `gorm:"size:255;not null"`
	PayValue    decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	ActualValue decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Stock       int             `gorm:"not null"`
	BeginTime   *time.Time
	EndTime     *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (voucherModel) TableName() string { return "vouchers" }

// orderModel carries the authoritative one-order-per-user-per-voucher index.
type orderModel struct {
	ID        int64 `gorm:"primaryKey;autoIncrement:false"`
	UserID    int64 `gorm:"not null;uniqueIndex:idx_order_user_voucher"`
	VoucherID int64 `gorm:"not null;uniqueIndex:idx_order_user_voucher"`
	Status    int   `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (orderModel) TableName() string { return "voucher_orders" }

type shopModel struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"size:128;not null"`
	TypeID    int64  `gorm:"not null"`
	Area      string `gorm:"size:128"`
	Address   string `gorm:"size:255"`
	AvgPrice  int64
	Sold      int
	Comments  int
	Score     int
	OpenHours string `gorm:"size:32"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (shopModel) TableName() string { return "shops" }

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func timeVal(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func voucherFromDomain(v *domain.Voucher) *voucherModel {
	return &voucherModel{
		ID:          v.ID,
		ShopID:      v.ShopID,
		Title:       v.Title,
		PayValue:    v.PayValue,
		ActualValue: v.ActualValue,
		Stock:       v.Stock,
		BeginTime:   timePtr(v.BeginTime),
		EndTime:     timePtr(v.EndTime),
		CreatedAt:   v.CreatedAt,
		UpdatedAt:   v.UpdatedAt,
	}
}

func (m *voucherModel) toDomain() *domain.Voucher {
	return &domain.Voucher{
		ID:          m.ID,
		ShopID:      m.ShopID,
		Title:       m.Title,
		PayValue:    m.PayValue,
		ActualValue: m.ActualValue,
		Stock:       m.Stock,
		BeginTime:   timeVal(m.BeginTime),
		EndTime:     timeVal(m.EndTime),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func orderFromDomain(o *domain.VoucherOrder) *orderModel {
	return &orderModel{
		ID:        o.ID,
		UserID:    o.UserID,
		VoucherID: o.VoucherID,
		Status:    int(o.Status),
		CreatedAt: o.CreatedAt,
	}
}

func (m *orderModel) toDomain() *domain.VoucherOrder {
	return &domain.VoucherOrder{
		ID:        m.ID,
		UserID:    m.UserID,
		VoucherID: m.VoucherID,
		Status:    domain.OrderStatus(m.Status),
		CreatedAt: m.CreatedAt,
	}
}

func shopFromDomain(s *domain.Shop) *shopModel {
	return &shopModel{
		ID:        s.ID,
		Name:      s.Name,
		TypeID:    s.TypeID,
		Area:      s.Area,
		Address:   s.Address,
		AvgPrice:  s.AvgPrice,
		Sold:      s.Sold,
		Comments:  s.Comments,
		Score:     s.Score,
		OpenHours: s.OpenHours,
		UpdatedAt: s.UpdatedAt,
	}
}

func (m *shopModel) toDomain() *domain.Shop {
	return &domain.Shop{
		ID:        m.ID,
		Name:      m.Name,
		TypeID:    m.TypeID,
		Area:      m.Area,
		Address:   m.Address,
		AvgPrice:  m.AvgPrice,
		Sold:      m.Sold,
		Comments:  m.Comments,
		Score:     m.Score,
		OpenHours: m.OpenHours,
		UpdatedAt: m.UpdatedAt,
	}
}
