package http

import (
	"time"

	"github.com/shopspring/decimal"

	"flash-sale/internal/domain"
)

// PublishVoucherRequest is the Data Transfer Object for publishing a
// flash-sale voucher.
type PublishVoucherRequest struct {
	ShopID      int64      `json:"shop_id" validate:"required,gt=0"`
	Title       string     `json:"title" validate:"required,min=1,max=255"`
	PayValue    string     `json:"pay_value" validate:"required,decimal"`
	ActualValue string     `json:"actual_value" validate:"required,decimal"`
	Stock       int        `json:"stock" validate:"gte=0,lte=10000000"`
	BeginTime   *time.Time `json:"begin_time,omitempty"`
	EndTime     *time.Time `json:"end_time,omitempty"`
}

// ToDomainVoucher converts the request. Values were validated as decimals.
func (r *PublishVoucherRequest) ToDomainVoucher() *domain.Voucher {
	v := &domain.Voucher{
		ShopID:      r.ShopID,
		Title:       r.Title,
		PayValue:    decimal.RequireFromString(r.PayValue),
		ActualValue: decimal.RequireFromString(r.ActualValue),
		Stock:       r.Stock,
	}
	if r.BeginTime != nil {
		v.BeginTime = *r.BeginTime
	}
	if r.EndTime != nil {
		v.EndTime = *r.EndTime
	}
	return v
}

// UpdateShopRequest is the Data Transfer Object for updating a shop.
type UpdateShopRequest struct {
	Name      string `json:"name" validate:"required,min=1,max=128"`
	TypeID    int64  `json:"type_id" validate:"required,gt=0"`
	Area      string `json:"area" validate:"max=128"`
	Address   string `json:"address" validate:"max=255"`
	AvgPrice  int64  `json:"avg_price" validate:"gte=0"`
	Sold      int    `json:"sold" validate:"gte=0"`
	Comments  int    `json:"comments" validate:"gte=0"`
	Score     int    `json:"score" validate:"gte=0,lte=50"`
	OpenHours string `json:"open_hours" validate:"max=32"`
}

func (r *UpdateShopRequest) ToDomainShop(id int64) *domain.Shop {
	return &domain.Shop{
		ID:        id,
		Name:      r.Name,
		TypeID:    r.TypeID,
		Area:      r.Area,
		Address:   r.Address,
		AvgPrice:  r.AvgPrice,
		Sold:      r.Sold,
		Comments:  r.Comments,
		Score:     r.Score,
		OpenHours: r.OpenHours,
	}
}

// SeckillResponse carries the order id of an admitted request. The id is
// encoded as a string since it does not fit in a JavaScript number.
type SeckillResponse struct {
	OrderID int64 `json:"order_id,string"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Status  string   `json:"status"`
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}
