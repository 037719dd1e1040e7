package domain

import (
	"context"
	"time"
)

// Shop is the read-mostly record served through the cache.
type Shop struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	TypeID    int64     `json:"type_id"`
	Area      string    `json:"area,omitempty"`
	Address   string    `json:"address"`
	AvgPrice  int64     `json:"avg_price"`
	Sold      int       `json:"sold"`
	Comments  int       `json:"comments"`
	Score     int       `json:"score"`
	OpenHours string    `json:"open_hours,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ShopRepository is the persistent store for shops.
type ShopRepository interface {
	Get(ctx context.Context, id int64) (*Shop, error)
	Save(ctx context.Context, shop *Shop) error
}
