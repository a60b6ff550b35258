package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderItem captures the snapshot of each product within an order at
// placement time. Catalog edits after placement never touch these rows.
type OrderItem struct {
	ID             uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID  `gorm:"column:order_id;type:uuid;not null"`
	ProductID      *uuid.UUID `gorm:"column:product_id;type:uuid"`
	Name           string     `gorm:"column:name;not null"`
	UnitPriceCents int64      `gorm:"column:unit_price_cents;not null"`
	Qty            int        `gorm:"column:qty;not null"`
	TotalCents     int64      `gorm:"column:total_cents;not null"`
	PriceVerified  bool       `gorm:"column:price_verified;not null;default:true"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
