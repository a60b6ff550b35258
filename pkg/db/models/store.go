package models

import (
	"time"

	"github.com/google/uuid"
)

// Store represents a merchant storefront on the platform.
type Store struct {
	ID                uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OwnerID           uuid.UUID `gorm:"column:owner_id;type:uuid;not null"`
	Name              string    `gorm:"column:name;not null"`
	Description       *string   `gorm:"column:description"`
	Phone             *string   `gorm:"column:phone"`
	Address           string    `gorm:"column:address;not null"`
	CommissionPercent int       `gorm:"column:commission_percent;not null;default:10"`
	IsActive          bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
