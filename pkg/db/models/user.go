package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/camilomorales/domicilios-backend/pkg/enums"
)

// User represents the canonical identity entity. Credentials live with the
// external identity provider; this row keeps profile and delivery metadata.
type User struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Email     string          `gorm:"column:email;type:text;not null;uniqueIndex"`
	FirstName string          `gorm:"column:first_name;not null"`
	LastName  string          `gorm:"column:last_name;not null"`
	Phone     *string         `gorm:"column:phone"`
	Role      enums.ActorRole `gorm:"column:role;type:text;not null"`
	PushToken *string         `gorm:"column:push_token"`
	IsActive  bool            `gorm:"column:is_active;not null;default:true"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
