package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/camilomorales/domicilios-backend/pkg/enums"
)

// WithdrawalRequest records a store or courier asking to cash out part of
// their available balance to an external account. Rejected requests release
// the held amount. RequesterID is the ledger subject, not necessarily a user:
// store requests carry the store id.
type WithdrawalRequest struct {
	ID                 uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RequesterID        uuid.UUID              `gorm:"column:requester_id;type:uuid;not null"`
	Role               enums.PayoutRole       `gorm:"column:role;type:text;not null"`
	AmountCents        int64                  `gorm:"column:amount_cents;not null"`
	DestinationAccount string                 `gorm:"column:destination_account;not null"`
	Status             enums.WithdrawalStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	Reason             *string                `gorm:"column:reason"`
	ProcessedBy        *uuid.UUID             `gorm:"column:processed_by;type:uuid"`
	ProcessedAt        *time.Time             `gorm:"column:processed_at"`
	CreatedAt          time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
