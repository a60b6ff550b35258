package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/camilomorales/domicilios-backend/pkg/enums"
)

// Order is the single source of truth for one delivery purchase. Status,
// payment and payout flags all live on this row so lifecycle updates stay
// atomic per order.
type Order struct {
	ID                   uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BuyerID              uuid.UUID           `gorm:"column:buyer_id;type:uuid;not null"`
	StoreID              uuid.UUID           `gorm:"column:store_id;type:uuid;not null"`
	CourierID            *uuid.UUID          `gorm:"column:courier_id;type:uuid"`
	Status               enums.OrderStatus   `gorm:"column:status;type:text;not null;default:'pending_confirmation'"`
	PaymentStatus        enums.PaymentStatus `gorm:"column:payment_status;type:text;not null;default:'unpaid'"`
	StorePayoutStatus    enums.PayoutStatus  `gorm:"column:store_payout_status;type:text;not null;default:'unpaid'"`
	DeliveryPayoutStatus enums.PayoutStatus  `gorm:"column:delivery_payout_status;type:text;not null;default:'unpaid'"`
	SubtotalCents        int64               `gorm:"column:subtotal_cents;not null"`
	ServiceFeeCents      int64               `gorm:"column:service_fee_cents;not null"`
	DeliveryFeeCents     int64               `gorm:"column:delivery_fee_cents;not null"`
	TotalCents           int64               `gorm:"column:total_cents;not null"`
	CommissionPercent    int                 `gorm:"column:commission_percent;not null"`
	PriceVerified        bool                `gorm:"column:price_verified;not null;default:true"`
	ReadyForPickup       bool                `gorm:"column:ready_for_pickup;not null;default:false"`
	DeliveryAddress      string              `gorm:"column:delivery_address;not null"`
	CustomerName         string              `gorm:"column:customer_name;not null"`
	CustomerPhone        string              `gorm:"column:customer_phone;not null"`
	CustomerCoords       *string             `gorm:"column:customer_coords"`
	Notes                *string             `gorm:"column:notes"`
	TransactionID        *string             `gorm:"column:transaction_id"`
	Items                []OrderItem         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	PaidAt               *time.Time          `gorm:"column:paid_at"`
	DeliveredAt          *time.Time          `gorm:"column:delivered_at"`
	CreatedAt            time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
