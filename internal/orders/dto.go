package orders

import (
	"time"

	"github.com/camilomorales/domicilios-backend/pkg/enums"
	"github.com/google/uuid"
)

// Actor identifies the authenticated caller for permission checks.
type Actor struct {
	UserID uuid.UUID
	Role   enums.ActorRole
}

// CreateOrderItemInput is one requested line in a new order. UnitPriceCents
// is the client's view of the price and only wins when the catalog has no
// matching product.
type CreateOrderItemInput struct {
	ProductID      *uuid.UUID
	Name           string
	UnitPriceCents int64
	Qty            int
}

// CreateOrderInput captures everything needed to assemble an order. The
// customer fields are snapshotted onto the order so the store and courier can
// reach the buyer even if the profile changes later.
type CreateOrderInput struct {
	BuyerID         uuid.UUID
	StoreID         uuid.UUID
	DeliveryAddress string
	CustomerName    string
	CustomerPhone   string
	CustomerCoords  *string
	Notes           *string
	Items           []CreateOrderItemInput
}

// TransitionInput carries a requested status change and who is asking for it.
type TransitionInput struct {
	OrderID uuid.UUID
	Target  enums.OrderStatus
	Actor   Actor
}

// ListFilters describe the optional filters on the order lists.
type ListFilters struct {
	Status *enums.OrderStatus
}

// OrderSummary exposes the aggregated fields returned in order lists.
type OrderSummary struct {
	ID             uuid.UUID           `json:"id"`
	StoreID        uuid.UUID           `json:"store_id"`
	Status         enums.OrderStatus   `json:"status"`
	PaymentStatus  enums.PaymentStatus `json:"payment_status"`
	TotalCents     int64               `json:"total_cents"`
	TotalItems     int                 `json:"total_items"`
	ReadyForPickup bool                `json:"ready_for_pickup"`
	CreatedAt      time.Time           `json:"created_at"`
}

// OrderList wraps the paginated orders plus the next page cursor.
type OrderList struct {
	Orders     []OrderSummary `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}
