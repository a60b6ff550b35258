package enums

import "fmt"

// OrderStatus tracks the lifecycle of an order from placement to handoff.
type OrderStatus string

const (
	OrderStatusPendingConfirmation OrderStatus = "pending_confirmation"
	OrderStatusPendingPayment      OrderStatus = "pending_payment"
	OrderStatusInPreparation       OrderStatus = "in_preparation"
	OrderStatusInDelivery          OrderStatus = "in_delivery"
	OrderStatusDelivered           OrderStatus = "delivered"
	OrderStatusRejected            OrderStatus = "rejected"
	OrderStatusCancelled           OrderStatus = "cancelled"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPendingConfirmation,
	OrderStatusPendingPayment,
	OrderStatusInPreparation,
	OrderStatusInDelivery,
	OrderStatusDelivered,
	OrderStatusRejected,
	OrderStatusCancelled,
}

// String implements fmt.Stringer.
func (o OrderStatus) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderStatus.
func (o OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == o {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions may leave the status.
func (o OrderStatus) IsTerminal() bool {
	switch o {
	case OrderStatusDelivered, OrderStatusRejected, OrderStatusCancelled:
		return true
	}
	return false
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
