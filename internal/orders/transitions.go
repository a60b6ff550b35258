package orders

import (
	"github.com/camilomorales/domicilios-backend/pkg/enums"
)

type transitionKey struct {
	from enums.OrderStatus
	to   enums.OrderStatus
}

// transitionRoles maps each legal public transition to the role allowed to
// request it. pending_payment -> in_preparation is deliberately absent: that
// edge belongs to the payment settlement flow.
var transitionRoles = map[transitionKey]enums.ActorRole{
	{enums.OrderStatusPendingConfirmation, enums.OrderStatusPendingPayment}: enums.ActorRoleStore,
	{enums.OrderStatusPendingConfirmation, enums.OrderStatusRejected}:       enums.ActorRoleStore,
	{enums.OrderStatusPendingConfirmation, enums.OrderStatusCancelled}:      enums.ActorRoleBuyer,
	{enums.OrderStatusInPreparation, enums.OrderStatusInDelivery}:           enums.ActorRoleCourier,
	{enums.OrderStatusInDelivery, enums.OrderStatusDelivered}:               enums.ActorRoleCourier,
}

// allowedRole returns the role permitted to move an order between the given
// statuses, or false when the edge is not part of the public state machine.
func allowedRole(from, to enums.OrderStatus) (enums.ActorRole, bool) {
	role, ok := transitionRoles[transitionKey{from: from, to: to}]
	return role, ok
}

// reservedForSettlement reports whether the requested edge exists but is
// owned by the payment confirmation flow.
func reservedForSettlement(from, to enums.OrderStatus) bool {
	return from == enums.OrderStatusPendingPayment && to == enums.OrderStatusInPreparation
}
