package payouts

import (
	"github.com/camilomorales/domicilios-backend/pkg/db/models"
	"github.com/camilomorales/domicilios-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

// Balance summarizes what a store or courier has earned and can withdraw.
// Held covers withdrawals that are pending review or already approved;
// rejected requests release their amount back.
type Balance struct {
	Role           enums.PayoutRole `json:"role"`
	EarnedCents    int64            `json:"earned_cents"`
	HeldCents      int64            `json:"held_cents"`
	AvailableCents int64            `json:"available_cents"`
	UnpaidOrders   int              `json:"unpaid_orders"`
}

// storeOrderCreditCents is the store's cut of one delivered order: the
// subtotal minus the platform commission, rounded half up to whole cents.
func storeOrderCreditCents(subtotalCents int64, commissionPercent int) int64 {
	if subtotalCents <= 0 {
		return 0
	}
	if commissionPercent <= 0 {
		return subtotalCents
	}
	if commissionPercent >= 100 {
		return 0
	}
	credit := decimal.NewFromInt(subtotalCents).
		Mul(decimal.NewFromInt(int64(100 - commissionPercent))).
		Div(decimal.NewFromInt(100)).
		Round(0)
	return credit.IntPart()
}

// orderCreditCents returns the payable amount of one delivered order for the
// given side of the marketplace. Couriers earn the delivery fee as is.
func orderCreditCents(order models.Order, role enums.PayoutRole) int64 {
	switch role {
	case enums.PayoutRoleStore:
		return storeOrderCreditCents(order.SubtotalCents, order.CommissionPercent)
	case enums.PayoutRoleDelivery:
		return order.DeliveryFeeCents
	}
	return 0
}

// buildBalance folds delivered unpaid orders and held withdrawals into a
// balance. Available never goes below zero.
func buildBalance(role enums.PayoutRole, unpaid []models.Order, heldCents int64) Balance {
	var earned int64
	for _, order := range unpaid {
		earned += orderCreditCents(order, role)
	}

	available := earned - heldCents
	if available < 0 {
		available = 0
	}

	return Balance{
		Role:           role,
		EarnedCents:    earned,
		HeldCents:      heldCents,
		AvailableCents: available,
		UnpaidOrders:   len(unpaid),
	}
}
