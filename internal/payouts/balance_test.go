package payouts

import (
	"testing"

	"github.com/camilomorales/domicilios-backend/pkg/db/models"
	"github.com/camilomorales/domicilios-backend/pkg/enums"
)

func TestStoreOrderCreditCents(t *testing.T) {
	cases := []struct {
		name       string
		subtotal   int64
		commission int
		want       int64
	}{
		{"ten percent commission", 1000, 10, 900},
		{"rounds half up", 999, 10, 899},
		{"no commission", 1000, 0, 1000},
		{"full commission", 1000, 100, 0},
		{"zero subtotal", 0, 10, 0},
		{"large order", 15000000, 12, 13200000},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := storeOrderCreditCents(tc.subtotal, tc.commission)
			if got != tc.want {
				t.Fatalf("storeOrderCreditCents(%d, %d) = %d, want %d", tc.subtotal, tc.commission, got, tc.want)
			}
		})
	}
}

func TestOrderCreditCentsByRole(t *testing.T) {
	order := models.Order{
		SubtotalCents:     1000,
		DeliveryFeeCents:  200000,
		CommissionPercent: 10,
	}

	if got := orderCreditCents(order, enums.PayoutRoleStore); got != 900 {
		t.Fatalf("store credit = %d, want 900", got)
	}
	if got := orderCreditCents(order, enums.PayoutRoleDelivery); got != 200000 {
		t.Fatalf("courier credit = %d, want 200000", got)
	}
}

func TestBuildBalance(t *testing.T) {
	unpaid := []models.Order{
		{SubtotalCents: 1000, CommissionPercent: 10},
		{SubtotalCents: 2000, CommissionPercent: 10},
	}

	balance := buildBalance(enums.PayoutRoleStore, unpaid, 500)
	if balance.EarnedCents != 2700 {
		t.Fatalf("earned = %d, want 2700", balance.EarnedCents)
	}
	if balance.HeldCents != 500 {
		t.Fatalf("held = %d, want 500", balance.HeldCents)
	}
	if balance.AvailableCents != 2200 {
		t.Fatalf("available = %d, want 2200", balance.AvailableCents)
	}
	if balance.UnpaidOrders != 2 {
		t.Fatalf("unpaid orders = %d, want 2", balance.UnpaidOrders)
	}
}

func TestBuildBalanceFloorsAtZero(t *testing.T) {
	unpaid := []models.Order{{SubtotalCents: 1000, CommissionPercent: 10}}

	balance := buildBalance(enums.PayoutRoleStore, unpaid, 5000)
	if balance.AvailableCents != 0 {
		t.Fatalf("available = %d, want 0", balance.AvailableCents)
	}
	if balance.EarnedCents != 900 {
		t.Fatalf("earned = %d, want 900", balance.EarnedCents)
	}
}

func TestBuildBalanceCourierSumsDeliveryFees(t *testing.T) {
	unpaid := []models.Order{
		{DeliveryFeeCents: 200000},
		{DeliveryFeeCents: 200000},
	}

	balance := buildBalance(enums.PayoutRoleDelivery, unpaid, 0)
	if balance.EarnedCents != 400000 {
		t.Fatalf("earned = %d, want 400000", balance.EarnedCents)
	}
	if balance.AvailableCents != 400000 {
		t.Fatalf("available = %d, want 400000", balance.AvailableCents)
	}
}
