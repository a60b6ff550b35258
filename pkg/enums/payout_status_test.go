package enums

import "testing"

func TestParsePayoutRole(t *testing.T) {
	role, err := ParsePayoutRole("store")
	if err != nil || role != PayoutRoleStore {
		t.Fatalf("ParsePayoutRole(store) = %s, %v", role, err)
	}

	role, err = ParsePayoutRole("delivery")
	if err != nil || role != PayoutRoleDelivery {
		t.Fatalf("ParsePayoutRole(delivery) = %s, %v", role, err)
	}

	// "courier" names the user role, not a payout ledger side.
	if _, err := ParsePayoutRole("courier"); err == nil {
		t.Fatalf("ParsePayoutRole(courier) should fail")
	}
}

func TestPayoutRoleIsValid(t *testing.T) {
	if !PayoutRoleStore.IsValid() || !PayoutRoleDelivery.IsValid() {
		t.Fatalf("canonical payout roles must be valid")
	}
	if PayoutRole("courier").IsValid() {
		t.Fatalf("courier is not a payout role")
	}
}
