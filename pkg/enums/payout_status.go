package enums

import "fmt"

// PayoutStatus tracks whether earnings from a delivered order have been
// remitted to the store or courier.
type PayoutStatus string

const (
	PayoutStatusUnpaid PayoutStatus = "unpaid"
	PayoutStatusPaid   PayoutStatus = "paid"
)

var validPayoutStatuses = []PayoutStatus{
	PayoutStatusUnpaid,
	PayoutStatusPaid,
}

func (p PayoutStatus) String() string {
	return string(p)
}

func (p PayoutStatus) IsValid() bool {
	for _, candidate := range validPayoutStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

func ParsePayoutStatus(value string) (PayoutStatus, error) {
	for _, candidate := range validPayoutStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payout status %q", value)
}

// PayoutRole identifies which side of a delivered order a payout targets.
type PayoutRole string

const (
	PayoutRoleStore    PayoutRole = "store"
	PayoutRoleDelivery PayoutRole = "delivery"
)

func (r PayoutRole) IsValid() bool {
	return r == PayoutRoleStore || r == PayoutRoleDelivery
}

func ParsePayoutRole(value string) (PayoutRole, error) {
	switch PayoutRole(value) {
	case PayoutRoleStore:
		return PayoutRoleStore, nil
	case PayoutRoleDelivery:
		return PayoutRoleDelivery, nil
	}
	return "", fmt.Errorf("invalid payout role %q", value)
}
