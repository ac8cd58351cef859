package enums

import "fmt"

// InventoryFlagKind classifies why a stock item needs operator attention.
type InventoryFlagKind string

const (
	FlagNegativeAvailable    InventoryFlagKind = "negative_available"
	FlagReservationUnderflow InventoryFlagKind = "reservation_underflow"
	FlagLedgerDrift          InventoryFlagKind = "ledger_drift"
)

var validInventoryFlagKinds = []InventoryFlagKind{
	FlagNegativeAvailable,
	FlagReservationUnderflow,
	FlagLedgerDrift,
}

func (k InventoryFlagKind) IsValid() bool {
	for _, candidate := range validInventoryFlagKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// InventoryFlagStatus tracks whether a flag is still awaiting review.
type InventoryFlagStatus string

const (
	FlagStatusOpen     InventoryFlagStatus = "open"
	FlagStatusResolved InventoryFlagStatus = "resolved"
)

// ParseInventoryFlagStatus converts raw input into an InventoryFlagStatus.
func ParseInventoryFlagStatus(value string) (InventoryFlagStatus, error) {
	switch InventoryFlagStatus(value) {
	case FlagStatusOpen, FlagStatusResolved:
		return InventoryFlagStatus(value), nil
	}
	return "", fmt.Errorf("invalid inventory flag status %q", value)
}
