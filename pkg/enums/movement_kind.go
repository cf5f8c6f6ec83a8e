package enums

import "fmt"

// MovementKind classifies a stock ledger entry.
type MovementKind string

const (
	MovementKindAdd         MovementKind = "add"
	MovementKindRemove      MovementKind = "remove"
	MovementKindAdjust      MovementKind = "adjust"
	MovementKindTransferIn  MovementKind = "transfer_in"
	MovementKindTransferOut MovementKind = "transfer_out"
)

var validMovementKinds = []MovementKind{
	MovementKindAdd,
	MovementKindRemove,
	MovementKindAdjust,
	MovementKindTransferIn,
	MovementKindTransferOut,
}

// String implements fmt.Stringer.
func (m MovementKind) String() string {
	return string(m)
}

// IsValid reports whether the value is a known MovementKind.
func (m MovementKind) IsValid() bool {
	for _, candidate := range validMovementKinds {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMovementKind converts raw input into a MovementKind.
func ParseMovementKind(value string) (MovementKind, error) {
	for _, candidate := range validMovementKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid movement kind %q", value)
}
