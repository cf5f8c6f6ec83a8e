package enums

import "fmt"

// ItemStatus is the derived availability state of an inventory item.
type ItemStatus string

const (
	ItemStatusAvailable     ItemStatus = "available"
	ItemStatusLowStock      ItemStatus = "low_stock"
	ItemStatusOutOfStock    ItemStatus = "out_of_stock"
	ItemStatusExpired       ItemStatus = "expired"
	ItemStatusInMaintenance ItemStatus = "in_maintenance"
	ItemStatusInUse         ItemStatus = "in_use"
)

var validItemStatuses = []ItemStatus{
	ItemStatusAvailable,
	ItemStatusLowStock,
	ItemStatusOutOfStock,
	ItemStatusExpired,
	ItemStatusInMaintenance,
	ItemStatusInUse,
}

// String implements fmt.Stringer.
func (s ItemStatus) String() string {
	return string(s)
}

// Allocatable reports whether an item in this status can take part in a new
// booking allocation. Expired and in-maintenance items are withdrawn from
// circulation; in-use equipment is already claimed by another booking.
func (s ItemStatus) Allocatable() bool {
	switch s {
	case ItemStatusExpired, ItemStatusInMaintenance, ItemStatusInUse:
		return false
	default:
		return true
	}
}

// IsValid reports whether the value is a known ItemStatus.
func (s ItemStatus) IsValid() bool {
	for _, candidate := range validItemStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseItemStatus converts raw input into an ItemStatus.
func ParseItemStatus(value string) (ItemStatus, error) {
	for _, candidate := range validItemStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid item status %q", value)
}
