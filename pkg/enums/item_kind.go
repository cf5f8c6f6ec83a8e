package enums

import "fmt"

// ItemKind distinguishes depletable stock from equipment reserved for exclusive use.
type ItemKind string

const (
	ItemKindConsumable ItemKind = "consumable"
	ItemKindEquipment  ItemKind = "equipment"
)

var validItemKinds = []ItemKind{
	ItemKindConsumable,
	ItemKindEquipment,
}

// String implements fmt.Stringer.
func (k ItemKind) String() string {
	return string(k)
}

// IsValid reports whether the value is a known ItemKind.
func (k ItemKind) IsValid() bool {
	for _, candidate := range validItemKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseItemKind converts raw input into an ItemKind.
func ParseItemKind(value string) (ItemKind, error) {
	for _, candidate := range validItemKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid item kind %q", value)
}
