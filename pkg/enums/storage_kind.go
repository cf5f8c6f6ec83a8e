package enums

import "fmt"

// StorageKind locates stock within a lab.
type StorageKind string

const (
	StorageKindShelf    StorageKind = "shelf"
	StorageKindCabinet  StorageKind = "cabinet"
	StorageKindColdRoom StorageKind = "cold_room"
	StorageKindFumeHood StorageKind = "fume_hood"
)

var validStorageKinds = []StorageKind{
	StorageKindShelf,
	StorageKindCabinet,
	StorageKindColdRoom,
	StorageKindFumeHood,
}

// String implements fmt.Stringer.
func (s StorageKind) String() string {
	return string(s)
}

// IsValid reports whether the value is a known StorageKind.
func (s StorageKind) IsValid() bool {
	for _, candidate := range validStorageKinds {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseStorageKind converts raw input into a StorageKind.
func ParseStorageKind(value string) (StorageKind, error) {
	for _, candidate := range validStorageKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid storage kind %q", value)
}
