package inventory

import (
	"time"

	"github.com/openlabworks/labops-backend/pkg/db/models"
	"github.com/openlabworks/labops-backend/pkg/enums"
)

// deriveStatus computes the item status from its quantities and expiry.
// Maintenance and equipment in-use are sticky states cleared by their own
// paths, not by quantity math.
func deriveStatus(item *models.InventoryItem, now time.Time) enums.ItemStatus {
	if item.ExpiresAt != nil && !item.ExpiresAt.After(now) {
		return enums.ItemStatusExpired
	}
	if item.Status == enums.ItemStatusInMaintenance {
		return enums.ItemStatusInMaintenance
	}
	if item.Kind == enums.ItemKindEquipment && item.Status == enums.ItemStatusInUse {
		return enums.ItemStatusInUse
	}
	if item.AvailableQty <= 0 {
		return enums.ItemStatusOutOfStock
	}
	if item.AvailableQty <= item.MinimumQty {
		return enums.ItemStatusLowStock
	}
	return enums.ItemStatusAvailable
}

// recompute applies deriveStatus in place.
func recompute(item *models.InventoryItem, now time.Time) {
	item.Status = deriveStatus(item, now)
}
