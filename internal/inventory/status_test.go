package inventory

import (
	"testing"
	"time"

	"github.com/openlabworks/labops-backend/pkg/db/models"
	"github.com/openlabworks/labops-backend/pkg/enums"
)

func TestDeriveStatus(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(24 * time.Hour)

	cases := []struct {
		name string
		item models.InventoryItem
		want enums.ItemStatus
	}{
		{
			name: "healthy stock",
			item: models.InventoryItem{Kind: enums.ItemKindConsumable, AvailableQty: 10, MinimumQty: 2},
			want: enums.ItemStatusAvailable,
		},
		{
			name: "at minimum is low",
			item: models.InventoryItem{Kind: enums.ItemKindConsumable, AvailableQty: 2, MinimumQty: 2},
			want: enums.ItemStatusLowStock,
		},
		{
			name: "zero is out of stock",
			item: models.InventoryItem{Kind: enums.ItemKindConsumable, AvailableQty: 0, MinimumQty: 2},
			want: enums.ItemStatusOutOfStock,
		},
		{
			name: "expiry wins over quantity",
			item: models.InventoryItem{Kind: enums.ItemKindConsumable, AvailableQty: 10, ExpiresAt: &past},
			want: enums.ItemStatusExpired,
		},
		{
			name: "expiry boundary is exclusive until passed",
			item: models.InventoryItem{Kind: enums.ItemKindConsumable, AvailableQty: 10, ExpiresAt: &future},
			want: enums.ItemStatusAvailable,
		},
		{
			name: "maintenance is sticky",
			item: models.InventoryItem{Kind: enums.ItemKindEquipment, AvailableQty: 1, Status: enums.ItemStatusInMaintenance},
			want: enums.ItemStatusInMaintenance,
		},
		{
			name: "equipment in use is sticky",
			item: models.InventoryItem{Kind: enums.ItemKindEquipment, AvailableQty: 1, Status: enums.ItemStatusInUse},
			want: enums.ItemStatusInUse,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := deriveStatus(&tc.item, now)
			if got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestAllocatable(t *testing.T) {
	if enums.ItemStatusExpired.Allocatable() {
		t.Fatal("expired items must not be reservable")
	}
	if enums.ItemStatusInMaintenance.Allocatable() {
		t.Fatal("items in maintenance must not be reservable")
	}
	if enums.ItemStatusInUse.Allocatable() {
		t.Fatal("in-use equipment must not be reservable")
	}
	if !enums.ItemStatusAvailable.Allocatable() || !enums.ItemStatusLowStock.Allocatable() {
		t.Fatal("stocked items must be reservable")
	}
	if !enums.ItemStatusOutOfStock.Allocatable() {
		t.Fatal("out-of-stock items fail on quantity, not status")
	}
}
