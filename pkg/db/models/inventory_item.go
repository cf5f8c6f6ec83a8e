package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openlabworks/labops-backend/pkg/enums"
)

// InventoryItem is the current-quantity projection for one catalogue entry at
// one (lab, storage) location. Quantities move only through the stock service;
// the stock ledger keeps the history. Rows are soft-deleted once retired so
// ledger references stay resolvable.
type InventoryItem struct {
	ID              uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CatalogueItemID uuid.UUID         `gorm:"column:catalogue_item_id;type:uuid;not null"`
	LabID           uuid.UUID         `gorm:"column:lab_id;type:uuid;not null"`
	Storage         enums.StorageKind `gorm:"column:storage;type:storage_kind;not null;default:'shelf'"`
	Kind            enums.ItemKind    `gorm:"column:kind;type:item_kind;not null"`
	Quantity        int               `gorm:"column:quantity;not null;default:0"`
	AvailableQty    int               `gorm:"column:available_qty;not null;default:0"`
	InitialQty      int               `gorm:"column:initial_qty;not null;default:0"`
	MinimumQty      int               `gorm:"column:minimum_qty;not null;default:0"`
	Status          enums.ItemStatus  `gorm:"column:status;type:item_status;not null;default:'available'"`
	ExpiresAt       *time.Time        `gorm:"column:expires_at"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time         `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt       gorm.DeletedAt    `gorm:"column:deleted_at;index"`
}
