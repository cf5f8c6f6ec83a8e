package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/openlabworks/labops-backend/pkg/enums"
)

// CatalogueItem describes a kind of thing stock can exist of (reagent, scope).
// Catalogue CRUD is managed elsewhere; inventory rows point at these entries.
type CatalogueItem struct {
	ID        uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name      string         `gorm:"column:name;not null"`
	Unit      string         `gorm:"column:unit;not null;default:'piece'"`
	Kind      enums.ItemKind `gorm:"column:kind;type:item_kind;not null"`
	SKU       *string        `gorm:"column:sku"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
