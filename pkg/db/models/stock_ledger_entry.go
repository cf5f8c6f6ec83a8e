package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/openlabworks/labops-backend/pkg/enums"
)

// StockLedgerEntry records one immutable quantity change. Entries are append
// only; for every item the deltas must sum to quantity minus initial quantity.
type StockLedgerEntry struct {
	ID        uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ItemID    uuid.UUID          `gorm:"column:item_id;type:uuid;not null"`
	LabID     uuid.UUID          `gorm:"column:lab_id;type:uuid;not null"`
	Delta     int                `gorm:"column:delta;not null"`
	Kind      enums.MovementKind `gorm:"column:kind;type:movement_kind;not null"`
	ActorID   uuid.UUID          `gorm:"column:actor_id;type:uuid;not null"`
	Reason    string             `gorm:"column:reason;not null"`
	BookingID *uuid.UUID         `gorm:"column:booking_id;type:uuid"`
	CreatedAt time.Time          `gorm:"column:created_at;autoCreateTime"`
}
