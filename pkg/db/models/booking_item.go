package models

import (
	"time"

	"github.com/google/uuid"
)

// BookingItem is one requested line of a booking. RequestedQty is copied at
// request time so later catalogue edits never change a pending request.
// AllocatedQty/AllocatedAt form the allocation record: zero/nil until approval
// reserves stock, cleared again when the allocation is released. A nil
// AllocatedAt is the idempotence guard the release path checks before
// restoring quantities.
type BookingItem struct {
	ID           uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BookingID    uuid.UUID  `gorm:"column:booking_id;type:uuid;not null"`
	ItemID       uuid.UUID  `gorm:"column:item_id;type:uuid;not null"`
	RequestedQty int        `gorm:"column:requested_qty;not null"`
	AllocatedQty int        `gorm:"column:allocated_qty;not null;default:0"`
	AllocatedAt  *time.Time `gorm:"column:allocated_at"`
	Note         *string    `gorm:"column:note"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
