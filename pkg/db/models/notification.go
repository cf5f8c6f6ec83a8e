package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/openlabworks/labops-backend/pkg/enums"
)

// Notification is a best-effort side channel row written after state
// transitions. Delivery is someone else's problem; failure to write one never
// fails the transition that produced it.
type Notification struct {
	ID          uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RecipientID uuid.UUID              `gorm:"column:recipient_id;type:uuid;not null"`
	Type        enums.NotificationType `gorm:"column:type;type:notification_type;not null"`
	Message     string                 `gorm:"column:message;not null"`
	BookingID   *uuid.UUID             `gorm:"column:booking_id;type:uuid"`
	ItemID      *uuid.UUID             `gorm:"column:item_id;type:uuid"`
	ReadAt      *time.Time             `gorm:"column:read_at"`
	CreatedAt   time.Time              `gorm:"column:created_at;autoCreateTime"`
}
