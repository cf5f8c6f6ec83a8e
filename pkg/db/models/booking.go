package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/openlabworks/labops-backend/pkg/enums"
)

// Booking reserves a lab for a half-open window [StartTime, EndTime). Bookings
// are never physically deleted; every exit from the active states is a status
// transition recorded with its actor and timestamp.
type Booking struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	LabID           uuid.UUID           `gorm:"column:lab_id;type:uuid;not null"`
	RequesterID     uuid.UUID           `gorm:"column:requester_id;type:uuid;not null"`
	Purpose         *string             `gorm:"column:purpose"`
	StartTime       time.Time           `gorm:"column:start_time;not null"`
	EndTime         time.Time           `gorm:"column:end_time;not null"`
	Status          enums.BookingStatus `gorm:"column:status;type:booking_status;not null;default:'pending'"`
	DecidedBy       *uuid.UUID          `gorm:"column:decided_by;type:uuid"`
	DecidedAt       *time.Time          `gorm:"column:decided_at"`
	RejectionReason *string             `gorm:"column:rejection_reason"`
	CancelledBy     *uuid.UUID          `gorm:"column:cancelled_by;type:uuid"`
	CancelledAt     *time.Time          `gorm:"column:cancelled_at"`
	CompletedAt     *time.Time          `gorm:"column:completed_at"`
	Items           []BookingItem       `gorm:"foreignKey:BookingID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
