package models

import (
	"time"

	"github.com/google/uuid"
)

// Lab is the physical resource bookings compete over. Lab CRUD lives outside
// this service; rows here exist so bookings and stock can reference them.
type Lab struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name      string    `gorm:"column:name;not null"`
	Building  *string   `gorm:"column:building"`
	Capacity  int       `gorm:"column:capacity;not null;default:0"`
	IsActive  bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
