package bookings

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/openlabworks/labops-backend/pkg/db/models"
	"github.com/openlabworks/labops-backend/pkg/enums"
	"github.com/openlabworks/labops-backend/pkg/pagination"
)

// ListFilter narrows booking listings.
type ListFilter struct {
	LabID       *uuid.UUID
	RequesterID *uuid.UUID
	Status      *enums.BookingStatus
}

// Repository manages persistence for bookings and their item lines.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, booking *models.Booking) error
	FindByID(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error)
	List(ctx context.Context, filter ListFilter, limit int, cursor *pagination.Cursor) ([]models.Booking, error)
	Save(ctx context.Context, booking *models.Booking) error
	SaveItem(ctx context.Context, item *models.BookingItem) error
	CountOverlapping(ctx context.Context, labID uuid.UUID, start, end time.Time, excludeID uuid.UUID) (int64, error)
	FindApprovedEndedBefore(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
	LabExists(ctx context.Context, labID uuid.UUID) (bool, error)
	LockLab(ctx context.Context, labID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a booking repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, booking *models.Booking) error {
	if booking.ID == uuid.Nil {
		booking.ID = uuid.New()
	}
	for i := range booking.Items {
		if booking.Items[i].ID == uuid.Nil {
			booking.Items[i].ID = uuid.New()
		}
		booking.Items[i].BookingID = booking.ID
	}
	return r.db.WithContext(ctx).Create(booking).Error
}

func (r *repository) FindByID(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	err := r.db.WithContext(ctx).
		Preload("Items").
		First(&booking, "id = ?", bookingID).Error
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter, limit int, cursor *pagination.Cursor) ([]models.Booking, error) {
	query := r.db.WithContext(ctx).
		Preload("Items").
		Order("created_at DESC, id DESC").
		Limit(limit)

	if filter.LabID != nil {
		query = query.Where("lab_id = ?", *filter.LabID)
	}
	if filter.RequesterID != nil {
		query = query.Where("requester_id = ?", *filter.RequesterID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var out []models.Booking
	if err := query.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repository) Save(ctx context.Context, booking *models.Booking) error {
	return r.db.WithContext(ctx).Omit("Items").Save(booking).Error
}

func (r *repository) SaveItem(ctx context.Context, item *models.BookingItem) error {
	return r.db.WithContext(ctx).Save(item).Error
}

// CountOverlapping counts active bookings whose half-open window [start_time,
// end_time) intersects [start, end) on the same lab. Two windows overlap iff
// each starts before the other ends.
func (r *repository) CountOverlapping(ctx context.Context, labID uuid.UUID, start, end time.Time, excludeID uuid.UUID) (int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("lab_id = ?", labID).
		Where("status IN ?", statusStrings(enums.ActiveBookingStatuses)).
		Where("start_time < ? AND ? < end_time", end, start)

	if excludeID != uuid.Nil {
		query = query.Where("id <> ?", excludeID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repository) FindApprovedEndedBefore(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("status = ? AND end_time < ?", enums.BookingStatusApproved, cutoff).
		Order("end_time ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// LockLab takes a row lock on the lab so concurrent booking creations for the
// same lab serialize before the overlap count runs. Callers hold an open
// transaction. The sqlite driver used in tests discards the locking clause;
// its single-writer transactions give the same ordering.
func (r *repository) LockLab(ctx context.Context, labID uuid.UUID) error {
	var lab models.Lab
	return r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		First(&lab, "id = ?", labID).Error
}

func (r *repository) LabExists(ctx context.Context, labID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Lab{}).
		Where("id = ? AND is_active", labID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func statusStrings(statuses []enums.BookingStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
