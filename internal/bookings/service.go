package bookings

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/openlabworks/labops-backend/internal/inventory"
	"github.com/openlabworks/labops-backend/pkg/config"
	"github.com/openlabworks/labops-backend/pkg/db"
	"github.com/openlabworks/labops-backend/pkg/db/models"
	"github.com/openlabworks/labops-backend/pkg/enums"
	pkgerrors "github.com/openlabworks/labops-backend/pkg/errors"
	"github.com/openlabworks/labops-backend/pkg/logger"
	"github.com/openlabworks/labops-backend/pkg/pagination"
)

// SystemActorID attributes ledger entries written by the completion sweep,
// which runs without a human actor.
var SystemActorID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// stockAllocator is the slice of the inventory service the booking lifecycle
// needs: reads for advisory checks, reserve/release inside its transactions.
type stockAllocator interface {
	GetItem(ctx context.Context, itemID uuid.UUID) (*models.InventoryItem, error)
	Reserve(ctx context.Context, tx *gorm.DB, input inventory.AllocationInput) (*models.InventoryItem, error)
	Release(ctx context.Context, tx *gorm.DB, input inventory.AllocationInput) (*models.InventoryItem, error)
}

// TransitionNotifier is told, best effort, about committed booking
// transitions and any allocation that left an item low on stock. Failures
// are logged and never roll back the transition.
type TransitionNotifier interface {
	NotifyBookingTransition(ctx context.Context, booking *models.Booking) error
	NotifyLowStock(ctx context.Context, item *models.InventoryItem) error
}

// Service owns the booking lifecycle. Approvals and releases run each
// booking's status change and its inventory effects in one transaction.
type Service interface {
	Create(ctx context.Context, input CreateBookingInput) (*models.Booking, error)
	Approve(ctx context.Context, input DecisionInput) (*models.Booking, error)
	Reject(ctx context.Context, input DecisionInput) (*models.Booking, error)
	Cancel(ctx context.Context, input CancelInput) (*models.Booking, error)
	CompleteElapsed(ctx context.Context) (*SweepReport, error)
	Get(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error)
	List(ctx context.Context, filter ListFilter, params pagination.Params) (*BookingPage, error)
	HasConflict(ctx context.Context, labID uuid.UUID, start, end time.Time) (bool, error)
}

// LineInput is one requested item line on a new booking.
type LineInput struct {
	ItemID   uuid.UUID
	Quantity int
	Note     *string
}

type CreateBookingInput struct {
	LabID       uuid.UUID
	RequesterID uuid.UUID
	Purpose     *string
	StartTime   time.Time
	EndTime     time.Time
	Lines       []LineInput
}

// DecisionInput approves or rejects a pending booking. Reason is required
// for rejections and ignored for approvals.
type DecisionInput struct {
	BookingID uuid.UUID
	ActorID   uuid.UUID
	Reason    string
}

type CancelInput struct {
	BookingID uuid.UUID
	ActorID   uuid.UUID
	ActorRole enums.ActorRole
}

// SweepReport summarizes one completion sweep run.
type SweepReport struct {
	Scanned   int `json:"scanned"`
	Completed int `json:"completed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

type BookingPage struct {
	Bookings   []models.Booking `json:"bookings"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

// ServiceParams configure the booking service.
type ServiceParams struct {
	Repo     Repository
	Stock    stockAllocator
	Tx       txRunner
	Notifier TransitionNotifier
	Logger   *logger.Logger
	Cfg      config.BookingConfig
	Batch    int
	Now      func() time.Time
}

type service struct {
	repo     Repository
	stock    stockAllocator
	tx       txRunner
	notifier TransitionNotifier
	logg     *logger.Logger
	cfg      config.BookingConfig
	batch    int
	now      func() time.Time
}

// NewService builds the booking service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("booking repository required")
	}
	if params.Stock == nil {
		return nil, fmt.Errorf("stock allocator required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	batch := params.Batch
	if batch <= 0 {
		batch = 200
	}
	return &service{
		repo:     params.Repo,
		stock:    params.Stock,
		tx:       params.Tx,
		notifier: params.Notifier,
		logg:     params.Logger,
		cfg:      params.Cfg,
		batch:    batch,
		now:      now,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateBookingInput) (*models.Booking, error) {
	if input.LabID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "lab id required")
	}
	if input.RequesterID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "requester identity missing")
	}
	if !input.EndTime.After(input.StartTime) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "end time must be after start time")
	}
	if input.EndTime.Sub(input.StartTime) > s.cfg.MaxWindow {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking window exceeds the maximum duration").
			WithDetails(map[string]any{"max_window": s.cfg.MaxWindow.String()})
	}
	if input.StartTime.Before(s.now()) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "start time is in the past")
	}
	for _, line := range input.Lines {
		if line.ItemID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id required on every line")
		}
		if line.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "line quantity must be positive")
		}
	}

	exists, err := s.repo.LabExists(ctx, input.LabID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up lab")
	}
	if !exists {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "lab not found")
	}

	// Advisory stock check. The binding check happens at approval inside
	// the reservation transaction; this one surfaces obvious mistakes at
	// request time.
	for _, line := range input.Lines {
		item, err := s.stock.GetItem(ctx, line.ItemID)
		if err != nil {
			return nil, err
		}
		if item.LabID != input.LabID {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item does not belong to the requested lab").
				WithDetails(map[string]any{"item_id": item.ID, "lab_id": item.LabID})
		}
		if !item.Status.Allocatable() {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("item is %s", item.Status)).
				WithDetails(map[string]any{"item_id": item.ID, "status": item.Status})
		}
		if item.Kind == enums.ItemKindConsumable && item.AvailableQty < line.Quantity {
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").
				WithDetails(map[string]any{
					"item_id":   item.ID,
					"requested": line.Quantity,
					"available": item.AvailableQty,
				})
		}
	}

	count, err := s.repo.CountOverlapping(ctx, input.LabID, input.StartTime, input.EndTime, uuid.Nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check booking conflicts")
	}
	if count > 0 {
		return nil, conflictError(input.LabID, input.StartTime, input.EndTime)
	}

	booking := &models.Booking{
		LabID:       input.LabID,
		RequesterID: input.RequesterID,
		Purpose:     input.Purpose,
		StartTime:   input.StartTime.UTC(),
		EndTime:     input.EndTime.UTC(),
		Status:      enums.BookingStatusPending,
	}
	for _, line := range input.Lines {
		booking.Items = append(booking.Items, models.BookingItem{
			ItemID:       line.ItemID,
			RequestedQty: line.Quantity,
			Note:         line.Note,
		})
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		// The lab row lock serializes concurrent creations for the same
		// lab, so the recount below sees every committed window. Without
		// it two transactions could each pass the count and both insert.
		if err := repo.LockLab(ctx, input.LabID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock lab")
		}
		count, err := repo.CountOverlapping(ctx, input.LabID, input.StartTime, input.EndTime, uuid.Nil)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check booking conflicts")
		}
		if count > 0 {
			return conflictError(input.LabID, input.StartTime, input.EndTime)
		}
		if err := repo.Create(ctx, booking); err != nil {
			if db.IsExclusionViolation(err, "bookings_no_active_overlap") {
				return conflictError(input.LabID, input.StartTime, input.EndTime)
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create booking")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyTransition(ctx, booking)
	return booking, nil
}

func (s *service) Approve(ctx context.Context, input DecisionInput) (*models.Booking, error) {
	if input.BookingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id required")
	}
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}

	var booking *models.Booking
	var touched []*models.InventoryItem
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		loaded, err := s.load(ctx, repo, input.BookingID)
		if err != nil {
			return err
		}
		if loaded.Status != enums.BookingStatusPending {
			return alreadyDecided(loaded)
		}

		now := s.now()
		for i := range loaded.Items {
			line := &loaded.Items[i]
			item, err := s.stock.Reserve(ctx, tx, inventory.AllocationInput{
				ItemID:    line.ItemID,
				Quantity:  line.RequestedQty,
				ActorID:   input.ActorID,
				BookingID: loaded.ID,
				Reason:    "booking approved",
			})
			if err != nil {
				return err
			}
			line.AllocatedQty = line.RequestedQty
			allocatedAt := now
			line.AllocatedAt = &allocatedAt
			if err := repo.SaveItem(ctx, line); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save booking line")
			}
			touched = append(touched, item)
		}

		loaded.Status = enums.BookingStatusApproved
		loaded.DecidedBy = &input.ActorID
		loaded.DecidedAt = &now
		if err := repo.Save(ctx, loaded); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save booking")
		}
		booking = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyTransition(ctx, booking)
	s.notifyLowStock(ctx, touched)
	return booking, nil
}

func (s *service) Reject(ctx context.Context, input DecisionInput) (*models.Booking, error) {
	if input.BookingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id required")
	}
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}
	if input.Reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rejection reason required")
	}

	var booking *models.Booking
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		loaded, err := s.load(ctx, repo, input.BookingID)
		if err != nil {
			return err
		}
		if loaded.Status != enums.BookingStatusPending {
			return alreadyDecided(loaded)
		}

		now := s.now()
		reason := input.Reason
		loaded.Status = enums.BookingStatusRejected
		loaded.DecidedBy = &input.ActorID
		loaded.DecidedAt = &now
		loaded.RejectionReason = &reason
		if err := repo.Save(ctx, loaded); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save booking")
		}
		booking = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyTransition(ctx, booking)
	return booking, nil
}

func (s *service) Cancel(ctx context.Context, input CancelInput) (*models.Booking, error) {
	if input.BookingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id required")
	}
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}

	existing, err := s.Get(ctx, input.BookingID)
	if err != nil {
		return nil, err
	}
	if existing.RequesterID != input.ActorID && !input.ActorRole.CanManageStock() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not allowed to cancel this booking")
	}
	if !input.ActorRole.CanManageStock() {
		cutoff := existing.StartTime.Add(-s.cfg.CancelCutoff)
		if s.now().After(cutoff) {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "cancellation cutoff passed").
				WithDetails(map[string]any{
					"start_time": existing.StartTime,
					"cutoff":     cutoff,
				})
		}
	}

	var booking *models.Booking
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		loaded, err := s.load(ctx, repo, input.BookingID)
		if err != nil {
			return err
		}
		if !loaded.Status.IsActive() {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("booking is already %s", loaded.Status)).
				WithDetails(map[string]any{"booking_id": loaded.ID, "status": loaded.Status})
		}

		if loaded.Status == enums.BookingStatusApproved {
			if err := s.releaseLines(ctx, tx, repo, loaded, input.ActorID, "booking cancelled"); err != nil {
				return err
			}
		}

		now := s.now()
		loaded.Status = enums.BookingStatusCancelled
		loaded.CancelledBy = &input.ActorID
		loaded.CancelledAt = &now
		if err := repo.Save(ctx, loaded); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save booking")
		}
		booking = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyTransition(ctx, booking)
	return booking, nil
}

// CompleteElapsed sweeps approved bookings whose window has ended, releasing
// their allocations and marking them completed. Each booking commits in its
// own transaction, so one failure never blocks the rest, and the per-booking
// status re-check makes re-runs of the same sweep harmless.
func (s *service) CompleteElapsed(ctx context.Context) (*SweepReport, error) {
	ids, err := s.repo.FindApprovedEndedBefore(ctx, s.now(), s.batch)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find elapsed bookings")
	}

	report := &SweepReport{Scanned: len(ids)}
	var errs error
	for _, id := range ids {
		completed, err := s.completeOne(ctx, id)
		if err != nil {
			report.Failed++
			errs = multierr.Append(errs, fmt.Errorf("complete booking %s: %w", id, err))
			if s.logg != nil {
				s.logg.Error(s.logg.WithBookingID(ctx, id.String()), "completion sweep failed for booking", err)
			}
			continue
		}
		if completed {
			report.Completed++
		} else {
			report.Skipped++
		}
	}
	return report, errs
}

func (s *service) completeOne(ctx context.Context, bookingID uuid.UUID) (bool, error) {
	var completed bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		loaded, err := s.load(ctx, repo, bookingID)
		if err != nil {
			return err
		}
		// Another sweep run or a cancellation got here first.
		if loaded.Status != enums.BookingStatusApproved {
			return nil
		}

		if err := s.releaseLines(ctx, tx, repo, loaded, SystemActorID, "booking completed"); err != nil {
			return err
		}

		now := s.now()
		loaded.Status = enums.BookingStatusCompleted
		loaded.CompletedAt = &now
		if err := repo.Save(ctx, loaded); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save booking")
		}
		completed = true
		return nil
	})
	return completed, err
}

func (s *service) Get(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error) {
	if bookingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id required")
	}
	return s.load(ctx, s.repo, bookingID)
}

func (s *service) List(ctx context.Context, filter ListFilter, params pagination.Params) (*BookingPage, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	bookings, err := s.repo.List(ctx, filter, pagination.LimitWithBuffer(params.Limit), cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list bookings")
	}

	page := &BookingPage{Bookings: bookings}
	if len(bookings) > limit {
		page.Bookings = bookings[:limit]
		last := page.Bookings[limit-1]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}
	return page, nil
}

func (s *service) HasConflict(ctx context.Context, labID uuid.UUID, start, end time.Time) (bool, error) {
	if labID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "lab id required")
	}
	if !end.After(start) {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "end time must be after start time")
	}
	count, err := s.repo.CountOverlapping(ctx, labID, start, end, uuid.Nil)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check booking conflicts")
	}
	return count > 0, nil
}

// releaseLines returns every allocated line of the booking to stock. Lines
// with a nil AllocatedAt were never reserved, or already released, and are
// skipped so the release stays idempotent.
func (s *service) releaseLines(ctx context.Context, tx *gorm.DB, repo Repository, booking *models.Booking, actorID uuid.UUID, reason string) error {
	for i := range booking.Items {
		line := &booking.Items[i]
		if line.AllocatedAt == nil {
			continue
		}
		if _, err := s.stock.Release(ctx, tx, inventory.AllocationInput{
			ItemID:    line.ItemID,
			Quantity:  line.AllocatedQty,
			ActorID:   actorID,
			BookingID: booking.ID,
			Reason:    reason,
		}); err != nil {
			return err
		}
		line.AllocatedQty = 0
		line.AllocatedAt = nil
		if err := repo.SaveItem(ctx, line); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save booking line")
		}
	}
	return nil
}

func (s *service) load(ctx context.Context, repo Repository, bookingID uuid.UUID) (*models.Booking, error) {
	booking, err := repo.FindByID(ctx, bookingID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load booking")
	}
	return booking, nil
}

func (s *service) notifyTransition(ctx context.Context, booking *models.Booking) {
	if s.notifier == nil || booking == nil {
		return
	}
	if err := s.notifier.NotifyBookingTransition(ctx, booking); err != nil && s.logg != nil {
		s.logg.Warn(s.logg.WithBookingID(ctx, booking.ID.String()), "booking transition notification failed")
	}
}

func (s *service) notifyLowStock(ctx context.Context, items []*models.InventoryItem) {
	if s.notifier == nil {
		return
	}
	for _, item := range items {
		if item == nil {
			continue
		}
		if item.Status != enums.ItemStatusLowStock && item.Status != enums.ItemStatusOutOfStock {
			continue
		}
		_ = s.notifier.NotifyLowStock(ctx, item)
	}
}

func alreadyDecided(booking *models.Booking) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeStateConflict,
		fmt.Sprintf("booking is already %s", booking.Status)).
		WithDetails(map[string]any{"booking_id": booking.ID, "status": booking.Status})
}

func conflictError(labID uuid.UUID, start, end time.Time) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeConflict, "booking window overlaps an existing booking").
		WithDetails(map[string]any{
			"lab_id":     labID,
			"start_time": start,
			"end_time":   end,
		})
}
