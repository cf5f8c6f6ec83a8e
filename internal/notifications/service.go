package notifications

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/openlabworks/labops-backend/pkg/db/models"
	"github.com/openlabworks/labops-backend/pkg/enums"
	pkgerrors "github.com/openlabworks/labops-backend/pkg/errors"
	"github.com/openlabworks/labops-backend/pkg/logger"
	"github.com/openlabworks/labops-backend/pkg/pagination"
)

// OpsInboxID collects notifications that have no natural recipient, such as
// low-stock alerts. Deployments that want a real inbox override it via
// ServiceParams.StockAlertRecipient.
var OpsInboxID = uuid.MustParse("00000000-0000-0000-0000-0000000000f1")

// Service writes and reads notification rows. Notify* methods are best
// effort: a failed insert is logged and reported but callers are expected to
// ignore the error.
type Service interface {
	NotifyBookingTransition(ctx context.Context, booking *models.Booking) error
	NotifyLowStock(ctx context.Context, item *models.InventoryItem) error
	ListForRecipient(ctx context.Context, recipientID uuid.UUID, params pagination.Params) (*Page, error)
	MarkRead(ctx context.Context, notificationID, recipientID uuid.UUID) error
}

type Page struct {
	Notifications []models.Notification `json:"notifications"`
	NextCursor    string                `json:"next_cursor,omitempty"`
}

// ServiceParams configure the notification service.
type ServiceParams struct {
	Repo                Repository
	Logger              *logger.Logger
	StockAlertRecipient uuid.UUID
}

type service struct {
	repo           Repository
	logg           *logger.Logger
	stockRecipient uuid.UUID
}

// NewService builds the notification service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("notification repository required")
	}
	recipient := params.StockAlertRecipient
	if recipient == uuid.Nil {
		recipient = OpsInboxID
	}
	return &service{
		repo:           params.Repo,
		logg:           params.Logger,
		stockRecipient: recipient,
	}, nil
}

func (s *service) NotifyBookingTransition(ctx context.Context, booking *models.Booking) error {
	if booking == nil {
		return nil
	}
	kind, message, ok := transitionMessage(booking)
	if !ok {
		return nil
	}

	bookingID := booking.ID
	err := s.repo.Create(ctx, &models.Notification{
		RecipientID: booking.RequesterID,
		Type:        kind,
		Message:     message,
		BookingID:   &bookingID,
	})
	if err != nil {
		if s.logg != nil {
			s.logg.Warn(s.logg.WithBookingID(ctx, booking.ID.String()), "write booking notification failed")
		}
		return err
	}
	return nil
}

func (s *service) NotifyLowStock(ctx context.Context, item *models.InventoryItem) error {
	if item == nil {
		return nil
	}

	itemID := item.ID
	message := fmt.Sprintf("inventory item %s is %s: %d on hand, minimum %d",
		item.ID, item.Status, item.Quantity, item.MinimumQty)
	err := s.repo.Create(ctx, &models.Notification{
		RecipientID: s.stockRecipient,
		Type:        enums.NotificationLowStock,
		Message:     message,
		ItemID:      &itemID,
	})
	if err != nil {
		if s.logg != nil {
			s.logg.Warn(ctx, "write low-stock notification failed")
		}
		return err
	}
	return nil
}

func (s *service) ListForRecipient(ctx context.Context, recipientID uuid.UUID, params pagination.Params) (*Page, error) {
	if recipientID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "recipient id required")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	notifications, err := s.repo.ListByRecipient(ctx, recipientID, pagination.LimitWithBuffer(params.Limit), cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}

	page := &Page{Notifications: notifications}
	if len(notifications) > limit {
		page.Notifications = notifications[:limit]
		last := page.Notifications[limit-1]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}
	return page, nil
}

func (s *service) MarkRead(ctx context.Context, notificationID, recipientID uuid.UUID) error {
	if notificationID == uuid.Nil || recipientID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id and recipient id required")
	}
	affected, err := s.repo.MarkRead(ctx, notificationID, recipientID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func transitionMessage(booking *models.Booking) (enums.NotificationType, string, bool) {
	switch booking.Status {
	case enums.BookingStatusApproved:
		return enums.NotificationBookingApproved,
			fmt.Sprintf("your booking from %s to %s was approved",
				booking.StartTime.Format("2006-01-02 15:04"), booking.EndTime.Format("2006-01-02 15:04")), true
	case enums.BookingStatusRejected:
		reason := ""
		if booking.RejectionReason != nil {
			reason = ": " + *booking.RejectionReason
		}
		return enums.NotificationBookingRejected,
			fmt.Sprintf("your booking from %s to %s was rejected%s",
				booking.StartTime.Format("2006-01-02 15:04"), booking.EndTime.Format("2006-01-02 15:04"), reason), true
	case enums.BookingStatusCancelled:
		return enums.NotificationBookingCancelled,
			fmt.Sprintf("your booking from %s to %s was cancelled",
				booking.StartTime.Format("2006-01-02 15:04"), booking.EndTime.Format("2006-01-02 15:04")), true
	case enums.BookingStatusCompleted:
		return enums.NotificationBookingCompleted,
			fmt.Sprintf("your booking from %s to %s was completed",
				booking.StartTime.Format("2006-01-02 15:04"), booking.EndTime.Format("2006-01-02 15:04")), true
	default:
		return "", "", false
	}
}
