package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/openlabworks/labops-backend/api/middleware"
	"github.com/openlabworks/labops-backend/api/responses"
	"github.com/openlabworks/labops-backend/api/validators"
	"github.com/openlabworks/labops-backend/internal/bookings"
	"github.com/openlabworks/labops-backend/pkg/enums"
	pkgerrors "github.com/openlabworks/labops-backend/pkg/errors"
	"github.com/openlabworks/labops-backend/pkg/logger"
	"github.com/openlabworks/labops-backend/pkg/pagination"
)

type bookingLineRequest struct {
	ItemID   string  `json:"item_id" validate:"required,uuid"`
	Quantity int     `json:"quantity" validate:"required,min=1"`
	Note     *string `json:"note,omitempty"`
}

type createBookingRequest struct {
	LabID     string               `json:"lab_id" validate:"required,uuid"`
	Purpose   *string              `json:"purpose,omitempty"`
	StartTime time.Time            `json:"start_time" validate:"required"`
	EndTime   time.Time            `json:"end_time" validate:"required"`
	Items     []bookingLineRequest `json:"items" validate:"max=50,dive"`
}

type rejectBookingRequest struct {
	Reason string `json:"reason" validate:"required,min=1,max=500"`
}

// CreateBooking submits a pending booking request for the calling user.
func CreateBooking(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createBookingRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		labID, err := uuid.Parse(req.LabID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid lab id"))
			return
		}

		input := bookings.CreateBookingInput{
			LabID:       labID,
			RequesterID: middleware.ActorIDFromContext(r.Context()),
			Purpose:     req.Purpose,
			StartTime:   req.StartTime,
			EndTime:     req.EndTime,
		}
		for _, line := range req.Items {
			itemID, err := uuid.Parse(line.ItemID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid item id"))
				return
			}
			input.Lines = append(input.Lines, bookings.LineInput{
				ItemID:   itemID,
				Quantity: line.Quantity,
				Note:     line.Note,
			})
		}

		booking, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, booking)
	}
}

// GetBooking returns one booking. Students only see their own.
func GetBooking(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bookingID, err := uuid.Parse(chi.URLParam(r, "bookingID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid booking id"))
			return
		}

		booking, err := svc.Get(r.Context(), bookingID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		role := middleware.ActorRoleFromContext(r.Context())
		if !role.CanManageStock() && booking.RequesterID != middleware.ActorIDFromContext(r.Context()) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "not allowed to view this booking"))
			return
		}
		responses.WriteSuccess(w, booking)
	}
}

// ListBookings returns a filtered page of bookings, newest first. Students
// are pinned to their own bookings regardless of the requester filter.
func ListBookings(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var filter bookings.ListFilter

		if raw := strings.TrimSpace(r.URL.Query().Get("lab_id")); raw != "" {
			labID, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid lab id"))
				return
			}
			filter.LabID = &labID
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("requester_id")); raw != "" {
			requesterID, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid requester id"))
				return
			}
			filter.RequesterID = &requesterID
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseBookingStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			filter.Status = &status
		}

		role := middleware.ActorRoleFromContext(r.Context())
		if !role.CanManageStock() {
			actorID := middleware.ActorIDFromContext(r.Context())
			filter.RequesterID = &actorID
		}

		limit, err := validators.ParseQueryInt(r, "limit", 0, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.List(r.Context(), filter, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// ApproveBooking approves a pending booking and reserves its items.
func ApproveBooking(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bookingID, err := uuid.Parse(chi.URLParam(r, "bookingID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid booking id"))
			return
		}

		booking, err := svc.Approve(r.Context(), bookings.DecisionInput{
			BookingID: bookingID,
			ActorID:   middleware.ActorIDFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, booking)
	}
}

// RejectBooking rejects a pending booking with a reason.
func RejectBooking(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bookingID, err := uuid.Parse(chi.URLParam(r, "bookingID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid booking id"))
			return
		}

		var req rejectBookingRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		booking, err := svc.Reject(r.Context(), bookings.DecisionInput{
			BookingID: bookingID,
			ActorID:   middleware.ActorIDFromContext(r.Context()),
			Reason:    validators.SanitizeString(req.Reason, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, booking)
	}
}

// CancelBooking cancels a pending or approved booking.
func CancelBooking(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bookingID, err := uuid.Parse(chi.URLParam(r, "bookingID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid booking id"))
			return
		}

		booking, err := svc.Cancel(r.Context(), bookings.CancelInput{
			BookingID: bookingID,
			ActorID:   middleware.ActorIDFromContext(r.Context()),
			ActorRole: middleware.ActorRoleFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, booking)
	}
}

// CheckAvailability reports whether a lab window is free of active bookings.
func CheckAvailability(svc bookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		labID, err := uuid.Parse(chi.URLParam(r, "labID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid lab id"))
			return
		}
		start, err := validators.ParseQueryTime(r, "start")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		end, err := validators.ParseQueryTime(r, "end")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if start.IsZero() || end.IsZero() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "start and end query parameters are required"))
			return
		}

		conflict, err := svc.HasConflict(r.Context(), labID, start, end)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"lab_id":    labID,
			"start":     start,
			"end":       end,
			"available": !conflict,
		})
	}
}
