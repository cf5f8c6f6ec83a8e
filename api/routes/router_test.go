package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openlabworks/labops-backend/api/controllers"
	"github.com/openlabworks/labops-backend/internal/bookings"
	"github.com/openlabworks/labops-backend/internal/inventory"
	"github.com/openlabworks/labops-backend/internal/ledger"
	"github.com/openlabworks/labops-backend/internal/notifications"
	"github.com/openlabworks/labops-backend/pkg/config"
	"github.com/openlabworks/labops-backend/pkg/db/models"
	"github.com/openlabworks/labops-backend/pkg/enums"
	"github.com/openlabworks/labops-backend/pkg/logger"
	"github.com/openlabworks/labops-backend/pkg/pagination"
)

type stubBookingService struct {
	approve       func(ctx context.Context, input bookings.DecisionInput) (*models.Booking, error)
	get           func(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error)
	sweep         func(ctx context.Context) (*bookings.SweepReport, error)
	approveCalled int
}

func (s *stubBookingService) Create(ctx context.Context, input bookings.CreateBookingInput) (*models.Booking, error) {
	return &models.Booking{ID: uuid.New(), LabID: input.LabID, RequesterID: input.RequesterID, Status: enums.BookingStatusPending}, nil
}

func (s *stubBookingService) Approve(ctx context.Context, input bookings.DecisionInput) (*models.Booking, error) {
	s.approveCalled++
	if s.approve != nil {
		return s.approve(ctx, input)
	}
	return &models.Booking{ID: input.BookingID, Status: enums.BookingStatusApproved}, nil
}

func (s *stubBookingService) Reject(ctx context.Context, input bookings.DecisionInput) (*models.Booking, error) {
	return &models.Booking{ID: input.BookingID, Status: enums.BookingStatusRejected}, nil
}

func (s *stubBookingService) Cancel(ctx context.Context, input bookings.CancelInput) (*models.Booking, error) {
	return &models.Booking{ID: input.BookingID, Status: enums.BookingStatusCancelled}, nil
}

func (s *stubBookingService) CompleteElapsed(ctx context.Context) (*bookings.SweepReport, error) {
	if s.sweep != nil {
		return s.sweep(ctx)
	}
	return &bookings.SweepReport{}, nil
}

func (s *stubBookingService) Get(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error) {
	if s.get != nil {
		return s.get(ctx, bookingID)
	}
	return &models.Booking{ID: bookingID, Status: enums.BookingStatusPending}, nil
}

func (s *stubBookingService) List(ctx context.Context, filter bookings.ListFilter, params pagination.Params) (*bookings.BookingPage, error) {
	return &bookings.BookingPage{}, nil
}

func (s *stubBookingService) HasConflict(ctx context.Context, labID uuid.UUID, start, end time.Time) (bool, error) {
	return false, nil
}

type stubInventoryService struct{}

func (stubInventoryService) AddStock(ctx context.Context, input inventory.AddStockInput) (*models.InventoryItem, error) {
	return &models.InventoryItem{ID: uuid.New()}, nil
}

func (stubInventoryService) RemoveStock(ctx context.Context, input inventory.RemoveStockInput) (*models.InventoryItem, error) {
	return &models.InventoryItem{ID: input.ItemID}, nil
}

func (stubInventoryService) AdjustStock(ctx context.Context, input inventory.AdjustStockInput) (*models.InventoryItem, error) {
	return &models.InventoryItem{ID: input.ItemID}, nil
}

func (stubInventoryService) MoveStock(ctx context.Context, input inventory.MoveStockInput) (*inventory.MoveStockResult, error) {
	return &inventory.MoveStockResult{}, nil
}

func (stubInventoryService) Reserve(ctx context.Context, tx *gorm.DB, input inventory.AllocationInput) (*models.InventoryItem, error) {
	return &models.InventoryItem{ID: input.ItemID}, nil
}

func (stubInventoryService) Release(ctx context.Context, tx *gorm.DB, input inventory.AllocationInput) (*models.InventoryItem, error) {
	return &models.InventoryItem{ID: input.ItemID}, nil
}

func (stubInventoryService) GetItem(ctx context.Context, itemID uuid.UUID) (*models.InventoryItem, error) {
	return &models.InventoryItem{ID: itemID}, nil
}

func (stubInventoryService) ListByLab(ctx context.Context, labID uuid.UUID) ([]models.InventoryItem, error) {
	return nil, nil
}

type stubLedgerService struct{}

func (stubLedgerService) Record(ctx context.Context, tx *gorm.DB, input ledger.RecordEntryInput) (*models.StockLedgerEntry, error) {
	return &models.StockLedgerEntry{}, nil
}

func (stubLedgerService) History(ctx context.Context, itemID uuid.UUID, params pagination.Params) (*ledger.HistoryPage, error) {
	return &ledger.HistoryPage{}, nil
}

func (stubLedgerService) SumDeltas(ctx context.Context, itemID uuid.UUID) (int64, error) {
	return 0, nil
}

type stubNotificationService struct{}

func (stubNotificationService) NotifyBookingTransition(ctx context.Context, booking *models.Booking) error {
	return nil
}

func (stubNotificationService) NotifyLowStock(ctx context.Context, item *models.InventoryItem) error {
	return nil
}

func (stubNotificationService) ListForRecipient(ctx context.Context, recipientID uuid.UUID, params pagination.Params) (*notifications.Page, error) {
	return &notifications.Page{}, nil
}

func (stubNotificationService) MarkRead(ctx context.Context, notificationID, recipientID uuid.UUID) error {
	return nil
}

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(ctx context.Context) error { return p.err }

func newTestRouter(t *testing.T, booking *stubBookingService, readiness map[string]controllers.Pinger) http.Handler {
	t.Helper()

	cfg := &config.Config{}
	cfg.App.Env = "test"
	return NewRouter(RouterParams{
		Cfg:           cfg,
		Logger:        logger.New(logger.Options{ServiceName: "router-test"}),
		Readiness:     readiness,
		Bookings:      booking,
		Inventory:     stubInventoryService{},
		Ledger:        stubLedgerService{},
		Notifications: stubNotificationService{},
	})
}

func doRequest(router http.Handler, method, target, body string, actorID uuid.UUID, role string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if actorID != uuid.Nil {
		req.Header.Set("X-User-Id", actorID.String())
	}
	if role != "" {
		req.Header.Set("X-User-Role", role)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthLive(t *testing.T) {
	router := newTestRouter(t, &stubBookingService{}, nil)

	rec := doRequest(router, http.MethodGet, "/health/live", "", uuid.Nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-LabOps-Env") != "test" {
		t.Fatalf("expected env header, got %q", rec.Header().Get("X-LabOps-Env"))
	}
}

func TestHealthReadyReportsDependencyFailure(t *testing.T) {
	router := newTestRouter(t, &stubBookingService{}, map[string]controllers.Pinger{
		"database": stubPinger{},
		"redis":    stubPinger{err: errors.New("connection refused")},
	})

	rec := doRequest(router, http.MethodGet, "/health/ready", "", uuid.Nil, "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestAPIRequiresActorHeaders(t *testing.T) {
	router := newTestRouter(t, &stubBookingService{}, nil)

	rec := doRequest(router, http.MethodGet, "/api/v1/bookings/", "", uuid.Nil, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity headers, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/bookings/", nil)
	req.Header.Set("X-User-Id", "not-a-uuid")
	req.Header.Set("X-User-Role", "student")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for malformed identity, got %d", rec.Code)
	}

	rec = doRequest(router, http.MethodGet, "/api/v1/bookings/", "", uuid.New(), "janitor")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown role, got %d", rec.Code)
	}
}

func TestApproveRequiresManagerRole(t *testing.T) {
	booking := &stubBookingService{}
	router := newTestRouter(t, booking, nil)
	target := "/api/v1/bookings/" + uuid.NewString() + "/approve"

	rec := doRequest(router, http.MethodPost, target, "", uuid.New(), "student")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for students, got %d", rec.Code)
	}
	if booking.approveCalled != 0 {
		t.Fatalf("service must not be reached on a role rejection")
	}

	rec = doRequest(router, http.MethodPost, target, "", uuid.New(), "lab_manager")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for lab managers, got %d: %s", rec.Code, rec.Body.String())
	}
	if booking.approveCalled != 1 {
		t.Fatalf("expected one approve call, got %d", booking.approveCalled)
	}
}

func TestStudentsCannotViewOthersBookings(t *testing.T) {
	owner := uuid.New()
	booking := &stubBookingService{
		get: func(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error) {
			return &models.Booking{ID: bookingID, RequesterID: owner, Status: enums.BookingStatusPending}, nil
		},
	}
	router := newTestRouter(t, booking, nil)
	target := "/api/v1/bookings/" + uuid.NewString()

	rec := doRequest(router, http.MethodGet, target, "", uuid.New(), "student")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for a stranger, got %d", rec.Code)
	}

	rec = doRequest(router, http.MethodGet, target, "", owner, "student")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for the owner, got %d", rec.Code)
	}

	rec = doRequest(router, http.MethodGet, target, "", uuid.New(), "admin")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admins, got %d", rec.Code)
	}
}

func TestAdminSweepRoute(t *testing.T) {
	booking := &stubBookingService{
		sweep: func(ctx context.Context) (*bookings.SweepReport, error) {
			return &bookings.SweepReport{Scanned: 2, Completed: 2}, nil
		},
	}
	router := newTestRouter(t, booking, nil)

	rec := doRequest(router, http.MethodPost, "/api/admin/v1/sweep/run", "", uuid.New(), "lab_manager")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for lab managers on admin surface, got %d", rec.Code)
	}

	rec = doRequest(router, http.MethodPost, "/api/admin/v1/sweep/run", "", uuid.New(), "admin")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admins, got %d", rec.Code)
	}

	var envelope struct {
		Data bookings.SweepReport `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode sweep report: %v", err)
	}
	if envelope.Data.Completed != 2 {
		t.Fatalf("unexpected report %+v", envelope.Data)
	}
}

func TestCreateBookingValidatesBody(t *testing.T) {
	router := newTestRouter(t, &stubBookingService{}, nil)

	rec := doRequest(router, http.MethodPost, "/api/v1/bookings/", `{"lab_id":"nope"}`, uuid.New(), "student")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", rec.Code)
	}

	body := `{"lab_id":"` + uuid.NewString() + `","start_time":"2026-07-01T10:00:00Z","end_time":"2026-07-01T12:00:00Z"}`
	rec = doRequest(router, http.MethodPost, "/api/v1/bookings/", body, uuid.New(), "student")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAvailabilityRequiresWindow(t *testing.T) {
	router := newTestRouter(t, &stubBookingService{}, nil)
	base := "/api/v1/labs/" + uuid.NewString() + "/availability"

	rec := doRequest(router, http.MethodGet, base, "", uuid.New(), "student")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without start/end, got %d", rec.Code)
	}

	target := base + "?start=2026-07-01T10:00:00Z&end=2026-07-01T12:00:00Z"
	rec = doRequest(router, http.MethodGet, target, "", uuid.New(), "student")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var envelope struct {
		Data map[string]any `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode availability: %v", err)
	}
	if envelope.Data["available"] != true {
		t.Fatalf("expected available=true, got %v", envelope.Data)
	}
}
