package bookings

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/openlabworks/labops-backend/internal/inventory"
	"github.com/openlabworks/labops-backend/internal/ledger"
	"github.com/openlabworks/labops-backend/pkg/config"
	"github.com/openlabworks/labops-backend/pkg/db/models"
	"github.com/openlabworks/labops-backend/pkg/enums"
	"github.com/openlabworks/labops-backend/pkg/logger"
	"github.com/openlabworks/labops-backend/pkg/pagination"
)

func setupBookingTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// One shared-cache database per test keeps the pool on a single
	// in-memory store without leaking rows between tests.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	labs := `
CREATE TABLE IF NOT EXISTS labs (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  building TEXT,
  capacity INTEGER NOT NULL DEFAULT 0,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`
	inventoryItems := `
CREATE TABLE IF NOT EXISTS inventory_items (
  id TEXT PRIMARY KEY,
  catalogue_item_id TEXT NOT NULL,
  lab_id TEXT NOT NULL,
  storage TEXT NOT NULL DEFAULT 'shelf',
  kind TEXT NOT NULL,
  quantity INTEGER NOT NULL DEFAULT 0,
  available_qty INTEGER NOT NULL DEFAULT 0,
  initial_qty INTEGER NOT NULL DEFAULT 0,
  minimum_qty INTEGER NOT NULL DEFAULT 0,
  status TEXT NOT NULL DEFAULT 'available',
  expires_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME,
  deleted_at DATETIME
);`
	ledgerEntries := `
CREATE TABLE IF NOT EXISTS stock_ledger_entries (
  id TEXT PRIMARY KEY,
  item_id TEXT NOT NULL,
  lab_id TEXT NOT NULL,
  delta INTEGER NOT NULL,
  kind TEXT NOT NULL,
  actor_id TEXT NOT NULL,
  reason TEXT NOT NULL,
  booking_id TEXT,
  created_at DATETIME
);`
	bookings := `
CREATE TABLE IF NOT EXISTS bookings (
  id TEXT PRIMARY KEY,
  lab_id TEXT NOT NULL,
  requester_id TEXT NOT NULL,
  purpose TEXT,
  start_time DATETIME NOT NULL,
  end_time DATETIME NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  decided_by TEXT,
  decided_at DATETIME,
  rejection_reason TEXT,
  cancelled_by TEXT,
  cancelled_at DATETIME,
  completed_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	bookingItems := `
CREATE TABLE IF NOT EXISTS booking_items (
  id TEXT PRIMARY KEY,
  booking_id TEXT NOT NULL,
  item_id TEXT NOT NULL,
  requested_qty INTEGER NOT NULL,
  allocated_qty INTEGER NOT NULL DEFAULT 0,
  allocated_at DATETIME,
  note TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(labs).Error)
	require.NoError(t, db.Exec(inventoryItems).Error)
	require.NoError(t, db.Exec(ledgerEntries).Error)
	require.NoError(t, db.Exec(bookings).Error)
	require.NoError(t, db.Exec(bookingItems).Error)
	return db
}

func newLab(t *testing.T, db *gorm.DB, name string) *models.Lab {
	t.Helper()

	lab := &models.Lab{ID: uuid.New(), Name: name, Capacity: 12, IsActive: true}
	require.NoError(t, db.Create(lab).Error)
	return lab
}

func newItem(t *testing.T, db *gorm.DB, labID uuid.UUID, kind enums.ItemKind, qty, min int) *models.InventoryItem {
	t.Helper()

	item := &models.InventoryItem{
		ID:              uuid.New(),
		CatalogueItemID: uuid.New(),
		LabID:           labID,
		Storage:         enums.StorageKindShelf,
		Kind:            kind,
		Quantity:        qty,
		AvailableQty:    qty,
		InitialQty:      qty,
		MinimumQty:      min,
		Status:          enums.ItemStatusAvailable,
	}
	require.NoError(t, db.Create(item).Error)
	return item
}

func newStoredBooking(t *testing.T, db *gorm.DB, labID uuid.UUID, status enums.BookingStatus, start, end time.Time) *models.Booking {
	t.Helper()

	booking := &models.Booking{
		ID:          uuid.New(),
		LabID:       labID,
		RequesterID: uuid.New(),
		StartTime:   start,
		EndTime:     end,
		Status:      status,
	}
	require.NoError(t, db.Create(booking).Error)
	return booking
}

// gormTxRunner satisfies the service's transaction interface over a raw
// test database the way db.Client does in production.
type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func TestCountOverlappingHalfOpenWindows(t *testing.T) {
	db := setupBookingTestDB(t)
	repo := NewRepository(db)
	lab := newLab(t, db, "Chem 101")
	ctx := context.Background()

	base := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	newStoredBooking(t, db, lab.ID, enums.BookingStatusPending, base, base.Add(2*time.Hour))

	cases := []struct {
		name  string
		start time.Time
		end   time.Time
		want  int64
	}{
		{"identical window", base, base.Add(2 * time.Hour), 1},
		{"contained window", base.Add(30 * time.Minute), base.Add(time.Hour), 1},
		{"straddles start", base.Add(-time.Hour), base.Add(time.Hour), 1},
		{"straddles end", base.Add(time.Hour), base.Add(3 * time.Hour), 1},
		{"ends exactly at start", base.Add(-2 * time.Hour), base, 0},
		{"starts exactly at end", base.Add(2 * time.Hour), base.Add(4 * time.Hour), 0},
		{"well before", base.Add(-4 * time.Hour), base.Add(-3 * time.Hour), 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			count, err := repo.CountOverlapping(ctx, lab.ID, tc.start, tc.end, uuid.Nil)
			require.NoError(t, err)
			assert.Equal(t, tc.want, count)
		})
	}
}

func TestCountOverlappingIgnoresInactiveAndOtherLabs(t *testing.T) {
	db := setupBookingTestDB(t)
	repo := NewRepository(db)
	lab := newLab(t, db, "Bio 204")
	otherLab := newLab(t, db, "Bio 205")
	ctx := context.Background()

	base := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	newStoredBooking(t, db, lab.ID, enums.BookingStatusRejected, base, base.Add(2*time.Hour))
	newStoredBooking(t, db, lab.ID, enums.BookingStatusCancelled, base, base.Add(2*time.Hour))
	newStoredBooking(t, db, lab.ID, enums.BookingStatusCompleted, base, base.Add(2*time.Hour))
	newStoredBooking(t, db, otherLab.ID, enums.BookingStatusApproved, base, base.Add(2*time.Hour))

	count, err := repo.CountOverlapping(ctx, lab.ID, base, base.Add(2*time.Hour), uuid.Nil)
	require.NoError(t, err)
	assert.Zero(t, count)

	approved := newStoredBooking(t, db, lab.ID, enums.BookingStatusApproved, base, base.Add(2*time.Hour))

	count, err = repo.CountOverlapping(ctx, lab.ID, base, base.Add(2*time.Hour), uuid.Nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// Excluding the booking itself lets it re-check its own window.
	count, err = repo.CountOverlapping(ctx, lab.ID, base, base.Add(2*time.Hour), approved.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestFindApprovedEndedBefore(t *testing.T) {
	db := setupBookingTestDB(t)
	repo := NewRepository(db)
	lab := newLab(t, db, "Physics 3")
	ctx := context.Background()

	now := time.Date(2026, 4, 3, 12, 0, 0, 0, time.UTC)
	elapsed := newStoredBooking(t, db, lab.ID, enums.BookingStatusApproved, now.Add(-4*time.Hour), now.Add(-time.Hour))
	newStoredBooking(t, db, lab.ID, enums.BookingStatusApproved, now.Add(-time.Hour), now.Add(time.Hour))
	newStoredBooking(t, db, lab.ID, enums.BookingStatusPending, now.Add(-4*time.Hour), now.Add(-time.Hour))
	newStoredBooking(t, db, lab.ID, enums.BookingStatusCompleted, now.Add(-4*time.Hour), now.Add(-time.Hour))

	ids, err := repo.FindApprovedEndedBefore(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, elapsed.ID, ids[0])

	newStoredBooking(t, db, lab.ID, enums.BookingStatusApproved, now.Add(-6*time.Hour), now.Add(-5*time.Hour))

	ids, err = repo.FindApprovedEndedBefore(ctx, now, 1)
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestLabExists(t *testing.T) {
	db := setupBookingTestDB(t)
	repo := NewRepository(db)
	lab := newLab(t, db, "Geo 12")
	ctx := context.Background()

	exists, err := repo.LabExists(ctx, lab.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.LabExists(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLockLab(t *testing.T) {
	db := setupBookingTestDB(t)
	lab := newLab(t, db, "Chem 3")
	ctx := context.Background()

	err := db.Transaction(func(tx *gorm.DB) error {
		return NewRepository(db).WithTx(tx).LockLab(ctx, lab.ID)
	})
	require.NoError(t, err)

	err = db.Transaction(func(tx *gorm.DB) error {
		return NewRepository(db).WithTx(tx).LockLab(ctx, uuid.New())
	})
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestListFiltersAndCursor(t *testing.T) {
	db := setupBookingTestDB(t)
	repo := NewRepository(db)
	lab := newLab(t, db, "Eng 7")
	ctx := context.Background()

	base := time.Date(2026, 4, 5, 8, 0, 0, 0, time.UTC)
	requester := uuid.New()
	var created []*models.Booking
	for i := 0; i < 3; i++ {
		booking := &models.Booking{
			ID:          uuid.New(),
			LabID:       lab.ID,
			RequesterID: requester,
			StartTime:   base.Add(time.Duration(i*3) * time.Hour),
			EndTime:     base.Add(time.Duration(i*3+2) * time.Hour),
			Status:      enums.BookingStatusPending,
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, db.Create(booking).Error)
		created = append(created, booking)
	}

	labID := lab.ID
	out, err := repo.List(ctx, ListFilter{LabID: &labID}, 10, nil)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, created[2].ID, out[0].ID, "newest first")

	// Page past the newest row.
	out, err = repo.List(ctx, ListFilter{LabID: &labID}, 10, &pagination.Cursor{
		CreatedAt: created[2].CreatedAt,
		ID:        created[2].ID,
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, created[1].ID, out[0].ID)

	status := enums.BookingStatusApproved
	out, err = repo.List(ctx, ListFilter{LabID: &labID, Status: &status}, 10, nil)
	require.NoError(t, err)
	assert.Empty(t, out)

	stranger := uuid.New()
	out, err = repo.List(ctx, ListFilter{RequesterID: &stranger}, 10, nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestFindByIDPreloadsItemsAndSaveItem(t *testing.T) {
	db := setupBookingTestDB(t)
	repo := NewRepository(db)
	lab := newLab(t, db, "Chem 9")
	item := newItem(t, db, lab.ID, enums.ItemKindConsumable, 20, 2)
	ctx := context.Background()

	start := time.Date(2026, 4, 6, 9, 0, 0, 0, time.UTC)
	booking := &models.Booking{
		ID:          uuid.New(),
		LabID:       lab.ID,
		RequesterID: uuid.New(),
		StartTime:   start,
		EndTime:     start.Add(2 * time.Hour),
		Status:      enums.BookingStatusPending,
		Items: []models.BookingItem{
			{ID: uuid.New(), ItemID: item.ID, RequestedQty: 5},
		},
	}
	require.NoError(t, repo.Create(ctx, booking))

	loaded, err := repo.FindByID(ctx, booking.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Items, 1)
	assert.Equal(t, 5, loaded.Items[0].RequestedQty)

	allocatedAt := start.Add(-time.Hour)
	loaded.Items[0].AllocatedQty = 5
	loaded.Items[0].AllocatedAt = &allocatedAt
	require.NoError(t, repo.SaveItem(ctx, &loaded.Items[0]))

	reloaded, err := repo.FindByID(ctx, booking.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.Items[0].AllocatedAt)
	assert.Equal(t, 5, reloaded.Items[0].AllocatedQty)
}

// Full lifecycle over real repositories: request, approve with reservation,
// conflict rejection for the overlapping window, sweep completion with
// release, and a ledger that nets back to the starting quantity.
func TestBookingLifecycleEndToEnd(t *testing.T) {
	db := setupBookingTestDB(t)
	ctx := context.Background()
	lab := newLab(t, db, "Materials 1")
	item := newItem(t, db, lab.ID, enums.ItemKindConsumable, 10, 2)

	now := time.Date(2026, 4, 7, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	tx := gormTxRunner{db: db}

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(db))
	require.NoError(t, err)

	stockSvc, err := inventory.NewService(inventory.ServiceParams{
		Repo:   inventory.NewRepository(db),
		Ledger: ledgerSvc,
		Tx:     tx,
		Now:    clock,
	})
	require.NoError(t, err)

	bookingSvc, err := NewService(ServiceParams{
		Repo:   NewRepository(db),
		Stock:  stockSvc,
		Tx:     tx,
		Logger: logger.New(logger.Options{ServiceName: "test"}),
		Cfg:    config.BookingConfig{CancelCutoff: 24 * time.Hour, MaxWindow: 720 * time.Hour},
		Now:    clock,
	})
	require.NoError(t, err)

	start := now.Add(48 * time.Hour)
	booking, err := bookingSvc.Create(ctx, CreateBookingInput{
		LabID:       lab.ID,
		RequesterID: uuid.New(),
		StartTime:   start,
		EndTime:     start.Add(time.Hour),
		Lines:       []LineInput{{ItemID: item.ID, Quantity: 8}},
	})
	require.NoError(t, err)
	assert.Equal(t, enums.BookingStatusPending, booking.Status)

	// An overlapping request inside the first window is turned away
	// while the first one is still pending.
	_, err = bookingSvc.Create(ctx, CreateBookingInput{
		LabID:       lab.ID,
		RequesterID: uuid.New(),
		StartTime:   start.Add(30 * time.Minute),
		EndTime:     start.Add(45 * time.Minute),
	})
	require.Error(t, err)

	approved, err := bookingSvc.Approve(ctx, DecisionInput{BookingID: booking.ID, ActorID: uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, enums.BookingStatusApproved, approved.Status)

	current, err := stockSvc.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, current.AvailableQty)
	assert.Equal(t, 2, current.Quantity)
	assert.Equal(t, enums.ItemStatusLowStock, current.Status)

	// Sweep after the window has elapsed.
	now = start.Add(2 * time.Hour)
	report, err := bookingSvc.CompleteElapsed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Completed)

	current, err = stockSvc.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, current.AvailableQty)
	assert.Equal(t, 10, current.Quantity)
	assert.Equal(t, enums.ItemStatusAvailable, current.Status)

	// The reserve/release pair nets to zero in the ledger.
	sum, err := ledgerSvc.SumDeltas(ctx, item.ID)
	require.NoError(t, err)
	assert.Zero(t, sum)

	// A second sweep has nothing left to do.
	report, err = bookingSvc.CompleteElapsed(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Completed)
	assert.Zero(t, report.Scanned)

	completed, err := bookingSvc.Get(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.BookingStatusCompleted, completed.Status)
	require.NotNil(t, completed.CompletedAt)
}
