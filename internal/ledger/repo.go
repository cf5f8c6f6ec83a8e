package ledger

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openlabworks/labops-backend/pkg/db/models"
	"github.com/openlabworks/labops-backend/pkg/pagination"
)

// Repository manages persistence for stock ledger entries. Entries are append
// only; the repository exposes no update or delete.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Append(ctx context.Context, entry *models.StockLedgerEntry) error
	ListByItemID(ctx context.Context, itemID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.StockLedgerEntry, error)
	SumDeltas(ctx context.Context, itemID uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Append(ctx context.Context, entry *models.StockLedgerEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListByItemID(ctx context.Context, itemID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.StockLedgerEntry, error) {
	query := r.db.WithContext(ctx).
		Where("item_id = ?", itemID).
		Order("created_at DESC, id DESC").
		Limit(limit)

	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var entries []models.StockLedgerEntry
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) SumDeltas(ctx context.Context, itemID uuid.UUID) (int64, error) {
	var sum *int64
	err := r.db.WithContext(ctx).
		Model(&models.StockLedgerEntry{}).
		Select("SUM(delta)").
		Where("item_id = ?", itemID).
		Scan(&sum).Error
	if err != nil {
		return 0, err
	}
	if sum == nil {
		return 0, nil
	}
	return *sum, nil
}
