package inventory

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/openlabworks/labops-backend/pkg/db/models"
	"github.com/openlabworks/labops-backend/pkg/enums"
)

// Repository manages persistence for inventory items. Soft-deleted rows stay
// out of every lookup; they remain in the table so ledger references resolve.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, itemID uuid.UUID) (*models.InventoryItem, error)
	FindByIDForUpdate(ctx context.Context, itemID uuid.UUID) (*models.InventoryItem, error)
	FindByLocation(ctx context.Context, catalogueItemID, labID uuid.UUID, storage enums.StorageKind) (*models.InventoryItem, error)
	ListByLab(ctx context.Context, labID uuid.UUID) ([]models.InventoryItem, error)
	Create(ctx context.Context, item *models.InventoryItem) error
	Save(ctx context.Context, item *models.InventoryItem) error
	Retire(ctx context.Context, itemID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an inventory repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, itemID uuid.UUID) (*models.InventoryItem, error) {
	var item models.InventoryItem
	if err := r.db.WithContext(ctx).First(&item, "id = ?", itemID).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// FindByIDForUpdate loads the item under SELECT ... FOR UPDATE. Quantity
// writers must use it: Save writes absolute values, so two transactions
// reading the same row unlocked would silently drop one decrement. Callers
// hold an open transaction. The sqlite driver used in tests discards the
// locking clause; its single-writer transactions give the same ordering.
func (r *repository) FindByIDForUpdate(ctx context.Context, itemID uuid.UUID) (*models.InventoryItem, error) {
	var item models.InventoryItem
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&item, "id = ?", itemID).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// FindByLocation is only called inside mutation transactions, so it takes
// the same row lock as FindByIDForUpdate.
func (r *repository) FindByLocation(ctx context.Context, catalogueItemID, labID uuid.UUID, storage enums.StorageKind) (*models.InventoryItem, error) {
	var item models.InventoryItem
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("catalogue_item_id = ? AND lab_id = ? AND storage = ?", catalogueItemID, labID, storage).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) ListByLab(ctx context.Context, labID uuid.UUID) ([]models.InventoryItem, error) {
	var items []models.InventoryItem
	err := r.db.WithContext(ctx).
		Where("lab_id = ?", labID).
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) Create(ctx context.Context, item *models.InventoryItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *repository) Save(ctx context.Context, item *models.InventoryItem) error {
	return r.db.WithContext(ctx).Save(item).Error
}

func (r *repository) Retire(ctx context.Context, itemID uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.InventoryItem{}, "id = ?", itemID).Error
}
