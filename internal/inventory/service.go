package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openlabworks/labops-backend/internal/ledger"
	"github.com/openlabworks/labops-backend/pkg/db/models"
	"github.com/openlabworks/labops-backend/pkg/enums"
	pkgerrors "github.com/openlabworks/labops-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// LowStockNotifier is told, best effort, when a mutation leaves an item at or
// below its minimum. Implementations must never return an error that callers
// would propagate; the return value exists for logging only.
type LowStockNotifier interface {
	NotifyLowStock(ctx context.Context, item *models.InventoryItem) error
}

// Service is the only component allowed to change inventory quantities. Every
// mutation and its ledger entry commit in one transaction: standalone calls
// open their own scope, Reserve/Release join the scope the caller passes in.
type Service interface {
	AddStock(ctx context.Context, input AddStockInput) (*models.InventoryItem, error)
	RemoveStock(ctx context.Context, input RemoveStockInput) (*models.InventoryItem, error)
	AdjustStock(ctx context.Context, input AdjustStockInput) (*models.InventoryItem, error)
	MoveStock(ctx context.Context, input MoveStockInput) (*MoveStockResult, error)
	Reserve(ctx context.Context, tx *gorm.DB, input AllocationInput) (*models.InventoryItem, error)
	Release(ctx context.Context, tx *gorm.DB, input AllocationInput) (*models.InventoryItem, error)
	GetItem(ctx context.Context, itemID uuid.UUID) (*models.InventoryItem, error)
	ListByLab(ctx context.Context, labID uuid.UUID) ([]models.InventoryItem, error)
}

type service struct {
	repo     Repository
	ledger   ledger.Service
	tx       txRunner
	notifier LowStockNotifier
	now      func() time.Time
}

// AddStockInput books quantity into a location, creating the item row on
// first stock-in.
type AddStockInput struct {
	ItemID          uuid.UUID // set for an existing item
	CatalogueItemID uuid.UUID // with LabID+Storage, locates or creates the item
	LabID           uuid.UUID
	Storage         enums.StorageKind
	Kind            enums.ItemKind
	Quantity        int
	MinimumQty      int
	ExpiresAt       *time.Time
	ActorID         uuid.UUID
	Reason          string
}

type RemoveStockInput struct {
	ItemID   uuid.UUID
	Quantity int
	ActorID  uuid.UUID
	Reason   string
}

// AdjustStockInput sets the absolute quantity; the ledger records the delta.
type AdjustStockInput struct {
	ItemID      uuid.UUID
	NewQuantity int
	ActorID     uuid.UUID
	Reason      string
}

type MoveStockInput struct {
	ItemID      uuid.UUID
	DestLabID   uuid.UUID
	DestStorage enums.StorageKind
	Quantity    int
	ActorID     uuid.UUID
	Reason      string
}

// MoveStockResult reports both ends of a move. For full-quantity moves the
// source row is re-parented and both pointers reference the same item.
type MoveStockResult struct {
	Source      *models.InventoryItem `json:"source"`
	Destination *models.InventoryItem `json:"destination"`
}

// AllocationInput is one line of a booking allocation or release.
type AllocationInput struct {
	ItemID    uuid.UUID
	Quantity  int
	ActorID   uuid.UUID
	BookingID uuid.UUID
	Reason    string
}

// ServiceParams configure the stock service.
type ServiceParams struct {
	Repo     Repository
	Ledger   ledger.Service
	Tx       txRunner
	Notifier LowStockNotifier
	Now      func() time.Time
}

// NewService builds the stock service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:     params.Repo,
		ledger:   params.Ledger,
		tx:       params.Tx,
		notifier: params.Notifier,
		now:      now,
	}, nil
}

func (s *service) GetItem(ctx context.Context, itemID uuid.UUID) (*models.InventoryItem, error) {
	if itemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id required")
	}
	item, err := s.repo.FindByID(ctx, itemID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "inventory item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory item")
	}
	// Status is derived on read so a lapsed expiry shows without waiting
	// for the next mutation to persist it.
	recompute(item, s.now())
	return item, nil
}

func (s *service) ListByLab(ctx context.Context, labID uuid.UUID) ([]models.InventoryItem, error) {
	if labID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "lab id required")
	}
	items, err := s.repo.ListByLab(ctx, labID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list inventory")
	}
	for i := range items {
		recompute(&items[i], s.now())
	}
	return items, nil
}

func (s *service) AddStock(ctx context.Context, input AddStockInput) (*models.InventoryItem, error) {
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}
	if input.ItemID == uuid.Nil {
		if input.CatalogueItemID == uuid.Nil || input.LabID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id or catalogue item + lab required")
		}
		if !input.Kind.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item kind required for stock-in")
		}
		if !input.Storage.IsValid() {
			input.Storage = enums.StorageKindShelf
		}
	}
	reason := input.Reason
	if reason == "" {
		reason = "stock in"
	}

	var result *models.InventoryItem
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		item, err := s.locateOrCreate(ctx, repo, input)
		if err != nil {
			return err
		}

		item.Quantity += input.Quantity
		item.AvailableQty += input.Quantity
		recompute(item, s.now())
		if err := repo.Save(ctx, item); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save inventory item")
		}

		if _, err := s.ledger.Record(ctx, tx, ledger.RecordEntryInput{
			ItemID:  item.ID,
			LabID:   item.LabID,
			Delta:   input.Quantity,
			Kind:    enums.MovementKindAdd,
			ActorID: input.ActorID,
			Reason:  reason,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append ledger entry")
		}

		result = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.maybeNotifyLowStock(ctx, result)
	return result, nil
}

func (s *service) RemoveStock(ctx context.Context, input RemoveStockInput) (*models.InventoryItem, error) {
	if input.ItemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id required")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}
	reason := input.Reason
	if reason == "" {
		reason = "stock out"
	}

	var result *models.InventoryItem
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		item, err := s.load(ctx, repo, input.ItemID)
		if err != nil {
			return err
		}

		if item.AvailableQty < input.Quantity {
			return insufficient(item, input.Quantity)
		}

		item.Quantity -= input.Quantity
		item.AvailableQty -= input.Quantity
		recompute(item, s.now())
		if err := repo.Save(ctx, item); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save inventory item")
		}

		if _, err := s.ledger.Record(ctx, tx, ledger.RecordEntryInput{
			ItemID:  item.ID,
			LabID:   item.LabID,
			Delta:   -input.Quantity,
			Kind:    enums.MovementKindRemove,
			ActorID: input.ActorID,
			Reason:  reason,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append ledger entry")
		}

		result = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.maybeNotifyLowStock(ctx, result)
	return result, nil
}

func (s *service) AdjustStock(ctx context.Context, input AdjustStockInput) (*models.InventoryItem, error) {
	if input.ItemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id required")
	}
	if input.NewQuantity < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity cannot be negative")
	}
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}
	reason := input.Reason
	if reason == "" {
		reason = "stock adjustment"
	}

	var result *models.InventoryItem
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		item, err := s.load(ctx, repo, input.ItemID)
		if err != nil {
			return err
		}

		delta := input.NewQuantity - item.Quantity
		if delta == 0 {
			result = item
			return nil
		}
		if item.AvailableQty+delta < 0 {
			return insufficient(item, -delta)
		}

		item.Quantity = input.NewQuantity
		item.AvailableQty += delta
		recompute(item, s.now())
		if err := repo.Save(ctx, item); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save inventory item")
		}

		if _, err := s.ledger.Record(ctx, tx, ledger.RecordEntryInput{
			ItemID:  item.ID,
			LabID:   item.LabID,
			Delta:   delta,
			Kind:    enums.MovementKindAdjust,
			ActorID: input.ActorID,
			Reason:  reason,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append ledger entry")
		}

		result = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.maybeNotifyLowStock(ctx, result)
	return result, nil
}

func (s *service) MoveStock(ctx context.Context, input MoveStockInput) (*MoveStockResult, error) {
	if input.ItemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id required")
	}
	if input.DestLabID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "destination lab id required")
	}
	if !input.DestStorage.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "destination storage kind required")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}
	reason := input.Reason
	if reason == "" {
		reason = "stock transfer"
	}

	var result *MoveStockResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		source, err := s.load(ctx, repo, input.ItemID)
		if err != nil {
			return err
		}
		if source.LabID == input.DestLabID && source.Storage == input.DestStorage {
			return pkgerrors.New(pkgerrors.CodeValidation, "destination equals source location")
		}
		if source.AvailableQty < input.Quantity {
			return insufficient(source, input.Quantity)
		}

		sourceLabID := source.LabID

		if input.Quantity == source.Quantity {
			// Full move keeps one row per catalogue entry instead of
			// fragmenting its ledger history across duplicates.
			source.LabID = input.DestLabID
			source.Storage = input.DestStorage
			recompute(source, s.now())
			if err := repo.Save(ctx, source); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "re-parent inventory item")
			}
			if err := s.recordTransfer(ctx, tx, source.ID, sourceLabID, source.ID, input.DestLabID, input.Quantity, input.ActorID, reason); err != nil {
				return err
			}
			result = &MoveStockResult{Source: source, Destination: source}
			return nil
		}

		source.Quantity -= input.Quantity
		source.AvailableQty -= input.Quantity
		recompute(source, s.now())
		if err := repo.Save(ctx, source); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save source item")
		}

		dest, err := repo.FindByLocation(ctx, source.CatalogueItemID, input.DestLabID, input.DestStorage)
		if err != nil {
			if err != gorm.ErrRecordNotFound {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load destination item")
			}
			dest = &models.InventoryItem{
				CatalogueItemID: source.CatalogueItemID,
				LabID:           input.DestLabID,
				Storage:         input.DestStorage,
				Kind:            source.Kind,
				MinimumQty:      source.MinimumQty,
				ExpiresAt:       source.ExpiresAt,
			}
			if err := repo.Create(ctx, dest); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create destination item")
			}
		}

		dest.Quantity += input.Quantity
		dest.AvailableQty += input.Quantity
		recompute(dest, s.now())
		if err := repo.Save(ctx, dest); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save destination item")
		}

		if err := s.recordTransfer(ctx, tx, source.ID, sourceLabID, dest.ID, input.DestLabID, input.Quantity, input.ActorID, reason); err != nil {
			return err
		}

		result = &MoveStockResult{Source: source, Destination: dest}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.maybeNotifyLowStock(ctx, result.Source)
	return result, nil
}

// Reserve spends stock for a booking approval inside the caller's transaction.
// Consumables decrement quantity and availability with a ledger entry;
// equipment flips to in_use without a quantity change.
func (s *service) Reserve(ctx context.Context, tx *gorm.DB, input AllocationInput) (*models.InventoryItem, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reserve requires an open transaction")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	repo := s.repo.WithTx(tx)
	item, err := s.load(ctx, repo, input.ItemID)
	if err != nil {
		return nil, err
	}

	recompute(item, s.now())
	if !item.Status.Allocatable() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("item is %s", item.Status)).
			WithDetails(map[string]any{"item_id": item.ID, "status": item.Status})
	}

	switch item.Kind {
	case enums.ItemKindEquipment:
		item.Status = enums.ItemStatusInUse
		if err := repo.Save(ctx, item); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save equipment item")
		}
		return item, nil

	default:
		if item.AvailableQty < input.Quantity {
			return nil, insufficient(item, input.Quantity)
		}
		item.Quantity -= input.Quantity
		item.AvailableQty -= input.Quantity
		recompute(item, s.now())
		if err := repo.Save(ctx, item); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save inventory item")
		}

		bookingID := input.BookingID
		if _, err := s.ledger.Record(ctx, tx, ledger.RecordEntryInput{
			ItemID:    item.ID,
			LabID:     item.LabID,
			Delta:     -input.Quantity,
			Kind:      enums.MovementKindRemove,
			ActorID:   input.ActorID,
			Reason:    input.Reason,
			BookingID: &bookingID,
		}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append ledger entry")
		}
		return item, nil
	}
}

// Release returns a booking allocation inside the caller's transaction.
func (s *service) Release(ctx context.Context, tx *gorm.DB, input AllocationInput) (*models.InventoryItem, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "release requires an open transaction")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	repo := s.repo.WithTx(tx)
	item, err := s.load(ctx, repo, input.ItemID)
	if err != nil {
		return nil, err
	}

	switch item.Kind {
	case enums.ItemKindEquipment:
		if item.Status == enums.ItemStatusInUse {
			item.Status = enums.ItemStatusAvailable
		}
		recompute(item, s.now())
		if err := repo.Save(ctx, item); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save equipment item")
		}
		return item, nil

	default:
		item.Quantity += input.Quantity
		item.AvailableQty += input.Quantity
		recompute(item, s.now())
		if err := repo.Save(ctx, item); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save inventory item")
		}

		bookingID := input.BookingID
		if _, err := s.ledger.Record(ctx, tx, ledger.RecordEntryInput{
			ItemID:    item.ID,
			LabID:     item.LabID,
			Delta:     input.Quantity,
			Kind:      enums.MovementKindAdd,
			ActorID:   input.ActorID,
			Reason:    input.Reason,
			BookingID: &bookingID,
		}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append ledger entry")
		}
		return item, nil
	}
}

func (s *service) locateOrCreate(ctx context.Context, repo Repository, input AddStockInput) (*models.InventoryItem, error) {
	if input.ItemID != uuid.Nil {
		return s.load(ctx, repo, input.ItemID)
	}

	item, err := repo.FindByLocation(ctx, input.CatalogueItemID, input.LabID, input.Storage)
	if err == nil {
		return item, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory item")
	}

	item = &models.InventoryItem{
		CatalogueItemID: input.CatalogueItemID,
		LabID:           input.LabID,
		Storage:         input.Storage,
		Kind:            input.Kind,
		MinimumQty:      input.MinimumQty,
		ExpiresAt:       input.ExpiresAt,
	}
	if err := repo.Create(ctx, item); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create inventory item")
	}
	return item, nil
}

// load fetches an item for mutation. Every caller runs inside a transaction,
// so the row lock is held until the quantity change commits.
func (s *service) load(ctx context.Context, repo Repository, itemID uuid.UUID) (*models.InventoryItem, error) {
	item, err := repo.FindByIDForUpdate(ctx, itemID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "inventory item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory item")
	}
	return item, nil
}

func (s *service) recordTransfer(ctx context.Context, tx *gorm.DB, sourceItemID, sourceLabID, destItemID, destLabID uuid.UUID, qty int, actorID uuid.UUID, reason string) error {
	if _, err := s.ledger.Record(ctx, tx, ledger.RecordEntryInput{
		ItemID:  sourceItemID,
		LabID:   sourceLabID,
		Delta:   -qty,
		Kind:    enums.MovementKindTransferOut,
		ActorID: actorID,
		Reason:  reason,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append transfer-out entry")
	}
	if _, err := s.ledger.Record(ctx, tx, ledger.RecordEntryInput{
		ItemID:  destItemID,
		LabID:   destLabID,
		Delta:   qty,
		Kind:    enums.MovementKindTransferIn,
		ActorID: actorID,
		Reason:  reason,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append transfer-in entry")
	}
	return nil
}

func (s *service) maybeNotifyLowStock(ctx context.Context, item *models.InventoryItem) {
	if s.notifier == nil || item == nil {
		return
	}
	if item.Status != enums.ItemStatusLowStock && item.Status != enums.ItemStatusOutOfStock {
		return
	}
	_ = s.notifier.NotifyLowStock(ctx, item)
}

func insufficient(item *models.InventoryItem, requested int) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").
		WithDetails(map[string]any{
			"item_id":   item.ID,
			"requested": requested,
			"available": item.AvailableQty,
		})
}
