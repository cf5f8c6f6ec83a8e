package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openlabworks/labops-backend/pkg/db/models"
	"github.com/openlabworks/labops-backend/pkg/enums"
	"github.com/openlabworks/labops-backend/pkg/pagination"
)

// Service records and reads the append-only stock ledger.
type Service interface {
	Record(ctx context.Context, tx *gorm.DB, input RecordEntryInput) (*models.StockLedgerEntry, error)
	History(ctx context.Context, itemID uuid.UUID, params pagination.Params) (*HistoryPage, error)
	SumDeltas(ctx context.Context, itemID uuid.UUID) (int64, error)
}

type service struct {
	repo Repository
}

// RecordEntryInput captures the immutable data a ledger entry requires.
type RecordEntryInput struct {
	ItemID    uuid.UUID
	LabID     uuid.UUID
	Delta     int
	Kind      enums.MovementKind
	ActorID   uuid.UUID
	Reason    string
	BookingID *uuid.UUID
}

// HistoryPage is one page of ledger entries, newest first.
type HistoryPage struct {
	Entries    []models.StockLedgerEntry `json:"entries"`
	NextCursor string                    `json:"next_cursor,omitempty"`
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Record(ctx context.Context, tx *gorm.DB, input RecordEntryInput) (*models.StockLedgerEntry, error) {
	if input.ItemID == uuid.Nil {
		return nil, fmt.Errorf("item id is required")
	}
	if input.LabID == uuid.Nil {
		return nil, fmt.Errorf("lab id is required")
	}
	if input.ActorID == uuid.Nil {
		return nil, fmt.Errorf("actor id is required")
	}
	if !input.Kind.IsValid() {
		return nil, fmt.Errorf("invalid movement kind %q", input.Kind)
	}
	if input.Delta == 0 {
		return nil, fmt.Errorf("delta must be non-zero")
	}
	if strings.TrimSpace(input.Reason) == "" {
		return nil, fmt.Errorf("reason is required")
	}

	entry := &models.StockLedgerEntry{
		ItemID:    input.ItemID,
		LabID:     input.LabID,
		Delta:     input.Delta,
		Kind:      input.Kind,
		ActorID:   input.ActorID,
		Reason:    input.Reason,
		BookingID: input.BookingID,
	}

	if err := s.repo.WithTx(tx).Append(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) History(ctx context.Context, itemID uuid.UUID, params pagination.Params) (*HistoryPage, error) {
	if itemID == uuid.Nil {
		return nil, fmt.Errorf("item id is required")
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}

	limit := pagination.NormalizeLimit(params.Limit)
	entries, err := s.repo.ListByItemID(ctx, itemID, pagination.LimitWithBuffer(params.Limit), cursor)
	if err != nil {
		return nil, err
	}

	page := &HistoryPage{Entries: entries}
	if len(entries) > limit {
		page.Entries = entries[:limit]
		last := page.Entries[limit-1]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}
	return page, nil
}

func (s *service) SumDeltas(ctx context.Context, itemID uuid.UUID) (int64, error) {
	if itemID == uuid.Nil {
		return 0, fmt.Errorf("item id is required")
	}
	return s.repo.SumDeltas(ctx, itemID)
}
