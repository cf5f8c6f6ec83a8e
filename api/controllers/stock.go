package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/openlabworks/labops-backend/api/middleware"
	"github.com/openlabworks/labops-backend/api/responses"
	"github.com/openlabworks/labops-backend/api/validators"
	"github.com/openlabworks/labops-backend/internal/inventory"
	"github.com/openlabworks/labops-backend/pkg/enums"
	pkgerrors "github.com/openlabworks/labops-backend/pkg/errors"
	"github.com/openlabworks/labops-backend/pkg/logger"
)

type addStockRequest struct {
	ItemID          *string    `json:"item_id,omitempty" validate:"omitempty,uuid"`
	CatalogueItemID *string    `json:"catalogue_item_id,omitempty" validate:"omitempty,uuid"`
	LabID           *string    `json:"lab_id,omitempty" validate:"omitempty,uuid"`
	Storage         *string    `json:"storage,omitempty"`
	Kind            *string    `json:"kind,omitempty"`
	Quantity        int        `json:"quantity" validate:"required,min=1"`
	MinimumQty      int        `json:"minimum_qty" validate:"min=0"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	Reason          string     `json:"reason,omitempty" validate:"max=500"`
}

type removeStockRequest struct {
	Quantity int    `json:"quantity" validate:"required,min=1"`
	Reason   string `json:"reason,omitempty" validate:"max=500"`
}

type adjustStockRequest struct {
	NewQuantity int    `json:"new_quantity" validate:"min=0"`
	Reason      string `json:"reason,omitempty" validate:"max=500"`
}

type moveStockRequest struct {
	DestLabID   string `json:"dest_lab_id" validate:"required,uuid"`
	DestStorage string `json:"dest_storage" validate:"required"`
	Quantity    int    `json:"quantity" validate:"required,min=1"`
	Reason      string `json:"reason,omitempty" validate:"max=500"`
}

// AddStock books quantity into an existing item or a new location.
func AddStock(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req addStockRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := inventory.AddStockInput{
			Quantity:   req.Quantity,
			MinimumQty: req.MinimumQty,
			ExpiresAt:  req.ExpiresAt,
			ActorID:    middleware.ActorIDFromContext(r.Context()),
			Reason:     validators.SanitizeString(req.Reason, 500),
		}
		if req.ItemID != nil {
			itemID, err := uuid.Parse(*req.ItemID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid item id"))
				return
			}
			input.ItemID = itemID
		}
		if req.CatalogueItemID != nil {
			catalogueID, err := uuid.Parse(*req.CatalogueItemID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid catalogue item id"))
				return
			}
			input.CatalogueItemID = catalogueID
		}
		if req.LabID != nil {
			labID, err := uuid.Parse(*req.LabID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid lab id"))
				return
			}
			input.LabID = labID
		}
		if req.Storage != nil {
			storage, err := enums.ParseStorageKind(*req.Storage)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid storage kind"))
				return
			}
			input.Storage = storage
		}
		if req.Kind != nil {
			kind, err := enums.ParseItemKind(*req.Kind)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid item kind"))
				return
			}
			input.Kind = kind
		}

		item, err := svc.AddStock(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

// RemoveStock removes quantity from an item.
func RemoveStock(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID, err := uuid.Parse(chi.URLParam(r, "itemID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid item id"))
			return
		}

		var req removeStockRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		item, err := svc.RemoveStock(r.Context(), inventory.RemoveStockInput{
			ItemID:   itemID,
			Quantity: req.Quantity,
			ActorID:  middleware.ActorIDFromContext(r.Context()),
			Reason:   validators.SanitizeString(req.Reason, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

// AdjustStock sets an item's absolute quantity after a physical count.
func AdjustStock(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID, err := uuid.Parse(chi.URLParam(r, "itemID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid item id"))
			return
		}

		var req adjustStockRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		item, err := svc.AdjustStock(r.Context(), inventory.AdjustStockInput{
			ItemID:      itemID,
			NewQuantity: req.NewQuantity,
			ActorID:     middleware.ActorIDFromContext(r.Context()),
			Reason:      validators.SanitizeString(req.Reason, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

// MoveStock transfers quantity between locations.
func MoveStock(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID, err := uuid.Parse(chi.URLParam(r, "itemID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid item id"))
			return
		}

		var req moveStockRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		destLabID, err := uuid.Parse(req.DestLabID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid destination lab id"))
			return
		}
		destStorage, err := enums.ParseStorageKind(req.DestStorage)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid destination storage kind"))
			return
		}

		result, err := svc.MoveStock(r.Context(), inventory.MoveStockInput{
			ItemID:      itemID,
			DestLabID:   destLabID,
			DestStorage: destStorage,
			Quantity:    req.Quantity,
			ActorID:     middleware.ActorIDFromContext(r.Context()),
			Reason:      validators.SanitizeString(req.Reason, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// GetItem returns one inventory item with its derived status.
func GetItem(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID, err := uuid.Parse(chi.URLParam(r, "itemID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid item id"))
			return
		}

		item, err := svc.GetItem(r.Context(), itemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

// ListLabInventory returns every inventory item in a lab.
func ListLabInventory(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		labID, err := uuid.Parse(chi.URLParam(r, "labID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid lab id"))
			return
		}

		items, err := svc.ListByLab(r.Context(), labID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"items": items})
	}
}
