package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockroomhq/stockroom-backend/api/responses"
	"github.com/stockroomhq/stockroom-backend/api/validators"
	inventorysvc "github.com/stockroomhq/stockroom-backend/internal/inventory"
	ledgersvc "github.com/stockroomhq/stockroom-backend/internal/ledger"
	"github.com/stockroomhq/stockroom-backend/pkg/enums"
	pkgerrors "github.com/stockroomhq/stockroom-backend/pkg/errors"
	"github.com/stockroomhq/stockroom-backend/pkg/logger"
	"github.com/stockroomhq/stockroom-backend/pkg/pagination"
)

type registerItemRequest struct {
	ProductID    string  `json:"product_id" validate:"required,uuid"`
	SKU          string  `json:"sku" validate:"required"`
	Quantity     int     `json:"quantity" validate:"min=0"`
	MinimumStock int     `json:"minimum_stock_level" validate:"min=0"`
	MaximumStock *int    `json:"maximum_stock_level,omitempty" validate:"omitempty,min=0"`
	Location     string  `json:"location,omitempty"`
	UnitCost     *string `json:"unit_cost,omitempty"`
}

func (r registerItemRequest) toInput() (inventorysvc.RegisterItemInput, error) {
	productID, err := uuid.Parse(r.ProductID)
	if err != nil {
		return inventorysvc.RegisterItemInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id")
	}
	unitCost := decimal.Zero
	if r.UnitCost != nil {
		unitCost, err = decimal.NewFromString(strings.TrimSpace(*r.UnitCost))
		if err != nil {
			return inventorysvc.RegisterItemInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid unit cost")
		}
	}
	return inventorysvc.RegisterItemInput{
		ProductID:    productID,
		SKU:          strings.TrimSpace(r.SKU),
		Quantity:     r.Quantity,
		MinimumStock: r.MinimumStock,
		MaximumStock: r.MaximumStock,
		Location:     strings.TrimSpace(r.Location),
		UnitCost:     unitCost,
	}, nil
}

// RegisterItem handles item registration.
func RegisterItem(svc inventorysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload registerItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		item, err := svc.Register(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, item)
	}
}

// ListItems supports sku/location search, low-stock filtering, and cursor
// pagination.
func ListItems(svc inventorysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		lowStock, err := validators.ParseQueryBool(r, "low_stock")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.List(r.Context(), inventorysvc.ListItemsInput{
			Search:       strings.TrimSpace(r.URL.Query().Get("search")),
			Location:     strings.TrimSpace(r.URL.Query().Get("location")),
			LowStockOnly: lowStock,
			Pagination: pagination.Params{
				Limit:  limit,
				Cursor: r.URL.Query().Get("cursor"),
			},
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// GetItem returns one item by product id.
func GetItem(svc inventorysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.PathUUID(r, "productID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		item, err := svc.Get(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

type updateItemRequest struct {
	MinimumStock *int    `json:"minimum_stock_level,omitempty" validate:"omitempty,min=0"`
	MaximumStock *int    `json:"maximum_stock_level,omitempty" validate:"omitempty,min=0"`
	Location     *string `json:"location,omitempty"`
	UnitCost     *string `json:"unit_cost,omitempty"`
}

func (r updateItemRequest) toInput() (inventorysvc.UpdateItemInput, error) {
	input := inventorysvc.UpdateItemInput{
		MinimumStock: r.MinimumStock,
		MaximumStock: r.MaximumStock,
	}
	if r.Location != nil {
		location := strings.TrimSpace(*r.Location)
		input.Location = &location
	}
	if r.UnitCost != nil {
		unitCost, err := decimal.NewFromString(strings.TrimSpace(*r.UnitCost))
		if err != nil {
			return inventorysvc.UpdateItemInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid unit cost")
		}
		input.UnitCost = &unitCost
	}
	return input, nil
}

// UpdateItem patches item metadata; stock counters only move through adjust.
func UpdateItem(svc inventorysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.PathUUID(r, "productID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload updateItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		item, err := svc.Update(r.Context(), productID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

type bulkUpdateRequest struct {
	Operations []bulkUpdateOperation `json:"operations" validate:"required,min=1,max=100,dive"`
}

type bulkUpdateOperation struct {
	SKU string `json:"sku" validate:"required"`
	updateItemRequest
}

// BulkUpdateItems patches many items by sku with per-item outcomes.
func BulkUpdateItems(svc inventorysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload bulkUpdateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ops := make([]inventorysvc.BulkUpdateOperation, 0, len(payload.Operations))
		for _, op := range payload.Operations {
			patch, err := op.toInput()
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			ops = append(ops, inventorysvc.BulkUpdateOperation{
				SKU:   strings.TrimSpace(op.SKU),
				Patch: patch,
			})
		}
		responses.WriteSuccess(w, map[string]any{"results": svc.BulkUpdate(r.Context(), ops)})
	}
}

// DeleteItem soft-deletes an item unless active reservations hold it.
func DeleteItem(svc inventorysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.PathUUID(r, "productID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), productID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}

type adjustQuantityRequest struct {
	Delta       int     `json:"delta" validate:"required"`
	Type        string  `json:"movement_type" validate:"required"`
	ReferenceID *string `json:"reference_id,omitempty" validate:"omitempty,uuid"`
	Notes       *string `json:"notes,omitempty"`
}

func (r adjustQuantityRequest) toInput() (inventorysvc.AdjustInput, error) {
	movementType, err := enums.ParseMovementType(strings.TrimSpace(r.Type))
	if err != nil {
		return inventorysvc.AdjustInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid movement type")
	}
	var referenceID *uuid.UUID
	if r.ReferenceID != nil {
		parsed, err := uuid.Parse(*r.ReferenceID)
		if err != nil {
			return inventorysvc.AdjustInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid reference id")
		}
		referenceID = &parsed
	}
	return inventorysvc.AdjustInput{
		Delta:       r.Delta,
		Type:        movementType,
		ReferenceID: referenceID,
		Notes:       r.Notes,
	}, nil
}

// AdjustQuantity applies a signed on-hand delta and appends the ledger movement.
func AdjustQuantity(svc inventorysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.PathUUID(r, "productID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload adjustQuantityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.AdjustQuantity(r.Context(), productID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// GetAvailability serves the cached derived availability for one item.
func GetAvailability(svc inventorysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.PathUUID(r, "productID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		available, err := svc.GetAvailable(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"product_id": productID,
			"available":  available,
		})
	}
}

// ListMovements returns the item's movement history, oldest first.
func ListMovements(ledgerService ledgersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.PathUUID(r, "productID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		movements, next, err := ledgerService.ListByProduct(r.Context(), productID, pagination.Params{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dtos := make([]inventorysvc.MovementDTO, 0, len(movements))
		for i := range movements {
			dtos = append(dtos, *inventorysvc.NewMovementDTO(&movements[i]))
		}
		responses.WriteSuccess(w, map[string]any{
			"movements":   dtos,
			"next_cursor": next,
		})
	}
}

// ReconcileItem compares stored quantity to the ledger-derived expectation.
func ReconcileItem(svc inventorysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.PathUUID(r, "productID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Reconcile(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// LowStockItems lists items at or below their reorder floor.
func LowStockItems(svc inventorysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := svc.LowStockItems(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"items": items})
	}
}

// InventoryStats serves aggregate counters for dashboards.
func InventoryStats(svc inventorysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := svc.Stats(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stats)
	}
}
