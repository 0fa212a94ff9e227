package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
)

// ItemDTO represents the inventory item payload returned to clients.
type ItemDTO struct {
	ProductID       uuid.UUID       `json:"product_id"`
	SKU             string          `json:"sku"`
	Quantity        int             `json:"quantity"`
	Reserved        int             `json:"reserved_quantity"`
	Available       int             `json:"available_quantity"`
	InitialQuantity int             `json:"initial_quantity"`
	MinimumStock    int             `json:"minimum_stock_level"`
	MaximumStock    *int            `json:"maximum_stock_level,omitempty"`
	Location        string          `json:"location,omitempty"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
	IsLowStock      bool            `json:"is_low_stock"`
	IsOutOfStock    bool            `json:"is_out_of_stock"`
	IsOverStock     bool            `json:"is_over_stock"`
	LastRestockedAt *time.Time      `json:"last_restocked_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// ItemListResult carries a trimmed page of items plus the resume cursor.
type ItemListResult struct {
	Items      []ItemDTO `json:"items"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

// BulkUpdateResult reports the per-sku outcome of a bulk metadata update.
type BulkUpdateResult struct {
	SKU         string   `json:"sku"`
	Success     bool     `json:"success"`
	Item        *ItemDTO `json:"item,omitempty"`
	ErrorCode   string   `json:"error_code,omitempty"`
	ErrorReason string   `json:"error,omitempty"`
}

// AdjustResult reports the post-adjustment quantity and the appended movement.
type AdjustResult struct {
	ProductID   uuid.UUID    `json:"product_id"`
	NewQuantity int          `json:"new_quantity"`
	Available   int          `json:"available_quantity"`
	Movement    *MovementDTO `json:"movement"`
}

// MovementDTO exposes a ledger row through the inventory API.
type MovementDTO struct {
	ID           uuid.UUID  `json:"id"`
	ProductID    uuid.UUID  `json:"product_id"`
	MovementType string     `json:"movement_type"`
	Quantity     int        `json:"quantity"`
	ReferenceID  *uuid.UUID `json:"reference_id,omitempty"`
	Notes        *string    `json:"notes,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// StatsDTO aggregates fleet-wide inventory counters.
type StatsDTO struct {
	TotalItems      int64 `json:"total_items"`
	TotalQuantity   int64 `json:"total_quantity"`
	TotalReserved   int64 `json:"total_reserved"`
	TotalAvailable  int64 `json:"total_available"`
	LowStockCount   int64 `json:"low_stock_count"`
	OutOfStockCount int64 `json:"out_of_stock_count"`
}

// ReconcileResult compares the stored quantity to the ledger-derived one.
type ReconcileResult struct {
	ProductID        uuid.UUID `json:"product_id"`
	Quantity         int       `json:"quantity"`
	InitialQuantity  int       `json:"initial_quantity"`
	LedgerNetChange  int64     `json:"ledger_net_change"`
	ExpectedQuantity int64     `json:"expected_quantity"`
	Consistent       bool      `json:"consistent"`
}

// NewItemDTO builds a DTO from the persisted model.
func NewItemDTO(item *models.InventoryItem) *ItemDTO {
	return &ItemDTO{
		ProductID:       item.ProductID,
		SKU:             item.SKU,
		Quantity:        item.Quantity,
		Reserved:        item.ReservedQuantity,
		Available:       item.Available(),
		InitialQuantity: item.InitialQuantity,
		MinimumStock:    item.MinimumStock,
		MaximumStock:    item.MaximumStock,
		Location:        item.Location,
		UnitCost:        item.UnitCost,
		IsLowStock:      item.IsLowStock(),
		IsOutOfStock:    item.IsOutOfStock(),
		IsOverStock:     item.IsOverStock(),
		LastRestockedAt: item.LastRestockedAt,
		CreatedAt:       item.CreatedAt,
		UpdatedAt:       item.UpdatedAt,
	}
}

// NewMovementDTO builds a DTO from the persisted movement row.
func NewMovementDTO(movement *models.StockMovement) *MovementDTO {
	return &MovementDTO{
		ID:           movement.ID,
		ProductID:    movement.ProductID,
		MovementType: string(movement.MovementType),
		Quantity:     movement.Quantity,
		ReferenceID:  movement.ReferenceID,
		Notes:        movement.Notes,
		CreatedAt:    movement.CreatedAt,
	}
}
