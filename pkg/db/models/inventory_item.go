package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InventoryItem tracks on-hand and reserved counts per product.
// Invariant: 0 <= ReservedQuantity <= Quantity at every observable point.
type InventoryItem struct {
	ProductID        uuid.UUID       `gorm:"column:product_id;type:uuid;primaryKey"`
	SKU              string          `gorm:"column:sku;not null;unique"`
	Quantity         int             `gorm:"column:quantity;not null;default:0"`
	ReservedQuantity int             `gorm:"column:reserved_quantity;not null;default:0"`
	InitialQuantity  int             `gorm:"column:initial_quantity;not null;default:0"`
	MinimumStock     int             `gorm:"column:minimum_stock_level;not null;default:0"`
	MaximumStock     *int            `gorm:"column:maximum_stock_level"`
	Location         string          `gorm:"column:location"`
	UnitCost         decimal.Decimal `gorm:"column:unit_cost;type:numeric(10,2)"`
	LastRestockedAt  *time.Time      `gorm:"column:last_restocked_at"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt        gorm.DeletedAt  `gorm:"column:deleted_at;index"`
}

// Available is derived, never stored.
func (i InventoryItem) Available() int {
	return i.Quantity - i.ReservedQuantity
}

// IsLowStock reports whether available stock sits at or below the reorder floor.
func (i InventoryItem) IsLowStock() bool {
	return i.Available() <= i.MinimumStock
}

// IsOutOfStock reports whether nothing is left to reserve.
func (i InventoryItem) IsOutOfStock() bool {
	return i.Available() <= 0
}

// IsOverStock reports whether on-hand quantity exceeds the optional ceiling.
// Informational only: adjustments are never rejected for exceeding it.
func (i InventoryItem) IsOverStock() bool {
	return i.MaximumStock != nil && i.Quantity > *i.MaximumStock
}
