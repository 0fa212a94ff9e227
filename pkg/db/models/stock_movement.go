package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stockroomhq/stockroom-backend/pkg/enums"
)

// StockMovement records an immutable signed change to an item's on-hand quantity.
// The sum of all movements plus the item's initial quantity reconciles to its
// current quantity.
type StockMovement struct {
	ID           uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	ProductID    uuid.UUID          `gorm:"column:product_id;type:uuid;not null;index"`
	MovementType enums.MovementType `gorm:"column:movement_type;not null"`
	Quantity     int                `gorm:"column:quantity;not null"`
	ReferenceID  *uuid.UUID         `gorm:"column:reference_id;type:uuid;index"`
	Notes        *string            `gorm:"column:notes"`
	CreatedAt    time.Time          `gorm:"column:created_at;autoCreateTime"`
}

// BeforeCreate assigns an id when the caller did not provide one.
func (m *StockMovement) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
