package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stockroomhq/stockroom-backend/pkg/enums"
)

// Reservation is a time-bounded hold on item quantity pending confirmation.
// Rows are never deleted; terminal rows are retained for audit.
type Reservation struct {
	ID         uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	ProductID  uuid.UUID               `gorm:"column:product_id;type:uuid;not null;index"`
	Quantity   int                     `gorm:"column:quantity;not null"`
	CustomerID uuid.UUID               `gorm:"column:customer_id;type:uuid;not null;index"`
	OrderID    uuid.UUID               `gorm:"column:order_id;type:uuid;not null;index"`
	Status     enums.ReservationStatus `gorm:"column:status;not null;index:idx_reservations_status_expires"`
	ExpiresAt  *time.Time              `gorm:"column:expires_at;index:idx_reservations_status_expires"`
	Notes      *string                 `gorm:"column:notes"`
	CreatedAt  time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

// BeforeCreate assigns an id when the caller did not provide one.
func (r *Reservation) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// IsExpired reports whether an active reservation has outlived its deadline.
func (r Reservation) IsExpired(now time.Time) bool {
	return r.Status == enums.ReservationStatusActive &&
		r.ExpiresAt != nil && !now.Before(*r.ExpiresAt)
}
