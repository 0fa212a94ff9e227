package reservations

import (
	"time"

	"github.com/google/uuid"

	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
)

// ReservationDTO represents the reservation payload returned to clients.
type ReservationDTO struct {
	ID         uuid.UUID  `json:"id"`
	ProductID  uuid.UUID  `json:"product_id"`
	Quantity   int        `json:"quantity"`
	CustomerID uuid.UUID  `json:"customer_id"`
	OrderID    uuid.UUID  `json:"order_id"`
	Status     string     `json:"status"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	Notes      *string    `json:"notes,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// ReservationListResult carries a trimmed page plus the resume cursor.
type ReservationListResult struct {
	Reservations []ReservationDTO `json:"reservations"`
	NextCursor   string           `json:"next_cursor,omitempty"`
}

// BatchResult reports the per-reservation outcome of a batch confirm.
type BatchResult struct {
	ID          uuid.UUID       `json:"id"`
	Confirmed   bool            `json:"confirmed"`
	Reservation *ReservationDTO `json:"reservation,omitempty"`
	ErrorCode   string          `json:"error_code,omitempty"`
	ErrorReason string          `json:"error,omitempty"`
}

// NewReservationDTO builds a DTO from the persisted model.
func NewReservationDTO(reservation *models.Reservation) *ReservationDTO {
	return &ReservationDTO{
		ID:         reservation.ID,
		ProductID:  reservation.ProductID,
		Quantity:   reservation.Quantity,
		CustomerID: reservation.CustomerID,
		OrderID:    reservation.OrderID,
		Status:     string(reservation.Status),
		ExpiresAt:  reservation.ExpiresAt,
		Notes:      reservation.Notes,
		CreatedAt:  reservation.CreatedAt,
		UpdatedAt:  reservation.UpdatedAt,
	}
}
