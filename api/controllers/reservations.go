package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stockroomhq/stockroom-backend/api/responses"
	"github.com/stockroomhq/stockroom-backend/api/validators"
	reservationsvc "github.com/stockroomhq/stockroom-backend/internal/reservations"
	"github.com/stockroomhq/stockroom-backend/pkg/enums"
	pkgerrors "github.com/stockroomhq/stockroom-backend/pkg/errors"
	"github.com/stockroomhq/stockroom-backend/pkg/logger"
	"github.com/stockroomhq/stockroom-backend/pkg/pagination"
)

type createReservationRequest struct {
	ProductID  string  `json:"product_id" validate:"required,uuid"`
	Quantity   int     `json:"quantity" validate:"required,gt=0"`
	CustomerID string  `json:"customer_id" validate:"required,uuid"`
	OrderID    string  `json:"order_id" validate:"required,uuid"`
	TTLSeconds *int    `json:"ttl_seconds,omitempty" validate:"omitempty,min=0"`
	Notes      *string `json:"notes,omitempty"`
}

func (r createReservationRequest) toInput() (reservationsvc.CreateReservationInput, error) {
	productID, err := uuid.Parse(r.ProductID)
	if err != nil {
		return reservationsvc.CreateReservationInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id")
	}
	customerID, err := uuid.Parse(r.CustomerID)
	if err != nil {
		return reservationsvc.CreateReservationInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid customer id")
	}
	orderID, err := uuid.Parse(r.OrderID)
	if err != nil {
		return reservationsvc.CreateReservationInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id")
	}
	input := reservationsvc.CreateReservationInput{
		ProductID:  productID,
		Quantity:   r.Quantity,
		CustomerID: customerID,
		OrderID:    orderID,
		Notes:      r.Notes,
	}
	if r.TTLSeconds != nil {
		ttl := time.Duration(*r.TTLSeconds) * time.Second
		input.TTL = &ttl
	}
	return input, nil
}

// CreateReservation places a hold on unreserved stock.
func CreateReservation(svc reservationsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload createReservationRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reservation, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, reservation)
	}
}

// ListReservations filters by product/customer/order/status with cursor
// pagination.
func ListReservations(svc reservationsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := validators.ParseQueryUUID(r, "product_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		customerID, err := validators.ParseQueryUUID(r, "customer_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseQueryUUID(r, "order_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := reservationsvc.ListReservationsInput{
			ProductID:  productID,
			CustomerID: customerID,
			OrderID:    orderID,
			Pagination: pagination.Params{
				Limit:  limit,
				Cursor: r.URL.Query().Get("cursor"),
			},
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseReservationStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			input.Status = &status
		}

		result, err := svc.List(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// GetReservation returns one reservation, lazily expiring an overdue hold.
func GetReservation(svc reservationsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathUUID(r, "reservationID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reservation, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, reservation)
	}
}

// ConfirmReservation commits a hold into consumed stock.
func ConfirmReservation(svc reservationsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathUUID(r, "reservationID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reservation, err := svc.Confirm(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, reservation)
	}
}

// CancelReservation releases a hold without consuming stock.
func CancelReservation(svc reservationsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathUUID(r, "reservationID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reservation, err := svc.Cancel(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, reservation)
	}
}

type confirmBatchRequest struct {
	ReservationIDs []string `json:"reservation_ids" validate:"required,min=1,max=100,dive,uuid"`
}

// ConfirmBatch confirms a set of reservations with per-id outcomes.
func ConfirmBatch(svc reservationsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload confirmBatchRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ids := make([]uuid.UUID, 0, len(payload.ReservationIDs))
		for _, raw := range payload.ReservationIDs {
			id, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid reservation id"))
				return
			}
			ids = append(ids, id)
		}
		responses.WriteSuccess(w, map[string]any{
			"results": svc.ConfirmBatch(r.Context(), ids),
		})
	}
}
