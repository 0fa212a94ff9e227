package reservations

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
	"github.com/stockroomhq/stockroom-backend/pkg/enums"
	"github.com/stockroomhq/stockroom-backend/pkg/pagination"
)

// ListFilter narrows reservation listings.
type ListFilter struct {
	ProductID  *uuid.UUID
	CustomerID *uuid.UUID
	OrderID    *uuid.UUID
	Status     *enums.ReservationStatus
}

// Repository manages persistence for reservation rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, reservation *models.Reservation) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
	List(ctx context.Context, filter ListFilter, after *pagination.Cursor, limit int) ([]models.Reservation, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.ReservationStatus) (bool, error)
	DueForExpiry(ctx context.Context, now time.Time, limit int) ([]models.Reservation, error)
	CountActiveByProduct(ctx context.Context, productID uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a reservation repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, reservation *models.Reservation) error {
	return r.db.WithContext(ctx).Create(reservation).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	var reservation models.Reservation
	if err := r.db.WithContext(ctx).First(&reservation, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &reservation, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter, after *pagination.Cursor, limit int) ([]models.Reservation, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Order("created_at ASC, id ASC").
		Limit(limit)

	if filter.ProductID != nil {
		query = query.Where("product_id = ?", *filter.ProductID)
	}
	if filter.CustomerID != nil {
		query = query.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.OrderID != nil {
		query = query.Where("order_id = ?", *filter.OrderID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if after != nil {
		query = query.Where(
			"(created_at > ?) OR (created_at = ? AND id > ?)",
			after.CreatedAt, after.CreatedAt, after.ID,
		)
	}

	var reservations []models.Reservation
	if err := query.Find(&reservations).Error; err != nil {
		return nil, err
	}
	return reservations, nil
}

// TransitionStatus flips status only when the row still holds the expected
// source status. RowsAffected==0 means a concurrent writer got there first.
func (r *repository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.ReservationStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{
			"status":     to,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) DueForExpiry(ctx context.Context, now time.Time, limit int) ([]models.Reservation, error) {
	query := r.db.WithContext(ctx).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", enums.ReservationStatusActive, now).
		Order("expires_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var due []models.Reservation
	if err := query.Find(&due).Error; err != nil {
		return nil, err
	}
	return due, nil
}

func (r *repository) CountActiveByProduct(ctx context.Context, productID uuid.UUID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("product_id = ? AND status = ?", productID, enums.ReservationStatusActive).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
