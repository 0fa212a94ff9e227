package ledger

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
	"github.com/stockroomhq/stockroom-backend/pkg/pagination"
)

// Repository manages persistence for the append-only movement ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, movement *models.StockMovement) error
	ListByProduct(ctx context.Context, productID uuid.UUID, after *pagination.Cursor, limit int) ([]models.StockMovement, error)
	NetChange(ctx context.Context, productID uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, movement *models.StockMovement) error {
	return r.db.WithContext(ctx).Create(movement).Error
}

func (r *repository) ListByProduct(ctx context.Context, productID uuid.UUID, after *pagination.Cursor, limit int) ([]models.StockMovement, error) {
	query := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("created_at ASC, id ASC").
		Limit(limit)
	if after != nil {
		query = query.Where(
			"(created_at > ?) OR (created_at = ? AND id > ?)",
			after.CreatedAt, after.CreatedAt, after.ID,
		)
	}

	var movements []models.StockMovement
	if err := query.Find(&movements).Error; err != nil {
		return nil, err
	}
	return movements, nil
}

func (r *repository) NetChange(ctx context.Context, productID uuid.UUID) (int64, error) {
	var total *int64
	if err := r.db.WithContext(ctx).
		Model(&models.StockMovement{}).
		Where("product_id = ?", productID).
		Select("SUM(quantity)").
		Scan(&total).Error; err != nil {
		return 0, err
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}
