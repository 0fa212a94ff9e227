package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
	"github.com/stockroomhq/stockroom-backend/pkg/pagination"
)

// ListFilter narrows item listings. Search matches sku and location,
// case-insensitively.
type ListFilter struct {
	Search       string
	Location     string
	LowStockOnly bool
}

// StatsRow aggregates inventory counters for the ops dashboard.
type StatsRow struct {
	TotalItems      int64
	TotalQuantity   int64
	TotalReserved   int64
	LowStockCount   int64
	OutOfStockCount int64
}

// Repository defines persistence operations for inventory items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, item *models.InventoryItem) error
	FindByProductID(ctx context.Context, productID uuid.UUID) (*models.InventoryItem, error)
	FindBySKU(ctx context.Context, sku string) (*models.InventoryItem, error)
	List(ctx context.Context, filter ListFilter, after *pagination.Cursor, limit int) ([]models.InventoryItem, error)
	UpdateFields(ctx context.Context, productID uuid.UUID, updates map[string]any) (bool, error)
	SoftDelete(ctx context.Context, productID uuid.UUID) (bool, error)
	AdjustQuantity(ctx context.Context, productID uuid.UUID, delta int, restockedAt *time.Time) (bool, error)
	LowStock(ctx context.Context) ([]models.InventoryItem, error)
	Stats(ctx context.Context) (*StatsRow, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, item *models.InventoryItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *repository) FindByProductID(ctx context.Context, productID uuid.UUID) (*models.InventoryItem, error) {
	var item models.InventoryItem
	if err := r.db.WithContext(ctx).First(&item, "product_id = ?", productID).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) FindBySKU(ctx context.Context, sku string) (*models.InventoryItem, error) {
	var item models.InventoryItem
	if err := r.db.WithContext(ctx).First(&item, "sku = ?", sku).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter, after *pagination.Cursor, limit int) ([]models.InventoryItem, error) {
	query := r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Order("created_at ASC, product_id ASC").
		Limit(limit)

	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		query = query.Where("LOWER(sku) LIKE LOWER(?) OR LOWER(location) LIKE LOWER(?)", like, like)
	}
	if filter.Location != "" {
		query = query.Where("location = ?", filter.Location)
	}
	if filter.LowStockOnly {
		query = query.Where("quantity - reserved_quantity <= minimum_stock_level")
	}
	if after != nil {
		query = query.Where(
			"(created_at > ?) OR (created_at = ? AND product_id > ?)",
			after.CreatedAt, after.CreatedAt, after.ID,
		)
	}

	var items []models.InventoryItem
	if err := query.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// UpdateFields patches item metadata columns. Counter columns never pass
// through here; quantity changes go through AdjustQuantity.
func (r *repository) UpdateFields(ctx context.Context, productID uuid.UUID, updates map[string]any) (bool, error) {
	if len(updates) == 0 {
		return false, nil
	}
	updates["updated_at"] = time.Now().UTC()

	res := r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Where("product_id = ?", productID).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) SoftDelete(ctx context.Context, productID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Delete(&models.InventoryItem{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// AdjustQuantity applies a signed delta in a single guarded UPDATE. The guard
// keeps quantity non-negative and never below reserved_quantity, so a miss
// with an existing row means the delta was rejected, not lost.
func (r *repository) AdjustQuantity(ctx context.Context, productID uuid.UUID, delta int, restockedAt *time.Time) (bool, error) {
	updates := map[string]any{
		"quantity":   gorm.Expr("quantity + ?", delta),
		"updated_at": time.Now().UTC(),
	}
	if restockedAt != nil {
		updates["last_restocked_at"] = *restockedAt
	}

	res := r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Where("product_id = ? AND quantity + ? >= 0 AND quantity + ? >= reserved_quantity", productID, delta, delta).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) LowStock(ctx context.Context) ([]models.InventoryItem, error) {
	var items []models.InventoryItem
	if err := r.db.WithContext(ctx).
		Where("quantity - reserved_quantity <= minimum_stock_level").
		Order("quantity - reserved_quantity ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) Stats(ctx context.Context) (*StatsRow, error) {
	var row StatsRow
	if err := r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Select(`COUNT(*) AS total_items,
			COALESCE(SUM(quantity), 0) AS total_quantity,
			COALESCE(SUM(reserved_quantity), 0) AS total_reserved,
			COALESCE(SUM(CASE WHEN quantity - reserved_quantity <= minimum_stock_level THEN 1 ELSE 0 END), 0) AS low_stock_count,
			COALESCE(SUM(CASE WHEN quantity - reserved_quantity <= 0 THEN 1 ELSE 0 END), 0) AS out_of_stock_count`).
		Scan(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}
