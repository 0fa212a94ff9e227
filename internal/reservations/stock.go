package reservations

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/stockroomhq/stockroom-backend/pkg/errors"
)

// StockMutator applies guarded counter updates to the item row inside the
// caller's transaction. Each method is a single conditional UPDATE so the
// check and the mutation cannot be separated by a concurrent writer.
type StockMutator interface {
	Reserve(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) (bool, error)
	Release(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) (bool, error)
	Consume(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) (bool, error)
	Counters(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (quantity, reserved int, err error)
}

type stockMutatorImpl struct{}

// NewStockMutator exposes the default guarded-update implementation.
func NewStockMutator() StockMutator {
	return stockMutatorImpl{}
}

// Reserve raises reserved_quantity only while enough unreserved stock remains.
func (stockMutatorImpl) Reserve(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) (bool, error) {
	if qty <= 0 {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "reserve quantity must be positive")
	}
	if tx == nil {
		return false, pkgerrors.New(pkgerrors.CodeDependency, "transaction required for stock reserve")
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE inventory_items
		SET reserved_quantity = reserved_quantity + ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE product_id = ? AND deleted_at IS NULL AND quantity - reserved_quantity >= ?
	`, qty, productID, qty)
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "reserve stock")
	}
	return res.RowsAffected > 0, nil
}

// Release lowers reserved_quantity, leaving on-hand quantity untouched.
func (stockMutatorImpl) Release(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) (bool, error) {
	if qty <= 0 {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "release quantity must be positive")
	}
	if tx == nil {
		return false, pkgerrors.New(pkgerrors.CodeDependency, "transaction required for stock release")
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE inventory_items
		SET reserved_quantity = reserved_quantity - ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE product_id = ? AND reserved_quantity >= ?
	`, qty, productID, qty)
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "release stock")
	}
	return res.RowsAffected > 0, nil
}

// Consume removes reserved stock from on-hand counts when a hold is confirmed.
func (stockMutatorImpl) Consume(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) (bool, error) {
	if qty <= 0 {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "consume quantity must be positive")
	}
	if tx == nil {
		return false, pkgerrors.New(pkgerrors.CodeDependency, "transaction required for stock consume")
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE inventory_items
		SET quantity = quantity - ?,
			reserved_quantity = reserved_quantity - ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE product_id = ? AND reserved_quantity >= ? AND quantity >= ?
	`, qty, qty, productID, qty, qty)
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "consume stock")
	}
	return res.RowsAffected > 0, nil
}

func (stockMutatorImpl) Counters(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (int, int, error) {
	if tx == nil {
		return 0, 0, pkgerrors.New(pkgerrors.CodeDependency, "transaction required for counter read")
	}

	var row struct {
		Quantity         int
		ReservedQuantity int
	}
	res := tx.WithContext(ctx).Raw(`
		SELECT quantity, reserved_quantity
		FROM inventory_items
		WHERE product_id = ? AND deleted_at IS NULL
	`, productID).Scan(&row)
	if res.Error != nil {
		return 0, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "read stock counters")
	}
	if res.RowsAffected == 0 {
		return 0, 0, pkgerrors.New(pkgerrors.CodeNotFound, "inventory item not found")
	}
	return row.Quantity, row.ReservedQuantity, nil
}
