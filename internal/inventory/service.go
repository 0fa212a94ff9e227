package inventory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/stockroomhq/stockroom-backend/internal/ledger"
	"github.com/stockroomhq/stockroom-backend/pkg/config"
	"github.com/stockroomhq/stockroom-backend/pkg/db"
	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
	"github.com/stockroomhq/stockroom-backend/pkg/enums"
	pkgerrors "github.com/stockroomhq/stockroom-backend/pkg/errors"
	"github.com/stockroomhq/stockroom-backend/pkg/pagination"
)

const availabilityCacheScope = "availability"

// Service exposes inventory item management operations.
type Service interface {
	Register(ctx context.Context, input RegisterItemInput) (*ItemDTO, error)
	Get(ctx context.Context, productID uuid.UUID) (*ItemDTO, error)
	List(ctx context.Context, input ListItemsInput) (*ItemListResult, error)
	Update(ctx context.Context, productID uuid.UUID, input UpdateItemInput) (*ItemDTO, error)
	BulkUpdate(ctx context.Context, ops []BulkUpdateOperation) []BulkUpdateResult
	Delete(ctx context.Context, productID uuid.UUID) error
	AdjustQuantity(ctx context.Context, productID uuid.UUID, input AdjustInput) (*AdjustResult, error)
	GetAvailable(ctx context.Context, productID uuid.UUID) (int, error)
	LowStockItems(ctx context.Context) ([]ItemDTO, error)
	Stats(ctx context.Context) (*StatsDTO, error)
	Reconcile(ctx context.Context, productID uuid.UUID) (*ReconcileResult, error)
}

// RegisterItemInput holds the validated payload to register an item.
type RegisterItemInput struct {
	ProductID    uuid.UUID
	SKU          string
	Quantity     int
	MinimumStock int
	MaximumStock *int
	Location     string
	UnitCost     decimal.Decimal
}

// ListItemsInput narrows and paginates item listings.
type ListItemsInput struct {
	Search       string
	Location     string
	LowStockOnly bool
	Pagination   pagination.Params
}

// UpdateItemInput patches item metadata. Nil fields are left untouched.
// Counters (quantity, reserved_quantity) are never updatable here; those
// only move through AdjustQuantity and the reservation paths.
type UpdateItemInput struct {
	MinimumStock *int
	MaximumStock *int
	Location     *string
	UnitCost     *decimal.Decimal
}

// BulkUpdateOperation is one item patch in a bulk request, addressed by sku.
type BulkUpdateOperation struct {
	SKU   string
	Patch UpdateItemInput
}

// AdjustInput captures a signed on-hand delta plus its ledger classification.
type AdjustInput struct {
	Delta       int
	Type        enums.MovementType
	ReferenceID *uuid.UUID
	Notes       *string
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type availabilityCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	CacheKey(scope, id string) string
}

type reservationCounter interface {
	CountActiveByProduct(ctx context.Context, productID uuid.UUID) (int64, error)
}

type service struct {
	repo         Repository
	ledgerRepo   ledger.Repository
	runner       txRunner
	reservations reservationCounter
	cache        availabilityCache
	cacheTTL     time.Duration
	retryCfg     config.RetryConfig
	now          func() time.Time
}

// NewService constructs an inventory service instance. The cache is optional;
// a nil cache disables availability caching.
func NewService(repo Repository, ledgerRepo ledger.Repository, runner txRunner, reservations reservationCounter, cache availabilityCache, cacheCfg config.CacheConfig, retryCfg config.RetryConfig) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if ledgerRepo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if runner == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if reservations == nil {
		return nil, fmt.Errorf("reservation counter required")
	}
	return &service{
		repo:         repo,
		ledgerRepo:   ledgerRepo,
		runner:       runner,
		reservations: reservations,
		cache:        cache,
		cacheTTL:     cacheCfg.AvailabilityTTL,
		retryCfg:     retryCfg,
		now:          func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Register(ctx context.Context, input RegisterItemInput) (*ItemDTO, error) {
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if input.SKU == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sku is required")
	}
	if input.Quantity < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity cannot be negative")
	}
	if input.MinimumStock < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "minimum_stock_level cannot be negative")
	}
	if input.MaximumStock != nil && *input.MaximumStock < input.MinimumStock {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "maximum_stock_level cannot be below minimum_stock_level")
	}
	if input.UnitCost.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unit_cost cannot be negative")
	}

	item := &models.InventoryItem{
		ProductID:       input.ProductID,
		SKU:             input.SKU,
		Quantity:        input.Quantity,
		InitialQuantity: input.Quantity,
		MinimumStock:    input.MinimumStock,
		MaximumStock:    input.MaximumStock,
		Location:        input.Location,
		UnitCost:        input.UnitCost,
	}
	if err := s.repo.Create(ctx, item); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "item already registered for product or sku")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "registering inventory item")
	}
	return NewItemDTO(item), nil
}

func (s *service) Get(ctx context.Context, productID uuid.UUID) (*ItemDTO, error) {
	item, err := s.loadItem(ctx, productID)
	if err != nil {
		return nil, err
	}
	return NewItemDTO(item), nil
}

func (s *service) List(ctx context.Context, input ListItemsInput) (*ItemListResult, error) {
	after, err := pagination.ParseCursor(input.Pagination.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	filter := ListFilter{
		Search:       input.Search,
		Location:     input.Location,
		LowStockOnly: input.LowStockOnly,
	}
	items, err := s.repo.List(ctx, filter, after, pagination.LimitWithBuffer(input.Pagination.Limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing inventory items")
	}

	page, next := pagination.TrimPage(items, input.Pagination.Limit, func(item models.InventoryItem) pagination.Cursor {
		return pagination.Cursor{CreatedAt: item.CreatedAt, ID: item.ProductID}
	})

	result := &ItemListResult{Items: make([]ItemDTO, 0, len(page)), NextCursor: next}
	for i := range page {
		result.Items = append(result.Items, *NewItemDTO(&page[i]))
	}
	return result, nil
}

// Update patches item metadata without touching stock counters.
func (s *service) Update(ctx context.Context, productID uuid.UUID, input UpdateItemInput) (*ItemDTO, error) {
	item, err := s.loadItem(ctx, productID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.MinimumStock != nil {
		if *input.MinimumStock < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "minimum_stock_level cannot be negative")
		}
		item.MinimumStock = *input.MinimumStock
		updates["minimum_stock_level"] = *input.MinimumStock
	}
	if input.MaximumStock != nil {
		item.MaximumStock = input.MaximumStock
		updates["maximum_stock_level"] = *input.MaximumStock
	}
	if input.Location != nil {
		item.Location = *input.Location
		updates["location"] = *input.Location
	}
	if input.UnitCost != nil {
		if input.UnitCost.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unit_cost cannot be negative")
		}
		item.UnitCost = *input.UnitCost
		updates["unit_cost"] = *input.UnitCost
	}
	if len(updates) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no updatable fields provided")
	}
	if item.MaximumStock != nil && *item.MaximumStock < item.MinimumStock {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "maximum_stock_level cannot be below minimum_stock_level")
	}

	updated, err := s.repo.UpdateFields(ctx, productID, updates)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating inventory item")
	}
	if !updated {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "inventory item not found")
	}

	item, err = s.loadItem(ctx, productID)
	if err != nil {
		return nil, err
	}
	return NewItemDTO(item), nil
}

// BulkUpdate patches each sku independently; one failure never rolls back
// the others.
func (s *service) BulkUpdate(ctx context.Context, ops []BulkUpdateOperation) []BulkUpdateResult {
	results := make([]BulkUpdateResult, 0, len(ops))
	for _, op := range ops {
		dto, err := s.updateBySKU(ctx, op)
		if err != nil {
			result := BulkUpdateResult{SKU: op.SKU, Success: false}
			if typed := pkgerrors.As(err); typed != nil {
				result.ErrorCode = string(typed.Code())
				result.ErrorReason = typed.Message()
			} else {
				result.ErrorCode = string(pkgerrors.CodeInternal)
				result.ErrorReason = err.Error()
			}
			results = append(results, result)
			continue
		}
		results = append(results, BulkUpdateResult{SKU: op.SKU, Success: true, Item: dto})
	}
	return results
}

func (s *service) updateBySKU(ctx context.Context, op BulkUpdateOperation) (*ItemDTO, error) {
	if op.SKU == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sku is required")
	}
	item, err := s.repo.FindBySKU(ctx, op.SKU)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "inventory item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading inventory item")
	}
	return s.Update(ctx, item.ProductID, op.Patch)
}

func (s *service) Delete(ctx context.Context, productID uuid.UUID) error {
	if productID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}

	active, err := s.reservations.CountActiveByProduct(ctx, productID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "counting active reservations")
	}
	if active > 0 {
		return pkgerrors.New(pkgerrors.CodeInvalidState, "item has active reservations").
			WithDetails(map[string]any{"active_reservations": active})
	}

	deleted, err := s.repo.SoftDelete(ctx, productID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "deleting inventory item")
	}
	if !deleted {
		return pkgerrors.New(pkgerrors.CodeNotFound, "inventory item not found")
	}
	s.invalidateAvailability(ctx, productID)
	return nil
}

// AdjustQuantity applies a signed delta to on-hand stock and appends the
// matching movement row in the same transaction.
func (s *service) AdjustQuantity(ctx context.Context, productID uuid.UUID, input AdjustInput) (*AdjustResult, error) {
	if input.Type == "" {
		input.Type = enums.MovementTypeAdjustment
	}
	movementInput := ledger.RecordMovementInput{
		ProductID:   productID,
		Type:        input.Type,
		Quantity:    input.Delta,
		ReferenceID: input.ReferenceID,
		Notes:       input.Notes,
	}
	if err := ledger.ValidateMovement(movementInput); err != nil {
		return nil, err
	}

	var (
		updated  *models.InventoryItem
		movement *models.StockMovement
	)
	err := db.RunWithRetry(ctx, s.retryCfg, func(ctx context.Context) error {
		return s.runner.WithTx(ctx, func(tx *gorm.DB) error {
			txRepo := s.repo.WithTx(tx)

			var restockedAt *time.Time
			if input.Delta > 0 && input.Type == enums.MovementTypeInbound {
				now := s.now()
				restockedAt = &now
			}

			ok, err := txRepo.AdjustQuantity(ctx, productID, input.Delta, restockedAt)
			if err != nil {
				return err
			}
			if !ok {
				item, ferr := txRepo.FindByProductID(ctx, productID)
				if ferr != nil {
					if errors.Is(ferr, gorm.ErrRecordNotFound) {
						return pkgerrors.New(pkgerrors.CodeNotFound, "inventory item not found")
					}
					return ferr
				}
				return pkgerrors.New(pkgerrors.CodeInvalidAdjustment, "adjustment would breach stock floor").
					WithDetails(map[string]any{
						"quantity":          item.Quantity,
						"reserved_quantity": item.ReservedQuantity,
						"delta":             input.Delta,
					})
			}

			movement = &models.StockMovement{
				ID:           uuid.New(),
				ProductID:    productID,
				MovementType: input.Type,
				Quantity:     input.Delta,
				ReferenceID:  input.ReferenceID,
				Notes:        input.Notes,
			}
			if err := s.ledgerRepo.WithTx(tx).Create(ctx, movement); err != nil {
				return err
			}

			item, err := txRepo.FindByProductID(ctx, productID)
			if err != nil {
				return err
			}
			updated = item
			return nil
		})
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		if db.IsBusy(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeBusy, err, "item contended, retry")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "adjusting quantity")
	}

	s.invalidateAvailability(ctx, productID)
	return &AdjustResult{
		ProductID:   productID,
		NewQuantity: updated.Quantity,
		Available:   updated.Available(),
		Movement:    NewMovementDTO(movement),
	}, nil
}

// GetAvailable reads derived availability, preferring the short-TTL cache.
// Cached reads are advisory and never feed a reserve decision.
func (s *service) GetAvailable(ctx context.Context, productID uuid.UUID) (int, error) {
	if productID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}

	var key string
	if s.cache != nil {
		key = s.cache.CacheKey(availabilityCacheScope, productID.String())
		if raw, err := s.cache.Get(ctx, key); err == nil {
			if available, perr := strconv.Atoi(raw); perr == nil {
				return available, nil
			}
		}
	}

	item, err := s.loadItem(ctx, productID)
	if err != nil {
		return 0, err
	}
	available := item.Available()
	if s.cache != nil {
		_ = s.cache.Set(ctx, key, strconv.Itoa(available), s.cacheTTL)
	}
	return available, nil
}

func (s *service) LowStockItems(ctx context.Context) ([]ItemDTO, error) {
	items, err := s.repo.LowStock(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing low stock items")
	}
	dtos := make([]ItemDTO, 0, len(items))
	for i := range items {
		dtos = append(dtos, *NewItemDTO(&items[i]))
	}
	return dtos, nil
}

func (s *service) Stats(ctx context.Context) (*StatsDTO, error) {
	row, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "aggregating inventory stats")
	}
	return &StatsDTO{
		TotalItems:      row.TotalItems,
		TotalQuantity:   row.TotalQuantity,
		TotalReserved:   row.TotalReserved,
		TotalAvailable:  row.TotalQuantity - row.TotalReserved,
		LowStockCount:   row.LowStockCount,
		OutOfStockCount: row.OutOfStockCount,
	}, nil
}

// Reconcile checks that the movement ledger still explains the stored
// quantity: initial_quantity + sum(movements) must equal quantity.
func (s *service) Reconcile(ctx context.Context, productID uuid.UUID) (*ReconcileResult, error) {
	item, err := s.loadItem(ctx, productID)
	if err != nil {
		return nil, err
	}
	net, err := s.ledgerRepo.NetChange(ctx, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "summing stock movements")
	}

	expected := int64(item.InitialQuantity) + net
	return &ReconcileResult{
		ProductID:        item.ProductID,
		Quantity:         item.Quantity,
		InitialQuantity:  item.InitialQuantity,
		LedgerNetChange:  net,
		ExpectedQuantity: expected,
		Consistent:       expected == int64(item.Quantity),
	}, nil
}

func (s *service) loadItem(ctx context.Context, productID uuid.UUID) (*models.InventoryItem, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	item, err := s.repo.FindByProductID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "inventory item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading inventory item")
	}
	return item, nil
}

func (s *service) invalidateAvailability(ctx context.Context, productID uuid.UUID) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Del(ctx, s.cache.CacheKey(availabilityCacheScope, productID.String()))
}
