package inventory

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/stockroomhq/stockroom-backend/internal/ledger"
	"github.com/stockroomhq/stockroom-backend/pkg/config"
	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
	"github.com/stockroomhq/stockroom-backend/pkg/enums"
	pkgerrors "github.com/stockroomhq/stockroom-backend/pkg/errors"
	"github.com/stockroomhq/stockroom-backend/pkg/pagination"
)

type gormRunner struct {
	db *gorm.DB
}

func (g gormRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return g.db.WithContext(ctx).Transaction(fn)
}

type fakeCache struct {
	data map[string]string
	sets int
	gets int
	dels int
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string]string)}
}

func (f *fakeCache) Get(ctx context.Context, key string) (string, error) {
	f.gets++
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", gorm.ErrRecordNotFound
}

func (f *fakeCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	f.sets++
	f.data[key] = value.(string)
	return nil
}

func (f *fakeCache) Del(ctx context.Context, keys ...string) error {
	f.dels++
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func (f *fakeCache) CacheKey(scope, id string) string {
	return strings.Join([]string{"stockroom", "cache", scope, id}, ":")
}

type fakeReservationCounter struct {
	active int64
}

func (f *fakeReservationCounter) CountActiveByProduct(ctx context.Context, productID uuid.UUID) (int64, error) {
	return f.active, nil
}

type serviceFixture struct {
	conn    *gorm.DB
	svc     Service
	cache   *fakeCache
	counter *fakeReservationCounter
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	conn := newTestDB(t)
	cache := newFakeCache()
	counter := &fakeReservationCounter{}
	svc, err := NewService(
		NewRepository(conn),
		ledger.NewRepository(conn),
		gormRunner{db: conn},
		counter,
		cache,
		config.CacheConfig{AvailabilityTTL: time.Second},
		config.RetryConfig{MaxAttempts: 3, BaseBackoff: time.Microsecond, MaxBackoff: time.Millisecond},
	)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return &serviceFixture{conn: conn, svc: svc, cache: cache, counter: counter}
}

func TestServiceRegister(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ctx := context.Background()

	dto, err := f.svc.Register(ctx, RegisterItemInput{
		ProductID:    uuid.New(),
		SKU:          "WDG-001",
		Quantity:     100,
		MinimumStock: 10,
		Location:     "aisle-1",
		UnitCost:     decimal.NewFromFloat(4.25),
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if dto.Quantity != 100 || dto.Available != 100 || dto.InitialQuantity != 100 {
		t.Fatalf("unexpected dto %+v", dto)
	}
	if dto.Reserved != 0 {
		t.Fatalf("new item must start with zero reserved, got %d", dto.Reserved)
	}
}

func TestServiceRegisterValidation(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ctx := context.Background()

	belowMin := 2
	tests := []struct {
		name  string
		input RegisterItemInput
	}{
		{"missing product id", RegisterItemInput{SKU: "A", Quantity: 1}},
		{"missing sku", RegisterItemInput{ProductID: uuid.New(), Quantity: 1}},
		{"negative quantity", RegisterItemInput{ProductID: uuid.New(), SKU: "A", Quantity: -1}},
		{"negative minimum", RegisterItemInput{ProductID: uuid.New(), SKU: "A", MinimumStock: -1}},
		{"max below min", RegisterItemInput{ProductID: uuid.New(), SKU: "A", MinimumStock: 5, MaximumStock: &belowMin}},
		{"negative unit cost", RegisterItemInput{ProductID: uuid.New(), SKU: "A", UnitCost: decimal.NewFromInt(-1)}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Register(ctx, tc.input)
			if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestServiceRegisterDuplicateConflicts(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ctx := context.Background()
	productID := uuid.New()

	input := RegisterItemInput{ProductID: productID, SKU: "WDG-001", Quantity: 10}
	if _, err := f.svc.Register(ctx, input); err != nil {
		t.Fatalf("first register: %v", err)
	}
	_, err := f.svc.Register(ctx, input)
	if !pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestServiceAdjustQuantity(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ctx := context.Background()
	productID := uuid.New()

	if _, err := f.svc.Register(ctx, RegisterItemInput{ProductID: productID, SKU: "WDG-001", Quantity: 10}); err != nil {
		t.Fatalf("register: %v", err)
	}

	result, err := f.svc.AdjustQuantity(ctx, productID, AdjustInput{Delta: 40, Type: enums.MovementTypeInbound})
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if result.NewQuantity != 50 || result.Available != 50 {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.Movement == nil || result.Movement.Quantity != 40 || result.Movement.MovementType != "inbound" {
		t.Fatalf("expected inbound movement, got %+v", result.Movement)
	}

	var item models.InventoryItem
	if err := f.conn.First(&item, "product_id = ?", productID).Error; err != nil {
		t.Fatalf("reload item: %v", err)
	}
	if item.LastRestockedAt == nil {
		t.Fatal("inbound adjust must stamp last_restocked_at")
	}

	var movements []models.StockMovement
	if err := f.conn.Where("product_id = ?", productID).Find(&movements).Error; err != nil {
		t.Fatalf("list movements: %v", err)
	}
	if len(movements) != 1 {
		t.Fatalf("expected exactly one movement, got %d", len(movements))
	}
}

func TestServiceAdjustQuantityFloor(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ctx := context.Background()
	productID := uuid.New()

	if _, err := f.svc.Register(ctx, RegisterItemInput{ProductID: productID, SKU: "WDG-001", Quantity: 10}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := f.conn.Model(&models.InventoryItem{}).
		Where("product_id = ?", productID).
		Update("reserved_quantity", 4).Error; err != nil {
		t.Fatalf("seed reserved: %v", err)
	}

	_, err := f.svc.AdjustQuantity(ctx, productID, AdjustInput{Delta: -7, Type: enums.MovementTypeOutbound})
	if !pkgerrors.HasCode(err, pkgerrors.CodeInvalidAdjustment) {
		t.Fatalf("expected invalid adjustment, got %v", err)
	}

	var movements int64
	if err := f.conn.Model(&models.StockMovement{}).Where("product_id = ?", productID).Count(&movements).Error; err != nil {
		t.Fatalf("count movements: %v", err)
	}
	if movements != 0 {
		t.Fatal("rejected adjustment must not append a movement")
	}

	_, err = f.svc.AdjustQuantity(ctx, uuid.New(), AdjustInput{Delta: -1, Type: enums.MovementTypeOutbound})
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestServiceGetAvailableCaches(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ctx := context.Background()
	productID := uuid.New()

	if _, err := f.svc.Register(ctx, RegisterItemInput{ProductID: productID, SKU: "WDG-001", Quantity: 25}); err != nil {
		t.Fatalf("register: %v", err)
	}

	available, err := f.svc.GetAvailable(ctx, productID)
	if err != nil {
		t.Fatalf("first read: %v", err)
	}
	if available != 25 {
		t.Fatalf("expected 25, got %d", available)
	}
	if f.cache.sets != 1 {
		t.Fatalf("expected cache fill, sets=%d", f.cache.sets)
	}

	available, err = f.svc.GetAvailable(ctx, productID)
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if available != 25 {
		t.Fatalf("expected cached 25, got %d", available)
	}
	if f.cache.sets != 1 {
		t.Fatal("second read should be served from cache")
	}

	if _, err := f.svc.AdjustQuantity(ctx, productID, AdjustInput{Delta: -5, Type: enums.MovementTypeOutbound}); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if f.cache.dels == 0 {
		t.Fatal("adjust must invalidate the availability cache")
	}

	available, err = f.svc.GetAvailable(ctx, productID)
	if err != nil {
		t.Fatalf("post-adjust read: %v", err)
	}
	if available != 20 {
		t.Fatalf("expected 20 after adjust, got %d", available)
	}
}

func TestServiceDelete(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ctx := context.Background()
	productID := uuid.New()

	if _, err := f.svc.Register(ctx, RegisterItemInput{ProductID: productID, SKU: "WDG-001", Quantity: 5}); err != nil {
		t.Fatalf("register: %v", err)
	}

	f.counter.active = 2
	err := f.svc.Delete(ctx, productID)
	if !pkgerrors.HasCode(err, pkgerrors.CodeInvalidState) {
		t.Fatalf("expected invalid state while reservations active, got %v", err)
	}

	f.counter.active = 0
	if err := f.svc.Delete(ctx, productID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.svc.Get(ctx, productID); !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}

	if err := f.svc.Delete(ctx, uuid.New()); !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found for unknown product, got %v", err)
	}
}

func TestServiceUpdate(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ctx := context.Background()
	productID := uuid.New()

	if _, err := f.svc.Register(ctx, RegisterItemInput{ProductID: productID, SKU: "WDG-001", Quantity: 10, MinimumStock: 2, Location: "aisle-1"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	minimum := 8
	maximum := 40
	location := "aisle-9"
	unitCost := decimal.NewFromFloat(7.50)
	dto, err := f.svc.Update(ctx, productID, UpdateItemInput{
		MinimumStock: &minimum,
		MaximumStock: &maximum,
		Location:     &location,
		UnitCost:     &unitCost,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if dto.MinimumStock != 8 || dto.MaximumStock == nil || *dto.MaximumStock != 40 {
		t.Fatalf("stock levels not applied: %+v", dto)
	}
	if dto.Location != "aisle-9" || !dto.UnitCost.Equal(unitCost) {
		t.Fatalf("metadata not applied: %+v", dto)
	}
	if dto.Quantity != 10 || dto.Reserved != 0 {
		t.Fatalf("update must never touch counters: %+v", dto)
	}
	if dto.IsLowStock != false {
		t.Fatalf("available 10 above minimum 8 is not low stock: %+v", dto)
	}

	// Partial patch leaves the other fields alone.
	minimum = 3
	dto, err = f.svc.Update(ctx, productID, UpdateItemInput{MinimumStock: &minimum})
	if err != nil {
		t.Fatalf("partial update: %v", err)
	}
	if dto.MinimumStock != 3 || dto.Location != "aisle-9" || dto.MaximumStock == nil || *dto.MaximumStock != 40 {
		t.Fatalf("partial update clobbered fields: %+v", dto)
	}

	var movements int64
	if err := f.conn.Model(&models.StockMovement{}).Where("product_id = ?", productID).Count(&movements).Error; err != nil {
		t.Fatalf("count movements: %v", err)
	}
	if movements != 0 {
		t.Fatal("metadata update must not append movements")
	}
}

func TestServiceUpdateValidation(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ctx := context.Background()
	productID := uuid.New()

	if _, err := f.svc.Register(ctx, RegisterItemInput{ProductID: productID, SKU: "WDG-001", Quantity: 10, MinimumStock: 5}); err != nil {
		t.Fatalf("register: %v", err)
	}

	negative := -1
	belowMin := 2
	negativeCost := decimal.NewFromInt(-1)
	tests := []struct {
		name  string
		input UpdateItemInput
	}{
		{"empty patch", UpdateItemInput{}},
		{"negative minimum", UpdateItemInput{MinimumStock: &negative}},
		{"max below existing min", UpdateItemInput{MaximumStock: &belowMin}},
		{"negative unit cost", UpdateItemInput{UnitCost: &negativeCost}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Update(ctx, productID, tc.input)
			if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}

	minimum := 1
	if _, err := f.svc.Update(ctx, uuid.New(), UpdateItemInput{MinimumStock: &minimum}); !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found for unknown product, got %v", err)
	}
}

func TestServiceBulkUpdatePerSKUOutcomes(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Register(ctx, RegisterItemInput{ProductID: uuid.New(), SKU: "WDG-001", Quantity: 10}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := f.svc.Register(ctx, RegisterItemInput{ProductID: uuid.New(), SKU: "WDG-002", Quantity: 20}); err != nil {
		t.Fatalf("register: %v", err)
	}

	minimum := 5
	negative := -1
	results := f.svc.BulkUpdate(ctx, []BulkUpdateOperation{
		{SKU: "WDG-001", Patch: UpdateItemInput{MinimumStock: &minimum}},
		{SKU: "WDG-002", Patch: UpdateItemInput{MinimumStock: &negative}},
		{SKU: "NOPE-404", Patch: UpdateItemInput{MinimumStock: &minimum}},
	})
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	if !results[0].Success || results[0].Item == nil || results[0].Item.MinimumStock != 5 {
		t.Fatalf("first op should succeed: %+v", results[0])
	}
	if results[1].Success || results[1].ErrorCode != string(pkgerrors.CodeValidation) {
		t.Fatalf("second op should fail validation: %+v", results[1])
	}
	if results[2].Success || results[2].ErrorCode != string(pkgerrors.CodeNotFound) {
		t.Fatalf("third op should fail not found: %+v", results[2])
	}

	// Failing ops never roll back the others.
	item, err := f.repoItem(ctx, "WDG-002")
	if err != nil {
		t.Fatalf("reload WDG-002: %v", err)
	}
	if item.MinimumStock != 0 {
		t.Fatalf("failed op must leave the row untouched, got minimum %d", item.MinimumStock)
	}
}

func (f *serviceFixture) repoItem(ctx context.Context, sku string) (*models.InventoryItem, error) {
	var item models.InventoryItem
	if err := f.conn.WithContext(ctx).First(&item, "sku = ?", sku).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func TestServiceListPaginatesAndFilters(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := f.svc.Register(ctx, RegisterItemInput{
			ProductID: uuid.New(),
			SKU:       "WDG-00" + string(rune('1'+i)),
			Quantity:  10 * (i + 1),
		}); err != nil {
			t.Fatalf("register %d: %v", i, err)
		}
	}

	page, err := f.svc.List(ctx, ListItemsInput{Pagination: pagination.Params{Limit: 2}})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 2 || page.NextCursor == "" {
		t.Fatalf("expected 2 items with cursor, got %d %q", len(page.Items), page.NextCursor)
	}

	rest, err := f.svc.List(ctx, ListItemsInput{Pagination: pagination.Params{Limit: 2, Cursor: page.NextCursor}})
	if err != nil {
		t.Fatalf("list rest: %v", err)
	}
	if len(rest.Items) != 1 || rest.NextCursor != "" {
		t.Fatalf("expected final page of 1, got %d %q", len(rest.Items), rest.NextCursor)
	}

	if _, err := f.svc.List(ctx, ListItemsInput{Pagination: pagination.Params{Cursor: "garbage"}}); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for bad cursor, got %v", err)
	}
}

func TestServiceStatsAndLowStock(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Register(ctx, RegisterItemInput{ProductID: uuid.New(), SKU: "A", Quantity: 50, MinimumStock: 5}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := f.svc.Register(ctx, RegisterItemInput{ProductID: uuid.New(), SKU: "B", Quantity: 3, MinimumStock: 5}); err != nil {
		t.Fatalf("register: %v", err)
	}

	stats, err := f.svc.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalItems != 2 || stats.TotalQuantity != 53 || stats.TotalAvailable != 53 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.LowStockCount != 1 {
		t.Fatalf("expected 1 low stock item, got %d", stats.LowStockCount)
	}

	low, err := f.svc.LowStockItems(ctx)
	if err != nil {
		t.Fatalf("low stock: %v", err)
	}
	if len(low) != 1 || low[0].SKU != "B" {
		t.Fatalf("unexpected low stock items %+v", low)
	}
}

func TestServiceReconcile(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ctx := context.Background()
	productID := uuid.New()

	if _, err := f.svc.Register(ctx, RegisterItemInput{ProductID: productID, SKU: "WDG-001", Quantity: 100}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := f.svc.AdjustQuantity(ctx, productID, AdjustInput{Delta: -30, Type: enums.MovementTypeOutbound}); err != nil {
		t.Fatalf("adjust: %v", err)
	}

	result, err := f.svc.Reconcile(ctx, productID)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !result.Consistent {
		t.Fatalf("ledger should explain quantity: %+v", result)
	}
	if result.ExpectedQuantity != 70 || result.Quantity != 70 {
		t.Fatalf("unexpected reconcile values %+v", result)
	}

	// Simulate drift by mutating quantity outside the adjust path.
	if err := f.conn.Model(&models.InventoryItem{}).
		Where("product_id = ?", productID).
		Update("quantity", 75).Error; err != nil {
		t.Fatalf("force drift: %v", err)
	}

	result, err = f.svc.Reconcile(ctx, productID)
	if err != nil {
		t.Fatalf("reconcile after drift: %v", err)
	}
	if result.Consistent {
		t.Fatal("drifted quantity must be flagged")
	}
}
