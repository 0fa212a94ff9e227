package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
	"github.com/stockroomhq/stockroom-backend/pkg/enums"
	pkgerrors "github.com/stockroomhq/stockroom-backend/pkg/errors"
	"github.com/stockroomhq/stockroom-backend/pkg/pagination"
)

type fakeRepository struct {
	createFn func(ctx context.Context, movement *models.StockMovement) error
	listFn   func(ctx context.Context, productID uuid.UUID, after *pagination.Cursor, limit int) ([]models.StockMovement, error)
	sumFn    func(ctx context.Context, productID uuid.UUID) (int64, error)
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository {
	return f
}

func (f *fakeRepository) Create(ctx context.Context, movement *models.StockMovement) error {
	if f.createFn != nil {
		return f.createFn(ctx, movement)
	}
	return nil
}

func (f *fakeRepository) ListByProduct(ctx context.Context, productID uuid.UUID, after *pagination.Cursor, limit int) ([]models.StockMovement, error) {
	if f.listFn != nil {
		return f.listFn(ctx, productID, after, limit)
	}
	return nil, nil
}

func (f *fakeRepository) NetChange(ctx context.Context, productID uuid.UUID) (int64, error) {
	if f.sumFn != nil {
		return f.sumFn(ctx, productID)
	}
	return 0, nil
}

func TestService_Record(t *testing.T) {
	repo := &fakeRepository{}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	ref := uuid.New()
	input := RecordMovementInput{
		ProductID:   uuid.New(),
		Type:        enums.MovementTypeInbound,
		Quantity:    40,
		ReferenceID: &ref,
	}

	var created *models.StockMovement
	repo.createFn = func(ctx context.Context, movement *models.StockMovement) error {
		created = movement
		return nil
	}

	got, err := svc.Record(context.Background(), input)
	if err != nil {
		t.Fatalf("Record error: %v", err)
	}
	if created == nil {
		t.Fatal("expected movement to be created")
	}
	if created.ID == uuid.Nil {
		t.Fatal("expected movement id to be assigned")
	}
	if created.ProductID != input.ProductID || created.MovementType != input.Type || created.Quantity != input.Quantity {
		t.Fatalf("unexpected movement data: %+v", created)
	}
	if created.ReferenceID == nil || *created.ReferenceID != ref {
		t.Fatalf("missing reference id: %+v", created)
	}
	if got != created {
		t.Fatal("service should return the created movement")
	}
}

func TestService_RecordValidation(t *testing.T) {
	repo := &fakeRepository{}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	tests := []struct {
		name  string
		input RecordMovementInput
	}{
		{
			name:  "missing product id",
			input: RecordMovementInput{Type: enums.MovementTypeInbound, Quantity: 5},
		},
		{
			name:  "invalid type",
			input: RecordMovementInput{ProductID: uuid.New(), Type: enums.MovementType("teleport"), Quantity: 5},
		},
		{
			name:  "zero quantity",
			input: RecordMovementInput{ProductID: uuid.New(), Type: enums.MovementTypeAdjustment, Quantity: 0},
		},
		{
			name:  "negative inbound",
			input: RecordMovementInput{ProductID: uuid.New(), Type: enums.MovementTypeInbound, Quantity: -5},
		},
		{
			name:  "negative return",
			input: RecordMovementInput{ProductID: uuid.New(), Type: enums.MovementTypeReturn, Quantity: -1},
		},
		{
			name:  "positive outbound",
			input: RecordMovementInput{ProductID: uuid.New(), Type: enums.MovementTypeOutbound, Quantity: 3},
		},
		{
			name:  "positive damage",
			input: RecordMovementInput{ProductID: uuid.New(), Type: enums.MovementTypeDamage, Quantity: 2},
		},
		{
			name:  "positive loss",
			input: RecordMovementInput{ProductID: uuid.New(), Type: enums.MovementTypeLoss, Quantity: 1},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Record(context.Background(), tc.input)
			if err == nil {
				t.Fatalf("expected validation error for %s", tc.name)
			}
			if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation code, got %v", err)
			}
		})
	}
}

func TestService_RecordAllowsSignedAdjustments(t *testing.T) {
	repo := &fakeRepository{}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	for _, qty := range []int{-7, 7} {
		if _, err := svc.Record(context.Background(), RecordMovementInput{
			ProductID: uuid.New(),
			Type:      enums.MovementTypeAdjustment,
			Quantity:  qty,
		}); err != nil {
			t.Fatalf("adjustment of %d should be accepted: %v", qty, err)
		}
	}
}

func TestService_RecordRepoError(t *testing.T) {
	repo := &fakeRepository{}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	expectedErr := errors.New("boom")
	repo.createFn = func(ctx context.Context, movement *models.StockMovement) error {
		return expectedErr
	}

	if _, err := svc.Record(context.Background(), RecordMovementInput{
		ProductID: uuid.New(),
		Type:      enums.MovementTypeInbound,
		Quantity:  10,
	}); !errors.Is(err, expectedErr) {
		t.Fatalf("expected repo error to bubble up, got %v", err)
	}
}

func TestService_ListByProductPaginates(t *testing.T) {
	repo := &fakeRepository{}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	productID := uuid.New()
	rows := make([]models.StockMovement, 3)
	for i := range rows {
		rows[i] = models.StockMovement{ID: uuid.New(), ProductID: productID}
	}

	repo.listFn = func(ctx context.Context, gotProduct uuid.UUID, after *pagination.Cursor, limit int) ([]models.StockMovement, error) {
		if gotProduct != productID {
			t.Fatalf("unexpected product id %s", gotProduct)
		}
		if limit != 3 {
			t.Fatalf("expected buffered limit 3, got %d", limit)
		}
		return rows, nil
	}

	page, next, err := svc.ListByProduct(context.Background(), productID, pagination.Params{Limit: 2})
	if err != nil {
		t.Fatalf("ListByProduct error: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected trimmed page of 2, got %d", len(page))
	}
	if next == "" {
		t.Fatal("expected next cursor for buffered page")
	}
}

func TestService_ListByProductRejectsBadCursor(t *testing.T) {
	repo := &fakeRepository{}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	_, _, err = svc.ListByProduct(context.Background(), uuid.New(), pagination.Params{Cursor: "!!bad!!"})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestService_NetChange(t *testing.T) {
	repo := &fakeRepository{}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	repo.sumFn = func(ctx context.Context, productID uuid.UUID) (int64, error) {
		return -12, nil
	}

	total, err := svc.NetChange(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("NetChange error: %v", err)
	}
	if total != -12 {
		t.Fatalf("expected -12, got %d", total)
	}

	if _, err := svc.NetChange(context.Background(), uuid.Nil); err == nil {
		t.Fatal("expected validation error for nil product id")
	}
}
