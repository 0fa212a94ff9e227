package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
	"github.com/stockroomhq/stockroom-backend/pkg/enums"
	pkgerrors "github.com/stockroomhq/stockroom-backend/pkg/errors"
	"github.com/stockroomhq/stockroom-backend/pkg/pagination"
)

// Service defines read and write operations over the movement ledger.
type Service interface {
	Record(ctx context.Context, input RecordMovementInput) (*models.StockMovement, error)
	ListByProduct(ctx context.Context, productID uuid.UUID, params pagination.Params) ([]models.StockMovement, string, error)
	NetChange(ctx context.Context, productID uuid.UUID) (int64, error)
}

type service struct {
	repo Repository
}

// RecordMovementInput captures the immutable data a movement row requires.
// Quantity is signed: positive deltas add stock, negative deltas remove it.
type RecordMovementInput struct {
	ProductID   uuid.UUID          `json:"product_id"`
	Type        enums.MovementType `json:"movement_type"`
	Quantity    int                `json:"quantity"`
	ReferenceID *uuid.UUID         `json:"reference_id,omitempty"`
	Notes       *string            `json:"notes,omitempty"`
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

// ValidateMovement enforces the per-type sign rules shared by the ledger
// service and the inventory write paths that record movements in-transaction.
func ValidateMovement(input RecordMovementInput) error {
	if input.ProductID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if !input.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid movement type %q", input.Type))
	}
	if input.Quantity == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "movement quantity must be non-zero")
	}
	switch input.Type {
	case enums.MovementTypeInbound, enums.MovementTypeReturn:
		if input.Quantity < 0 {
			return pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("%s movements must carry a positive quantity", input.Type))
		}
	case enums.MovementTypeOutbound, enums.MovementTypeDamage, enums.MovementTypeLoss:
		if input.Quantity > 0 {
			return pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("%s movements must carry a negative quantity", input.Type))
		}
	}
	return nil
}

func (s *service) Record(ctx context.Context, input RecordMovementInput) (*models.StockMovement, error) {
	if err := ValidateMovement(input); err != nil {
		return nil, err
	}

	movement := &models.StockMovement{
		ID:           uuid.New(),
		ProductID:    input.ProductID,
		MovementType: input.Type,
		Quantity:     input.Quantity,
		ReferenceID:  input.ReferenceID,
		Notes:        input.Notes,
	}
	if err := s.repo.Create(ctx, movement); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "recording stock movement")
	}
	return movement, nil
}

func (s *service) ListByProduct(ctx context.Context, productID uuid.UUID, params pagination.Params) ([]models.StockMovement, string, error) {
	if productID == uuid.Nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	after, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	movements, err := s.repo.ListByProduct(ctx, productID, after, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing stock movements")
	}

	page, next := pagination.TrimPage(movements, params.Limit, func(m models.StockMovement) pagination.Cursor {
		return pagination.Cursor{CreatedAt: m.CreatedAt, ID: m.ID}
	})
	return page, next, nil
}

func (s *service) NetChange(ctx context.Context, productID uuid.UUID) (int64, error) {
	if productID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	total, err := s.repo.NetChange(ctx, productID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "summing stock movements")
	}
	return total, nil
}
