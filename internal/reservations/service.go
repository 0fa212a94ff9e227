package reservations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
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

// errOverdueActive marks an ACTIVE row found past its deadline inside a
// confirm or cancel transaction. The caller expires it in a separate committed
// transaction; doing so in-place would be rolled back with the rejection.
var errOverdueActive = errors.New("reservation overdue")

// Service exposes the reservation lifecycle: create a hold, then confirm,
// cancel, or let it expire. Every mutating operation is one transaction whose
// counter mutation is a guarded conditional UPDATE.
type Service interface {
	Create(ctx context.Context, input CreateReservationInput) (*ReservationDTO, error)
	Get(ctx context.Context, id uuid.UUID) (*ReservationDTO, error)
	List(ctx context.Context, input ListReservationsInput) (*ReservationListResult, error)
	Confirm(ctx context.Context, id uuid.UUID) (*ReservationDTO, error)
	Cancel(ctx context.Context, id uuid.UUID) (*ReservationDTO, error)
	Expire(ctx context.Context, id uuid.UUID) (*ReservationDTO, error)
	ConfirmBatch(ctx context.Context, ids []uuid.UUID) []BatchResult
}

// CreateReservationInput holds the validated payload to place a hold.
// A nil TTL falls back to the configured default; a zero TTL means the
// reservation never auto-expires.
type CreateReservationInput struct {
	ProductID  uuid.UUID
	Quantity   int
	CustomerID uuid.UUID
	OrderID    uuid.UUID
	TTL        *time.Duration
	Notes      *string
}

// ListReservationsInput narrows and paginates reservation listings.
type ListReservationsInput struct {
	ProductID  *uuid.UUID
	CustomerID *uuid.UUID
	OrderID    *uuid.UUID
	Status     *enums.ReservationStatus
	Pagination pagination.Params
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type availabilityCache interface {
	Del(ctx context.Context, keys ...string) error
	CacheKey(scope, id string) string
}

type service struct {
	repo       Repository
	stock      StockMutator
	ledgerRepo ledger.Repository
	runner     txRunner
	cache      availabilityCache
	defaultTTL time.Duration
	retryCfg   config.RetryConfig
	now        func() time.Time
}

// NewService constructs a reservation service instance. The cache is optional.
func NewService(repo Repository, stock StockMutator, ledgerRepo ledger.Repository, runner txRunner, cache availabilityCache, resCfg config.ReservationsConfig, retryCfg config.RetryConfig) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("reservation repository required")
	}
	if ledgerRepo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if runner == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if stock == nil {
		stock = NewStockMutator()
	}
	return &service{
		repo:       repo,
		stock:      stock,
		ledgerRepo: ledgerRepo,
		runner:     runner,
		cache:      cache,
		defaultTTL: resCfg.DefaultTTL(),
		retryCfg:   retryCfg,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// Create places an ACTIVE hold. Raising reserved_quantity and persisting the
// row happen in one transaction; the availability check is the WHERE clause of
// the guarded UPDATE, so concurrent creates can never jointly oversell.
func (s *service) Create(ctx context.Context, input CreateReservationInput) (*ReservationDTO, error) {
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if input.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	ttl := s.defaultTTL
	if input.TTL != nil {
		ttl = *input.TTL
	}
	if ttl < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ttl cannot be negative")
	}

	var created *models.Reservation
	err := db.RunWithRetry(ctx, s.retryCfg, func(ctx context.Context) error {
		return s.runner.WithTx(ctx, func(tx *gorm.DB) error {
			ok, err := s.stock.Reserve(ctx, tx, input.ProductID, input.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				quantity, reserved, cerr := s.stock.Counters(ctx, tx, input.ProductID)
				if cerr != nil {
					return cerr
				}
				return pkgerrors.New(pkgerrors.CodeInsufficientStock, "not enough unreserved stock").
					WithDetails(map[string]any{
						"requested": input.Quantity,
						"available": quantity - reserved,
					})
			}

			reservation := &models.Reservation{
				ID:         uuid.New(),
				ProductID:  input.ProductID,
				Quantity:   input.Quantity,
				CustomerID: input.CustomerID,
				OrderID:    input.OrderID,
				Status:     enums.ReservationStatusActive,
				Notes:      input.Notes,
			}
			if ttl > 0 {
				expires := s.now().Add(ttl)
				reservation.ExpiresAt = &expires
			}
			if err := s.repo.WithTx(tx).Create(ctx, reservation); err != nil {
				return err
			}
			created = reservation
			return nil
		})
	})
	if err != nil {
		return nil, s.mapError(err, "creating reservation")
	}

	s.invalidateAvailability(ctx, input.ProductID)
	return NewReservationDTO(created), nil
}

// Get returns the reservation, lazily expiring an ACTIVE row whose deadline
// has passed so readers never observe a hold the sweeper simply has not
// reached yet.
func (s *service) Get(ctx context.Context, id uuid.UUID) (*ReservationDTO, error) {
	reservation, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if reservation.IsExpired(s.now()) {
		return s.Expire(ctx, id)
	}
	return NewReservationDTO(reservation), nil
}

func (s *service) List(ctx context.Context, input ListReservationsInput) (*ReservationListResult, error) {
	if input.Status != nil && !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid status %q", *input.Status))
	}
	after, err := pagination.ParseCursor(input.Pagination.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	filter := ListFilter{
		ProductID:  input.ProductID,
		CustomerID: input.CustomerID,
		OrderID:    input.OrderID,
		Status:     input.Status,
	}
	rows, err := s.repo.List(ctx, filter, after, pagination.LimitWithBuffer(input.Pagination.Limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing reservations")
	}

	page, next := pagination.TrimPage(rows, input.Pagination.Limit, func(r models.Reservation) pagination.Cursor {
		return pagination.Cursor{CreatedAt: r.CreatedAt, ID: r.ID}
	})

	result := &ReservationListResult{Reservations: make([]ReservationDTO, 0, len(page)), NextCursor: next}
	for i := range page {
		result.Reservations = append(result.Reservations, *NewReservationDTO(&page[i]))
	}
	return result, nil
}

// Confirm turns an ACTIVE hold into a committed consumption: quantity and
// reserved_quantity both drop by the held amount and one outbound movement is
// appended, all in the same transaction. Confirming an already CONFIRMED
// reservation is a no-op returning the row.
func (s *service) Confirm(ctx context.Context, id uuid.UUID) (*ReservationDTO, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation id is required")
	}

	var confirmed *models.Reservation
	err := db.RunWithRetry(ctx, s.retryCfg, func(ctx context.Context) error {
		return s.runner.WithTx(ctx, func(tx *gorm.DB) error {
			txRepo := s.repo.WithTx(tx)
			reservation, err := txRepo.FindByID(ctx, id)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
				}
				return err
			}

			switch {
			case reservation.Status == enums.ReservationStatusConfirmed:
				confirmed = reservation
				return nil

			case reservation.Status.IsTerminal():
				return pkgerrors.New(pkgerrors.CodeInvalidState,
					fmt.Sprintf("reservation already %s", reservation.Status))

			case reservation.IsExpired(s.now()):
				return errOverdueActive
			}

			ok, err := txRepo.TransitionStatus(ctx, id, enums.ReservationStatusActive, enums.ReservationStatusConfirmed)
			if err != nil {
				return err
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeBusy, "reservation state changed concurrently")
			}

			ok, err = s.stock.Consume(ctx, tx, reservation.ProductID, reservation.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeInternal, "stock counters out of step with reservation")
			}

			movement := &models.StockMovement{
				ID:           uuid.New(),
				ProductID:    reservation.ProductID,
				MovementType: enums.MovementTypeOutbound,
				Quantity:     -reservation.Quantity,
				ReferenceID:  &reservation.OrderID,
			}
			if err := s.ledgerRepo.WithTx(tx).Create(ctx, movement); err != nil {
				return err
			}

			reservation.Status = enums.ReservationStatusConfirmed
			confirmed = reservation
			return nil
		})
	})
	if errors.Is(err, errOverdueActive) {
		if _, eerr := s.Expire(ctx, id); eerr != nil {
			return nil, eerr
		}
		return nil, pkgerrors.New(pkgerrors.CodeInvalidState, "reservation expired")
	}
	if err != nil {
		return nil, s.mapError(err, "confirming reservation")
	}

	s.invalidateAvailability(ctx, confirmed.ProductID)
	return NewReservationDTO(confirmed), nil
}

// Cancel releases an ACTIVE hold without touching on-hand quantity, so no
// movement is recorded.
func (s *service) Cancel(ctx context.Context, id uuid.UUID) (*ReservationDTO, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation id is required")
	}

	var cancelled *models.Reservation
	err := db.RunWithRetry(ctx, s.retryCfg, func(ctx context.Context) error {
		return s.runner.WithTx(ctx, func(tx *gorm.DB) error {
			txRepo := s.repo.WithTx(tx)
			reservation, err := txRepo.FindByID(ctx, id)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
				}
				return err
			}

			switch {
			case reservation.Status.IsTerminal():
				return pkgerrors.New(pkgerrors.CodeInvalidState,
					fmt.Sprintf("reservation already %s", reservation.Status))

			case reservation.IsExpired(s.now()):
				return errOverdueActive
			}

			ok, err := txRepo.TransitionStatus(ctx, id, enums.ReservationStatusActive, enums.ReservationStatusCancelled)
			if err != nil {
				return err
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeBusy, "reservation state changed concurrently")
			}

			ok, err = s.stock.Release(ctx, tx, reservation.ProductID, reservation.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeInternal, "stock counters out of step with reservation")
			}

			reservation.Status = enums.ReservationStatusCancelled
			cancelled = reservation
			return nil
		})
	})
	if errors.Is(err, errOverdueActive) {
		if _, eerr := s.Expire(ctx, id); eerr != nil {
			return nil, eerr
		}
		return nil, pkgerrors.New(pkgerrors.CodeInvalidState, "reservation expired")
	}
	if err != nil {
		return nil, s.mapError(err, "cancelling reservation")
	}

	s.invalidateAvailability(ctx, cancelled.ProductID)
	return NewReservationDTO(cancelled), nil
}

// Expire reclaims an overdue ACTIVE hold. Terminal rows are returned as-is so
// the sweeper can re-run safely.
func (s *service) Expire(ctx context.Context, id uuid.UUID) (*ReservationDTO, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation id is required")
	}

	var expired *models.Reservation
	err := db.RunWithRetry(ctx, s.retryCfg, func(ctx context.Context) error {
		return s.runner.WithTx(ctx, func(tx *gorm.DB) error {
			txRepo := s.repo.WithTx(tx)
			reservation, err := txRepo.FindByID(ctx, id)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
				}
				return err
			}

			if reservation.Status.IsTerminal() {
				expired = reservation
				return nil
			}
			if !reservation.IsExpired(s.now()) {
				return pkgerrors.New(pkgerrors.CodeInvalidState, "reservation is not due for expiry")
			}

			if err := s.expireInTx(ctx, tx, reservation); err != nil {
				return err
			}
			reservation.Status = enums.ReservationStatusExpired
			expired = reservation
			return nil
		})
	})
	if err != nil {
		return nil, s.mapError(err, "expiring reservation")
	}

	s.invalidateAvailability(ctx, expired.ProductID)
	return NewReservationDTO(expired), nil
}

// ConfirmBatch confirms each id independently; one failure never rolls back
// the others.
func (s *service) ConfirmBatch(ctx context.Context, ids []uuid.UUID) []BatchResult {
	results := make([]BatchResult, 0, len(ids))
	for _, id := range ids {
		dto, err := s.Confirm(ctx, id)
		if err != nil {
			result := BatchResult{ID: id, Confirmed: false}
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
		results = append(results, BatchResult{ID: id, Confirmed: true, Reservation: dto})
	}
	return results
}

// expireInTx flips ACTIVE to EXPIRED and releases the hold inside the caller's
// transaction.
func (s *service) expireInTx(ctx context.Context, tx *gorm.DB, reservation *models.Reservation) error {
	ok, err := s.repo.WithTx(tx).TransitionStatus(ctx, reservation.ID, enums.ReservationStatusActive, enums.ReservationStatusExpired)
	if err != nil {
		return err
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeBusy, "reservation state changed concurrently")
	}
	ok, err = s.stock.Release(ctx, tx, reservation.ProductID, reservation.Quantity)
	if err != nil {
		return err
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeInternal, "stock counters out of step with reservation")
	}
	return nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation id is required")
	}
	reservation, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading reservation")
	}
	return reservation, nil
}

func (s *service) mapError(err error, action string) error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	if db.IsBusy(err) {
		return pkgerrors.Wrap(pkgerrors.CodeBusy, err, "item contended, retry")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, action)
}

func (s *service) invalidateAvailability(ctx context.Context, productID uuid.UUID) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Del(ctx, s.cache.CacheKey(availabilityCacheScope, productID.String()))
}
