package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/stockroomhq/stockroom-backend/internal/reservations"
	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
	pkgerrors "github.com/stockroomhq/stockroom-backend/pkg/errors"
	"github.com/stockroomhq/stockroom-backend/pkg/logger"
	"github.com/stockroomhq/stockroom-backend/pkg/metrics"
)

const defaultExpireBatchSize = 500

// ExpireReservationsJobParams configure the reservation expiration sweep.
type ExpireReservationsJobParams struct {
	Logger    *logger.Logger
	Due       dueReservationReader
	Expirer   reservationExpirer
	Metrics   *metrics.SweeperMetrics
	BatchSize int
}

type dueReservationReader interface {
	DueForExpiry(ctx context.Context, now time.Time, limit int) ([]models.Reservation, error)
}

type reservationExpirer interface {
	Expire(ctx context.Context, id uuid.UUID) (*reservations.ReservationDTO, error)
}

// NewExpireReservationsJob builds the job that reclaims overdue ACTIVE holds.
func NewExpireReservationsJob(params ExpireReservationsJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Due == nil {
		return nil, fmt.Errorf("due reservation reader required")
	}
	if params.Expirer == nil {
		return nil, fmt.Errorf("reservation expirer required")
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultExpireBatchSize
	}
	return &expireReservationsJob{
		logg:      params.Logger,
		due:       params.Due,
		expirer:   params.Expirer,
		metrics:   params.Metrics,
		batchSize: batchSize,
		now:       time.Now,
	}, nil
}

type expireReservationsJob struct {
	logg      *logger.Logger
	due       dueReservationReader
	expirer   reservationExpirer
	metrics   *metrics.SweeperMetrics
	batchSize int
	now       func() time.Time
}

func (j *expireReservationsJob) Name() string { return "expire-reservations" }

// Run expires each overdue hold in its own transaction, so one contended or
// failing row never blocks the rest of the batch.
func (j *expireReservationsJob) Run(ctx context.Context) error {
	overdue, err := j.due.DueForExpiry(ctx, j.now().UTC(), j.batchSize)
	if err != nil {
		return fmt.Errorf("query overdue reservations: %w", err)
	}

	expired := 0
	var errs []error
	for _, reservation := range overdue {
		if _, err := j.expirer.Expire(ctx, reservation.ID); err != nil {
			// A concurrent confirm or cancel winning the race is not a failure.
			if pkgerrors.HasCode(err, pkgerrors.CodeInvalidState) || pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
				continue
			}
			logCtx := j.logg.WithReservationID(ctx, reservation.ID.String())
			j.logg.Error(logCtx, "failed to expire reservation", err)
			errs = append(errs, fmt.Errorf("expire %s: %w", reservation.ID, err))
			continue
		}
		expired++
	}

	j.metrics.AddExpired(expired)
	logCtx := j.logg.WithFields(ctx, map[string]any{"due": len(overdue), "expired": expired})
	j.logg.Info(logCtx, "reservation expiration sweep complete")
	return multierr.Combine(errs...)
}
