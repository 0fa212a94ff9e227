package sweeper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/stockroomhq/stockroom-backend/internal/reservations"
	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
	"github.com/stockroomhq/stockroom-backend/pkg/enums"
	pkgerrors "github.com/stockroomhq/stockroom-backend/pkg/errors"
	"github.com/stockroomhq/stockroom-backend/pkg/logger"
)

type fakeDueReader struct {
	cutoffs []time.Time
	rows    []models.Reservation
	limit   int
	err     error
}

func (f *fakeDueReader) DueForExpiry(ctx context.Context, now time.Time, limit int) ([]models.Reservation, error) {
	f.cutoffs = append(f.cutoffs, now)
	f.limit = limit
	return f.rows, f.err
}

type fakeExpirer struct {
	expired []uuid.UUID
	errsFor map[uuid.UUID]error
}

func (f *fakeExpirer) Expire(ctx context.Context, id uuid.UUID) (*reservations.ReservationDTO, error) {
	if err, found := f.errsFor[id]; found {
		return nil, err
	}
	f.expired = append(f.expired, id)
	return &reservations.ReservationDTO{ID: id, Status: string(enums.ReservationStatusExpired)}, nil
}

func overdueReservation() models.Reservation {
	return models.Reservation{
		ID:        uuid.New(),
		ProductID: uuid.New(),
		Quantity:  1,
		Status:    enums.ReservationStatusActive,
	}
}

func newExpireJob(t *testing.T, reader *fakeDueReader, expirer *fakeExpirer) *expireReservationsJob {
	t.Helper()
	jobIface, err := NewExpireReservationsJob(ExpireReservationsJobParams{
		Logger:    logger.New(logger.Options{ServiceName: "sweeper-test"}),
		Due:       reader,
		Expirer:   expirer,
		BatchSize: 50,
	})
	if err != nil {
		t.Fatalf("NewExpireReservationsJob: %v", err)
	}
	return jobIface.(*expireReservationsJob)
}

func TestExpireReservationsJobExpiresEachDueHold(t *testing.T) {
	first := overdueReservation()
	second := overdueReservation()
	reader := &fakeDueReader{rows: []models.Reservation{first, second}}
	expirer := &fakeExpirer{}
	job := newExpireJob(t, reader, expirer)
	now := time.Date(2026, 6, 1, 3, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(reader.cutoffs) != 1 || !reader.cutoffs[0].Equal(now) {
		t.Fatalf("expected single query at %v, got %v", now, reader.cutoffs)
	}
	if reader.limit != 50 {
		t.Fatalf("expected configured batch size, got %d", reader.limit)
	}
	if len(expirer.expired) != 2 {
		t.Fatalf("expected both holds expired, got %d", len(expirer.expired))
	}
}

func TestExpireReservationsJobToleratesLostRaces(t *testing.T) {
	raced := overdueReservation()
	survivor := overdueReservation()
	reader := &fakeDueReader{rows: []models.Reservation{raced, survivor}}
	expirer := &fakeExpirer{errsFor: map[uuid.UUID]error{
		raced.ID: pkgerrors.New(pkgerrors.CodeInvalidState, "reservation already confirmed"),
	}}
	job := newExpireJob(t, reader, expirer)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("a lost race must not fail the job: %v", err)
	}
	if len(expirer.expired) != 1 || expirer.expired[0] != survivor.ID {
		t.Fatalf("expected only the survivor expired, got %v", expirer.expired)
	}
}

func TestExpireReservationsJobContinuesPastFailures(t *testing.T) {
	broken := overdueReservation()
	healthy := overdueReservation()
	reader := &fakeDueReader{rows: []models.Reservation{broken, healthy}}
	expirer := &fakeExpirer{errsFor: map[uuid.UUID]error{
		broken.ID: errors.New("connection reset"),
	}}
	job := newExpireJob(t, reader, expirer)

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected aggregated error for the failed row")
	}
	if len(expirer.expired) != 1 || expirer.expired[0] != healthy.ID {
		t.Fatalf("failure must not block the rest of the batch, got %v", expirer.expired)
	}
}

func TestExpireReservationsJobQueryFailure(t *testing.T) {
	reader := &fakeDueReader{err: errors.New("db down")}
	job := newExpireJob(t, reader, &fakeExpirer{})
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error when the due query fails")
	}
}
