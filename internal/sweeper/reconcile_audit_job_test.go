package sweeper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/stockroomhq/stockroom-backend/internal/inventory"
	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
	"github.com/stockroomhq/stockroom-backend/pkg/logger"
	"github.com/stockroomhq/stockroom-backend/pkg/metrics"
	"github.com/stockroomhq/stockroom-backend/pkg/pagination"
)

type fakeInventoryPager struct {
	pages [][]models.InventoryItem
	calls int
}

func (f *fakeInventoryPager) List(ctx context.Context, filter inventory.ListFilter, after *pagination.Cursor, limit int) ([]models.InventoryItem, error) {
	if f.calls >= len(f.pages) {
		return nil, nil
	}
	page := f.pages[f.calls]
	f.calls++
	return page, nil
}

type fakeAuditor struct {
	drifted map[uuid.UUID]bool
	errsFor map[uuid.UUID]error
	audited []uuid.UUID
}

func (f *fakeAuditor) Reconcile(ctx context.Context, productID uuid.UUID) (*inventory.ReconcileResult, error) {
	if err, found := f.errsFor[productID]; found {
		return nil, err
	}
	f.audited = append(f.audited, productID)
	return &inventory.ReconcileResult{
		ProductID:  productID,
		Consistent: !f.drifted[productID],
	}, nil
}

func auditItem(created time.Time) models.InventoryItem {
	return models.InventoryItem{ProductID: uuid.New(), SKU: uuid.NewString()[:8], CreatedAt: created}
}

func newReconcileJob(t *testing.T, pager *fakeInventoryPager, auditor *fakeAuditor, sweeperMetrics *metrics.SweeperMetrics) *reconcileAuditJob {
	t.Helper()
	jobIface, err := NewReconcileAuditJob(ReconcileAuditJobParams{
		Logger:   logger.New(logger.Options{ServiceName: "sweeper-test"}),
		Items:    pager,
		Auditor:  auditor,
		Metrics:  sweeperMetrics,
		PageSize: 2,
	})
	if err != nil {
		t.Fatalf("NewReconcileAuditJob: %v", err)
	}
	return jobIface.(*reconcileAuditJob)
}

func TestReconcileAuditJobPagesThroughAllItems(t *testing.T) {
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	pager := &fakeInventoryPager{pages: [][]models.InventoryItem{
		{auditItem(base), auditItem(base.Add(time.Minute))},
		{auditItem(base.Add(2 * time.Minute))},
	}}
	auditor := &fakeAuditor{}
	job := newReconcileJob(t, pager, auditor, nil)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if pager.calls != 2 {
		t.Fatalf("expected 2 pages, got %d", pager.calls)
	}
	if len(auditor.audited) != 3 {
		t.Fatalf("expected all 3 items audited, got %d", len(auditor.audited))
	}
}

func TestReconcileAuditJobCountsDrift(t *testing.T) {
	drifted := auditItem(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	clean := auditItem(drifted.CreatedAt.Add(time.Minute))
	pager := &fakeInventoryPager{pages: [][]models.InventoryItem{{drifted, clean}}}
	auditor := &fakeAuditor{drifted: map[uuid.UUID]bool{drifted.ProductID: true}}

	registry := prometheus.NewRegistry()
	sweeperMetrics := metrics.NewSweeperMetrics(registry)
	job := newReconcileJob(t, pager, auditor, sweeperMetrics)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, family := range families {
		if family.GetName() != "ledger_drift_detected_total" {
			continue
		}
		found = true
		if got := family.GetMetric()[0].GetCounter().GetValue(); got != 1 {
			t.Fatalf("expected 1 drifted item recorded, got %v", got)
		}
	}
	if !found {
		t.Fatal("drift counter not registered")
	}
}

func TestReconcileAuditJobContinuesPastItemFailure(t *testing.T) {
	broken := auditItem(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	healthy := auditItem(broken.CreatedAt.Add(time.Minute))
	pager := &fakeInventoryPager{pages: [][]models.InventoryItem{{broken, healthy}}}
	auditor := &fakeAuditor{errsFor: map[uuid.UUID]error{broken.ProductID: errors.New("db timeout")}}
	job := newReconcileJob(t, pager, auditor, nil)

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected aggregated error for the failed item")
	}
	if len(auditor.audited) != 1 || auditor.audited[0] != healthy.ProductID {
		t.Fatalf("failure must not block remaining items, got %v", auditor.audited)
	}
}
