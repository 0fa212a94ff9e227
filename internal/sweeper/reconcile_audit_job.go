package sweeper

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/stockroomhq/stockroom-backend/internal/inventory"
	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
	"github.com/stockroomhq/stockroom-backend/pkg/logger"
	"github.com/stockroomhq/stockroom-backend/pkg/metrics"
	"github.com/stockroomhq/stockroom-backend/pkg/pagination"
)

const defaultReconcilePageSize = 200

// ReconcileAuditJobParams configure the ledger consistency audit.
type ReconcileAuditJobParams struct {
	Logger   *logger.Logger
	Items    inventoryPager
	Auditor  stockAuditor
	Metrics  *metrics.SweeperMetrics
	PageSize int
}

type inventoryPager interface {
	List(ctx context.Context, filter inventory.ListFilter, after *pagination.Cursor, limit int) ([]models.InventoryItem, error)
}

type stockAuditor interface {
	Reconcile(ctx context.Context, productID uuid.UUID) (*inventory.ReconcileResult, error)
}

// NewReconcileAuditJob builds the job that checks each item's on-hand quantity
// against its movement ledger. Drift is reported, never auto-corrected.
func NewReconcileAuditJob(params ReconcileAuditJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Items == nil {
		return nil, fmt.Errorf("inventory pager required")
	}
	if params.Auditor == nil {
		return nil, fmt.Errorf("stock auditor required")
	}
	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = defaultReconcilePageSize
	}
	return &reconcileAuditJob{
		logg:     params.Logger,
		items:    params.Items,
		auditor:  params.Auditor,
		metrics:  params.Metrics,
		pageSize: pageSize,
	}, nil
}

type reconcileAuditJob struct {
	logg     *logger.Logger
	items    inventoryPager
	auditor  stockAuditor
	metrics  *metrics.SweeperMetrics
	pageSize int
}

func (j *reconcileAuditJob) Name() string { return "reconcile-audit" }

func (j *reconcileAuditJob) Run(ctx context.Context) error {
	audited := 0
	drifted := 0
	var errs []error
	var after *pagination.Cursor

	for {
		page, err := j.items.List(ctx, inventory.ListFilter{}, after, j.pageSize)
		if err != nil {
			return fmt.Errorf("page inventory items: %w", err)
		}
		if len(page) == 0 {
			break
		}

		for _, item := range page {
			result, err := j.auditor.Reconcile(ctx, item.ProductID)
			if err != nil {
				logCtx := j.logg.WithProductID(ctx, item.ProductID.String())
				j.logg.Error(logCtx, "failed to reconcile item", err)
				errs = append(errs, fmt.Errorf("reconcile %s: %w", item.ProductID, err))
				continue
			}
			audited++
			if result.Consistent {
				continue
			}
			drifted++
			logCtx := j.logg.WithFields(ctx, map[string]any{
				"product_id":       item.ProductID.String(),
				"quantity":         result.Quantity,
				"expected":         result.ExpectedQuantity,
				"ledger_netchange": result.LedgerNetChange,
			})
			j.logg.Warn(logCtx, "on-hand quantity disagrees with movement ledger")
		}

		if len(page) < j.pageSize {
			break
		}
		last := page[len(page)-1]
		after = &pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ProductID}
	}

	j.metrics.AddDrift(drifted)
	logCtx := j.logg.WithFields(ctx, map[string]any{"audited": audited, "drifted": drifted})
	j.logg.Info(logCtx, "ledger reconciliation audit complete")
	return multierr.Combine(errs...)
}
