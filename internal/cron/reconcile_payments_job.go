package cron

import (
	"context"
	"fmt"

	"github.com/adeyemiloye/chowhub-backend/internal/reconcile"
	"github.com/adeyemiloye/chowhub-backend/pkg/logger"
)

type reconciler interface {
	ReconcileBatch(ctx context.Context) (*reconcile.BatchResult, error)
	Snapshot(ctx context.Context) (*reconcile.HealthSnapshot, error)
}

// ReconcilePaymentsJobParams configure the payment reconciliation job.
type ReconcilePaymentsJobParams struct {
	Logger     *logger.Logger
	Reconciler reconciler
}

// NewReconcilePaymentsJob heals orders whose ledger and payment status
// disagree, then refreshes the health counters.
func NewReconcilePaymentsJob(params ReconcilePaymentsJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	return &reconcilePaymentsJob{
		logg:       params.Logger,
		reconciler: params.Reconciler,
	}, nil
}

type reconcilePaymentsJob struct {
	logg       *logger.Logger
	reconciler reconciler
}

func (j *reconcilePaymentsJob) Name() string { return "reconcile-payments" }

func (j *reconcilePaymentsJob) Run(ctx context.Context) error {
	result, err := j.reconciler.ReconcileBatch(ctx)
	if err != nil {
		return fmt.Errorf("reconcile batch: %w", err)
	}

	snapshot, err := j.reconciler.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("health snapshot: %w", err)
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"examined":            result.Examined,
		"healed":              result.Healed,
		"skipped":             result.Skipped,
		"inconsistent_orders": snapshot.InconsistentOrders,
		"stale_queued":        snapshot.StaleQueuedNotifications,
	})
	j.logg.Info(logCtx, "payment reconciliation complete")
	return nil
}
