package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/adeyemiloye/chowhub-backend/internal/audit"
	"github.com/adeyemiloye/chowhub-backend/internal/locks"
	"github.com/adeyemiloye/chowhub-backend/internal/notifications"
	"github.com/adeyemiloye/chowhub-backend/internal/orders"
	"github.com/adeyemiloye/chowhub-backend/internal/payments"
	"github.com/adeyemiloye/chowhub-backend/pkg/enums"
	pkgerrors "github.com/adeyemiloye/chowhub-backend/pkg/errors"
	"github.com/adeyemiloye/chowhub-backend/pkg/logger"
	"github.com/adeyemiloye/chowhub-backend/pkg/metrics"
	"github.com/adeyemiloye/chowhub-backend/pkg/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// BatchResult summarizes one bounded reconciliation run.
type BatchResult struct {
	Examined int
	Healed   int
	Skipped  int
}

// HealthSnapshot is the consistency report consumed by external alerting.
type HealthSnapshot struct {
	InconsistentOrders       int64     `json:"inconsistent_orders"`
	StaleQueuedNotifications int64     `json:"stale_queued_notifications"`
	UnprocessedTransactions  int64     `json:"unprocessed_transactions"`
	ReconciliationsLast24h   int64     `json:"reconciliations_last_24h"`
	GeneratedAt              time.Time `json:"generated_at"`
}

// Service heals orders the ledger says are paid but the order row disagrees
// about, and reports queue/ledger health counts.
type Service interface {
	ReconcileBatch(ctx context.Context) (*BatchResult, error)
	Snapshot(ctx context.Context) (*HealthSnapshot, error)
}

// ServiceParams configure the reconciliation service.
type ServiceParams struct {
	DB                  txRunner
	Repository          Repository
	Payments            payments.Repository
	Applier             payments.Service
	Orders              orders.Repository
	Locks               locks.Service
	Audit               audit.Service
	Notifications       notifications.Repository
	Logger              *logger.Logger
	Metrics             *metrics.NotificationQueueMetrics
	BatchLimit          int
	StaleQueueThreshold time.Duration
	LockTTL             time.Duration
	Now                 func() time.Time
}

type service struct {
	db             txRunner
	repo           Repository
	payRepo        payments.Repository
	applier        payments.Service
	orderRepo      orders.Repository
	locks          locks.Service
	audit          audit.Service
	queueRepo      notifications.Repository
	logg           *logger.Logger
	queueMetrics   *metrics.NotificationQueueMetrics
	batchLimit     int
	staleThreshold time.Duration
	lockTTL        time.Duration
	now            func() time.Time
}

// NewService wires the reconciliation/health monitor.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("reconcile repository required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if params.Applier == nil {
		return nil, fmt.Errorf("payments service required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Locks == nil {
		return nil, fmt.Errorf("lock service required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit service required")
	}
	if params.Notifications == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.BatchLimit <= 0 {
		params.BatchLimit = 50
	}
	if params.StaleQueueThreshold <= 0 {
		params.StaleQueueThreshold = 30 * time.Minute
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		db:             params.DB,
		repo:           params.Repository,
		payRepo:        params.Payments,
		applier:        params.Applier,
		orderRepo:      params.Orders,
		locks:          params.Locks,
		audit:          params.Audit,
		queueRepo:      params.Notifications,
		logg:           params.Logger,
		queueMetrics:   params.Metrics,
		batchLimit:     params.BatchLimit,
		staleThreshold: params.StaleQueueThreshold,
		lockTTL:        params.LockTTL,
		now:            now,
	}, nil
}

// ReconcileBatch heals up to the configured limit of successful-but-unapplied
// ledger rows. The cap bounds run time; leftovers wait for the next cycle.
func (s *service) ReconcileBatch(ctx context.Context) (*BatchResult, error) {
	txns, err := s.payRepo.ListUnprocessedSuccessful(ctx, s.batchLimit)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{Examined: len(txns)}
	for _, txn := range txns {
		healed, err := s.healOne(ctx, txn.ID, txn.OrderID, txn.ProviderReference)
		if err != nil {
			if pkgerrors.HasCode(err, pkgerrors.CodeLockConflict) {
				result.Skipped++
				continue
			}
			return result, err
		}
		if healed {
			result.Healed++
		} else {
			result.Skipped++
		}
	}
	return result, nil
}

func (s *service) healOne(ctx context.Context, txnID, orderID uuid.UUID, reference string) (bool, error) {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":           orderID,
		"transaction_id":     txnID,
		"provider_reference": reference,
	})

	holderID := uuid.New()
	if err := s.locks.Acquire(ctx, orderID, holderID, s.lockTTL); err != nil {
		return false, err
	}
	defer func() {
		if relErr := s.locks.Release(ctx, orderID, holderID); relErr != nil {
			s.logg.Error(logCtx, "failed to release order lock", relErr)
		}
	}()

	healed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		payRepo := s.payRepo.WithTx(tx)

		txn, err := payRepo.GetTransactionByReference(ctx, reference)
		if err != nil {
			return err
		}
		if txn == nil || txn.ProcessedAt != nil {
			// Another process got here first.
			return nil
		}

		order, err := s.orderRepo.WithTx(tx).GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			_, err := payRepo.MarkTransactionProcessed(ctx, txn.ID, enums.TransactionStatusFailed, s.now().UTC())
			if err != nil {
				return err
			}
			s.logg.Warn(logCtx, "ledger row references a missing order")
			return nil
		}

		if err := s.applier.ApplySuccessfulPaymentTx(ctx, tx, order, txn, payments.SystemActorID); err != nil {
			return err
		}

		oid := order.ID
		if _, err := s.audit.WithTx(tx).RecordChange(ctx, audit.RecordChangeInput{
			OrderID: &oid,
			ActorID: payments.SystemActorID,
			Action:  "payment.reconciled",
			Metadata: types.JSONMap{
				"provider_reference": reference,
			},
		}); err != nil {
			return err
		}

		healed = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if healed {
		s.logg.Info(logCtx, "order healed from ledger")
	}
	return healed, nil
}

// Snapshot reports the consistency counters used for alerting.
func (s *service) Snapshot(ctx context.Context) (*HealthSnapshot, error) {
	now := s.now().UTC()

	inconsistent, err := s.repo.CountInconsistentOrders(ctx)
	if err != nil {
		return nil, err
	}
	stale, err := s.queueRepo.CountStaleQueued(ctx, now.Add(-s.staleThreshold))
	if err != nil {
		return nil, err
	}
	unprocessed, err := s.payRepo.CountUnprocessedSuccessful(ctx)
	if err != nil {
		return nil, err
	}
	healsLast24h, err := s.repo.CountReconciliationsSince(ctx, now.Add(-24*time.Hour))
	if err != nil {
		return nil, err
	}

	s.queueMetrics.SetStaleQueued(int(stale))

	return &HealthSnapshot{
		InconsistentOrders:       inconsistent,
		StaleQueuedNotifications: stale,
		UnprocessedTransactions:  unprocessed,
		ReconciliationsLast24h:   healsLast24h,
		GeneratedAt:              now,
	}, nil
}
