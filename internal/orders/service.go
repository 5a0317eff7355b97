package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/adeyemiloye/chowhub-backend/internal/audit"
	"github.com/adeyemiloye/chowhub-backend/internal/locks"
	"github.com/adeyemiloye/chowhub-backend/internal/notifications"
	"github.com/adeyemiloye/chowhub-backend/pkg/db/models"
	"github.com/adeyemiloye/chowhub-backend/pkg/enums"
	pkgerrors "github.com/adeyemiloye/chowhub-backend/pkg/errors"
	"github.com/adeyemiloye/chowhub-backend/pkg/logger"
	"github.com/adeyemiloye/chowhub-backend/pkg/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// TransitionInput is one requested status change.
type TransitionInput struct {
	OrderID   uuid.UUID
	NewStatus enums.OrderStatus
	ActorID   uuid.UUID
}

// AssignCourierInput attaches a courier to an order.
type AssignCourierInput struct {
	OrderID   uuid.UUID
	CourierID uuid.UUID
	ActorID   uuid.UUID
}

// Service is the order state machine. All mutations run under the order lock
// and inside one transaction with their audit entry and notification intent.
type Service interface {
	GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	Transition(ctx context.Context, input TransitionInput) (*models.Order, error)
	AssignCourier(ctx context.Context, input AssignCourierInput) (*models.Order, error)
	// ApplyTransitionTx runs the transition rules inside a caller-owned
	// transaction. The caller must already hold the order lock.
	ApplyTransitionTx(ctx context.Context, tx *gorm.DB, order *models.Order, to enums.OrderStatus, actorID uuid.UUID) (*models.Order, error)
}

// ServiceParams configure the orders service.
type ServiceParams struct {
	DB            txRunner
	Repository    Repository
	Locks         locks.Service
	Audit         audit.Service
	Notifications notifications.Service
	Logger        *logger.Logger
	LockTTL       time.Duration
}

type service struct {
	db      txRunner
	repo    Repository
	locks   locks.Service
	audit   audit.Service
	queue   notifications.Service
	logg    *logger.Logger
	lockTTL time.Duration
}

// NewService wires the order state machine.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Locks == nil {
		return nil, fmt.Errorf("lock service required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit service required")
	}
	if params.Notifications == nil {
		return nil, fmt.Errorf("notifications service required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		db:      params.DB,
		repo:    params.Repository,
		locks:   params.Locks,
		audit:   params.Audit,
		queue:   params.Notifications,
		logg:    params.Logger,
		lockTTL: params.LockTTL,
	}, nil
}

func (s *service) GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, fmt.Errorf("order id is required")
	}
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *service) Transition(ctx context.Context, input TransitionInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, fmt.Errorf("order id is required")
	}
	if input.ActorID == uuid.Nil {
		return nil, fmt.Errorf("actor id is required")
	}
	if !input.NewStatus.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid order status %q", input.NewStatus))
	}

	holderID := uuid.New()
	if err := s.locks.Acquire(ctx, input.OrderID, holderID, s.lockTTL); err != nil {
		return nil, err
	}
	defer func() {
		if err := s.locks.Release(ctx, input.OrderID, holderID); err != nil {
			s.logg.Error(ctx, "failed to release order lock", err)
		}
	}()

	var result *models.Order
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.repo.WithTx(tx).GetByID(ctx, input.OrderID)
		if err != nil {
			return err
		}
		if order == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}

		updated, err := s.ApplyTransitionTx(ctx, tx, order, input.NewStatus, input.ActorID)
		if err != nil {
			return err
		}
		result = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":   result.ID,
		"new_status": result.Status,
	})
	s.logg.Info(logCtx, "order transition applied")
	return result, nil
}

func (s *service) ApplyTransitionTx(ctx context.Context, tx *gorm.DB, order *models.Order, to enums.OrderStatus, actorID uuid.UUID) (*models.Order, error) {
	if order == nil {
		return nil, fmt.Errorf("order is required")
	}

	// Re-requesting the current status is an idempotent success.
	if order.Status == to {
		return order, nil
	}

	if !CanTransition(order.Status, to) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order status transition not allowed").
			WithDetails(map[string]any{
				"order_id":    order.ID,
				"from_status": order.Status,
				"to_status":   to,
			})
	}

	if RequiresCourier(to) && order.AssignedCourierID == nil {
		return nil, pkgerrors.New(pkgerrors.CodePrecondition, "courier must be assigned before this transition").
			WithDetails(map[string]any{
				"order_id":  order.ID,
				"to_status": to,
			})
	}

	repo := s.repo.WithTx(tx)
	applied, err := repo.UpdateStatus(ctx, order.ID, order.Status, to)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order was modified concurrently").
			WithDetails(map[string]any{"order_id": order.ID})
	}

	oldStatus := string(order.Status)
	newStatus := string(to)
	orderID := order.ID
	if _, err := s.audit.WithTx(tx).RecordChange(ctx, audit.RecordChangeInput{
		OrderID:   &orderID,
		ActorID:   actorID,
		Action:    "order.transition",
		OldStatus: &oldStatus,
		NewStatus: &newStatus,
	}); err != nil {
		return nil, err
	}

	if eventType, ok := NotificationForStatus(to); ok {
		if _, err := s.queue.WithTx(tx).Enqueue(ctx, notifications.EnqueueInput{
			OrderID:     order.ID,
			EventType:   eventType,
			Recipient:   order.CustomerEmail,
			TemplateKey: string(eventType),
			Variables: types.JSONMap{
				"order_id":   order.ID.String(),
				"old_status": oldStatus,
				"new_status": newStatus,
			},
		}); err != nil {
			return nil, err
		}
	}

	order.Status = to
	return order, nil
}

func (s *service) AssignCourier(ctx context.Context, input AssignCourierInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, fmt.Errorf("order id is required")
	}
	if input.CourierID == uuid.Nil {
		return nil, fmt.Errorf("courier id is required")
	}
	if input.ActorID == uuid.Nil {
		return nil, fmt.Errorf("actor id is required")
	}

	holderID := uuid.New()
	if err := s.locks.Acquire(ctx, input.OrderID, holderID, s.lockTTL); err != nil {
		return nil, err
	}
	defer func() {
		if err := s.locks.Release(ctx, input.OrderID, holderID); err != nil {
			s.logg.Error(ctx, "failed to release order lock", err)
		}
	}()

	var result *models.Order
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.GetByID(ctx, input.OrderID)
		if err != nil {
			return err
		}
		if order == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}

		switch order.Status {
		case enums.OrderStatusCompleted, enums.OrderStatusCancelled,
			enums.OrderStatusRefunded, enums.OrderStatusFailed:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "cannot assign courier on a closed order").
				WithDetails(map[string]any{
					"order_id": order.ID,
					"status":   order.Status,
				})
		}

		if _, err := repo.SetCourier(ctx, order.ID, input.CourierID); err != nil {
			return err
		}

		orderID := order.ID
		if _, err := s.audit.WithTx(tx).RecordChange(ctx, audit.RecordChangeInput{
			OrderID: &orderID,
			ActorID: input.ActorID,
			Action:  "order.assign_courier",
			Metadata: types.JSONMap{
				"courier_id": input.CourierID.String(),
			},
		}); err != nil {
			return err
		}

		courierID := input.CourierID
		order.AssignedCourierID = &courierID
		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
