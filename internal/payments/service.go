package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/adeyemiloye/chowhub-backend/internal/audit"
	"github.com/adeyemiloye/chowhub-backend/internal/inventory"
	"github.com/adeyemiloye/chowhub-backend/internal/locks"
	"github.com/adeyemiloye/chowhub-backend/internal/notifications"
	"github.com/adeyemiloye/chowhub-backend/internal/orders"
	"github.com/adeyemiloye/chowhub-backend/pkg/db/models"
	"github.com/adeyemiloye/chowhub-backend/pkg/enums"
	pkgerrors "github.com/adeyemiloye/chowhub-backend/pkg/errors"
	"github.com/adeyemiloye/chowhub-backend/pkg/logger"
	"github.com/adeyemiloye/chowhub-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SystemActorID attributes webhook-driven and reconciliation mutations in the
// audit trail.
var SystemActorID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// VerifyPaymentInput carries one provider callback.
type VerifyPaymentInput struct {
	Provider   enums.PaymentProvider
	Reference  string
	OrderRef   string
	OrderID    uuid.UUID
	Amount     decimal.Decimal
	Currency   string
	Succeeded  bool
	RawPayload types.JSONMap
}

// VerifyResult reports the outcome of a verification attempt.
type VerifyResult struct {
	Order            *models.Order
	Transaction      *models.PaymentTransaction
	AlreadyProcessed bool
}

// Service reconciles provider callbacks against expected amounts and applies
// the paid transition atomically with ledger, inventory, and notifications.
type Service interface {
	VerifyPayment(ctx context.Context, input VerifyPaymentInput) (*VerifyResult, error)
	// ApplySuccessfulPaymentTx applies a successful payment inside a
	// caller-owned transaction for an already-recorded ledger row. The
	// caller must hold the order lock.
	ApplySuccessfulPaymentTx(ctx context.Context, tx *gorm.DB, order *models.Order, txn *models.PaymentTransaction, actorID uuid.UUID) error
}

// ServiceParams configure the payment verification service.
type ServiceParams struct {
	DB              txRunner
	Repository      Repository
	Orders          orders.Repository
	OrderMachine    orders.Service
	Inventory       inventory.Repository
	Locks           locks.Service
	Audit           audit.Service
	Notifications   notifications.Service
	Logger          *logger.Logger
	AmountTolerance decimal.Decimal
	Currency        string
	LockTTL         time.Duration
	Now             func() time.Time
}

type service struct {
	db        txRunner
	repo      Repository
	orderRepo orders.Repository
	machine   orders.Service
	stock     inventory.Repository
	locks     locks.Service
	audit     audit.Service
	queue     notifications.Service
	logg      *logger.Logger
	tolerance decimal.Decimal
	currency  string
	lockTTL   time.Duration
	now       func() time.Time
}

// NewService wires the payment verification service.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.OrderMachine == nil {
		return nil, fmt.Errorf("order state machine required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory repository required")
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
	if params.Currency == "" {
		params.Currency = "NGN"
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		db:        params.DB,
		repo:      params.Repository,
		orderRepo: params.Orders,
		machine:   params.OrderMachine,
		stock:     params.Inventory,
		locks:     params.Locks,
		audit:     params.Audit,
		queue:     params.Notifications,
		logg:      params.Logger,
		tolerance: params.AmountTolerance,
		currency:  params.Currency,
		lockTTL:   params.LockTTL,
		now:       now,
	}, nil
}

func (s *service) VerifyPayment(ctx context.Context, input VerifyPaymentInput) (*VerifyResult, error) {
	if input.Reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider reference is required")
	}
	if !input.Provider.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment provider %q", input.Provider))
	}

	order, err := s.resolveOrder(ctx, input)
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"order_id":           order.ID,
		"provider":           input.Provider,
		"provider_reference": input.Reference,
	})

	holderID := uuid.New()
	if err := s.locks.Acquire(ctx, order.ID, holderID, s.lockTTL); err != nil {
		return nil, err
	}
	defer func() {
		if relErr := s.locks.Release(ctx, order.ID, holderID); relErr != nil {
			s.logg.Error(ctx, "failed to release order lock", relErr)
		}
	}()

	// Replay check: a paid order absorbs every further successful callback
	// without re-mutating, whether the reference is the original one being
	// redelivered or a fresh attempt the provider minted for the same order.
	existing, err := s.repo.GetTransactionByReference(ctx, input.Reference)
	if err != nil {
		return nil, err
	}
	if input.Succeeded && order.PaymentStatus == enums.PaymentStatusPaid {
		s.logg.Info(ctx, "payment callback replay absorbed")
		return &VerifyResult{Order: order, Transaction: existing, AlreadyProcessed: true}, nil
	}

	if !input.Succeeded {
		return s.recordFailedPayment(ctx, order, input)
	}

	if err := s.checkAmount(ctx, order, input); err != nil {
		return nil, err
	}

	var txn *models.PaymentTransaction
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		row := &models.PaymentTransaction{
			ID:                uuid.New(),
			OrderID:           order.ID,
			Provider:          input.Provider,
			ProviderReference: input.Reference,
			Amount:            input.Amount,
			Currency:          s.currencyOrDefault(input.Currency),
			Status:            enums.TransactionStatusSuccess,
			RawPayload:        input.RawPayload,
		}
		if err := repo.InsertTransaction(ctx, row); err != nil {
			return err
		}
		stored, err := repo.GetTransactionByReference(ctx, input.Reference)
		if err != nil {
			return err
		}
		if stored == nil {
			return fmt.Errorf("transaction %s missing after insert", input.Reference)
		}
		txn = stored

		return s.ApplySuccessfulPaymentTx(ctx, tx, order, stored, SystemActorID)
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(ctx, "payment verified and applied")
	return &VerifyResult{Order: order, Transaction: txn}, nil
}

// ApplySuccessfulPaymentTx is the atomic unit shared by webhook verification
// and reconciliation: ledger stamp, intent, payment_status=paid, advance to
// confirmed, guarded inventory decrement, confirmation notification.
func (s *service) ApplySuccessfulPaymentTx(ctx context.Context, tx *gorm.DB, order *models.Order, txn *models.PaymentTransaction, actorID uuid.UUID) error {
	if order == nil {
		return fmt.Errorf("order is required")
	}
	if txn == nil {
		return fmt.Errorf("transaction is required")
	}

	repo := s.repo.WithTx(tx)
	orderRepo := s.orderRepo.WithTx(tx)
	now := s.now().UTC()

	intent, err := repo.GetLatestIntent(ctx, order.ID)
	if err != nil {
		return err
	}
	if intent == nil {
		intent = &models.PaymentIntent{
			ID:                uuid.New(),
			OrderID:           order.ID,
			Amount:            txn.Amount,
			Currency:          txn.Currency,
			ExternalReference: txn.ProviderReference,
			Status:            enums.PaymentStatusPending,
		}
		if err := repo.CreateIntent(ctx, intent); err != nil {
			return err
		}
	}
	if err := repo.SetIntentStatus(ctx, intent.ID, enums.PaymentStatusPaid); err != nil {
		return err
	}

	marked, err := orderRepo.MarkPaid(ctx, order.ID, txn.ProviderReference)
	if err != nil {
		return err
	}
	if !marked && order.PaymentStatus != enums.PaymentStatusPaid {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "payment status cannot advance to paid").
			WithDetails(map[string]any{
				"order_id":       order.ID,
				"payment_status": order.PaymentStatus,
			})
	}

	if marked {
		for _, item := range order.Items {
			ok, err := s.stock.WithTx(tx).DecrementGuarded(ctx, item.InventoryItemID, item.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeInventory, "insufficient inventory for order line item").
					WithDetails(map[string]any{
						"order_id":          order.ID,
						"inventory_item_id": item.InventoryItemID,
						"quantity":          item.Quantity,
					})
			}
		}
	}

	if order.Status == enums.OrderStatusPending {
		if _, err := s.machine.ApplyTransitionTx(ctx, tx, order, enums.OrderStatusConfirmed, actorID); err != nil {
			return err
		}
	}

	if _, err := repo.MarkTransactionProcessed(ctx, txn.ID, enums.TransactionStatusSuccess, now); err != nil {
		return err
	}

	orderID := order.ID
	if _, err := s.audit.WithTx(tx).RecordChange(ctx, audit.RecordChangeInput{
		OrderID: &orderID,
		ActorID: actorID,
		Action:  "payment.verified",
		Metadata: types.JSONMap{
			"provider":           string(txn.Provider),
			"provider_reference": txn.ProviderReference,
			"amount":             txn.Amount.String(),
		},
	}); err != nil {
		return err
	}

	if _, err := s.queue.WithTx(tx).Enqueue(ctx, notifications.EnqueueInput{
		OrderID:     order.ID,
		EventType:   enums.NotificationEventPaymentConfirmed,
		Recipient:   order.CustomerEmail,
		TemplateKey: string(enums.NotificationEventPaymentConfirmed),
		Variables: types.JSONMap{
			"order_id": order.ID.String(),
			"amount":   txn.Amount.String(),
			"currency": txn.Currency,
		},
		Priority: enums.NotificationPriorityHigh,
	}); err != nil {
		return err
	}

	order.PaymentStatus = enums.PaymentStatusPaid
	reference := txn.ProviderReference
	order.PaymentReference = &reference
	return nil
}

// resolveOrder tries each identifier the callback carried in turn: the human
// order_ref first, then the internal order id, then the provider reference as
// a last resort for providers that echo nothing else back.
func (s *service) resolveOrder(ctx context.Context, input VerifyPaymentInput) (*models.Order, error) {
	if input.OrderRef != "" {
		order, err := s.orderRepo.GetByOrderRef(ctx, input.OrderRef)
		if err != nil {
			return nil, err
		}
		if order != nil {
			return order, nil
		}
	}

	if input.OrderID != uuid.Nil {
		order, err := s.orderRepo.GetByID(ctx, input.OrderID)
		if err != nil {
			return nil, err
		}
		if order != nil {
			return order, nil
		}
	}

	order, err := s.orderRepo.GetByPaymentReference(ctx, input.Reference)
	if err != nil {
		return nil, err
	}
	if order != nil {
		return order, nil
	}

	if _, incErr := s.audit.RecordIncident(ctx, audit.RecordIncidentInput{
		Severity:    enums.IncidentSeverityWarning,
		Kind:        "payment.unknown_order",
		Description: "payment callback references an unknown order",
		Details: types.JSONMap{
			"provider":           string(input.Provider),
			"provider_reference": input.Reference,
			"order_ref":          input.OrderRef,
		},
	}); incErr != nil {
		s.logg.Error(ctx, "failed to record incident", incErr)
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found for payment callback")
}

func (s *service) checkAmount(ctx context.Context, order *models.Order, input VerifyPaymentInput) error {
	diff := input.Amount.Sub(order.TotalAmount).Abs()
	if diff.LessThanOrEqual(s.tolerance) {
		return nil
	}

	orderID := order.ID
	if _, err := s.audit.RecordIncident(ctx, audit.RecordIncidentInput{
		Severity:    enums.IncidentSeverityCritical,
		Kind:        "payment.amount_mismatch",
		OrderID:     &orderID,
		Description: "reported payment amount does not match order total",
		Details: types.JSONMap{
			"provider":           string(input.Provider),
			"provider_reference": input.Reference,
			"reported_amount":    input.Amount.String(),
			"expected_amount":    order.TotalAmount.String(),
		},
	}); err != nil {
		return err
	}

	return pkgerrors.New(pkgerrors.CodeAmountMismatch, "reported amount does not match order total").
		WithDetails(map[string]any{
			"order_id":        order.ID,
			"reported_amount": input.Amount.String(),
			"expected_amount": order.TotalAmount.String(),
		})
}

func (s *service) recordFailedPayment(ctx context.Context, order *models.Order, input VerifyPaymentInput) (*VerifyResult, error) {
	var txn *models.PaymentTransaction
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		now := s.now().UTC()

		row := &models.PaymentTransaction{
			ID:                uuid.New(),
			OrderID:           order.ID,
			Provider:          input.Provider,
			ProviderReference: input.Reference,
			Amount:            input.Amount,
			Currency:          s.currencyOrDefault(input.Currency),
			Status:            enums.TransactionStatusFailed,
			RawPayload:        input.RawPayload,
		}
		if err := repo.InsertTransaction(ctx, row); err != nil {
			return err
		}
		stored, err := repo.GetTransactionByReference(ctx, input.Reference)
		if err != nil {
			return err
		}
		if stored == nil {
			return fmt.Errorf("transaction %s missing after insert", input.Reference)
		}
		txn = stored

		if _, err := repo.MarkTransactionProcessed(ctx, stored.ID, enums.TransactionStatusFailed, now); err != nil {
			return err
		}

		// A paid order is never reverted by a late failure callback.
		if order.PaymentStatus == enums.PaymentStatusPending {
			if _, err := s.orderRepo.WithTx(tx).SetPaymentStatus(ctx, order.ID,
				enums.PaymentStatusPending, enums.PaymentStatusFailed); err != nil {
				return err
			}
			order.PaymentStatus = enums.PaymentStatusFailed
		}

		orderID := order.ID
		if _, err := s.audit.WithTx(tx).RecordChange(ctx, audit.RecordChangeInput{
			OrderID: &orderID,
			ActorID: SystemActorID,
			Action:  "payment.failed",
			Metadata: types.JSONMap{
				"provider":           string(input.Provider),
				"provider_reference": input.Reference,
			},
		}); err != nil {
			return err
		}

		_, err = s.queue.WithTx(tx).Enqueue(ctx, notifications.EnqueueInput{
			OrderID:     order.ID,
			EventType:   enums.NotificationEventPaymentFailed,
			Recipient:   order.CustomerEmail,
			TemplateKey: string(enums.NotificationEventPaymentFailed),
			Variables: types.JSONMap{
				"order_id": order.ID.String(),
			},
			Priority: enums.NotificationPriorityHigh,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(ctx, "failed payment callback recorded")
	return &VerifyResult{Order: order, Transaction: txn}, nil
}

func (s *service) currencyOrDefault(currency string) string {
	if currency == "" {
		return s.currency
	}
	return currency
}
