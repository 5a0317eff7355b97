package payments

import (
	"context"
	"time"

	"github.com/adeyemiloye/chowhub-backend/pkg/db/models"
	"github.com/adeyemiloye/chowhub-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository manages persistence for payment intents and the transaction ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateIntent(ctx context.Context, intent *models.PaymentIntent) error
	GetLatestIntent(ctx context.Context, orderID uuid.UUID) (*models.PaymentIntent, error)
	SetIntentStatus(ctx context.Context, id uuid.UUID, status enums.PaymentStatus) error
	// InsertTransaction appends to the ledger. Replays on the same provider
	// reference are absorbed by the unique constraint, not duplicated.
	InsertTransaction(ctx context.Context, txn *models.PaymentTransaction) error
	GetTransactionByReference(ctx context.Context, reference string) (*models.PaymentTransaction, error)
	MarkTransactionProcessed(ctx context.Context, id uuid.UUID, status enums.TransactionStatus, now time.Time) (bool, error)
	ListUnprocessedSuccessful(ctx context.Context, limit int) ([]models.PaymentTransaction, error)
	CountUnprocessedSuccessful(ctx context.Context) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payments repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateIntent(ctx context.Context, intent *models.PaymentIntent) error {
	return r.db.WithContext(ctx).Create(intent).Error
}

func (r *repository) GetLatestIntent(ctx context.Context, orderID uuid.UUID) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		First(&intent).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &intent, nil
}

func (r *repository) SetIntentStatus(ctx context.Context, id uuid.UUID, status enums.PaymentStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentIntent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     status,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *repository) InsertTransaction(ctx context.Context, txn *models.PaymentTransaction) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider_reference"}},
			DoNothing: true,
		}).
		Create(txn).Error
}

func (r *repository) GetTransactionByReference(ctx context.Context, reference string) (*models.PaymentTransaction, error) {
	var txn models.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("provider_reference = ?", reference).
		First(&txn).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

// MarkTransactionProcessed stamps the processing timestamp exactly once.
func (r *repository) MarkTransactionProcessed(ctx context.Context, id uuid.UUID, status enums.TransactionStatus, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PaymentTransaction{}).
		Where("id = ? AND processed_at IS NULL", id).
		Updates(map[string]any{
			"status":       status,
			"processed_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListUnprocessedSuccessful(ctx context.Context, limit int) ([]models.PaymentTransaction, error) {
	var txns []models.PaymentTransaction
	query := r.db.WithContext(ctx).
		Where("status = ? AND processed_at IS NULL", enums.TransactionStatusSuccess).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *repository) CountUnprocessedSuccessful(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.PaymentTransaction{}).
		Where("status = ? AND processed_at IS NULL", enums.TransactionStatusSuccess).
		Count(&count).Error
	return count, err
}
