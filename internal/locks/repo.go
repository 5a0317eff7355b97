package locks

import (
	"context"
	"time"

	"github.com/adeyemiloye/chowhub-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository manages persistence for order lock rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, lock *models.OrderLock) error
	TakeOverExpired(ctx context.Context, lockKey string, holderID uuid.UUID, now, expiresAt time.Time) (bool, error)
	ExtendOwned(ctx context.Context, lockKey string, holderID uuid.UUID, expiresAt time.Time) (bool, error)
	Get(ctx context.Context, lockKey string) (*models.OrderLock, error)
	DeleteOwned(ctx context.Context, lockKey string, holderID uuid.UUID) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a lock repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Insert(ctx context.Context, lock *models.OrderLock) error {
	return r.db.WithContext(ctx).Create(lock).Error
}

// TakeOverExpired claims a lock row whose lease has lapsed. The conditional
// update keeps the claim race-free: only one contender sees RowsAffected == 1.
func (r *repository) TakeOverExpired(ctx context.Context, lockKey string, holderID uuid.UUID, now, expiresAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.OrderLock{}).
		Where("lock_key = ? AND expires_at <= ?", lockKey, now).
		Updates(map[string]any{
			"holder_id":   holderID,
			"acquired_at": now,
			"expires_at":  expiresAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ExtendOwned(ctx context.Context, lockKey string, holderID uuid.UUID, expiresAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.OrderLock{}).
		Where("lock_key = ? AND holder_id = ?", lockKey, holderID).
		Update("expires_at", expiresAt)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) Get(ctx context.Context, lockKey string) (*models.OrderLock, error) {
	var lock models.OrderLock
	err := r.db.WithContext(ctx).
		Where("lock_key = ?", lockKey).
		First(&lock).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &lock, nil
}

func (r *repository) DeleteOwned(ctx context.Context, lockKey string, holderID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("lock_key = ? AND holder_id = ?", lockKey, holderID).
		Delete(&models.OrderLock{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&models.OrderLock{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
