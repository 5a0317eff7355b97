package locks

import (
	"context"
	"fmt"
	"time"

	"github.com/adeyemiloye/chowhub-backend/pkg/db"
	"github.com/adeyemiloye/chowhub-backend/pkg/db/models"
	pkgerrors "github.com/adeyemiloye/chowhub-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const lockKeyPrefix = "order:"

// LockKey builds the canonical advisory lock key for an order.
func LockKey(orderID uuid.UUID) string {
	return lockKeyPrefix + orderID.String()
}

// Info describes the current holder of an order lock.
type Info struct {
	LockKey    string
	HolderID   uuid.UUID
	AcquiredAt time.Time
	ExpiresAt  time.Time
	Expired    bool
}

// Service is the advisory lock manager. Acquire is non-blocking: callers get
// an immediate LockConflict when another holder has a live lease.
type Service interface {
	WithTx(tx *gorm.DB) Service
	Acquire(ctx context.Context, orderID, holderID uuid.UUID, ttl time.Duration) error
	Release(ctx context.Context, orderID, holderID uuid.UUID) error
	LockInfo(ctx context.Context, orderID uuid.UUID) (*Info, error)
	SweepExpired(ctx context.Context) (int64, error)
}

// ServiceParams configure the lock service.
type ServiceParams struct {
	Repository Repository
	DefaultTTL time.Duration
	MaxTTL     time.Duration
	Now        func() time.Time
}

type service struct {
	repo       Repository
	defaultTTL time.Duration
	maxTTL     time.Duration
	now        func() time.Time
}

// NewService wires the lock manager.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("lock repository required")
	}
	if params.DefaultTTL <= 0 {
		params.DefaultTTL = 30 * time.Second
	}
	if params.MaxTTL <= 0 {
		params.MaxTTL = 5 * time.Minute
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:       params.Repository,
		defaultTTL: params.DefaultTTL,
		maxTTL:     params.MaxTTL,
		now:        now,
	}, nil
}

func (s *service) WithTx(tx *gorm.DB) Service {
	if tx == nil {
		return s
	}
	return &service{
		repo:       s.repo.WithTx(tx),
		defaultTTL: s.defaultTTL,
		maxTTL:     s.maxTTL,
		now:        s.now,
	}
}

func (s *service) Acquire(ctx context.Context, orderID, holderID uuid.UUID, ttl time.Duration) error {
	if orderID == uuid.Nil {
		return fmt.Errorf("order id is required")
	}
	if holderID == uuid.Nil {
		return fmt.Errorf("holder id is required")
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	if ttl > s.maxTTL {
		ttl = s.maxTTL
	}

	now := s.now().UTC()
	key := LockKey(orderID)
	lock := &models.OrderLock{
		LockKey:    key,
		HolderID:   holderID,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}

	err := s.repo.Insert(ctx, lock)
	if err == nil {
		return nil
	}
	if !db.IsUniqueViolation(err, "") {
		return err
	}

	// Row exists. Same holder extends the lease; an expired lease may be
	// taken over; otherwise fail fast.
	extended, extErr := s.repo.ExtendOwned(ctx, key, holderID, now.Add(ttl))
	if extErr != nil {
		return extErr
	}
	if extended {
		return nil
	}

	taken, takeErr := s.repo.TakeOverExpired(ctx, key, holderID, now, now.Add(ttl))
	if takeErr != nil {
		return takeErr
	}
	if taken {
		return nil
	}

	return pkgerrors.New(pkgerrors.CodeLockConflict, "order lock held by another holder").
		WithDetails(map[string]any{"order_id": orderID, "lock_key": key})
}

func (s *service) Release(ctx context.Context, orderID, holderID uuid.UUID) error {
	if orderID == uuid.Nil {
		return fmt.Errorf("order id is required")
	}
	if holderID == uuid.Nil {
		return fmt.Errorf("holder id is required")
	}
	// Releasing a lock you no longer own is a no-op: the lease may have
	// expired and been taken over while the holder was still working.
	_, err := s.repo.DeleteOwned(ctx, LockKey(orderID), holderID)
	return err
}

func (s *service) LockInfo(ctx context.Context, orderID uuid.UUID) (*Info, error) {
	if orderID == uuid.Nil {
		return nil, fmt.Errorf("order id is required")
	}
	lock, err := s.repo.Get(ctx, LockKey(orderID))
	if err != nil {
		return nil, err
	}
	if lock == nil {
		return nil, nil
	}
	return &Info{
		LockKey:    lock.LockKey,
		HolderID:   lock.HolderID,
		AcquiredAt: lock.AcquiredAt,
		ExpiresAt:  lock.ExpiresAt,
		Expired:    !lock.ExpiresAt.After(s.now().UTC()),
	}, nil
}

func (s *service) SweepExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, s.now().UTC())
}
