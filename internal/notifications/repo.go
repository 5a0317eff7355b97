package notifications

import (
	"context"
	"time"

	"github.com/adeyemiloye/chowhub-backend/pkg/db/models"
	"github.com/adeyemiloye/chowhub-backend/pkg/enums"
	"github.com/adeyemiloye/chowhub-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository manages persistence for notification events.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Upsert(ctx context.Context, event *models.NotificationEvent) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.NotificationEvent, error)
	GetByDedupeKey(ctx context.Context, key string) (*models.NotificationEvent, error)
	ClaimBatch(ctx context.Context, limit int, now time.Time) ([]models.NotificationEvent, error)
	MarkSent(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	RecordFailure(ctx context.Context, id uuid.UUID, errMsg string, maxAttempts int, now time.Time) (*models.NotificationEvent, error)
	RequeueStuck(ctx context.Context, cutoff time.Time) (int64, error)
	CountByStatus(ctx context.Context, status enums.NotificationStatus) (int64, error)
	CountStaleQueued(ctx context.Context, cutoff time.Time) (int64, error)
	ListFailed(ctx context.Context, limit int, cursor *pagination.Cursor) ([]models.NotificationEvent, error)
	DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a notifications repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Upsert inserts the event or, when the dedupe key already exists, refreshes
// the variables and timestamp on the existing row. Rows already sent are left
// untouched so a delivered message is never reopened.
func (r *repository) Upsert(ctx context.Context, event *models.NotificationEvent) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "dedupe_key"}},
			DoUpdates: clause.Assignments(map[string]any{
				"variables":  event.Variables,
				"updated_at": time.Now().UTC(),
			}),
			Where: clause.Where{
				Exprs: []clause.Expression{
					clause.Neq{
						Column: clause.Column{Table: "notification_events", Name: "status"},
						Value:  string(enums.NotificationStatusSent),
					},
				},
			},
		}).
		Create(event).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.NotificationEvent, error) {
	var event models.NotificationEvent
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&event).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

func (r *repository) GetByDedupeKey(ctx context.Context, key string) (*models.NotificationEvent, error) {
	var event models.NotificationEvent
	err := r.db.WithContext(ctx).
		Where("dedupe_key = ?", key).
		First(&event).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

// ClaimBatch hands queued rows to exactly one caller. On Postgres the select
// runs FOR UPDATE SKIP LOCKED so concurrent workers pass over rows another
// transaction is already examining instead of blocking on them.
func (r *repository) ClaimBatch(ctx context.Context, limit int, now time.Time) ([]models.NotificationEvent, error) {
	if limit <= 0 {
		return nil, nil
	}

	var claimed []models.NotificationEvent
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.
			Where("status = ?", enums.NotificationStatusQueued).
			Order("priority DESC").
			Order("created_at ASC").
			Limit(limit)
		if tx.Dialector.Name() == "postgres" {
			query = query.Clauses(clause.Locking{
				Strength: "UPDATE",
				Options:  "SKIP LOCKED",
			})
		}

		var events []models.NotificationEvent
		if err := query.Find(&events).Error; err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}

		ids := make([]uuid.UUID, len(events))
		for i, event := range events {
			ids[i] = event.ID
		}

		res := tx.Model(&models.NotificationEvent{}).
			Where("id IN ? AND status = ?", ids, enums.NotificationStatusQueued).
			Updates(map[string]any{
				"status":     enums.NotificationStatusProcessing,
				"claimed_at": now,
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}

		for i := range events {
			events[i].Status = enums.NotificationStatusProcessing
			claimedAt := now
			events[i].ClaimedAt = &claimedAt
		}
		claimed = events
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *repository) MarkSent(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.NotificationEvent{}).
		Where("id = ? AND status = ?", id, enums.NotificationStatusProcessing).
		Updates(map[string]any{
			"status":     enums.NotificationStatusSent,
			"sent_at":    now,
			"updated_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// RecordFailure increments the retry counter and either requeues the row or,
// once the ceiling is reached, parks it in terminal failure.
func (r *repository) RecordFailure(ctx context.Context, id uuid.UUID, errMsg string, maxAttempts int, now time.Time) (*models.NotificationEvent, error) {
	var updated *models.NotificationEvent
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var event models.NotificationEvent
		if err := tx.Where("id = ? AND status = ?", id, enums.NotificationStatusProcessing).
			First(&event).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil
			}
			return err
		}

		event.RetryCount++
		event.LastError = &errMsg
		if event.RetryCount >= maxAttempts {
			event.Status = enums.NotificationStatusFailed
			failedAt := now
			event.FailedAt = &failedAt
		} else {
			event.Status = enums.NotificationStatusQueued
			event.ClaimedAt = nil
		}
		event.UpdatedAt = now

		if err := tx.Model(&models.NotificationEvent{}).
			Where("id = ?", event.ID).
			Updates(map[string]any{
				"status":      event.Status,
				"retry_count": event.RetryCount,
				"last_error":  errMsg,
				"claimed_at":  event.ClaimedAt,
				"failed_at":   event.FailedAt,
				"updated_at":  now,
			}).Error; err != nil {
			return err
		}
		updated = &event
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RequeueStuck returns processing rows older than the cutoff to the queue so
// crashed workers cannot wedge deliveries indefinitely.
func (r *repository) RequeueStuck(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.NotificationEvent{}).
		Where("status = ? AND claimed_at < ?", enums.NotificationStatusProcessing, cutoff).
		Updates(map[string]any{
			"status":     enums.NotificationStatusQueued,
			"claimed_at": nil,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repository) CountByStatus(ctx context.Context, status enums.NotificationStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.NotificationEvent{}).
		Where("status = ?", status).
		Count(&count).Error
	return count, err
}

func (r *repository) CountStaleQueued(ctx context.Context, cutoff time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.NotificationEvent{}).
		Where("status = ? AND created_at < ?", enums.NotificationStatusQueued, cutoff).
		Count(&count).Error
	return count, err
}

func (r *repository) ListFailed(ctx context.Context, limit int, cursor *pagination.Cursor) ([]models.NotificationEvent, error) {
	query := r.db.WithContext(ctx).
		Where("status = ?", enums.NotificationStatusFailed).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit)
	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var events []models.NotificationEvent
	if err := query.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repository) DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", []enums.NotificationStatus{
			enums.NotificationStatusSent,
			enums.NotificationStatusFailed,
		}, cutoff).
		Delete(&models.NotificationEvent{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
