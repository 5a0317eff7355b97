package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/adeyemiloye/chowhub-backend/pkg/db/models"
	"github.com/adeyemiloye/chowhub-backend/pkg/enums"
	"github.com/adeyemiloye/chowhub-backend/pkg/pagination"
	"github.com/adeyemiloye/chowhub-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupNotificationsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS notification_events (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  event_type TEXT NOT NULL,
  recipient TEXT NOT NULL,
  template_key TEXT NOT NULL,
  variables TEXT,
  status TEXT NOT NULL DEFAULT 'queued',
  dedupe_key TEXT NOT NULL UNIQUE,
  priority INTEGER NOT NULL DEFAULT 5,
  retry_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT,
  claimed_at DATETIME,
  sent_at DATETIME,
  failed_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(schema).Error)
	require.NoError(t, db.Exec("DELETE FROM notification_events").Error)
	return db
}

func newQueuedEvent(orderID uuid.UUID, priority enums.NotificationPriority, created time.Time) *models.NotificationEvent {
	return &models.NotificationEvent{
		ID:          uuid.New(),
		OrderID:     orderID,
		EventType:   enums.NotificationEventOrderConfirmed,
		Recipient:   "customer@example.com",
		TemplateKey: string(enums.NotificationEventOrderConfirmed),
		Variables:   types.JSONMap{"order_id": orderID.String()},
		Status:      enums.NotificationStatusQueued,
		DedupeKey:   uuid.NewString(),
		Priority:    priority,
		CreatedAt:   created,
	}
}

func TestUpsertCollapsesDuplicates(t *testing.T) {
	db := setupNotificationsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	orderID := uuid.New()
	key := DedupeKey(enums.NotificationEventOrderConfirmed, "a@b.com", "order_confirmed", orderID, time.Now())

	first := newQueuedEvent(orderID, enums.NotificationPriorityNormal, time.Now().UTC())
	first.DedupeKey = key
	first.Variables = types.JSONMap{"attempt": "1"}
	require.NoError(t, repo.Upsert(ctx, first))

	second := newQueuedEvent(orderID, enums.NotificationPriorityNormal, time.Now().UTC())
	second.DedupeKey = key
	second.Variables = types.JSONMap{"attempt": "2"}
	require.NoError(t, repo.Upsert(ctx, second))

	var count int64
	require.NoError(t, db.Model(&models.NotificationEvent{}).
		Where("dedupe_key = ?", key).
		Count(&count).Error)
	assert.EqualValues(t, 1, count)

	stored, err := repo.GetByDedupeKey(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, first.ID, stored.ID)
	assert.Equal(t, "2", stored.Variables["attempt"])
}

func TestUpsertNeverReopensSentRow(t *testing.T) {
	db := setupNotificationsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	orderID := uuid.New()
	sentAt := time.Now().UTC()
	sent := newQueuedEvent(orderID, enums.NotificationPriorityNormal, sentAt)
	sent.Status = enums.NotificationStatusSent
	sent.SentAt = &sentAt
	sent.Variables = types.JSONMap{"attempt": "original"}
	require.NoError(t, db.Create(sent).Error)

	replay := newQueuedEvent(orderID, enums.NotificationPriorityNormal, time.Now().UTC())
	replay.DedupeKey = sent.DedupeKey
	replay.Variables = types.JSONMap{"attempt": "replay"}
	require.NoError(t, repo.Upsert(ctx, replay))

	stored, err := repo.GetByDedupeKey(ctx, sent.DedupeKey)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, enums.NotificationStatusSent, stored.Status)
	assert.Equal(t, "original", stored.Variables["attempt"])
}

func TestClaimBatchOrdersByPriorityThenAge(t *testing.T) {
	db := setupNotificationsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	oldNormal := newQueuedEvent(uuid.New(), enums.NotificationPriorityNormal, base)
	newNormal := newQueuedEvent(uuid.New(), enums.NotificationPriorityNormal, base.Add(10*time.Minute))
	high := newQueuedEvent(uuid.New(), enums.NotificationPriorityHigh, base.Add(20*time.Minute))
	require.NoError(t, db.Create(oldNormal).Error)
	require.NoError(t, db.Create(newNormal).Error)
	require.NoError(t, db.Create(high).Error)

	claimed, err := repo.ClaimBatch(ctx, 2, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, high.ID, claimed[0].ID)
	assert.Equal(t, oldNormal.ID, claimed[1].ID)
	for _, event := range claimed {
		assert.Equal(t, enums.NotificationStatusProcessing, event.Status)
		assert.NotNil(t, event.ClaimedAt)
	}

	// Claimed rows are invisible to the next claimer.
	remaining, err := repo.ClaimBatch(ctx, 10, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, newNormal.ID, remaining[0].ID)
}

func TestClaimBatchEmptyQueue(t *testing.T) {
	db := setupNotificationsTestDB(t)
	repo := NewRepository(db)

	claimed, err := repo.ClaimBatch(context.Background(), 10, time.Now().UTC())
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestMarkSentRequiresProcessing(t *testing.T) {
	db := setupNotificationsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	event := newQueuedEvent(uuid.New(), enums.NotificationPriorityNormal, time.Now().UTC())
	require.NoError(t, db.Create(event).Error)

	// Still queued: the claim step was skipped.
	marked, err := repo.MarkSent(ctx, event.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, marked)

	claimed, err := repo.ClaimBatch(ctx, 1, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	marked, err = repo.MarkSent(ctx, event.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, marked)

	stored, err := repo.GetByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.NotificationStatusSent, stored.Status)
	assert.NotNil(t, stored.SentAt)
}

func TestRecordFailureRequeuesUntilCeiling(t *testing.T) {
	db := setupNotificationsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	event := newQueuedEvent(uuid.New(), enums.NotificationPriorityNormal, now)
	require.NoError(t, db.Create(event).Error)

	const maxAttempts = 3
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		claimed, err := repo.ClaimBatch(ctx, 1, now)
		require.NoError(t, err)
		require.Len(t, claimed, 1)

		updated, err := repo.RecordFailure(ctx, event.ID, "smtp timeout", maxAttempts, now)
		require.NoError(t, err)
		require.NotNil(t, updated)
		assert.Equal(t, attempt, updated.RetryCount)

		if attempt < maxAttempts {
			assert.Equal(t, enums.NotificationStatusQueued, updated.Status)
			assert.Nil(t, updated.ClaimedAt)
		} else {
			assert.Equal(t, enums.NotificationStatusFailed, updated.Status)
			assert.NotNil(t, updated.FailedAt)
		}
		require.NotNil(t, updated.LastError)
		assert.Equal(t, "smtp timeout", *updated.LastError)
	}

	// Terminal rows are no longer claimable.
	claimed, err := repo.ClaimBatch(ctx, 10, now)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestRecordFailureOnNonProcessingRow(t *testing.T) {
	db := setupNotificationsTestDB(t)
	repo := NewRepository(db)

	event := newQueuedEvent(uuid.New(), enums.NotificationPriorityNormal, time.Now().UTC())
	require.NoError(t, db.Create(event).Error)

	updated, err := repo.RecordFailure(context.Background(), event.ID, "boom", 3, time.Now().UTC())
	require.NoError(t, err)
	assert.Nil(t, updated)
}

func TestRequeueStuck(t *testing.T) {
	db := setupNotificationsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	stuckAt := now.Add(-time.Hour)
	stuck := newQueuedEvent(uuid.New(), enums.NotificationPriorityNormal, stuckAt)
	stuck.Status = enums.NotificationStatusProcessing
	stuck.ClaimedAt = &stuckAt
	require.NoError(t, db.Create(stuck).Error)

	recentAt := now.Add(-time.Minute)
	recent := newQueuedEvent(uuid.New(), enums.NotificationPriorityNormal, recentAt)
	recent.Status = enums.NotificationStatusProcessing
	recent.ClaimedAt = &recentAt
	require.NoError(t, db.Create(recent).Error)

	requeued, err := repo.RequeueStuck(ctx, now.Add(-10*time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 1, requeued)

	stored, err := repo.GetByID(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.NotificationStatusQueued, stored.Status)
	assert.Nil(t, stored.ClaimedAt)

	stored, err = repo.GetByID(ctx, recent.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.NotificationStatusProcessing, stored.Status)
}

func TestListFailedPaginates(t *testing.T) {
	db := setupNotificationsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	var created []models.NotificationEvent
	for i := 0; i < 3; i++ {
		failedAt := base.Add(time.Duration(i) * time.Minute)
		event := newQueuedEvent(uuid.New(), enums.NotificationPriorityNormal, failedAt)
		event.Status = enums.NotificationStatusFailed
		event.FailedAt = &failedAt
		require.NoError(t, db.Create(event).Error)
		created = append(created, *event)
	}

	page, err := repo.ListFailed(ctx, 2, nil)
	require.NoError(t, err)
	require.Len(t, page, 2)
	// Newest first.
	assert.Equal(t, created[2].ID, page[0].ID)
	assert.Equal(t, created[1].ID, page[1].ID)

	cursor := &pagination.Cursor{CreatedAt: page[1].CreatedAt, ID: page[1].ID}
	rest, err := repo.ListFailed(ctx, 2, cursor)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, created[0].ID, rest[0].ID)
}

func TestCountStaleQueued(t *testing.T) {
	db := setupNotificationsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	stale := newQueuedEvent(uuid.New(), enums.NotificationPriorityNormal, now.Add(-time.Hour))
	fresh := newQueuedEvent(uuid.New(), enums.NotificationPriorityNormal, now.Add(-time.Minute))
	require.NoError(t, db.Create(stale).Error)
	require.NoError(t, db.Create(fresh).Error)

	count, err := repo.CountStaleQueued(ctx, now.Add(-30*time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestDeleteTerminalOlderThan(t *testing.T) {
	db := setupNotificationsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	oldSentAt := now.Add(-48 * time.Hour)
	oldSent := newQueuedEvent(uuid.New(), enums.NotificationPriorityNormal, oldSentAt)
	oldSent.Status = enums.NotificationStatusSent
	oldSent.SentAt = &oldSentAt
	oldSent.UpdatedAt = oldSentAt
	require.NoError(t, db.Create(oldSent).Error)

	queued := newQueuedEvent(uuid.New(), enums.NotificationPriorityNormal, now.Add(-48*time.Hour))
	queued.UpdatedAt = now.Add(-48 * time.Hour)
	require.NoError(t, db.Create(queued).Error)

	deleted, err := repo.DeleteTerminalOlderThan(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	// Queued rows survive retention regardless of age.
	stored, err := repo.GetByID(ctx, queued.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
}
