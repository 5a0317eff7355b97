package notifications

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/adeyemiloye/chowhub-backend/pkg/db/models"
	"github.com/adeyemiloye/chowhub-backend/pkg/enums"
	pkgerrors "github.com/adeyemiloye/chowhub-backend/pkg/errors"
	"github.com/adeyemiloye/chowhub-backend/pkg/logger"
	"github.com/adeyemiloye/chowhub-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type fakeRepository struct {
	upsertFn        func(ctx context.Context, event *models.NotificationEvent) error
	getByDedupeFn   func(ctx context.Context, key string) (*models.NotificationEvent, error)
	claimBatchFn    func(ctx context.Context, limit int, now time.Time) ([]models.NotificationEvent, error)
	markSentFn      func(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	recordFailureFn func(ctx context.Context, id uuid.UUID, errMsg string, maxAttempts int, now time.Time) (*models.NotificationEvent, error)
	requeueStuckFn  func(ctx context.Context, cutoff time.Time) (int64, error)
	listFailedFn    func(ctx context.Context, limit int, cursor *pagination.Cursor) ([]models.NotificationEvent, error)
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepository) Upsert(ctx context.Context, event *models.NotificationEvent) error {
	if f.upsertFn != nil {
		return f.upsertFn(ctx, event)
	}
	return nil
}

func (f *fakeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.NotificationEvent, error) {
	return nil, nil
}

func (f *fakeRepository) GetByDedupeKey(ctx context.Context, key string) (*models.NotificationEvent, error) {
	if f.getByDedupeFn != nil {
		return f.getByDedupeFn(ctx, key)
	}
	return nil, nil
}

func (f *fakeRepository) ClaimBatch(ctx context.Context, limit int, now time.Time) ([]models.NotificationEvent, error) {
	if f.claimBatchFn != nil {
		return f.claimBatchFn(ctx, limit, now)
	}
	return nil, nil
}

func (f *fakeRepository) MarkSent(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	if f.markSentFn != nil {
		return f.markSentFn(ctx, id, now)
	}
	return true, nil
}

func (f *fakeRepository) RecordFailure(ctx context.Context, id uuid.UUID, errMsg string, maxAttempts int, now time.Time) (*models.NotificationEvent, error) {
	if f.recordFailureFn != nil {
		return f.recordFailureFn(ctx, id, errMsg, maxAttempts, now)
	}
	return nil, nil
}

func (f *fakeRepository) RequeueStuck(ctx context.Context, cutoff time.Time) (int64, error) {
	if f.requeueStuckFn != nil {
		return f.requeueStuckFn(ctx, cutoff)
	}
	return 0, nil
}

func (f *fakeRepository) CountByStatus(ctx context.Context, status enums.NotificationStatus) (int64, error) {
	return 0, nil
}

func (f *fakeRepository) CountStaleQueued(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeRepository) ListFailed(ctx context.Context, limit int, cursor *pagination.Cursor) ([]models.NotificationEvent, error) {
	if f.listFailedFn != nil {
		return f.listFailedFn(ctx, limit, cursor)
	}
	return nil, nil
}

func (f *fakeRepository) DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func newServiceWithRepo(t *testing.T, repo Repository) Service {
	t.Helper()

	svc, err := NewService(ServiceParams{
		Repository:        repo,
		Logger:            logger.New(logger.Options{ServiceName: "notifications-test", Output: io.Discard}),
		MaxAttempts:       3,
		ProcessingTimeout: 10 * time.Minute,
		ClaimBatchSize:    25,
	})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	return svc
}

func TestServiceEnqueueDefaultsPriority(t *testing.T) {
	var captured *models.NotificationEvent
	repo := &fakeRepository{
		upsertFn: func(ctx context.Context, event *models.NotificationEvent) error {
			captured = event
			return nil
		},
	}
	svc := newServiceWithRepo(t, repo)

	_, err := svc.Enqueue(context.Background(), EnqueueInput{
		OrderID:     uuid.New(),
		EventType:   enums.NotificationEventOrderConfirmed,
		Recipient:   "a@b.com",
		TemplateKey: "order_confirmed",
	})
	if err != nil {
		t.Fatalf("unexpected enqueue error: %v", err)
	}
	if captured == nil {
		t.Fatal("expected upsert to be called")
	}
	if captured.Priority != enums.NotificationPriorityNormal {
		t.Fatalf("expected default priority %d, got %d", enums.NotificationPriorityNormal, captured.Priority)
	}
	if captured.ID == uuid.Nil {
		t.Fatal("expected a generated event id")
	}
	if captured.DedupeKey == "" {
		t.Fatal("expected a derived dedupe key")
	}
}

func TestServiceEnqueueKeepsLowPriority(t *testing.T) {
	var captured *models.NotificationEvent
	repo := &fakeRepository{
		upsertFn: func(ctx context.Context, event *models.NotificationEvent) error {
			captured = event
			return nil
		},
	}
	svc := newServiceWithRepo(t, repo)

	_, err := svc.Enqueue(context.Background(), EnqueueInput{
		OrderID:     uuid.New(),
		EventType:   enums.NotificationEventOrderConfirmed,
		Recipient:   "a@b.com",
		TemplateKey: "order_confirmed",
		Priority:    enums.NotificationPriorityLow,
	})
	if err != nil {
		t.Fatalf("unexpected enqueue error: %v", err)
	}
	if captured == nil {
		t.Fatal("expected upsert to be called")
	}
	// Low is a real priority, not the unset zero value: it must survive the
	// default substitution.
	if captured.Priority != enums.NotificationPriorityLow {
		t.Fatalf("expected low priority %d, got %d", enums.NotificationPriorityLow, captured.Priority)
	}
}

func TestServiceEnqueueReturnsCollapsedRow(t *testing.T) {
	existing := &models.NotificationEvent{ID: uuid.New(), Status: enums.NotificationStatusQueued}
	repo := &fakeRepository{
		getByDedupeFn: func(ctx context.Context, key string) (*models.NotificationEvent, error) {
			return existing, nil
		},
	}
	svc := newServiceWithRepo(t, repo)

	event, err := svc.Enqueue(context.Background(), EnqueueInput{
		OrderID:     uuid.New(),
		EventType:   enums.NotificationEventOrderConfirmed,
		Recipient:   "a@b.com",
		TemplateKey: "order_confirmed",
	})
	if err != nil {
		t.Fatalf("unexpected enqueue error: %v", err)
	}
	if event.ID != existing.ID {
		t.Fatalf("expected the stored row, got %s", event.ID)
	}
}

func TestServiceEnqueueValidation(t *testing.T) {
	svc := newServiceWithRepo(t, &fakeRepository{})
	ctx := context.Background()

	cases := []EnqueueInput{
		{EventType: enums.NotificationEventOrderConfirmed, Recipient: "a@b.com", TemplateKey: "x"},
		{OrderID: uuid.New(), EventType: "bogus", Recipient: "a@b.com", TemplateKey: "x"},
		{OrderID: uuid.New(), EventType: enums.NotificationEventOrderConfirmed, TemplateKey: "x"},
		{OrderID: uuid.New(), EventType: enums.NotificationEventOrderConfirmed, Recipient: "a@b.com"},
	}
	for i, input := range cases {
		if _, err := svc.Enqueue(ctx, input); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

func TestServiceClaimBatchClampsLimit(t *testing.T) {
	var gotLimit int
	repo := &fakeRepository{
		claimBatchFn: func(ctx context.Context, limit int, now time.Time) ([]models.NotificationEvent, error) {
			gotLimit = limit
			return nil, nil
		},
	}
	svc := newServiceWithRepo(t, repo)
	ctx := context.Background()

	if _, err := svc.ClaimBatch(ctx, 500); err != nil {
		t.Fatalf("unexpected claim error: %v", err)
	}
	if gotLimit != 25 {
		t.Fatalf("expected limit clamped to 25, got %d", gotLimit)
	}

	if _, err := svc.ClaimBatch(ctx, 0); err != nil {
		t.Fatalf("unexpected claim error: %v", err)
	}
	if gotLimit != 25 {
		t.Fatalf("expected default limit 25, got %d", gotLimit)
	}

	if _, err := svc.ClaimBatch(ctx, 5); err != nil {
		t.Fatalf("unexpected claim error: %v", err)
	}
	if gotLimit != 5 {
		t.Fatalf("expected limit 5, got %d", gotLimit)
	}
}

func TestServiceMarkSentStateConflict(t *testing.T) {
	repo := &fakeRepository{
		markSentFn: func(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
			return false, nil
		},
	}
	svc := newServiceWithRepo(t, repo)

	err := svc.MarkSent(context.Background(), uuid.New())
	if err == nil {
		t.Fatal("expected state conflict")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestServiceMarkFailedTerminal(t *testing.T) {
	failed := &models.NotificationEvent{
		ID:         uuid.New(),
		Status:     enums.NotificationStatusFailed,
		RetryCount: 3,
	}
	repo := &fakeRepository{
		recordFailureFn: func(ctx context.Context, id uuid.UUID, errMsg string, maxAttempts int, now time.Time) (*models.NotificationEvent, error) {
			if maxAttempts != 3 {
				t.Fatalf("expected max attempts 3, got %d", maxAttempts)
			}
			return failed, nil
		},
	}
	svc := newServiceWithRepo(t, repo)

	event, err := svc.MarkFailed(context.Background(), failed.ID, "smtp down")
	if err != nil {
		t.Fatalf("unexpected mark failed error: %v", err)
	}
	if event.Status != enums.NotificationStatusFailed {
		t.Fatalf("expected terminal failure, got %s", event.Status)
	}
}

func TestServiceMarkFailedNotProcessing(t *testing.T) {
	svc := newServiceWithRepo(t, &fakeRepository{})

	_, err := svc.MarkFailed(context.Background(), uuid.New(), "boom")
	if err == nil {
		t.Fatal("expected state conflict")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestServiceRequeueStuckUsesTimeout(t *testing.T) {
	now := time.Now().UTC()
	var gotCutoff time.Time
	repo := &fakeRepository{
		requeueStuckFn: func(ctx context.Context, cutoff time.Time) (int64, error) {
			gotCutoff = cutoff
			return 2, nil
		},
	}
	svc, err := NewService(ServiceParams{
		Repository:        repo,
		Logger:            logger.New(logger.Options{ServiceName: "notifications-test", Output: io.Discard}),
		ProcessingTimeout: 10 * time.Minute,
		Now:               func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	requeued, err := svc.RequeueStuck(context.Background())
	if err != nil {
		t.Fatalf("unexpected requeue error: %v", err)
	}
	if requeued != 2 {
		t.Fatalf("expected 2 requeued rows, got %d", requeued)
	}
	if !gotCutoff.Equal(now.Add(-10 * time.Minute)) {
		t.Fatalf("unexpected cutoff %s", gotCutoff)
	}
}

func TestServiceListFailedPagination(t *testing.T) {
	base := time.Now().UTC()
	var rows []models.NotificationEvent
	for i := 0; i < 3; i++ {
		rows = append(rows, models.NotificationEvent{
			ID:        uuid.New(),
			CreatedAt: base.Add(-time.Duration(i) * time.Minute),
		})
	}
	repo := &fakeRepository{
		listFailedFn: func(ctx context.Context, limit int, cursor *pagination.Cursor) ([]models.NotificationEvent, error) {
			if limit != 3 {
				t.Fatalf("expected limit+1 = 3, got %d", limit)
			}
			return rows, nil
		},
	}
	svc := newServiceWithRepo(t, repo)

	page, err := svc.ListFailed(context.Background(), pagination.Params{Limit: 2})
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(page.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(page.Events))
	}
	if page.NextCursor == "" {
		t.Fatal("expected next cursor")
	}
	decoded, err := pagination.ParseCursor(page.NextCursor)
	if err != nil {
		t.Fatalf("invalid cursor: %v", err)
	}
	if decoded.ID != rows[1].ID {
		t.Fatalf("expected cursor id %s, got %s", rows[1].ID, decoded.ID)
	}
}

func TestServiceListFailedInvalidCursor(t *testing.T) {
	svc := newServiceWithRepo(t, &fakeRepository{})

	_, err := svc.ListFailed(context.Background(), pagination.Params{Cursor: "not-base64"})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestServiceGetByIDMissing(t *testing.T) {
	svc := newServiceWithRepo(t, &fakeRepository{})

	_, err := svc.GetByID(context.Background(), uuid.New())
	if err == nil {
		t.Fatal("expected not found error")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestServiceEnqueueRepositoryError(t *testing.T) {
	repo := &fakeRepository{
		upsertFn: func(ctx context.Context, event *models.NotificationEvent) error {
			return errors.New("boom")
		},
	}
	svc := newServiceWithRepo(t, repo)

	if _, err := svc.Enqueue(context.Background(), EnqueueInput{
		OrderID:     uuid.New(),
		EventType:   enums.NotificationEventOrderConfirmed,
		Recipient:   "a@b.com",
		TemplateKey: "order_confirmed",
	}); err == nil {
		t.Fatal("expected repository error to propagate")
	}
}
