package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/adeyemiloye/chowhub-backend/pkg/db/models"
	"github.com/adeyemiloye/chowhub-backend/pkg/enums"
	pkgerrors "github.com/adeyemiloye/chowhub-backend/pkg/errors"
	"github.com/adeyemiloye/chowhub-backend/pkg/logger"
	"github.com/adeyemiloye/chowhub-backend/pkg/metrics"
	"github.com/adeyemiloye/chowhub-backend/pkg/pagination"
	"github.com/adeyemiloye/chowhub-backend/pkg/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EnqueueInput describes one notification intent raised by a state change.
type EnqueueInput struct {
	OrderID     uuid.UUID
	EventType   enums.NotificationEventType
	Recipient   string
	TemplateKey string
	Variables   types.JSONMap
	Priority    enums.NotificationPriority
}

// FailedPage is one cursor page of terminally failed events.
type FailedPage struct {
	Events     []models.NotificationEvent
	NextCursor string
}

// Service owns the transactional notification queue.
type Service interface {
	WithTx(tx *gorm.DB) Service
	Enqueue(ctx context.Context, input EnqueueInput) (*models.NotificationEvent, error)
	ClaimBatch(ctx context.Context, limit int) ([]models.NotificationEvent, error)
	MarkSent(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) (*models.NotificationEvent, error)
	RequeueStuck(ctx context.Context) (int64, error)
	ListFailed(ctx context.Context, params pagination.Params) (*FailedPage, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.NotificationEvent, error)
}

// ServiceParams configure the notifications service.
type ServiceParams struct {
	Repository        Repository
	Logger            *logger.Logger
	Metrics           *metrics.NotificationQueueMetrics
	MaxAttempts       int
	ProcessingTimeout time.Duration
	ClaimBatchSize    int
	Now               func() time.Time
}

type service struct {
	repo              Repository
	logg              *logger.Logger
	queueMetrics      *metrics.NotificationQueueMetrics
	maxAttempts       int
	processingTimeout time.Duration
	claimBatchSize    int
	now               func() time.Time
}

// NewService wires the notification queue service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.MaxAttempts <= 0 {
		params.MaxAttempts = 3
	}
	if params.ProcessingTimeout <= 0 {
		params.ProcessingTimeout = 10 * time.Minute
	}
	if params.ClaimBatchSize <= 0 {
		params.ClaimBatchSize = 25
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:              params.Repository,
		logg:              params.Logger,
		queueMetrics:      params.Metrics,
		maxAttempts:       params.MaxAttempts,
		processingTimeout: params.ProcessingTimeout,
		claimBatchSize:    params.ClaimBatchSize,
		now:               now,
	}, nil
}

func (s *service) WithTx(tx *gorm.DB) Service {
	if tx == nil {
		return s
	}
	clone := *s
	clone.repo = s.repo.WithTx(tx)
	return &clone
}

// Enqueue inserts one de-duplicated event. Bursts inside the same hour bucket
// collapse onto the existing row; a row already sent stays sent.
func (s *service) Enqueue(ctx context.Context, input EnqueueInput) (*models.NotificationEvent, error) {
	if input.OrderID == uuid.Nil {
		return nil, fmt.Errorf("order id is required")
	}
	if !input.EventType.IsValid() {
		return nil, fmt.Errorf("invalid notification event type %q", input.EventType)
	}
	if input.Recipient == "" {
		return nil, fmt.Errorf("recipient is required")
	}
	if input.TemplateKey == "" {
		return nil, fmt.Errorf("template key is required")
	}
	priority := input.Priority
	if priority == 0 {
		priority = enums.NotificationPriorityNormal
	}

	now := s.now().UTC()
	event := &models.NotificationEvent{
		ID:          uuid.New(),
		OrderID:     input.OrderID,
		EventType:   input.EventType,
		Recipient:   input.Recipient,
		TemplateKey: input.TemplateKey,
		Variables:   input.Variables,
		Status:      enums.NotificationStatusQueued,
		DedupeKey:   DedupeKey(input.EventType, input.Recipient, input.TemplateKey, input.OrderID, now),
		Priority:    priority,
	}

	if err := s.repo.Upsert(ctx, event); err != nil {
		return nil, err
	}

	stored, err := s.repo.GetByDedupeKey(ctx, event.DedupeKey)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return event, nil
	}
	return stored, nil
}

func (s *service) ClaimBatch(ctx context.Context, limit int) ([]models.NotificationEvent, error) {
	if limit <= 0 || limit > s.claimBatchSize {
		limit = s.claimBatchSize
	}
	events, err := s.repo.ClaimBatch(ctx, limit, s.now().UTC())
	if err != nil {
		return nil, err
	}
	s.queueMetrics.AddClaimed(len(events))
	return events, nil
}

func (s *service) MarkSent(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("event id is required")
	}
	marked, err := s.repo.MarkSent(ctx, id, s.now().UTC())
	if err != nil {
		return err
	}
	if !marked {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "event is not in processing state").
			WithDetails(map[string]any{"event_id": id})
	}
	s.queueMetrics.IncSent()
	return nil
}

// MarkFailed records a delivery failure. Below the attempt ceiling the row is
// requeued; at the ceiling it becomes terminally failed and needs manual
// intervention.
func (s *service) MarkFailed(ctx context.Context, id uuid.UUID, reason string) (*models.NotificationEvent, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("event id is required")
	}
	if reason == "" {
		reason = "delivery failed"
	}

	event, err := s.repo.RecordFailure(ctx, id, reason, s.maxAttempts, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "event is not in processing state").
			WithDetails(map[string]any{"event_id": id})
	}

	if event.Status == enums.NotificationStatusFailed {
		s.queueMetrics.IncFailed()
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"event_id":    event.ID,
			"retry_count": event.RetryCount,
		})
		s.logg.Warn(logCtx, "notification moved to terminal failure")
	}
	return event, nil
}

func (s *service) RequeueStuck(ctx context.Context) (int64, error) {
	cutoff := s.now().UTC().Add(-s.processingTimeout)
	requeued, err := s.repo.RequeueStuck(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if requeued > 0 {
		s.queueMetrics.AddRequeued(int(requeued))
		logCtx := s.logg.WithField(ctx, "rows_requeued", requeued)
		s.logg.Info(logCtx, "stuck notifications returned to queue")
	}
	return requeued, nil
}

func (s *service) ListFailed(ctx context.Context, params pagination.Params) (*FailedPage, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	events, err := s.repo.ListFailed(ctx, limit+1, cursor)
	if err != nil {
		return nil, err
	}

	page := &FailedPage{Events: events}
	if len(events) > limit {
		page.Events = events[:limit]
		last := page.Events[limit-1]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}
	return page, nil
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*models.NotificationEvent, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("event id is required")
	}
	event, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "notification event not found")
	}
	return event, nil
}
