package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/adeyemiloye/chowhub-backend/pkg/config"
	"github.com/adeyemiloye/chowhub-backend/pkg/db/models"
	"github.com/adeyemiloye/chowhub-backend/pkg/logger"
)

const (
	defaultDispatchInterval = 5 * time.Second
	defaultPublishTimeout   = 15 * time.Second
	maxBackoff              = 2 * time.Minute
	jitterWindow            = 250 * time.Millisecond
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

type queueService interface {
	ClaimBatch(ctx context.Context, limit int) ([]models.NotificationEvent, error)
	MarkSent(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) (*models.NotificationEvent, error)
}

type pubSubClient interface {
	Ping(context.Context) error
	NotificationPublisher() *gcppubsub.Publisher
}

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type publisherFactory func() publisher

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	Queue            queueService
	PubSub           pubSubClient
	PublisherFactory publisherFactory
}

// Service drains the notification queue: claim a batch, publish each event
// to the dispatch topic, then settle the row as sent or failed. Delivery to
// the end recipient happens downstream of the topic.
type Service struct {
	cfg              *config.Config
	logg             *logger.Logger
	queue            queueService
	pubsub           pubSubClient
	publisherFactory publisherFactory
	batchSize        int
	pollInterval     time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Queue == nil {
		return nil, errors.New("notification queue is required")
	}
	if params.PubSub == nil {
		return nil, errors.New("pubsub client is required")
	}

	factory := params.PublisherFactory
	if factory == nil {
		factory = func() publisher {
			pub := params.PubSub.NotificationPublisher()
			if pub == nil {
				return nil
			}
			return newGCPPublisher(pub)
		}
	}

	batch := params.Config.Notifications.ClaimBatchSize
	if batch <= 0 {
		batch = 25
	}
	interval := params.Config.Notifications.DispatchInterval
	if interval <= 0 {
		interval = defaultDispatchInterval
	}

	return &Service{
		cfg:              params.Config,
		logg:             params.Logger,
		queue:            params.Queue,
		pubsub:           params.PubSub,
		publisherFactory: factory,
		batchSize:        batch,
		pollInterval:     interval,
	}, nil
}

func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.pubsub.Ping(ctx); err != nil {
		return fmt.Errorf("pubsub ping failed: %w", err)
	}

	interval := s.pollInterval
	backoff := interval

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "notification dispatcher context canceled")
			return ctx.Err()
		default:
		}

		processed, err := s.dispatchBatch(ctx)
		if err != nil {
			s.logg.Error(ctx, "notification dispatch batch error", err)
			backoff = nextBackoff(backoff, interval, maxBackoff)
			if err := s.sleep(ctx, withJitter(backoff)); err != nil {
				return err
			}
			continue
		}

		backoff = interval

		if processed {
			continue
		}

		if err := s.sleep(ctx, withJitter(interval)); err != nil {
			return err
		}
	}
}

func (s *Service) dispatchBatch(ctx context.Context) (bool, error) {
	events, err := s.queue.ClaimBatch(ctx, s.batchSize)
	if err != nil {
		return false, fmt.Errorf("claim batch: %w", err)
	}
	if len(events) == 0 {
		return false, nil
	}

	for i := range events {
		event := &events[i]
		fields := s.eventFields(event)

		if err := s.publishEvent(ctx, event); err != nil {
			ctxWithFields := s.logg.WithFields(ctx, fields)
			ctxWithFields = s.logg.WithField(ctxWithFields, "error", err.Error())
			s.logg.Warn(ctxWithFields, "notification publish failed")

			if _, markErr := s.queue.MarkFailed(ctx, event.ID, err.Error()); markErr != nil {
				return false, fmt.Errorf("mark failed %s: %w", event.ID, markErr)
			}
			continue
		}

		if markErr := s.queue.MarkSent(ctx, event.ID); markErr != nil {
			return false, fmt.Errorf("mark sent %s: %w", event.ID, markErr)
		}
		s.logg.Info(s.logg.WithFields(ctx, fields), "notification dispatched")
	}
	return true, nil
}

func (s *Service) publishEvent(ctx context.Context, event *models.NotificationEvent) error {
	pub := s.publisherFactory()
	if pub == nil {
		return errors.New("notification publisher not configured")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.ID, err)
	}

	msg := &gcppubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"event_id":   event.ID.String(),
			"event_type": string(event.EventType),
			"order_id":   event.OrderID.String(),
			"priority":   strconv.Itoa(int(event.Priority)),
			"created_at": event.CreatedAt.Format(time.RFC3339Nano),
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, msg)
	if result == nil {
		return errors.New("publisher returned nil result")
	}
	if _, err := result.Get(publishCtx); err != nil {
		return err
	}
	return nil
}

func (s *Service) eventFields(event *models.NotificationEvent) map[string]any {
	fields := map[string]any{
		"notification_id": event.ID.String(),
		"event_type":      event.EventType,
		"order_id":        event.OrderID.String(),
		"priority":        int(event.Priority),
		"retry_count":     event.RetryCount,
		"batch_size":      s.batchSize,
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

func (s *Service) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	jitter := time.Duration(jitterSource.Int63n(int64(jitterWindow)))
	return d + jitter
}

func newGCPPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	return &gcpPublisher{Publisher: p}
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return p.Publisher.Publish(ctx, msg)
}
