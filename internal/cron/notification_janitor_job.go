package cron

import (
	"context"
	"fmt"

	"github.com/adeyemiloye/chowhub-backend/pkg/logger"
)

type stuckRequeuer interface {
	RequeueStuck(ctx context.Context) (int64, error)
}

// NotificationJanitorJobParams configure the janitor job.
type NotificationJanitorJobParams struct {
	Logger *logger.Logger
	Queue  stuckRequeuer
}

// NewNotificationJanitorJob returns processing rows abandoned by crashed
// workers back to the queue.
func NewNotificationJanitorJob(params NotificationJanitorJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Queue == nil {
		return nil, fmt.Errorf("notification queue required")
	}
	return &notificationJanitorJob{
		logg:  params.Logger,
		queue: params.Queue,
	}, nil
}

type notificationJanitorJob struct {
	logg  *logger.Logger
	queue stuckRequeuer
}

func (j *notificationJanitorJob) Name() string { return "notification-janitor" }

func (j *notificationJanitorJob) Run(ctx context.Context) error {
	requeued, err := j.queue.RequeueStuck(ctx)
	if err != nil {
		return fmt.Errorf("requeue stuck notifications: %w", err)
	}
	logCtx := j.logg.WithField(ctx, "rows_requeued", requeued)
	j.logg.Info(logCtx, "notification janitor complete")
	return nil
}
