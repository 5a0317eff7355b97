package cron

import (
	"context"
	"fmt"

	"github.com/adeyemiloye/chowhub-backend/pkg/logger"
)

type lockSweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// LockSweepJobParams configure the lock sweep job.
type LockSweepJobParams struct {
	Logger *logger.Logger
	Locks  lockSweeper
}

// NewLockSweepJob deletes expired order lock rows so crashed holders do not
// leave litter behind. Acquire can already take over an expired row; the
// sweep just keeps the table small.
func NewLockSweepJob(params LockSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Locks == nil {
		return nil, fmt.Errorf("lock service required")
	}
	return &lockSweepJob{
		logg:  params.Logger,
		locks: params.Locks,
	}, nil
}

type lockSweepJob struct {
	logg  *logger.Logger
	locks lockSweeper
}

func (j *lockSweepJob) Name() string { return "lock-sweep" }

func (j *lockSweepJob) Run(ctx context.Context) error {
	swept, err := j.locks.SweepExpired(ctx)
	if err != nil {
		return fmt.Errorf("sweep expired locks: %w", err)
	}
	logCtx := j.logg.WithField(ctx, "rows_deleted", swept)
	j.logg.Info(logCtx, "lock sweep complete")
	return nil
}
