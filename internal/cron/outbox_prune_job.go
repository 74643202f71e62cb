package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/flowdesk-backend/pkg/logger"
)

const (
	defaultOutboxRetention = 30 * 24 * time.Hour
	defaultOutboxDeadAfter = 10
)

type outboxPruner interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

// OutboxPruneJobParams configures the outbox prune job. DeadAfter should match
// the publisher's attempt ceiling so parked rows age out with published ones.
type OutboxPruneJobParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Outbox    outboxPruner
	Retention time.Duration
	DeadAfter int
}

func NewOutboxPruneJob(params OutboxPruneJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	job := &outboxPruneJob{
		logg:      params.Logger,
		db:        params.DB,
		outbox:    params.Outbox,
		retention: params.Retention,
		deadAfter: params.DeadAfter,
		now:       time.Now,
	}
	if job.retention <= 0 {
		job.retention = defaultOutboxRetention
	}
	if job.deadAfter <= 0 {
		job.deadAfter = defaultOutboxDeadAfter
	}
	return job, nil
}

type outboxPruneJob struct {
	logg      *logger.Logger
	db        txRunner
	outbox    outboxPruner
	retention time.Duration
	deadAfter int
	now       func() time.Time
}

func (j *outboxPruneJob) Name() string { return "outbox-prune" }

func (j *outboxPruneJob) Run(ctx context.Context) (Report, error) {
	cutoff := j.now().UTC().Add(-j.retention)
	var pruned int64
	if err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := j.outbox.DeletePublishedBefore(ctx, tx, cutoff, j.deadAfter)
		pruned = n
		return err
	}); err != nil {
		return nil, fmt.Errorf("prune outbox: %w", err)
	}
	j.logg.Debug(j.logg.WithFields(ctx, logger.Fields{
		"cutoff":     cutoff,
		"dead_after": j.deadAfter,
	}), "outbox.prune.window")
	return Report{"pruned": int(pruned)}, nil
}
