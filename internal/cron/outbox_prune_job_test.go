package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/flowdesk-backend/pkg/logger"
)

type fakeOutboxPruner struct {
	cutoff    time.Time
	deadAfter int
	calls     int
	err       error
}

func (f *fakeOutboxPruner) DeletePublishedBefore(_ context.Context, _ *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error) {
	f.calls++
	f.cutoff = cutoff
	f.deadAfter = minAttemptCount
	return 3, f.err
}

type passthroughTx struct{}

func (passthroughTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func TestOutboxPruneJobUsesRetentionWindow(t *testing.T) {
	pruner := &fakeOutboxPruner{}
	job, err := NewOutboxPruneJob(OutboxPruneJobParams{
		Logger:    logger.New(logger.Options{ServiceName: "test"}),
		DB:        passthroughTx{},
		Outbox:    pruner,
		Retention: 7 * 24 * time.Hour,
		DeadAfter: 4,
	})
	require.NoError(t, err)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	job.(*outboxPruneJob).now = func() time.Time { return now }

	report, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{"pruned": 3}, report)
	assert.Equal(t, 1, pruner.calls)
	assert.Equal(t, now.Add(-7*24*time.Hour), pruner.cutoff)
	assert.Equal(t, 4, pruner.deadAfter)
}

func TestOutboxPruneJobDefaultsAndErrors(t *testing.T) {
	pruner := &fakeOutboxPruner{err: errors.New("db down")}
	job, err := NewOutboxPruneJob(OutboxPruneJobParams{
		Logger: logger.New(logger.Options{ServiceName: "test"}),
		DB:     passthroughTx{},
		Outbox: pruner,
	})
	require.NoError(t, err)
	assert.Equal(t, defaultOutboxRetention, job.(*outboxPruneJob).retention)
	assert.Equal(t, defaultOutboxDeadAfter, job.(*outboxPruneJob).deadAfter)
	_, err = job.Run(context.Background())
	assert.Error(t, err)
}
