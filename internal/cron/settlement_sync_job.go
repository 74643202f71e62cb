package cron

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/flowdesk-backend/internal/reconcile"
	"github.com/angelmondragon/flowdesk-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type settlementRefresher interface {
	RefreshAll(ctx context.Context) (reconcile.BulkResult, error)
}

type SettlementSyncJobParams struct {
	Logger    *logger.Logger
	Refresher settlementRefresher
}

// NewSettlementSyncJob pulls recent balance transactions and marks the
// matching orders as settled.
func NewSettlementSyncJob(params SettlementSyncJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Refresher == nil {
		return nil, fmt.Errorf("refresher required")
	}
	return &settlementSyncJob{logg: params.Logger, refresher: params.Refresher}, nil
}

type settlementSyncJob struct {
	logg      *logger.Logger
	refresher settlementRefresher
}

func (j *settlementSyncJob) Name() string { return "settlement-sync" }

func (j *settlementSyncJob) Run(ctx context.Context) (Report, error) {
	result, err := j.refresher.RefreshAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("settlement sync: %w", err)
	}
	report := Report{
		"transactions": result.Transactions,
		"candidates":   result.Candidates,
		"updated":      result.Updated,
		"skipped":      result.Skipped,
		"failed":       len(multierr.Errors(result.Failures)),
	}
	if result.Failures != nil {
		j.logg.Warn(j.logg.WithField(ctx, "failed", report["failed"]), "settlement.sync.partial")
		return report, fmt.Errorf("settlement sync partial failure: %w", result.Failures)
	}
	return report, nil
}
