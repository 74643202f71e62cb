package cron

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/flowdesk-backend/pkg/logger"
	"github.com/angelmondragon/flowdesk-backend/pkg/metrics"
)

const defaultTick = time.Minute

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Locker   Locker
	Metrics  *metrics.CronJobMetrics
	// Tick is how often due jobs are checked; each job keeps its own cadence.
	Tick time.Duration
}

// Service wakes on every tick and runs the jobs whose cadence has elapsed,
// each under its own lease.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	locker   Locker
	metrics  *metrics.CronJobMetrics
	tick     time.Duration
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Locker == nil {
		return nil, errors.New("locker required")
	}
	if params.Registry == nil {
		return nil, errors.New("registry required")
	}
	tick := params.Tick
	if tick <= 0 {
		tick = defaultTick
	}
	return &Service{
		logg:     params.Logger,
		registry: params.Registry,
		locker:   params.Locker,
		metrics:  params.Metrics,
		tick:     tick,
		now:      time.Now,
	}, nil
}

// Run checks for due jobs immediately and then on every tick until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	s.logg.Info(s.logg.WithFields(ctx, logger.Fields{
		"jobs":    s.registry.Names(),
		"tick_ms": s.tick.Milliseconds(),
	}), "cron.started")

	s.runDue(ctx)
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runDue(ctx)
		}
	}
}

// runDue runs every due job; one job failing does not stop the others.
func (s *Service) runDue(ctx context.Context) {
	for _, job := range s.registry.Due(s.now()) {
		if ctx.Err() != nil {
			return
		}
		s.runJob(ctx, job)
	}
}

func (s *Service) runJob(ctx context.Context, job Job) {
	name := job.Name()
	jobCtx := s.logg.WithField(ctx, "job", name)

	lease, ok, err := s.locker.Acquire(jobCtx, name)
	if err != nil {
		s.logg.Error(jobCtx, "cron.job.lease_failed", err)
		s.metrics.ObserveRun(name, err, 0, s.now())
		return
	}
	if !ok {
		s.logg.Info(jobCtx, "cron.job.skipped")
		s.metrics.Skipped(name)
		// another worker has it; this tick counts as its run
		s.registry.MarkRun(name, s.now())
		return
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(jobCtx)); err != nil {
			s.logg.Error(jobCtx, "cron.job.release_failed", err)
		}
	}()

	started := s.now()
	report, err := job.Run(jobCtx)
	finished := s.now()
	took := finished.Sub(started)
	s.registry.MarkRun(name, started)
	s.metrics.ObserveRun(name, err, took, finished)
	s.metrics.AddItems(name, report)

	fields := logger.Fields{"took_ms": took.Milliseconds()}
	for kind, n := range report {
		fields[kind] = n
	}
	jobCtx = s.logg.WithFields(jobCtx, fields)
	if err != nil {
		s.logg.Error(jobCtx, "cron.job.failed", err)
		return
	}
	s.logg.Info(jobCtx, "cron.job.completed")
}
