package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/flowdesk-backend/internal/cron"
	"github.com/angelmondragon/flowdesk-backend/internal/platform"
	"github.com/angelmondragon/flowdesk-backend/pkg/metrics"
)

const serviceKind = "cron-worker"

func main() {
	rt, err := platform.Boot(context.Background(), platform.Options{
		Kind:        serviceKind,
		Redis:       true,
		AutoMigrate: true,
	})
	if err != nil {
		platform.Fatal(serviceKind, "boot.failed", err)
	}
	defer rt.Close(context.Background())
	ctx := rt.Context(context.Background())

	payments, err := platform.NewPayments(ctx, rt, prometheus.DefaultRegisterer)
	if err != nil {
		rt.Exit(ctx, "boot.payments_failed", err)
	}
	registry, err := schedule(rt, payments)
	if err != nil {
		rt.Exit(ctx, "boot.schedule_failed", err)
	}
	locker, err := cron.NewRedisLocker(rt.Redis, leaseScope(rt.Config.App.Env), rt.Config.Reconcile.CronInterval)
	if err != nil {
		rt.Exit(ctx, "boot.locker_failed", err)
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   rt.Logger,
		Registry: registry,
		Locker:   locker,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Tick:     rt.Config.Reconcile.CronTick,
	})
	if err != nil {
		rt.Exit(ctx, "boot.cron_failed", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	stopMetrics := serveMetrics(ctx, rt, ":"+rt.Config.App.Port)
	defer stopMetrics()

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		stop()
		rt.Exit(ctx, "cron.stopped_unexpectedly", err)
	}
	rt.Logger.Info(ctx, "cron.stopped")
}

// schedule registers the settlement sync at the reconcile cadence and the
// outbox prune at its own, slower one.
func schedule(rt *platform.Runtime, payments *platform.Payments) (*cron.Registry, error) {
	settlement, err := cron.NewSettlementSyncJob(cron.SettlementSyncJobParams{
		Logger:    rt.Logger,
		Refresher: payments.Refresher,
	})
	if err != nil {
		return nil, err
	}
	prune, err := cron.NewOutboxPruneJob(cron.OutboxPruneJobParams{
		Logger:    rt.Logger,
		DB:        rt.DB,
		Outbox:    payments.Outbox,
		Retention: rt.Config.Outbox.Retention,
		DeadAfter: rt.Config.Outbox.MaxAttempts,
	})
	if err != nil {
		return nil, err
	}

	registry := cron.NewRegistry()
	if err := registry.Register(settlement, rt.Config.Reconcile.CronInterval); err != nil {
		return nil, err
	}
	if err := registry.Register(prune, rt.Config.Outbox.PruneInterval); err != nil {
		return nil, err
	}
	return registry, nil
}

// serveMetrics exposes the cron counters on the worker's port and returns a
// func that shuts the listener down.
func serveMetrics(ctx context.Context, rt *platform.Runtime, addr string) func() {
	srv := &http.Server{
		Addr:              addr,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.Logger.Error(ctx, "cron.metrics_server_failed", err)
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}

// leaseScope keeps environments sharing one Redis from blocking each other.
func leaseScope(env string) string {
	if env == "" {
		return "local"
	}
	return env
}
