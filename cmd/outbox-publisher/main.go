package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/flowdesk-backend/internal/platform"
	"github.com/angelmondragon/flowdesk-backend/pkg/logger"
	"github.com/angelmondragon/flowdesk-backend/pkg/metrics"
	"github.com/angelmondragon/flowdesk-backend/pkg/outbox"
	"github.com/angelmondragon/flowdesk-backend/pkg/outbox/registry"
	"github.com/angelmondragon/flowdesk-backend/pkg/pubsub"
)

const serviceKind = "outbox-publisher"

func main() {
	rt, err := platform.Boot(context.Background(), platform.Options{
		Kind:        serviceKind,
		AutoMigrate: true,
	})
	if err != nil {
		platform.Fatal(serviceKind, "boot.failed", err)
	}
	defer rt.Close(context.Background())
	ctx := rt.Context(context.Background())
	cfg := rt.Config

	topics, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, rt.Logger)
	if err != nil {
		rt.Exit(ctx, "boot.pubsub_failed", err)
	}
	defer func() {
		if err := topics.Close(); err != nil {
			rt.Logger.Error(ctx, "shutdown.pubsub_close_failed", err)
		}
	}()

	events, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		rt.Exit(ctx, "boot.registry_failed", err)
	}
	service, err := NewService(ServiceParams{
		Config:     cfg,
		Logger:     rt.Logger,
		DB:         rt.DB,
		PubSub:     topics,
		Repository: outbox.NewRepository(rt.DB.DB()),
		Registry:   events,
		Metrics:    metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		rt.Exit(ctx, "boot.publisher_failed", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = rt.Logger.WithFields(ctx, logger.Fields{"topic": cfg.PubSub.PaymentsTopic})

	rt.Logger.Info(ctx, "outbox.publisher.started")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		stop()
		rt.Exit(ctx, "outbox.publisher.failed", err)
	}
	rt.Logger.Info(ctx, "outbox.publisher.stopped")
}
