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

	webhookcontrollers "github.com/angelmondragon/flowdesk-backend/api/controllers/webhooks"
	"github.com/angelmondragon/flowdesk-backend/api/routes"
	"github.com/angelmondragon/flowdesk-backend/internal/checkout"
	"github.com/angelmondragon/flowdesk-backend/internal/orders"
	"github.com/angelmondragon/flowdesk-backend/internal/platform"
	stripewebhook "github.com/angelmondragon/flowdesk-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/flowdesk-backend/pkg/logger"
)

const (
	serviceKind     = "api"
	shutdownTimeout = 15 * time.Second
	guardScope      = "stripe-webhook"
)

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
	cfg, logg := rt.Config, rt.Logger

	payments, err := platform.NewPayments(ctx, rt, prometheus.DefaultRegisterer)
	if err != nil {
		rt.Exit(ctx, "boot.payments_failed", err)
	}
	handler, err := stripeWebhookHandler(rt, payments)
	if err != nil {
		rt.Exit(ctx, "boot.webhook_failed", err)
	}
	ordersService, err := orders.NewService(payments.Orders, payments.Events)
	if err != nil {
		rt.Exit(ctx, "boot.orders_failed", err)
	}
	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Orders:    payments.Orders,
		Solutions: payments.Solutions,
		Stripe:    payments.Stripe,
		Currency:  cfg.Checkout.Currency,
		SiteURL:   cfg.Checkout.SiteURL,
		Logger:    logg,
	})
	if err != nil {
		rt.Exit(ctx, "boot.checkout_failed", err)
	}

	// the platform may inject PORT; it wins over FLOWDESK_APP_PORT
	addr := ":" + firstNonEmpty(os.Getenv("PORT"), cfg.App.Port)
	ctx = logg.WithFields(ctx, logger.Fields{
		"addr":       addr,
		"instance":   firstNonEmpty(os.Getenv("DYNO"), "local"),
		"stripe_env": payments.Stripe.Environment(),
	})

	server := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: 10 * time.Second,
		Handler: routes.NewRouter(cfg, logg, routes.Deps{
			DB:               rt.DB,
			Redis:            rt.Redis,
			IdempotencyStore: rt.Redis,
			Gatherer:         prometheus.DefaultGatherer,
			StripeWebhook:    handler,
			Refresher:        payments.Refresher,
			Orders:           ordersService,
			Checkout:         checkoutService,
		}),
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-sigCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "server.shutdown_failed", err)
		}
	}()

	logg.Info(ctx, "server.started")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		rt.Exit(ctx, "server.failed", err)
	}
	logg.Info(ctx, "server.stopped")
}

// stripeWebhookHandler assembles the verify, dedupe and apply chain behind
// POST /webhooks/stripe.
func stripeWebhookHandler(rt *platform.Runtime, payments *platform.Payments) (webhookcontrollers.StripeWebhookParams, error) {
	service, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Events:  payments.Events,
		Applier: payments.Applier,
		Stripe:  payments.Stripe,
		Logger:  rt.Logger,
		Metrics: payments.Metrics,
	})
	if err != nil {
		return webhookcontrollers.StripeWebhookParams{}, err
	}
	signing := payments.Stripe.Webhook()
	verifier, err := stripewebhook.NewVerifier(signing.Secret, signing.Tolerance)
	if err != nil {
		return webhookcontrollers.StripeWebhookParams{}, err
	}
	guard, err := stripewebhook.NewIdempotencyGuard(rt.Redis, rt.Config.Webhook.IdempotencyTTL, guardScope)
	if err != nil {
		return webhookcontrollers.StripeWebhookParams{}, err
	}
	return webhookcontrollers.StripeWebhookParams{
		Service:      service,
		Verifier:     verifier,
		Guard:        guard,
		MaxBodyBytes: rt.Config.Webhook.MaxBodyBytes,
		Logger:       rt.Logger,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
