package platform

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/flowdesk-backend/internal/events"
	"github.com/angelmondragon/flowdesk-backend/internal/orders"
	"github.com/angelmondragon/flowdesk-backend/internal/reconcile"
	"github.com/angelmondragon/flowdesk-backend/internal/solutions"
	"github.com/angelmondragon/flowdesk-backend/pkg/metrics"
	"github.com/angelmondragon/flowdesk-backend/pkg/outbox"
	"github.com/angelmondragon/flowdesk-backend/pkg/stripe"
)

// Payments is the ledger write path. The api and the cron worker build the
// same one so webhook, on-demand and scheduled refreshes share an Applier.
type Payments struct {
	Orders    orders.Repository
	Events    events.Repository
	Solutions solutions.Repository
	Outbox    *outbox.Repository
	Stripe    *stripe.Client
	Metrics   *metrics.PaymentMetrics
	Applier   *reconcile.Applier
	Refresher *reconcile.Refresher
}

// NewPayments wires repositories, the Stripe client and the reconcile
// components over the runtime's ledger. Metrics register on reg.
func NewPayments(ctx context.Context, rt *Runtime, reg prometheus.Registerer) (*Payments, error) {
	if rt == nil || rt.DB == nil {
		return nil, fmt.Errorf("payments need a connected ledger")
	}
	stripeClient, err := stripe.NewClient(ctx, rt.Config.Stripe, rt.Logger)
	if err != nil {
		return nil, fmt.Errorf("stripe client: %w", err)
	}

	conn := rt.DB.DB()
	p := &Payments{
		Orders:    orders.NewRepository(conn),
		Events:    events.NewRepository(conn),
		Solutions: solutions.NewRepository(conn),
		Outbox:    outbox.NewRepository(conn),
		Stripe:    stripeClient,
		Metrics:   metrics.NewPaymentMetrics(reg),
	}

	p.Applier, err = reconcile.NewApplier(reconcile.ApplierParams{
		TxRunner:  rt.DB,
		Orders:    p.Orders,
		Events:    p.Events,
		Solutions: p.Solutions,
		Outbox:    outbox.NewService(p.Outbox, rt.Logger),
		Logger:    rt.Logger,
		Metrics:   p.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("payment applier: %w", err)
	}

	p.Refresher, err = reconcile.NewRefresher(reconcile.RefresherParams{
		Orders:   p.Orders,
		Stripe:   stripeClient,
		Applier:  p.Applier,
		PageSize: rt.Config.Reconcile.PageSize,
		Logger:   rt.Logger,
		Metrics:  p.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("payment refresher: %w", err)
	}
	return p, nil
}
