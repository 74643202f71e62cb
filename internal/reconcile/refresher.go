package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"go.uber.org/multierr"

	"github.com/angelmondragon/flowdesk-backend/internal/orders"
	"github.com/angelmondragon/flowdesk-backend/pkg/db/models"
	"github.com/angelmondragon/flowdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/flowdesk-backend/pkg/errors"
	"github.com/angelmondragon/flowdesk-backend/pkg/logger"
	"github.com/angelmondragon/flowdesk-backend/pkg/metrics"
	stripeclient "github.com/angelmondragon/flowdesk-backend/pkg/stripe"
	"github.com/angelmondragon/flowdesk-backend/pkg/types"
)

const (
	defaultPageSize = 100

	sourceRefresh    = "refresh"
	sourceSettlement = "settlement"
)

// StripeReader is the read side of the Stripe API used for reconciliation.
type StripeReader interface {
	GetPaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error)
	GetCheckoutSession(ctx context.Context, id string) (*stripe.CheckoutSession, error)
	ListBalanceTransactions(ctx context.Context, limit int) ([]*stripe.BalanceTransaction, error)
}

type RefresherParams struct {
	Orders   orders.Repository
	Stripe   StripeReader
	Applier  *Applier
	PageSize int
	Logger   *logger.Logger
	Metrics  *metrics.PaymentMetrics
	Now      func() time.Time
}

// Refresher pulls payment truth from Stripe instead of waiting for webhooks.
type Refresher struct {
	orders   orders.Repository
	stripe   StripeReader
	applier  *Applier
	pageSize int
	logg     *logger.Logger
	metrics  *metrics.PaymentMetrics
	now      func() time.Time
}

// BulkResult summarises one settlement sync.
type BulkResult struct {
	Transactions int
	Candidates   int
	Updated      int
	// Skipped counts matches the ledger declined, usually because the order
	// moved on between listing and writing.
	Skipped int
	// Failures aggregates per-order write errors; the batch continues past them.
	Failures error
}

func NewRefresher(params RefresherParams) (*Refresher, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repository required")
	}
	if params.Stripe == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe client required")
	}
	if params.Applier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "applier required")
	}
	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Refresher{
		orders:   params.Orders,
		stripe:   params.Stripe,
		applier:  params.Applier,
		pageSize: pageSize,
		logg:     params.Logger,
		metrics:  params.Metrics,
		now:      now,
	}, nil
}

// RefreshOrder reads the order's current state from Stripe and applies it.
// Orders without any processor identifier are rejected without a write.
func (r *Refresher) RefreshOrder(ctx context.Context, orderID uuid.UUID) (order *models.Order, err error) {
	defer func() { r.metrics.IncRefresh("order", err) }()

	current, err := r.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if current == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if current.PaymentIntentID == nil && current.StripeSessionID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order has no stripe payment identifiers")
	}

	at := r.now().UTC()
	obs, err := r.observe(ctx, current, at)
	if err != nil {
		return nil, err
	}

	result, err := r.applier.Apply(ctx, Change{
		OrderID:     &current.ID,
		Observation: obs,
		At:          at,
		Source:      sourceRefresh,
	})
	if err != nil {
		return nil, err
	}
	if r.logg != nil {
		logCtx := r.logg.WithOrderID(ctx, current.ID.String())
		logCtx = r.logg.WithFields(logCtx, map[string]any{
			"outcome": result.Outcome,
			"status":  obs.Status,
		})
		r.logg.Info(logCtx, "order.payment.refreshed")
	}
	return result.Order, nil
}

func (r *Refresher) observe(ctx context.Context, order *models.Order, at time.Time) (Observation, error) {
	intentID := ""
	if order.PaymentIntentID != nil {
		intentID = *order.PaymentIntentID
	}

	if intentID == "" {
		session, err := r.stripe.GetCheckoutSession(ctx, *order.StripeSessionID)
		if err != nil {
			return Observation{}, processorError(err, "retrieve checkout session")
		}
		if session.PaymentIntent == nil || session.PaymentIntent.ID == "" || session.Status == stripe.CheckoutSessionStatusExpired {
			obs, ok := StatusFromCheckoutSession(session, at)
			if !ok {
				return Observation{}, pkgerrors.New(pkgerrors.CodeStateConflict, "unrecognised checkout session status")
			}
			return obs, nil
		}
		intentID = session.PaymentIntent.ID
	}

	intent, err := r.stripe.GetPaymentIntent(ctx, intentID)
	if err != nil {
		return Observation{}, processorError(err, "retrieve payment intent")
	}
	obs, ok := StatusFromPaymentIntent(intent)
	if !ok {
		return Observation{}, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("unrecognised payment intent status %q", intent.Status))
	}
	return obs, nil
}

// RefreshAll matches the most recent balance transactions against unsettled
// orders by payment intent. A charge in the balance feed is a succeeded
// payment, so each match goes through the Applier like any other
// observation: in-flight orders move to succeeded and succeeded orders pick
// up the capture flag. A match is skipped when the order left the status it
// was listed with before the write.
func (r *Refresher) RefreshAll(ctx context.Context) (result BulkResult, err error) {
	defer func() {
		failed := err
		if failed == nil {
			failed = result.Failures
		}
		r.metrics.IncRefresh("transactions", failed)
	}()

	txns, err := r.stripe.ListBalanceTransactions(ctx, r.pageSize)
	if err != nil {
		return BulkResult{}, processorError(err, "list balance transactions")
	}
	result.Transactions = len(txns)

	byIntent := make(map[string]*stripe.BalanceTransaction, len(txns))
	for _, txn := range txns {
		if !settlesPayment(txn) {
			continue
		}
		id := stripeclient.PaymentIntentIDForTransaction(txn)
		if id == "" {
			continue
		}
		// newest first; keep the latest transaction per intent
		if _, seen := byIntent[id]; !seen {
			byIntent[id] = txn
		}
	}

	candidates, err := r.orders.ListUnsettled(ctx)
	if err != nil {
		return BulkResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list unsettled orders")
	}
	result.Candidates = len(candidates)

	now := r.now().UTC()
	for i := range candidates {
		order := candidates[i]
		if order.PaymentIntentID == nil {
			continue
		}
		txn, ok := byIntent[*order.PaymentIntentID]
		if !ok {
			continue
		}
		applied, aerr := r.applier.Apply(ctx, Change{
			OrderID: &order.ID,
			Observation: Observation{
				Status:          enums.PaymentStatusSucceeded,
				Captured:        txn.Status == stripe.BalanceTransactionStatusAvailable,
				PaymentIntentID: *order.PaymentIntentID,
				Metadata:        settlementMetadata(txn, now),
			},
			At:     now,
			Source: sourceSettlement,
			Expect: order.PaymentStatus,
		})
		if aerr != nil {
			result.Failures = multierr.Append(result.Failures, fmt.Errorf("order %s: %w", order.ID, aerr))
			continue
		}
		switch applied.Outcome {
		case OutcomeApplied, OutcomeRefreshed:
			result.Updated++
		default:
			result.Skipped++
		}
	}

	if r.logg != nil {
		logCtx := r.logg.WithFields(ctx, map[string]any{
			"transactions": result.Transactions,
			"candidates":   result.Candidates,
			"updated":      result.Updated,
			"skipped":      result.Skipped,
		})
		if result.Failures != nil {
			logCtx = r.logg.WithField(logCtx, "failed", len(multierr.Errors(result.Failures)))
			r.logg.Error(logCtx, "payments.settlement_sync.partial", result.Failures)
		} else {
			r.logg.Info(logCtx, "payments.settlement_sync.completed")
		}
	}
	return result, nil
}

// settlesPayment reports whether the transaction is money in for a charge.
// Refunds, payouts and fees share the feed but say nothing about the payment.
func settlesPayment(txn *stripe.BalanceTransaction) bool {
	if txn == nil {
		return false
	}
	switch txn.Type {
	case stripe.BalanceTransactionTypeCharge, stripe.BalanceTransactionTypePayment:
		return true
	}
	return false
}

func settlementMetadata(txn *stripe.BalanceTransaction, at time.Time) types.Metadata {
	out := types.Metadata{
		"transaction_id":     txn.ID,
		"transaction_status": string(txn.Status),
		"last_updated":       at.Format(time.RFC3339),
	}
	if txn.AvailableOn > 0 {
		out["transaction_available"] = time.Unix(txn.AvailableOn, 0).UTC().Format(time.RFC3339)
	}
	return out
}

func processorError(err error, action string) error {
	if stripeclient.IsNotFound(err) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, action+": not found at stripe")
	}
	return pkgerrors.Wrap(pkgerrors.CodeProcessor, err, action)
}
