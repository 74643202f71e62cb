package stripe

import (
	"context"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v84"
)

// API is the subset of Stripe operations the payments core depends on.
type API interface {
	GetPaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error)
	GetCheckoutSession(ctx context.Context, id string) (*stripe.CheckoutSession, error)
	CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionCreateParams) (*stripe.CheckoutSession, error)
	ListBalanceTransactions(ctx context.Context, limit int) ([]*stripe.BalanceTransaction, error)
}

var (
	errIDRequired     = errors.New("stripe object id is required")
	errNotInitialized = errors.New("stripe client not initialized")
)

// GetPaymentIntent retrieves a payment intent by id.
func (c *Client) GetPaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errIDRequired
	}
	if c == nil || c.api == nil {
		return nil, errNotInitialized
	}
	return c.api.V1PaymentIntents.Retrieve(ctx, id, &stripe.PaymentIntentRetrieveParams{})
}

// GetCheckoutSession retrieves a checkout session by id.
func (c *Client) GetCheckoutSession(ctx context.Context, id string) (*stripe.CheckoutSession, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errIDRequired
	}
	if c == nil || c.api == nil {
		return nil, errNotInitialized
	}
	return c.api.V1CheckoutSessions.Retrieve(ctx, id, &stripe.CheckoutSessionRetrieveParams{})
}

// CreateCheckoutSession opens a hosted checkout session.
func (c *Client) CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionCreateParams) (*stripe.CheckoutSession, error) {
	if params == nil {
		return nil, errors.New("checkout session params are required")
	}
	if c == nil || c.api == nil {
		return nil, errNotInitialized
	}
	return c.api.V1CheckoutSessions.Create(ctx, params)
}

// ListBalanceTransactions returns the most recent balance transactions, newest
// first, with their source charge expanded so callers can reach the intent.
func (c *Client) ListBalanceTransactions(ctx context.Context, limit int) ([]*stripe.BalanceTransaction, error) {
	if c == nil || c.api == nil {
		return nil, errNotInitialized
	}
	if limit <= 0 {
		limit = 100
	}
	params := &stripe.BalanceTransactionListParams{}
	params.Limit = stripe.Int64(int64(limit))
	params.AddExpand("data.source")

	out := make([]*stripe.BalanceTransaction, 0, limit)
	for txn, err := range c.api.V1BalanceTransactions.List(ctx, params) {
		if err != nil {
			return nil, err
		}
		out = append(out, txn)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}
// PaymentIntentIDForTransaction resolves the payment intent a balance
// transaction settles: the expanded charge's intent when present, otherwise the
// raw source id.
func PaymentIntentIDForTransaction(txn *stripe.BalanceTransaction) string {
	if txn == nil || txn.Source == nil {
		return ""
	}
	if txn.Source.Charge != nil && txn.Source.Charge.PaymentIntent != nil {
		return txn.Source.Charge.PaymentIntent.ID
	}
	return txn.Source.ID
}

// IsNotFound reports whether Stripe answered 404 for the requested object.
func IsNotFound(err error) bool {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode == 404 || stripeErr.Code == stripe.ErrorCodeResourceMissing
	}
	return false
}
