package reconcile

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/flowdesk-backend/internal/orders"
	"github.com/angelmondragon/flowdesk-backend/pkg/db/models"
)

// Reference carries the processor identifiers an event exposes.
type Reference struct {
	SessionID       string
	PaymentIntentID string
}

// Empty reports whether the reference names no processor object.
func (r Reference) Empty() bool {
	return r.SessionID == "" && r.PaymentIntentID == ""
}

// Matcher resolves the order an event belongs to.
type Matcher struct {
	orders orders.Repository
}

func NewMatcher(repo orders.Repository) *Matcher {
	return &Matcher{orders: repo}
}

func (m *Matcher) WithTx(tx *gorm.DB) *Matcher {
	return &Matcher{orders: m.orders.WithTx(tx)}
}

// Match looks the order up by checkout session id, then by payment intent id.
// It returns (nil, nil) when neither identifier matches.
func (m *Matcher) Match(ctx context.Context, ref Reference) (*models.Order, error) {
	if ref.SessionID != "" {
		order, err := m.orders.FindByStripeSessionID(ctx, ref.SessionID)
		if err != nil || order != nil {
			return order, err
		}
	}
	if ref.PaymentIntentID != "" {
		return m.orders.FindByPaymentIntentID(ctx, ref.PaymentIntentID)
	}
	return nil, nil
}
