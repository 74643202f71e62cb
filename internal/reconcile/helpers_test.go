package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/angelmondragon/flowdesk-backend/internal/events"
	"github.com/angelmondragon/flowdesk-backend/internal/orders"
	"github.com/angelmondragon/flowdesk-backend/internal/solutions"
	"github.com/angelmondragon/flowdesk-backend/pkg/db/dbtest"
	"github.com/angelmondragon/flowdesk-backend/pkg/db/models"
	"github.com/angelmondragon/flowdesk-backend/pkg/enums"
	"github.com/angelmondragon/flowdesk-backend/pkg/outbox"
	"github.com/angelmondragon/flowdesk-backend/pkg/types"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type harness struct {
	db        *gorm.DB
	orders    orders.Repository
	events    events.Repository
	solutions solutions.Repository
	applier   *Applier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := dbtest.New(t)
	h := &harness{
		db:        db,
		orders:    orders.NewRepository(db),
		events:    events.NewRepository(db),
		solutions: solutions.NewRepository(db),
	}
	applier, err := NewApplier(ApplierParams{
		TxRunner:  gormTxRunner{db: db},
		Orders:    h.orders,
		Events:    h.events,
		Solutions: h.solutions,
		Outbox:    outbox.NewService(outbox.NewRepository(db), nil),
	})
	require.NoError(t, err)
	h.applier = applier
	return h
}

func (h *harness) solution(t *testing.T) *models.Solution {
	t.Helper()
	solution := &models.Solution{ID: uuid.New(), Title: "Lead routing"}
	require.NoError(t, h.db.Create(solution).Error)
	return solution
}

func (h *harness) order(t *testing.T, solutionID uuid.UUID, mutate func(*models.Order)) *models.Order {
	t.Helper()
	order := &models.Order{
		ID:            uuid.New(),
		SolutionID:    solutionID,
		PaymentStatus: enums.PaymentStatusPending,
		Amount:        decimal.NewFromInt(100),
		Currency:      "usd",
		CustomerEmail: "buyer@example.com",
		PlanType:      enums.PlanTypePremium,
		Metadata:      types.Metadata{},
	}
	if mutate != nil {
		mutate(order)
	}
	_, err := h.orders.Create(context.Background(), order)
	require.NoError(t, err)
	return order
}

func (h *harness) reload(t *testing.T, id uuid.UUID) *models.Order {
	t.Helper()
	order, err := h.orders.FindByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, order)
	return order
}

func (h *harness) count(t *testing.T, model any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	q := h.db.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

func logEntry(eventID, sessionID string, at time.Time) *models.PaymentEvent {
	entry := &models.PaymentEvent{
		EventID:        eventID,
		EventType:      string(stripe.EventTypeCheckoutSessionCompleted),
		Metadata:       types.Metadata{},
		EventCreatedAt: at,
	}
	if sessionID != "" {
		entry.SessionID = &sessionID
	}
	return entry
}

func strPtr(v string) *string { return &v }

type stubStripe struct {
	intents  map[string]*stripe.PaymentIntent
	sessions map[string]*stripe.CheckoutSession
	txns     []*stripe.BalanceTransaction
	err      error
	calls    []string
}

func (s *stubStripe) GetPaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error) {
	s.calls = append(s.calls, "pi:"+id)
	if s.err != nil {
		return nil, s.err
	}
	if pi, ok := s.intents[id]; ok {
		return pi, nil
	}
	return nil, &stripe.Error{HTTPStatusCode: 404, Code: stripe.ErrorCodeResourceMissing}
}

func (s *stubStripe) GetCheckoutSession(ctx context.Context, id string) (*stripe.CheckoutSession, error) {
	s.calls = append(s.calls, "cs:"+id)
	if s.err != nil {
		return nil, s.err
	}
	if cs, ok := s.sessions[id]; ok {
		return cs, nil
	}
	return nil, &stripe.Error{HTTPStatusCode: 404, Code: stripe.ErrorCodeResourceMissing}
}

func (s *stubStripe) ListBalanceTransactions(ctx context.Context, limit int) ([]*stripe.BalanceTransaction, error) {
	s.calls = append(s.calls, "txns")
	if s.err != nil {
		return nil, s.err
	}
	if len(s.txns) > limit {
		return s.txns[:limit], nil
	}
	return s.txns, nil
}
