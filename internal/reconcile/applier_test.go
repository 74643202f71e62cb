package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/flowdesk-backend/internal/orders"
	"github.com/angelmondragon/flowdesk-backend/pkg/db/models"
	"github.com/angelmondragon/flowdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/flowdesk-backend/pkg/errors"
	"github.com/angelmondragon/flowdesk-backend/pkg/outbox"
)

func succeededChange(eventID, sessionID string, at time.Time) Change {
	return Change{
		Event:     logEntry(eventID, sessionID, at),
		Reference: Reference{SessionID: sessionID, PaymentIntentID: "pi_1"},
		Observation: Observation{
			Status:          enums.PaymentStatusSucceeded,
			Captured:        true,
			PaymentIntentID: "pi_1",
		},
		At:     at,
		Source: "webhook",
	}
}

func TestApplyPremiumSuccessGrantsDiscountOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	solution := h.solution(t)
	order := h.order(t, solution.ID, func(o *models.Order) { o.StripeSessionID = strPtr("cs_1") })
	at := time.Unix(1700000000, 0).UTC()

	result, err := h.applier.Apply(ctx, succeededChange("evt_1", "cs_1", at))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, result.Outcome)
	assert.Equal(t, enums.PaymentStatusPending, result.From)
	assert.True(t, result.DiscountGranted)

	stored := h.reload(t, order.ID)
	assert.Equal(t, enums.PaymentStatusSucceeded, stored.PaymentStatus)
	assert.True(t, stored.StripePaymentCaptured)
	require.NotNil(t, stored.PaymentIntentID)
	assert.Equal(t, "pi_1", *stored.PaymentIntentID)
	assert.Equal(t, "succeeded", stored.Metadata.String("payment_status"))

	sol, err := h.solutions.FindByID(ctx, solution.ID)
	require.NoError(t, err)
	require.True(t, sol.Discount.Valid)
	assert.True(t, decimal.NewFromInt(100).Equal(sol.Discount.Decimal))

	// redelivery of the same event
	result, err = h.applier.Apply(ctx, succeededChange("evt_1", "cs_1", at))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, result.Outcome)

	// a second, distinct success event for the same order
	result, err = h.applier.Apply(ctx, succeededChange("evt_2", "cs_1", at.Add(time.Second)))
	require.NoError(t, err)
	assert.Equal(t, OutcomeRefreshed, result.Outcome)
	assert.False(t, result.DiscountGranted)

	sol, err = h.solutions.FindByID(ctx, solution.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(100).Equal(sol.Discount.Decimal))
	assert.Equal(t, enums.PaymentStatusSucceeded, h.reload(t, order.ID).PaymentStatus)

	assert.Equal(t, int64(1), h.count(t, &models.PaymentEvent{}, "event_id = ?", "evt_1"))
	assert.Equal(t, int64(1), h.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventOrderPaid))
	assert.Equal(t, int64(1), h.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventSolutionDiscountGranted))
}

func TestApplyQueuesFactsKeyedByOrder(t *testing.T) {
	h := newHarness(t)
	order := h.order(t, h.solution(t).ID, func(o *models.Order) { o.StripeSessionID = strPtr("cs_keys") })

	_, err := h.applier.Apply(context.Background(), succeededChange("evt_keys", "cs_keys", time.Unix(1700000000, 0).UTC()))
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, h.db.Order("event_type").Find(&rows).Error)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, order.ID.String(), row.OrderingKey(), string(row.EventType))
		require.NotNil(t, row.StripeEventID)
		assert.Equal(t, "evt_keys", *row.StripeEventID)
	}
	assert.Equal(t, enums.EventOrderPaid, rows[0].EventType)
	assert.Equal(t, enums.EventSolutionDiscountGranted, rows[1].EventType)
}

func TestApplyProSuccessDoesNotGrantDiscount(t *testing.T) {
	h := newHarness(t)
	solution := h.solution(t)
	h.order(t, solution.ID, func(o *models.Order) {
		o.StripeSessionID = strPtr("cs_pro")
		o.PlanType = enums.PlanTypePro
	})

	result, err := h.applier.Apply(context.Background(), succeededChange("evt_pro", "cs_pro", time.Now().UTC()))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, result.Outcome)
	assert.False(t, result.DiscountGranted)

	sol, err := h.solutions.FindByID(context.Background(), solution.ID)
	require.NoError(t, err)
	assert.False(t, sol.Discount.Valid)
}

func TestApplyUnmatchedKeepsLogEntry(t *testing.T) {
	h := newHarness(t)

	result, err := h.applier.Apply(context.Background(), succeededChange("evt_orphan", "cs_unknown", time.Now().UTC()))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnmatched, result.Outcome)
	assert.Nil(t, result.Order)

	entry, err := h.events.FindByEventID(context.Background(), "evt_orphan")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Nil(t, entry.OrderID)
	assert.Equal(t, int64(1), h.count(t, &models.PaymentEvent{}, ""))
}

func TestApplyMatchesByPaymentIntent(t *testing.T) {
	h := newHarness(t)
	order := h.order(t, h.solution(t).ID, func(o *models.Order) { o.PaymentIntentID = strPtr("pi_only") })

	result, err := h.applier.Apply(context.Background(), Change{
		Event:       logEntry("evt_pi", "", time.Now().UTC()),
		Reference:   Reference{PaymentIntentID: "pi_only"},
		Observation: Observation{Status: enums.PaymentStatusProcessing, PaymentIntentID: "pi_only"},
		Source:      "webhook",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, result.Outcome)
	assert.Equal(t, enums.PaymentStatusProcessing, h.reload(t, order.ID).PaymentStatus)

	entry, err := h.events.FindByEventID(context.Background(), "evt_pi")
	require.NoError(t, err)
	require.NotNil(t, entry.OrderID)
	assert.Equal(t, order.ID, *entry.OrderID)
	assert.Equal(t, int64(0), h.count(t, &models.OutboxEvent{}, ""))
}

func TestApplyIgnoresFailureAfterSuccess(t *testing.T) {
	h := newHarness(t)
	order := h.order(t, h.solution(t).ID, func(o *models.Order) { o.StripeSessionID = strPtr("cs_late") })
	at := time.Unix(1700000000, 0).UTC()

	_, err := h.applier.Apply(context.Background(), succeededChange("evt_ok", "cs_late", at))
	require.NoError(t, err)

	result, err := h.applier.Apply(context.Background(), Change{
		Event:       logEntry("evt_fail", "cs_late", at.Add(time.Minute)),
		Reference:   Reference{SessionID: "cs_late"},
		Observation: Observation{Status: enums.PaymentStatusFailed, FailureReason: "declined"},
		At:          at.Add(time.Minute),
		Source:      "webhook",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, result.Outcome)

	stored := h.reload(t, order.ID)
	assert.Equal(t, enums.PaymentStatusSucceeded, stored.PaymentStatus)
	assert.True(t, stored.StripePaymentCaptured)
}

func TestApplyFailedThenRetriedSuccess(t *testing.T) {
	h := newHarness(t)
	order := h.order(t, h.solution(t).ID, func(o *models.Order) { o.PaymentIntentID = strPtr("pi_1") })
	at := time.Unix(1700000000, 0).UTC()

	result, err := h.applier.Apply(context.Background(), Change{
		Event:       logEntry("evt_fail", "", at),
		Reference:   Reference{PaymentIntentID: "pi_1"},
		Observation: Observation{Status: enums.PaymentStatusFailed, PaymentIntentID: "pi_1", FailureReason: "card declined"},
		At:          at,
		Source:      "webhook",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, result.Outcome)
	failed := h.reload(t, order.ID)
	assert.Equal(t, enums.PaymentStatusFailed, failed.PaymentStatus)
	assert.Equal(t, "card declined", failed.Metadata.String("failure_reason"))

	change := succeededChange("evt_retry", "", at.Add(time.Minute))
	change.Reference = Reference{PaymentIntentID: "pi_1"}
	result, err = h.applier.Apply(context.Background(), change)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, result.Outcome)
	assert.Equal(t, enums.PaymentStatusSucceeded, h.reload(t, order.ID).PaymentStatus)
}

func TestApplyExpiryForcesCaptureFalse(t *testing.T) {
	h := newHarness(t)
	order := h.order(t, h.solution(t).ID, func(o *models.Order) { o.StripeSessionID = strPtr("cs_exp") })
	at := time.Unix(1700000000, 0).UTC()

	result, err := h.applier.Apply(context.Background(), Change{
		Event:       logEntry("evt_exp", "cs_exp", at),
		Reference:   Reference{SessionID: "cs_exp"},
		Observation: ExpiredObservation("cs_exp", at),
		At:          at,
		Source:      "webhook",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, result.Outcome)

	stored := h.reload(t, order.ID)
	assert.Equal(t, enums.PaymentStatusExpired, stored.PaymentStatus)
	assert.False(t, stored.StripePaymentCaptured)
	assert.Equal(t, "cs_exp", stored.Metadata.String("session_id"))
	assert.Equal(t, int64(1), h.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventOrderExpired))
}

type losingOrders struct {
	orders.Repository
}

func (l losingOrders) WithTx(tx *gorm.DB) orders.Repository {
	return losingOrders{Repository: l.Repository.WithTx(tx)}
}

func (losingOrders) CompareAndSetStatus(ctx context.Context, id uuid.UUID, observed enums.PaymentStatus, update orders.StatusUpdate) (bool, error) {
	return false, nil
}

func TestApplyDropsChangeWhenOrderLeftExpectedStatus(t *testing.T) {
	h := newHarness(t)
	order := h.order(t, h.solution(t).ID, func(o *models.Order) {
		o.PaymentStatus = enums.PaymentStatusFailed
		o.Metadata = map[string]any{"failure_reason": "card_declined"}
	})

	result, err := h.applier.Apply(context.Background(), Change{
		OrderID:     &order.ID,
		Observation: Observation{Status: enums.PaymentStatusSucceeded, Captured: true},
		At:          time.Unix(1700000000, 0).UTC(),
		Source:      "settlement",
		Expect:      enums.PaymentStatusProcessing,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, result.Outcome)
	assert.Equal(t, enums.PaymentStatusFailed, result.From)

	stored := h.reload(t, order.ID)
	assert.Equal(t, enums.PaymentStatusFailed, stored.PaymentStatus)
	assert.False(t, stored.StripePaymentCaptured)
	assert.Equal(t, "card_declined", stored.Metadata.String("failure_reason"))
	assert.Zero(t, h.count(t, &models.OutboxEvent{}, ""))
}

func TestApplyConcurrentWriterRollsBack(t *testing.T) {
	h := newHarness(t)
	order := h.order(t, h.solution(t).ID, func(o *models.Order) { o.StripeSessionID = strPtr("cs_race") })

	applier, err := NewApplier(ApplierParams{
		TxRunner:  gormTxRunner{db: h.db},
		Orders:    losingOrders{Repository: h.orders},
		Events:    h.events,
		Solutions: h.solutions,
		Outbox:    outbox.NewService(outbox.NewRepository(h.db), nil),
	})
	require.NoError(t, err)

	_, err = applier.Apply(context.Background(), succeededChange("evt_race", "cs_race", time.Now().UTC()))
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodePersistence, pkgerrors.As(err).Code())
	assert.True(t, pkgerrors.IsRetryable(err))

	// nothing from the failed attempt survives, so the redelivery is processed
	assert.Equal(t, int64(0), h.count(t, &models.PaymentEvent{}, ""))
	assert.Equal(t, enums.PaymentStatusPending, h.reload(t, order.ID).PaymentStatus)
	assert.Equal(t, int64(0), h.count(t, &models.OutboxEvent{}, ""))
}

func TestNewApplierRequiresDependencies(t *testing.T) {
	_, err := NewApplier(ApplierParams{})
	require.Error(t, err)
}
