package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/flowdesk-backend/internal/events"
	"github.com/angelmondragon/flowdesk-backend/internal/orders"
	"github.com/angelmondragon/flowdesk-backend/internal/solutions"
	"github.com/angelmondragon/flowdesk-backend/pkg/db/models"
	"github.com/angelmondragon/flowdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/flowdesk-backend/pkg/errors"
	"github.com/angelmondragon/flowdesk-backend/pkg/logger"
	"github.com/angelmondragon/flowdesk-backend/pkg/metrics"
	"github.com/angelmondragon/flowdesk-backend/pkg/outbox"
	"github.com/angelmondragon/flowdesk-backend/pkg/outbox/payloads"
)

// Outcome labels how a change landed on the ledger.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeRefreshed Outcome = "refreshed"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeUnmatched Outcome = "unmatched"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Change is one observation to reconcile against the ledger.
type Change struct {
	// Event is logged before anything else; nil for on-demand refreshes.
	Event *models.PaymentEvent
	// OrderID skips matching when the caller already knows the order.
	OrderID     *uuid.UUID
	Reference   Reference
	Observation Observation
	At          time.Time
	Source      string
	// Expect, when set, is the status the caller saw when it chose this order.
	// The change is dropped if the order has moved on since.
	Expect enums.PaymentStatus
}

// Result reports what Apply did.
type Result struct {
	Outcome         Outcome
	From            enums.PaymentStatus
	Order           *models.Order
	DiscountGranted bool
}

type ApplierParams struct {
	TxRunner  txRunner
	Orders    orders.Repository
	Events    events.Repository
	Solutions solutions.Repository
	Outbox    outbox.Emitter
	Logger    *logger.Logger
	Metrics   *metrics.PaymentMetrics
}

// Applier writes observations to the ledger, one transaction per change.
type Applier struct {
	tx        txRunner
	orders    orders.Repository
	events    events.Repository
	solutions solutions.Repository
	outbox    outbox.Emitter
	logg      *logger.Logger
	metrics   *metrics.PaymentMetrics
}

func NewApplier(params ApplierParams) (*Applier, error) {
	if params.TxRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repository required")
	}
	if params.Events == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "event repository required")
	}
	if params.Solutions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "solutions repository required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	return &Applier{
		tx:        params.TxRunner,
		orders:    params.Orders,
		events:    params.Events,
		solutions: params.Solutions,
		outbox:    params.Outbox,
		logg:      params.Logger,
		metrics:   params.Metrics,
	}, nil
}

// Apply logs the event (when present), resolves the order and moves it through
// the state machine. The log entry, status change, discount grant and outbox
// rows commit together or not at all.
func (a *Applier) Apply(ctx context.Context, change Change) (*Result, error) {
	if change.At.IsZero() {
		change.At = time.Now().UTC()
	}
	result := &Result{}

	err := a.tx.WithTx(ctx, func(tx *gorm.DB) error {
		orderRepo := a.orders.WithTx(tx)

		if change.Event != nil {
			inserted, err := a.events.WithTx(tx).Record(ctx, change.Event)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "record stripe event")
			}
			if !inserted {
				result.Outcome = OutcomeDuplicate
				return nil
			}
		}
		// events without a payment state are kept in the log only
		if !change.Observation.Status.IsValid() {
			result.Outcome = OutcomeIgnored
			return nil
		}

		order, err := a.resolve(ctx, tx, change)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "match order")
		}
		if order == nil {
			result.Outcome = OutcomeUnmatched
			return nil
		}
		result.From = order.PaymentStatus
		if change.Expect != "" && order.PaymentStatus != change.Expect {
			result.Outcome = OutcomeIgnored
			result.Order = order
			return nil
		}

		if change.Event != nil {
			if err := a.events.WithTx(tx).AttachOrder(ctx, change.Event.EventID, order.ID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "attach order to event")
			}
		}

		decision := Decide(order.PaymentStatus, change.Observation.Status, order.LastEventAt, change.At)
		switch decision {
		case DecisionIgnore:
			result.Outcome = OutcomeIgnored
			if err := a.backfillIntent(ctx, orderRepo, order, change.Observation); err != nil {
				return err
			}
		case DecisionRefresh:
			result.Outcome = OutcomeRefreshed
			captured := order.StripePaymentCaptured || change.Observation.Captured
			if order.PaymentStatus != enums.PaymentStatusSucceeded {
				captured = false
			}
			if err := a.write(ctx, orderRepo, order, change, captured); err != nil {
				return err
			}
		case DecisionApply:
			result.Outcome = OutcomeApplied
			captured := change.Observation.Status == enums.PaymentStatusSucceeded && change.Observation.Captured
			if err := a.write(ctx, orderRepo, order, change, captured); err != nil {
				return err
			}
			granted, err := a.sideEffects(ctx, tx, order, result.From, change)
			if err != nil {
				return err
			}
			result.DiscountGranted = granted
		}

		fresh, err := orderRepo.FindByID(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "reload order")
		}
		result.Order = fresh
		return nil
	})
	if err != nil {
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodePersistence, err, "apply payment change")
		}
		return nil, err
	}

	if result.Outcome == OutcomeApplied && result.Order != nil {
		a.metrics.IncTransition(string(result.From), string(result.Order.PaymentStatus))
		a.logTransition(ctx, change, result)
	}
	return result, nil
}

func (a *Applier) resolve(ctx context.Context, tx *gorm.DB, change Change) (*models.Order, error) {
	if change.OrderID != nil {
		return a.orders.WithTx(tx).FindByID(ctx, *change.OrderID)
	}
	return NewMatcher(a.orders).WithTx(tx).Match(ctx, change.Reference)
}

func (a *Applier) write(ctx context.Context, repo orders.Repository, order *models.Order, change Change, captured bool) error {
	status := change.Observation.Status
	lastEventAt := change.At
	if order.LastEventAt != nil && order.LastEventAt.After(lastEventAt) {
		lastEventAt = *order.LastEventAt
	}
	update := orders.StatusUpdate{
		Status:      status,
		Captured:    captured,
		Metadata:    order.Metadata.Merge(auditMetadata(change.Observation, captured, change.At)),
		LastEventAt: &lastEventAt,
	}
	if id := change.Observation.PaymentIntentID; id != "" {
		update.PaymentIntentID = &id
	}

	ok, err := repo.CompareAndSetStatus(ctx, order.ID, order.PaymentStatus, update)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "update order payment status")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodePersistence, "order payment status changed concurrently")
	}
	return nil
}

func (a *Applier) backfillIntent(ctx context.Context, repo orders.Repository, order *models.Order, obs Observation) error {
	if obs.PaymentIntentID == "" || order.PaymentIntentID != nil {
		return nil
	}
	if err := repo.SetPaymentIntentID(ctx, order.ID, obs.PaymentIntentID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "store payment intent id")
	}
	return nil
}

// sideEffects runs only on a real status change. The premium discount is
// granted on the edge into succeeded and only while the solution has none.
func (a *Applier) sideEffects(ctx context.Context, tx *gorm.DB, order *models.Order, from enums.PaymentStatus, change Change) (bool, error) {
	obs := change.Observation
	eventID := ""
	if change.Event != nil {
		eventID = change.Event.EventID
	}

	granted := false
	if obs.Status == enums.PaymentStatusSucceeded && from != enums.PaymentStatusSucceeded && order.PlanType.GrantsDiscount() {
		ok, err := a.solutions.WithTx(tx).GrantDiscount(ctx, order.SolutionID, order.Amount)
		if err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "grant solution discount")
		}
		granted = ok
	}

	var domainEvents []outbox.DomainEvent
	switch obs.Status {
	case enums.PaymentStatusSucceeded:
		intentID := obs.PaymentIntentID
		if intentID == "" && order.PaymentIntentID != nil {
			intentID = *order.PaymentIntentID
		}
		domainEvents = append(domainEvents, orderEvent(enums.EventOrderPaid, order, change.Source, eventID, payloads.OrderPaidEvent{
			OrderID:         order.ID,
			SolutionID:      order.SolutionID,
			PlanType:        order.PlanType,
			Amount:          order.Amount,
			Currency:        order.Currency,
			CustomerEmail:   order.CustomerEmail,
			PaymentIntentID: intentID,
			Captured:        obs.Captured,
			StripeEventID:   eventID,
		}))
	case enums.PaymentStatusFailed:
		domainEvents = append(domainEvents, orderEvent(enums.EventOrderPaymentFailed, order, change.Source, eventID, payloads.OrderPaymentFailedEvent{
			OrderID:         order.ID,
			SolutionID:      order.SolutionID,
			PaymentIntentID: obs.PaymentIntentID,
			FailureReason:   obs.FailureReason,
			StripeEventID:   eventID,
		}))
	case enums.PaymentStatusExpired, enums.PaymentStatusCanceled:
		eventType := enums.EventOrderExpired
		if obs.Status == enums.PaymentStatusCanceled {
			eventType = enums.EventOrderCanceled
		}
		domainEvents = append(domainEvents, orderEvent(eventType, order, change.Source, eventID, payloads.OrderClosedEvent{
			OrderID:       order.ID,
			SolutionID:    order.SolutionID,
			Status:        obs.Status,
			StripeEventID: eventID,
		}))
	}
	if granted {
		domainEvents = append(domainEvents, outbox.DomainEvent{
			EventType:     enums.EventSolutionDiscountGranted,
			AggregateType: enums.AggregateSolution,
			AggregateID:   order.SolutionID,
			OrderID:       order.ID,
			StripeEventID: eventID,
			Source:        change.Source,
			Data: payloads.SolutionDiscountGrantedEvent{
				SolutionID: order.SolutionID,
				OrderID:    order.ID,
				Discount:   order.Amount,
			},
		})
	}

	for _, evt := range domainEvents {
		if err := a.outbox.Emit(ctx, tx, evt); err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "emit outbox event")
		}
	}
	return granted, nil
}

func orderEvent(eventType enums.OutboxEventType, order *models.Order, source, stripeEventID string, data any) outbox.DomainEvent {
	return outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		OrderID:       order.ID,
		StripeEventID: stripeEventID,
		Source:        source,
		Data:          data,
	}
}

func (a *Applier) logTransition(ctx context.Context, change Change, result *Result) {
	if a.logg == nil {
		return
	}
	logCtx := a.logg.WithOrderID(ctx, result.Order.ID.String())
	logCtx = a.logg.WithFields(logCtx, map[string]any{
		"from":             result.From,
		"to":               result.Order.PaymentStatus,
		"captured":         result.Order.StripePaymentCaptured,
		"discount_granted": result.DiscountGranted,
		"source":           change.Source,
	})
	a.logg.Info(logCtx, "order.payment.transition")
}
