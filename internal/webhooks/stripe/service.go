package stripewebhook

import (
	"context"
	"errors"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/flowdesk-backend/internal/events"
	"github.com/angelmondragon/flowdesk-backend/internal/reconcile"
	"github.com/angelmondragon/flowdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/flowdesk-backend/pkg/errors"
	"github.com/angelmondragon/flowdesk-backend/pkg/logger"
	"github.com/angelmondragon/flowdesk-backend/pkg/metrics"
)

const sourceWebhook = "stripe_webhook"

type eventLog interface {
	Exists(ctx context.Context, eventID string) (bool, error)
}

type applier interface {
	Apply(ctx context.Context, change reconcile.Change) (*reconcile.Result, error)
}

// IntentFetcher retrieves the authoritative payment intent behind a session.
type IntentFetcher interface {
	GetPaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error)
}

type ServiceParams struct {
	Events  eventLog
	Applier applier
	// Stripe is optional; without it completed sessions use their own payment_status.
	Stripe  IntentFetcher
	Logger  *logger.Logger
	Metrics *metrics.PaymentMetrics
}

// Service routes verified Stripe events onto the order ledger.
type Service struct {
	events  eventLog
	applier applier
	stripe  IntentFetcher
	logg    *logger.Logger
	metrics *metrics.PaymentMetrics
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Events == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "event repository required")
	}
	if params.Applier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "applier required")
	}
	return &Service{
		events:  params.Events,
		applier: params.Applier,
		stripe:  params.Stripe,
		logg:    params.Logger,
		metrics: params.Metrics,
	}, nil
}

// HandleEvent logs and applies one verified event. raw is the request body
// exactly as signed. Duplicates, unmatched orders and unhandled types succeed.
func (s *Service) HandleEvent(ctx context.Context, event stripe.Event, raw []byte) (outcome reconcile.Outcome, err error) {
	started := time.Now()
	if s.logg != nil {
		ctx = s.logg.WithStripeEvent(ctx, event.ID, string(event.Type))
		s.logg.Info(ctx, "stripe.event.received")
	}
	defer func() {
		label := string(outcome)
		if err != nil {
			label = "error"
		}
		s.metrics.ObserveWebhook(string(event.Type), label, time.Since(started))
	}()

	seen, err := s.events.Exists(ctx, event.ID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodePersistence, err, "check stripe event log")
	}
	if seen {
		s.info(ctx, "stripe.event.duplicate")
		return reconcile.OutcomeDuplicate, nil
	}

	payload, err := events.DecodePayload(event)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeMalformedPayload, err, "decode stripe event object")
	}

	at := time.Unix(event.Created, 0).UTC()
	if event.Created == 0 {
		at = time.Now().UTC()
	}
	obs, err := s.observe(ctx, event, payload, at)
	if err != nil {
		return "", err
	}

	result, err := s.applier.Apply(ctx, reconcile.Change{
		Event: events.FromStripeEvent(event, payload, raw),
		Reference: reconcile.Reference{
			SessionID:       payload.SessionID(),
			PaymentIntentID: payload.PaymentIntentID(),
		},
		Observation: obs,
		At:          at,
		Source:      sourceWebhook,
	})
	if err != nil {
		return "", err
	}

	switch result.Outcome {
	case reconcile.OutcomeDuplicate:
		s.info(ctx, "stripe.event.duplicate")
	case reconcile.OutcomeUnmatched:
		if s.logg != nil {
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
				"session_id":        payload.SessionID(),
				"payment_intent_id": payload.PaymentIntentID(),
			}), "stripe.event.unmatched")
		}
	default:
		if s.logg != nil && result.Order != nil {
			logCtx := s.logg.WithOrderID(ctx, result.Order.ID.String())
			logCtx = s.logg.WithField(logCtx, "outcome", result.Outcome)
			s.logg.Info(logCtx, "stripe.event.processed")
		}
	}
	return result.Outcome, nil
}

// observe maps the event onto a ledger status. Unhandled types yield an empty
// observation and are only logged.
func (s *Service) observe(ctx context.Context, event stripe.Event, payload events.Payload, at time.Time) (reconcile.Observation, error) {
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		if payload.Session == nil {
			return reconcile.Observation{}, malformed("checkout session")
		}
		return s.observeCompletedSession(ctx, payload.Session, at)

	case stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
		if payload.Session == nil {
			return reconcile.Observation{}, malformed("checkout session")
		}
		return reconcile.Observation{
			Status:          enums.PaymentStatusFailed,
			PaymentIntentID: payload.PaymentIntentID(),
			FailureReason:   "async payment failed",
		}, nil

	case stripe.EventTypeCheckoutSessionExpired:
		if payload.Session == nil {
			return reconcile.Observation{}, malformed("checkout session")
		}
		return reconcile.ExpiredObservation(payload.Session.ID, at), nil

	case stripe.EventTypePaymentIntentSucceeded,
		stripe.EventTypePaymentIntentProcessing,
		stripe.EventTypePaymentIntentPaymentFailed,
		stripe.EventTypePaymentIntentCanceled:
		if payload.Intent == nil {
			return reconcile.Observation{}, malformed("payment intent")
		}
		obs, _ := reconcile.StatusFromPaymentIntent(payload.Intent)
		obs.PaymentIntentID = payload.Intent.ID
		obs.Status = intentEventStatus[event.Type]
		if obs.Status != enums.PaymentStatusSucceeded {
			obs.Captured = false
		}
		return obs, nil

	case stripe.EventTypeChargeFailed:
		if payload.Charge == nil {
			return reconcile.Observation{}, malformed("charge")
		}
		return reconcile.Observation{
			Status:          enums.PaymentStatusFailed,
			PaymentIntentID: payload.PaymentIntentID(),
			FailureReason:   payload.Charge.FailureMessage,
		}, nil
	}

	s.info(ctx, "stripe.event.unhandled")
	return reconcile.Observation{}, nil
}

var intentEventStatus = map[stripe.EventType]enums.PaymentStatus{
	stripe.EventTypePaymentIntentSucceeded:     enums.PaymentStatusSucceeded,
	stripe.EventTypePaymentIntentProcessing:    enums.PaymentStatusProcessing,
	stripe.EventTypePaymentIntentPaymentFailed: enums.PaymentStatusFailed,
	stripe.EventTypePaymentIntentCanceled:      enums.PaymentStatusCanceled,
}

// observeCompletedSession prefers the live payment intent, which carries the
// captured amount, over the session's own payment_status.
func (s *Service) observeCompletedSession(ctx context.Context, session *stripe.CheckoutSession, at time.Time) (reconcile.Observation, error) {
	if s.stripe != nil && session.PaymentIntent != nil && session.PaymentIntent.ID != "" {
		intent, err := s.stripe.GetPaymentIntent(ctx, session.PaymentIntent.ID)
		if err != nil {
			return reconcile.Observation{}, pkgerrors.Wrap(pkgerrors.CodeProcessor, err, "retrieve payment intent")
		}
		if obs, ok := reconcile.StatusFromPaymentIntent(intent); ok {
			return obs, nil
		}
	}

	obs, ok := reconcile.StatusFromCheckoutSession(session, at)
	if !ok {
		return reconcile.Observation{}, pkgerrors.New(pkgerrors.CodeMalformedPayload, "unrecognised checkout session payment status")
	}
	return obs, nil
}

func malformed(object string) error {
	return pkgerrors.Wrap(pkgerrors.CodeMalformedPayload, errors.New("unexpected object"), "stripe event is not a "+object)
}

func (s *Service) info(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Info(ctx, msg)
	}
}
