package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/flowdesk-backend/api/middleware"
	"github.com/angelmondragon/flowdesk-backend/api/responses"
	"github.com/angelmondragon/flowdesk-backend/internal/reconcile"
	stripewebhook "github.com/angelmondragon/flowdesk-backend/internal/webhooks/stripe"
	pkgerrors "github.com/angelmondragon/flowdesk-backend/pkg/errors"
	"github.com/angelmondragon/flowdesk-backend/pkg/logger"
)

const defaultMaxBodyBytes int64 = 64 << 10

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event stripe.Event, raw []byte) (reconcile.Outcome, error)
}

type stripeVerifier interface {
	Verify(payload []byte, header string) (stripe.Event, error)
}

type stripeWebhookGuard interface {
	Begin(ctx context.Context, eventID string) (stripewebhook.Claim, error)
	Complete(ctx context.Context, eventID string) error
	Abandon(ctx context.Context, eventID string) error
}

type StripeWebhookParams struct {
	Service  StripeWebhookService
	Verifier stripeVerifier
	// Guard is optional; without it every delivery reaches the event log,
	// which is idempotent on its own.
	Guard        stripeWebhookGuard
	MaxBodyBytes int64
	Logger       *logger.Logger
}

type ack struct {
	Received bool `json:"received"`
}

// StripeWebhook verifies and applies Stripe payment events. Any 200 tells
// Stripe to stop retrying; 500s are retried with backoff.
func StripeWebhook(params StripeWebhookParams) http.HandlerFunc {
	maxBytes := params.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBodyBytes
	}
	logg := params.Logger

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if params.Service == nil || params.Verifier == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe webhook not configured"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeMalformedPayload, err, "payload too large"))
				return
			}
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read request body"))
			return
		}

		event, err := params.Verifier.Verify(payload, r.Header.Get("Stripe-Signature"))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		middleware.Annotate(ctx, "stripe_event_id", event.ID)
		middleware.Annotate(ctx, "stripe_event_type", string(event.Type))
		if logg != nil {
			ctx = logg.WithStripeEvent(ctx, event.ID, string(event.Type))
		}

		claimed := false
		if params.Guard != nil {
			claim, err := params.Guard.Begin(ctx, event.ID)
			switch {
			case err != nil:
				// the event log still dedupes, so a cache outage is not fatal
				if logg != nil {
					logg.Warn(logg.WithField(ctx, "error", err.Error()), "stripe.idempotency.unavailable")
				}
			case claim == stripewebhook.ClaimDuplicate:
				if logg != nil {
					logg.Info(ctx, "stripe.event.duplicate")
				}
				responses.WriteJSON(w, http.StatusOK, ack{Received: true})
				return
			case claim == stripewebhook.ClaimInFlight:
				// not acknowledged: if the running attempt fails, Stripe's retry must still land
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "event is already being processed"))
				return
			default:
				claimed = true
			}
		}

		if _, err := params.Service.HandleEvent(ctx, event, payload); err != nil {
			if claimed {
				if relErr := params.Guard.Abandon(ctx, event.ID); relErr != nil && logg != nil {
					logg.Error(ctx, "stripe.idempotency.release_failed", relErr)
				}
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if claimed {
			if err := params.Guard.Complete(ctx, event.ID); err != nil && logg != nil {
				logg.Warn(logg.WithField(ctx, "error", err.Error()), "stripe.idempotency.mark_failed")
			}
		}

		responses.WriteJSON(w, http.StatusOK, ack{Received: true})
	}
}
