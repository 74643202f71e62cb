package reconcile

import (
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/flowdesk-backend/pkg/enums"
	"github.com/angelmondragon/flowdesk-backend/pkg/types"
)

// Observation is a processor-reported payment state in ledger vocabulary.
type Observation struct {
	Status          enums.PaymentStatus
	Captured        bool
	PaymentIntentID string
	FailureReason   string
	// Metadata is merged into the order's audit metadata.
	Metadata types.Metadata
}

// StatusFromPaymentIntent maps a payment intent onto the ledger status. ok is
// false for statuses the ledger has no equivalent for.
func StatusFromPaymentIntent(intent *stripe.PaymentIntent) (Observation, bool) {
	if intent == nil {
		return Observation{}, false
	}
	obs := Observation{PaymentIntentID: intent.ID}
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		obs.Status = enums.PaymentStatusSucceeded
		obs.Captured = intent.AmountReceived > 0
	case stripe.PaymentIntentStatusProcessing, stripe.PaymentIntentStatusRequiresCapture:
		obs.Status = enums.PaymentStatusProcessing
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		// an intent returns to requires_payment_method after a declined attempt
		if intent.LastPaymentError != nil {
			obs.Status = enums.PaymentStatusFailed
			obs.FailureReason = intent.LastPaymentError.Msg
		} else {
			obs.Status = enums.PaymentStatusPending
		}
	case stripe.PaymentIntentStatusRequiresConfirmation, stripe.PaymentIntentStatusRequiresAction:
		obs.Status = enums.PaymentStatusPending
	case stripe.PaymentIntentStatusCanceled:
		obs.Status = enums.PaymentStatusCanceled
		if intent.CancellationReason != "" {
			obs.Metadata = types.Metadata{"cancellation_reason": string(intent.CancellationReason)}
		}
	default:
		return Observation{}, false
	}
	return obs, true
}

// StatusFromCheckoutSession maps a checkout session onto the ledger status
// using the session's own payment_status.
func StatusFromCheckoutSession(session *stripe.CheckoutSession, at time.Time) (Observation, bool) {
	if session == nil {
		return Observation{}, false
	}
	obs := Observation{}
	if session.PaymentIntent != nil {
		obs.PaymentIntentID = session.PaymentIntent.ID
	}

	if session.Status == stripe.CheckoutSessionStatusExpired {
		return ExpiredObservation(session.ID, at), true
	}

	switch session.PaymentStatus {
	case stripe.CheckoutSessionPaymentStatusPaid, stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
		obs.Status = enums.PaymentStatusSucceeded
		obs.Captured = session.AmountTotal > 0
	case stripe.CheckoutSessionPaymentStatusUnpaid:
		if session.Status == stripe.CheckoutSessionStatusComplete {
			obs.Status = enums.PaymentStatusProcessing
		} else {
			obs.Status = enums.PaymentStatusPending
		}
	default:
		return Observation{}, false
	}
	return obs, true
}

// ExpiredObservation describes a checkout session that lapsed unpaid.
func ExpiredObservation(sessionID string, at time.Time) Observation {
	return Observation{
		Status: enums.PaymentStatusExpired,
		Metadata: types.Metadata{
			"session_id": sessionID,
			"expired_at": at.UTC().Format(time.RFC3339),
		},
	}
}

func auditMetadata(obs Observation, captured bool, at time.Time) types.Metadata {
	out := types.Metadata{
		"payment_status": string(obs.Status),
		"captured":       captured,
		"last_updated":   at.UTC().Format(time.RFC3339),
	}
	if obs.PaymentIntentID != "" {
		out["payment_intent"] = obs.PaymentIntentID
	}
	if obs.FailureReason != "" {
		out["failure_reason"] = obs.FailureReason
	}
	return out.Merge(obs.Metadata)
}
