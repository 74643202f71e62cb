package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/flowdesk-backend/pkg/db/models"
	"github.com/angelmondragon/flowdesk-backend/pkg/types"
)

const (
	objectPrefixSession = "checkout.session."
	objectPrefixIntent  = "payment_intent."
	objectPrefixCharge  = "charge."
)

// ErrMissingObject is returned when an event carries no data.object.
var ErrMissingObject = errors.New("stripe event has no data object")

// Payload is the typed data.object of a Stripe event. At most one field is set.
type Payload struct {
	Session *stripe.CheckoutSession
	Intent  *stripe.PaymentIntent
	Charge  *stripe.Charge
}

// DecodePayload unmarshals the event object according to the event type family.
// Types outside the checkout session, payment intent and charge families decode
// to an empty payload.
func DecodePayload(event stripe.Event) (Payload, error) {
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return Payload{}, ErrMissingObject
	}
	raw := event.Data.Raw
	kind := string(event.Type)

	var out Payload
	switch {
	case strings.HasPrefix(kind, objectPrefixSession):
		var session stripe.CheckoutSession
		if err := json.Unmarshal(raw, &session); err != nil {
			return Payload{}, fmt.Errorf("decode checkout session: %w", err)
		}
		out.Session = &session
	case strings.HasPrefix(kind, objectPrefixIntent):
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(raw, &intent); err != nil {
			return Payload{}, fmt.Errorf("decode payment intent: %w", err)
		}
		out.Intent = &intent
	case strings.HasPrefix(kind, objectPrefixCharge):
		var charge stripe.Charge
		if err := json.Unmarshal(raw, &charge); err != nil {
			return Payload{}, fmt.Errorf("decode charge: %w", err)
		}
		out.Charge = &charge
	}
	return out, nil
}

// SessionID is the checkout session id. Only checkout session objects carry one.
func (p Payload) SessionID() string {
	if p.Session != nil {
		return p.Session.ID
	}
	return ""
}

// PaymentIntentID resolves the intent from the documented field of each object.
func (p Payload) PaymentIntentID() string {
	switch {
	case p.Session != nil:
		if p.Session.PaymentIntent != nil {
			return p.Session.PaymentIntent.ID
		}
	case p.Intent != nil:
		return p.Intent.ID
	case p.Charge != nil:
		if p.Charge.PaymentIntent != nil {
			return p.Charge.PaymentIntent.ID
		}
	}
	return ""
}

func (p Payload) status() string {
	switch {
	case p.Session != nil:
		return string(p.Session.PaymentStatus)
	case p.Intent != nil:
		return string(p.Intent.Status)
	case p.Charge != nil:
		return string(p.Charge.Status)
	}
	return ""
}

func (p Payload) amountCents() (int64, bool) {
	switch {
	case p.Session != nil:
		return p.Session.AmountTotal, true
	case p.Intent != nil:
		return p.Intent.Amount, true
	case p.Charge != nil:
		return p.Charge.Amount, true
	}
	return 0, false
}

func (p Payload) objectMetadata() map[string]string {
	switch {
	case p.Session != nil:
		return p.Session.Metadata
	case p.Intent != nil:
		return p.Intent.Metadata
	case p.Charge != nil:
		return p.Charge.Metadata
	}
	return nil
}

// FromStripeEvent builds the event log entry for a verified event. raw is the
// exact request body and is stored verbatim.
func FromStripeEvent(event stripe.Event, payload Payload, raw []byte) *models.PaymentEvent {
	entry := &models.PaymentEvent{
		EventID:        event.ID,
		EventType:      string(event.Type),
		Metadata:       types.Metadata{"livemode": event.Livemode},
		EventCreatedAt: time.Unix(event.Created, 0).UTC(),
	}
	if len(raw) > 0 {
		entry.RawEvent = types.RawJSON(append([]byte(nil), raw...))
	}
	if id := payload.SessionID(); id != "" {
		entry.SessionID = &id
	}
	if id := payload.PaymentIntentID(); id != "" {
		entry.PaymentIntentID = &id
	}
	if status := payload.status(); status != "" {
		entry.Status = &status
	}
	if cents, ok := payload.amountCents(); ok {
		entry.Amount = decimal.NewNullDecimal(CentsToDecimal(cents))
	}
	for k, v := range payload.objectMetadata() {
		entry.Metadata[k] = v
	}
	return entry
}

// CentsToDecimal converts a minor-unit amount to its two-place decimal value.
func CentsToDecimal(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
