package stripewebhook

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	pkgerrors "github.com/angelmondragon/flowdesk-backend/pkg/errors"
)

// Verifier authenticates webhook deliveries against the endpoint secret.
type Verifier struct {
	secret    string
	tolerance time.Duration
}

func NewVerifier(secret string, tolerance time.Duration) (*Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe webhook secret required")
	}
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &Verifier{secret: secret, tolerance: tolerance}, nil
}

// Verify checks the Stripe-Signature header over the exact request bytes and
// decodes the event envelope. The event's API version is not enforced.
func (v *Verifier) Verify(payload []byte, header string) (stripe.Event, error) {
	if strings.TrimSpace(header) == "" {
		return stripe.Event{}, pkgerrors.New(pkgerrors.CodeSignatureInvalid, "stripe signature missing")
	}
	if err := webhook.ValidatePayloadWithTolerance(payload, header, v.secret, v.tolerance); err != nil {
		return stripe.Event{}, pkgerrors.Wrap(pkgerrors.CodeSignatureInvalid, err, "verify stripe signature")
	}

	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return stripe.Event{}, pkgerrors.Wrap(pkgerrors.CodeMalformedPayload, err, "decode stripe event")
	}
	if event.ID == "" || event.Type == "" {
		return stripe.Event{}, pkgerrors.New(pkgerrors.CodeMalformedPayload, "stripe event id and type required")
	}
	return event, nil
}
