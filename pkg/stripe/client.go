package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"
	stripewebhook "github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/flowdesk-backend/pkg/config"
	"github.com/angelmondragon/flowdesk-backend/pkg/logger"
)

// keyPrefixes lists the secret and restricted key prefixes each account mode
// accepts. A live key in a test deployment (or the reverse) is a boot error.
var keyPrefixes = map[string][]string{
	"test": {"sk_test", "rk_test"},
	"live": {"sk_live", "rk_live"},
}

var (
	errAPIKeyRequired = errors.New("stripe api key is required")
	errSecretRequired = errors.New("stripe webhook secret is required")
)

// WebhookSettings is what a verifier needs to authenticate deliveries.
type WebhookSettings struct {
	Secret    string
	Tolerance time.Duration
}

// Client is the ledger's handle on one Stripe account. The key lives on the
// client; the package-level stripe.Key is never set.
type Client struct {
	api     *stripe.Client
	mode    string
	webhook WebhookSettings
}

// NewClient checks the key against the configured mode and builds the API
// client. opts reach stripe.NewClient, for example to aim backends at a test
// server.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger, opts ...stripe.ClientOption) (*Client, error) {
	mode := cfg.Environment()
	accepted, ok := keyPrefixes[mode]
	if !ok {
		return nil, fmt.Errorf("stripe environment %q is not test or live", mode)
	}

	key := strings.TrimSpace(cfg.APIKey)
	secret := strings.TrimSpace(cfg.Secret)
	switch {
	case key == "":
		return nil, errAPIKeyRequired
	case secret == "":
		return nil, errSecretRequired
	case !hasAnyPrefix(key, accepted):
		return nil, fmt.Errorf("stripe %s mode needs a %s key", mode, strings.Join(accepted, "/"))
	}

	c := &Client{
		api:     stripe.NewClient(key, opts...),
		mode:    mode,
		webhook: WebhookSettings{Secret: secret, Tolerance: cfg.Tolerance},
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "stripe_mode", mode), "stripe.connected")
	}
	return c, nil
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// Environment is the account mode, test or live.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.mode
}

func (c *Client) SigningSecret() string {
	return c.Webhook().Secret
}

func (c *Client) Tolerance() time.Duration {
	return c.Webhook().Tolerance
}

// Webhook returns the signing settings, with Stripe's default tolerance when
// none is configured.
func (c *Client) Webhook() WebhookSettings {
	var settings WebhookSettings
	if c != nil {
		settings = c.webhook
	}
	if settings.Tolerance <= 0 {
		settings.Tolerance = stripewebhook.DefaultTolerance
	}
	return settings
}
