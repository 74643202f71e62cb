package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/flowdesk-backend/pkg/redis"
)

const (
	markerInFlight = "processing"
	markerDone     = "done"

	defaultInFlightTTL = 2 * time.Minute
)

// Claim is the guard's verdict on a delivery.
type Claim int

const (
	// ClaimAcquired means this delivery owns the event until Complete or Abandon.
	ClaimAcquired Claim = iota
	// ClaimDuplicate means an earlier delivery was fully applied.
	ClaimDuplicate
	// ClaimInFlight means another delivery of the same event is still running.
	ClaimInFlight
)

// IdempotencyGuard short-circuits repeat deliveries of a Stripe event id
// before any database work happens. An event is only remembered as done
// after it was applied, so a retry that races a failing attempt is never
// acknowledged without being processed.
type IdempotencyGuard struct {
	store       redis.IdempotencyStore
	ttl         time.Duration
	inFlightTTL time.Duration
	scope       string
}

func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	inFlight := defaultInFlightTTL
	if ttl > 0 && ttl < inFlight {
		inFlight = ttl
	}
	return &IdempotencyGuard{
		store:       store,
		ttl:         ttl,
		inFlightTTL: inFlight,
		scope:       scope,
	}, nil
}

// Begin tries to take ownership of eventID for this delivery.
func (g *IdempotencyGuard) Begin(ctx context.Context, eventID string) (Claim, error) {
	key, err := g.key(eventID)
	if err != nil {
		return ClaimAcquired, err
	}
	acquired, err := g.store.SetNX(ctx, key, markerInFlight, g.inFlightTTL)
	if err != nil {
		return ClaimAcquired, fmt.Errorf("claim stripe event: %w", err)
	}
	if acquired {
		return ClaimAcquired, nil
	}

	marker, err := g.store.Get(ctx, key)
	if err != nil && !errors.Is(err, goredis.Nil) {
		return ClaimAcquired, fmt.Errorf("read stripe event claim: %w", err)
	}
	if marker == markerDone {
		return ClaimDuplicate, nil
	}
	// a claim that vanished between SetNX and Get is treated as still running;
	// Stripe retries and the next delivery can take it
	return ClaimInFlight, nil
}

// Complete records eventID as applied for the guard's TTL.
func (g *IdempotencyGuard) Complete(ctx context.Context, eventID string) error {
	key, err := g.key(eventID)
	if err != nil {
		return err
	}
	if err := g.store.Set(ctx, key, markerDone, g.ttl); err != nil {
		return fmt.Errorf("mark stripe event done: %w", err)
	}
	return nil
}

// Abandon drops the in-flight claim so Stripe's retry is processed.
func (g *IdempotencyGuard) Abandon(ctx context.Context, eventID string) error {
	key, err := g.key(eventID)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}

func (g *IdempotencyGuard) key(eventID string) (string, error) {
	if eventID == "" {
		return "", errors.New("event id is required")
	}
	return g.store.IdempotencyKey(g.scope, eventID), nil
}
