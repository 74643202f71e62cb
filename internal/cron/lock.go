package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultLeaseTTL = 30 * time.Minute

// Locker hands out per-job leases so two workers never run the same job at once.
type Locker interface {
	Acquire(ctx context.Context, job string) (Lease, bool, error)
}

// Lease is held for the duration of one job run.
type Lease interface {
	Release(ctx context.Context) error
}

type leaseStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	LockKey(name string) string
}

// RedisLocker leases jobs with SET NX and a TTL, so a crashed worker's lease
// expires on its own.
type RedisLocker struct {
	store leaseStore
	scope string
	ttl   time.Duration
}

// NewRedisLocker builds a locker whose keys are namespaced by scope, normally
// the deployment environment.
func NewRedisLocker(store leaseStore, scope string, ttl time.Duration) (*RedisLocker, error) {
	if store == nil {
		return nil, errors.New("redis store required for cron leases")
	}
	if scope == "" {
		return nil, errors.New("lease scope is required")
	}
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}
	return &RedisLocker{store: store, scope: scope, ttl: ttl}, nil
}

func (l *RedisLocker) Acquire(ctx context.Context, job string) (Lease, bool, error) {
	key := l.store.LockKey("cron:" + l.scope + ":" + job)
	owner := uuid.NewString()
	ok, err := l.store.SetNX(ctx, key, owner, l.ttl)
	if err != nil {
		return nil, false, fmt.Errorf("lease %s: %w", job, err)
	}
	if !ok {
		return nil, false, nil
	}
	return &redisLease{store: l.store, key: key, owner: owner}, true, nil
}

type redisLease struct {
	store leaseStore
	key   string
	owner string
}

// Release drops the lease unless it already expired and another worker took it.
func (l *redisLease) Release(ctx context.Context) error {
	current, err := l.store.Get(ctx, l.key)
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read lease owner: %w", err)
	}
	if current != l.owner {
		return nil
	}
	if err := l.store.Del(ctx, l.key); err != nil {
		return fmt.Errorf("drop lease: %w", err)
	}
	return nil
}
