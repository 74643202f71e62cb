package cron

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryLeaseStore struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemoryLeaseStore() *memoryLeaseStore {
	return &memoryLeaseStore{values: map[string]string{}}
}

func (m *memoryLeaseStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memoryLeaseStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memoryLeaseStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func (m *memoryLeaseStore) LockKey(name string) string { return "fd:lock:" + name }

func TestRedisLockerLeasesPerJob(t *testing.T) {
	store := newMemoryLeaseStore()
	locker, err := NewRedisLocker(store, "prod", time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	lease, ok, err := locker.Acquire(ctx, "settlement-sync")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, store.values, "fd:lock:cron:prod:settlement-sync")

	_, ok, err = locker.Acquire(ctx, "settlement-sync")
	require.NoError(t, err)
	assert.False(t, ok, "second worker is kept out while the lease is held")

	_, ok, err = locker.Acquire(ctx, "outbox-prune")
	require.NoError(t, err)
	assert.True(t, ok, "other jobs lease independently")

	require.NoError(t, lease.Release(ctx))
	_, ok, err = locker.Acquire(ctx, "settlement-sync")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLeaseKeepsForeignOwner(t *testing.T) {
	store := newMemoryLeaseStore()
	locker, err := NewRedisLocker(store, "prod", time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	lease, ok, err := locker.Acquire(ctx, "settlement-sync")
	require.NoError(t, err)
	require.True(t, ok)

	// the lease expired and another worker took it
	store.values["fd:lock:cron:prod:settlement-sync"] = "other-worker"
	require.NoError(t, lease.Release(ctx))
	assert.Equal(t, "other-worker", store.values["fd:lock:cron:prod:settlement-sync"])

	delete(store.values, "fd:lock:cron:prod:settlement-sync")
	require.NoError(t, lease.Release(ctx))
}

func TestNewRedisLockerValidates(t *testing.T) {
	_, err := NewRedisLocker(nil, "prod", time.Minute)
	require.Error(t, err)
	_, err = NewRedisLocker(newMemoryLeaseStore(), "", time.Minute)
	require.Error(t, err)

	locker, err := NewRedisLocker(newMemoryLeaseStore(), "prod", 0)
	require.NoError(t, err)
	assert.Equal(t, defaultLeaseTTL, locker.ttl)
}
