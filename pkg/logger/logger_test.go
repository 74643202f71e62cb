package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry), buf.String())
	return entry
}

func TestErrorCarriesContextFieldsAndStack(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "api", Level: ParseLevel("debug"), Output: buf})

	ctx := log.WithRequestID(context.Background(), "req-123")
	ctx = log.WithOrderID(ctx, "order-1")
	log.Error(ctx, "order.payment.write_failed", errors.New("deadlock"))

	entry := decodeEntry(t, buf)
	assert.Equal(t, "api", entry["service"])
	assert.Equal(t, "req-123", entry["request_id"])
	assert.Equal(t, "order-1", entry["order_id"])
	assert.Equal(t, "deadlock", entry["error"])
	assert.Equal(t, "ERROR", entry["severity"])
	stack, ok := entry["stack"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, stack)
	assert.Contains(t, stack[0], "TestErrorCarriesContextFieldsAndStack")
}

func TestStripeEventFieldsStackOnContext(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "api", Output: buf})

	ctx := log.WithStripeEvent(context.Background(), "evt_1", "checkout.session.completed")
	ctx = log.WithFields(ctx, Fields{"outcome": "applied"})
	log.Info(ctx, "stripe.event.processed")

	entry := decodeEntry(t, buf)
	assert.Equal(t, "evt_1", entry["stripe_event_id"])
	assert.Equal(t, "checkout.session.completed", entry["stripe_event_type"])
	assert.Equal(t, "applied", entry["outcome"])
	assert.Equal(t, "INFO", entry["severity"])
}

func TestFieldsDoNotLeakBetweenContexts(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "api", Output: buf})

	parent := log.WithOrderID(context.Background(), "order-1")
	_ = log.WithField(parent, "attempt", 2)
	log.Info(parent, "order.payment.refreshed")

	entry := decodeEntry(t, buf)
	assert.Equal(t, "order-1", entry["order_id"])
	assert.NotContains(t, entry, "attempt")
}

func TestWarnStackToggle(t *testing.T) {
	buf := &bytes.Buffer{}
	New(Options{ServiceName: "api", Output: buf, WarnStack: true}).Warn(context.Background(), "stripe.idempotency.unavailable")
	entry := decodeEntry(t, buf)
	assert.Contains(t, entry, "stack")
	assert.Equal(t, "WARNING", entry["severity"])

	buf.Reset()
	New(Options{ServiceName: "api", Output: buf}).Warn(context.Background(), "stripe.idempotency.unavailable")
	assert.NotContains(t, decodeEntry(t, buf), "stack")
}

func TestLevelFiltersEntries(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "cron-worker", Level: zerolog.WarnLevel, Output: buf})
	log.Info(context.Background(), "cron.cycle.started")
	assert.Zero(t, buf.Len())
}

func TestConsoleFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "api", Format: "console", Output: buf})
	log.Info(context.Background(), "server.started")
	assert.Contains(t, buf.String(), "server.started")
	assert.False(t, strings.HasPrefix(buf.String(), "{"))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("loud"))
	assert.Equal(t, zerolog.DebugLevel, ParseLevel(" DEBUG "))
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel("error"))
}
