package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/flowdesk-backend/pkg/db/models"
	"github.com/angelmondragon/flowdesk-backend/pkg/enums"
)

func setupOutboxTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Exec(`
CREATE TABLE outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  order_id TEXT,
  stripe_event_id TEXT,
  payload BLOB NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`).Error)
	return db
}

func TestEmitWritesEnvelope(t *testing.T) {
	db := setupOutboxTestDB(t)
	svc := NewService(NewRepository(db), nil)
	orderID := uuid.New()

	err := svc.Emit(context.Background(), db, DomainEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		OrderID:       orderID,
		StripeEventID: "evt_42",
		Source:        "stripe_webhook",
		Data:          map[string]string{"order_id": orderID.String()},
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.EventOrderPaid, rows[0].EventType)
	assert.Equal(t, orderID, rows[0].AggregateID)
	assert.Equal(t, orderID.String(), rows[0].OrderingKey())
	require.NotNil(t, rows[0].StripeEventID)
	assert.Equal(t, "evt_42", *rows[0].StripeEventID)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	assert.Equal(t, 1, envelope.Version)
	assert.Equal(t, "stripe_webhook", envelope.Source)
	assert.NotEmpty(t, envelope.EventID)
	assert.JSONEq(t, `{"order_id":"`+orderID.String()+`"}`, string(envelope.Data))
}

func TestEmitRequiresTransactionAndKnownType(t *testing.T) {
	db := setupOutboxTestDB(t)
	svc := NewService(NewRepository(db), nil)

	require.Error(t, svc.Emit(context.Background(), nil, DomainEvent{EventType: enums.EventOrderPaid}))
	require.Error(t, svc.Emit(context.Background(), db, DomainEvent{EventType: "order_shipped"}))
}

func TestEmitWithoutOrderIsUnordered(t *testing.T) {
	db := setupOutboxTestDB(t)
	svc := NewService(NewRepository(db), nil)

	require.NoError(t, svc.Emit(context.Background(), db, DomainEvent{
		EventType:     enums.EventSolutionDiscountGranted,
		AggregateType: enums.AggregateSolution,
		AggregateID:   uuid.New(),
		Source:        "refresh",
		Data:          map[string]string{},
	}))

	var row models.OutboxEvent
	require.NoError(t, db.First(&row).Error)
	assert.Nil(t, row.OrderID)
	assert.Nil(t, row.StripeEventID)
	assert.Empty(t, row.OrderingKey())
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)

	first := models.OutboxEvent{ID: uuid.New(), EventType: enums.EventOrderPaid, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	second := models.OutboxEvent{ID: uuid.New(), EventType: enums.EventOrderExpired, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	require.NoError(t, repo.Insert(db, first))
	require.NoError(t, repo.Insert(db, second))

	pending, err := repo.FetchPendingTx(db, 10, 3)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	require.NoError(t, repo.MarkPublishedTx(db, first.ID))
	require.NoError(t, repo.MarkFailedTx(db, second.ID, errors.New("topic unavailable")))

	pending, err = repo.FetchPendingTx(db, 10, 3)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].AttemptCount)
	require.NotNil(t, pending[0].LastError)
	assert.Equal(t, "topic unavailable", *pending[0].LastError)

	require.NoError(t, repo.MarkTerminalTx(db, second.ID, errors.New("bad payload"), 3))
	pending, err = repo.FetchPendingTx(db, 10, 3)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRepositoryDeletePublishedBefore(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)
	now := time.Now().UTC()
	old := now.Add(-40 * 24 * time.Hour)

	published := models.OutboxEvent{ID: uuid.New(), EventType: enums.EventOrderPaid, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`), CreatedAt: old}
	dead := models.OutboxEvent{ID: uuid.New(), EventType: enums.EventOrderPaid, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`), CreatedAt: old, AttemptCount: 5}
	pending := models.OutboxEvent{ID: uuid.New(), EventType: enums.EventOrderPaid, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`), CreatedAt: old}
	recent := models.OutboxEvent{ID: uuid.New(), EventType: enums.EventOrderPaid, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`), CreatedAt: now}
	for _, evt := range []models.OutboxEvent{published, dead, pending, recent} {
		require.NoError(t, repo.Insert(db, evt))
	}
	require.NoError(t, db.Model(&models.OutboxEvent{}).Where("id = ?", published.ID).Update("published_at", old).Error)
	require.NoError(t, repo.MarkPublishedTx(db, recent.ID))

	deleted, err := repo.DeletePublishedBefore(context.Background(), db, now.Add(-30*24*time.Hour), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	var remaining int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Count(&remaining).Error)
	assert.Equal(t, int64(2), remaining)
}

func TestTruncateErrorCutsOnRuneBoundary(t *testing.T) {
	msg := strings.Repeat("a", maxLastErrorLen-1) + "€tail"
	got := truncateError(errors.New(msg))
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("a", maxLastErrorLen-1), got)
	assert.Empty(t, truncateError(nil))
}
