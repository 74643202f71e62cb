package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/flowdesk-backend/pkg/enums"
)

// OutboxEvent is a payment fact written in the same transaction as the ledger
// change that produced it and relayed to Pub/Sub afterwards.
type OutboxEvent struct {
	ID            uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventType     enums.OutboxEventType     `gorm:"column:event_type;type:event_type_enum;not null"`
	AggregateType enums.OutboxAggregateType `gorm:"column:aggregate_type;type:aggregate_type_enum;not null"`
	AggregateID   uuid.UUID                 `gorm:"column:aggregate_id;type:uuid;not null"`
	// OrderID is the order behind the fact, also for solution events.
	OrderID *uuid.UUID `gorm:"column:order_id;type:uuid"`
	// StripeEventID is empty for refresh and settlement driven changes.
	StripeEventID *string         `gorm:"column:stripe_event_id"`
	Payload       json.RawMessage `gorm:"column:payload;type:jsonb;not null"`
	AttemptCount  int             `gorm:"column:attempt_count;not null;default:0"`
	LastError     *string         `gorm:"column:last_error"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	PublishedAt   *time.Time      `gorm:"column:published_at"`
}

func (OutboxEvent) TableName() string { return "outbox_events" }

// OrderingKey groups every fact about one order so consumers see them in
// commit order. Rows without an order are unordered.
func (e OutboxEvent) OrderingKey() string {
	if e.OrderID == nil || *e.OrderID == uuid.Nil {
		return ""
	}
	return e.OrderID.String()
}
