package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/flowdesk-backend/pkg/types"
)

// PaymentEvent is an immutable log entry for one inbound Stripe event.
type PaymentEvent struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventID         string              `gorm:"column:event_id;not null;uniqueIndex"`
	EventType       string              `gorm:"column:event_type;not null"`
	PaymentIntentID *string             `gorm:"column:payment_intent_id"`
	SessionID       *string             `gorm:"column:session_id"`
	OrderID         *uuid.UUID          `gorm:"column:order_id;type:uuid"`
	Status          *string             `gorm:"column:status"`
	Amount          decimal.NullDecimal `gorm:"column:amount;type:numeric(12,2)"`
	Metadata        types.Metadata      `gorm:"column:metadata;type:jsonb;not null;default:'{}'"`
	RawEvent        types.RawJSON       `gorm:"column:raw_event;type:jsonb"`
	// EventCreatedAt is the processor-side creation time of the event.
	EventCreatedAt time.Time `gorm:"column:event_created_at;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName keeps the historical table name.
func (PaymentEvent) TableName() string {
	return "stripe_events"
}
