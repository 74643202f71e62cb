package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/flowdesk-backend/pkg/enums"
	"github.com/angelmondragon/flowdesk-backend/pkg/types"
)

// Order is the purchase record a Stripe checkout settles against.
type Order struct {
	ID                    uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SolutionID            uuid.UUID           `gorm:"column:solution_id;type:uuid;not null" json:"solution_id"`
	StripeSessionID       *string             `gorm:"column:stripe_session_id;uniqueIndex" json:"stripe_session_id"`
	PaymentIntentID       *string             `gorm:"column:payment_intent_id;index" json:"payment_intent_id"`
	PaymentStatus         enums.PaymentStatus `gorm:"column:payment_status;type:payment_status;not null;default:'pending'" json:"payment_status"`
	StripePaymentCaptured bool                `gorm:"column:stripe_payment_captured;not null;default:false" json:"stripe_payment_captured"`
	Amount                decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null" json:"amount"`
	Currency              string              `gorm:"column:currency;type:char(3);not null;default:'usd'" json:"currency"`
	CustomerEmail         string              `gorm:"column:customer_email;not null" json:"customer_email"`
	PlanType              enums.PlanType      `gorm:"column:plan_type;type:plan_type;not null" json:"plan_type"`
	Metadata              types.Metadata      `gorm:"column:metadata;type:jsonb;not null;default:'{}'" json:"metadata"`
	LastEventAt           *time.Time          `gorm:"column:last_event_at" json:"last_event_at,omitempty"`
	CreatedAt             time.Time           `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time           `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
