package payloads

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/flowdesk-backend/pkg/enums"
)

// OrderPaidEvent is emitted when an order first reaches succeeded.
type OrderPaidEvent struct {
	OrderID         uuid.UUID       `json:"order_id"`
	SolutionID      uuid.UUID       `json:"solution_id"`
	PlanType        enums.PlanType  `json:"plan_type"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	CustomerEmail   string          `json:"customer_email"`
	PaymentIntentID string          `json:"payment_intent_id,omitempty"`
	Captured        bool            `json:"captured"`
	StripeEventID   string          `json:"stripe_event_id,omitempty"`
}

// OrderPaymentFailedEvent is emitted when a payment attempt fails.
type OrderPaymentFailedEvent struct {
	OrderID         uuid.UUID `json:"order_id"`
	SolutionID      uuid.UUID `json:"solution_id"`
	PaymentIntentID string    `json:"payment_intent_id,omitempty"`
	FailureReason   string    `json:"failure_reason,omitempty"`
	StripeEventID   string    `json:"stripe_event_id,omitempty"`
}

// OrderClosedEvent covers checkout sessions that expired and intents that were canceled.
type OrderClosedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	SolutionID    uuid.UUID           `json:"solution_id"`
	Status        enums.PaymentStatus `json:"status"`
	StripeEventID string              `json:"stripe_event_id,omitempty"`
}

// SolutionDiscountGrantedEvent is emitted once per solution when a premium
// purchase credits its amount toward the pro tier.
type SolutionDiscountGrantedEvent struct {
	SolutionID uuid.UUID       `json:"solution_id"`
	OrderID    uuid.UUID       `json:"order_id"`
	Discount   decimal.Decimal `json:"discount"`
}
