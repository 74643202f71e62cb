package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/flowdesk-backend/pkg/db/models"
	"github.com/angelmondragon/flowdesk-backend/pkg/enums"
	"github.com/angelmondragon/flowdesk-backend/pkg/types"
)

// OrderView is the public shape of an order returned by the payments endpoints.
type OrderView struct {
	ID                    uuid.UUID           `json:"id"`
	SolutionID            uuid.UUID           `json:"solution_id"`
	StripeSessionID       *string             `json:"stripe_session_id"`
	PaymentIntentID       *string             `json:"payment_intent_id"`
	PaymentStatus         enums.PaymentStatus `json:"payment_status"`
	StripePaymentCaptured bool                `json:"stripe_payment_captured"`
	Amount                decimal.Decimal     `json:"amount"`
	Currency              string              `json:"currency"`
	PlanType              enums.PlanType      `json:"plan_type"`
	Metadata              types.Metadata      `json:"metadata"`
	LastEventAt           *time.Time          `json:"last_event_at,omitempty"`
	UpdatedAt             time.Time           `json:"updated_at"`
}

// EventView summarises one logged processor event for an order.
type EventView struct {
	EventID        string    `json:"event_id"`
	EventType      string    `json:"event_type"`
	Status         *string   `json:"status,omitempty"`
	EventCreatedAt time.Time `json:"event_created_at"`
}

// OrderDetail is an order plus its event history, oldest first.
type OrderDetail struct {
	Order  OrderView   `json:"order"`
	Events []EventView `json:"events"`
}

// ToView maps a ledger row to its API representation.
func ToView(order *models.Order) OrderView {
	if order == nil {
		return OrderView{}
	}
	metadata := order.Metadata
	if metadata == nil {
		metadata = types.Metadata{}
	}
	return OrderView{
		ID:                    order.ID,
		SolutionID:            order.SolutionID,
		StripeSessionID:       order.StripeSessionID,
		PaymentIntentID:       order.PaymentIntentID,
		PaymentStatus:         order.PaymentStatus,
		StripePaymentCaptured: order.StripePaymentCaptured,
		Amount:                order.Amount,
		Currency:              order.Currency,
		PlanType:              order.PlanType,
		Metadata:              metadata,
		LastEventAt:           order.LastEventAt,
		UpdatedAt:             order.UpdatedAt,
	}
}

func toEventViews(entries []models.PaymentEvent) []EventView {
	out := make([]EventView, 0, len(entries))
	for _, e := range entries {
		out = append(out, EventView{
			EventID:        e.EventID,
			EventType:      e.EventType,
			Status:         e.Status,
			EventCreatedAt: e.EventCreatedAt,
		})
	}
	return out
}
