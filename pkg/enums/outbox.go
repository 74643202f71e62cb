package enums

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateOrder    OutboxAggregateType = "order"
	AggregateSolution OutboxAggregateType = "solution"
)

var aggregateTypes = newSet("aggregate type", AggregateOrder, AggregateSolution)

func (a OutboxAggregateType) IsValid() bool { return aggregateTypes.has(a) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return aggregateTypes.parse(value)
}

// OutboxEventType maps to the event_type enum in Postgres. Each value is a
// payment fact published downstream.
type OutboxEventType string

const (
	EventOrderPaid               OutboxEventType = "order_paid"
	EventOrderPaymentFailed      OutboxEventType = "order_payment_failed"
	EventOrderExpired            OutboxEventType = "order_expired"
	EventOrderCanceled           OutboxEventType = "order_canceled"
	EventSolutionDiscountGranted OutboxEventType = "solution_discount_granted"
)

var outboxEventTypes = newSet("event type",
	EventOrderPaid,
	EventOrderPaymentFailed,
	EventOrderExpired,
	EventOrderCanceled,
	EventSolutionDiscountGranted,
)

func (e OutboxEventType) IsValid() bool { return outboxEventTypes.has(e) }

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return outboxEventTypes.parse(value)
}
