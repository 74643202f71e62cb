package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/flowdesk-backend/pkg/config"
	"github.com/angelmondragon/flowdesk-backend/pkg/db/models"
	"github.com/angelmondragon/flowdesk-backend/pkg/enums"
	"github.com/angelmondragon/flowdesk-backend/pkg/outbox"
	"github.com/angelmondragon/flowdesk-backend/pkg/outbox/payloads"
)

// EventDescriptor says where an event type is published and how its payload
// decodes.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
}

// ResolvedEvent is an outbox row checked against its descriptor.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// EventRegistry maps each payment fact to its topic and payload type.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError marks a row that will fail the same way on every attempt.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func nonRetryable(format string, args ...any) error {
	return NonRetryableError{Err: fmt.Errorf(format, args...)}
}

// catalog is every fact the ledger emits. Order facts go to the payments
// topic; solution facts go to the solutions topic when one is configured.
var catalog = []EventDescriptor{
	{EventType: enums.EventOrderPaid, AggregateType: enums.AggregateOrder, PayloadFactory: func() any { return &payloads.OrderPaidEvent{} }},
	{EventType: enums.EventOrderPaymentFailed, AggregateType: enums.AggregateOrder, PayloadFactory: func() any { return &payloads.OrderPaymentFailedEvent{} }},
	{EventType: enums.EventOrderExpired, AggregateType: enums.AggregateOrder, PayloadFactory: func() any { return &payloads.OrderClosedEvent{} }},
	{EventType: enums.EventOrderCanceled, AggregateType: enums.AggregateOrder, PayloadFactory: func() any { return &payloads.OrderClosedEvent{} }},
	{EventType: enums.EventSolutionDiscountGranted, AggregateType: enums.AggregateSolution, PayloadFactory: func() any { return &payloads.SolutionDiscountGrantedEvent{} }},
}

func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	payments := strings.TrimSpace(cfg.PaymentsTopic)
	if payments == "" {
		return nil, errors.New("payments topic is required")
	}
	topics := map[enums.OutboxAggregateType]string{
		enums.AggregateOrder:    payments,
		enums.AggregateSolution: payments,
	}
	if solutions := strings.TrimSpace(cfg.SolutionsTopic); solutions != "" {
		topics[enums.AggregateSolution] = solutions
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(catalog))}
	for _, desc := range catalog {
		desc.Topic = topics[desc.AggregateType]
		reg.entries[desc.EventType] = desc
	}
	return reg, nil
}

// Resolve checks the row's type, aggregate and envelope and decodes the typed
// payload. Every failure is non-retryable: the stored row cannot change.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, nonRetryable("unsupported event type %s", event.EventType)
	case desc.AggregateType != event.AggregateType:
		return nil, nonRetryable("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, nonRetryable("missing aggregate_id")
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, nonRetryable("decode envelope: %w", err)
	}
	data := bytes.TrimSpace(envelope.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nonRetryable("payload missing for %s", event.EventType)
	}

	payload := desc.PayloadFactory()
	if err := json.Unmarshal(data, payload); err != nil {
		return nil, nonRetryable("decode %s payload: %w", event.EventType, err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
