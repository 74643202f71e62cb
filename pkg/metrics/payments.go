package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics tracks webhook ingestion and ledger transitions.
type PaymentMetrics struct {
	webhookEvents   *prometheus.CounterVec
	webhookDuration *prometheus.HistogramVec
	transitions     *prometheus.CounterVec
	refreshes       *prometheus.CounterVec
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flowdesk_stripe_webhook_events_total",
		Help: "Stripe webhook deliveries by event type and outcome.",
	}, []string{"event_type", "outcome"})
	webhookDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "flowdesk_stripe_webhook_duration_seconds",
		Help:    "Time spent handling a Stripe webhook delivery.",
		Buckets: prometheus.DefBuckets,
	}, []string{"event_type"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flowdesk_order_payment_transitions_total",
		Help: "Order payment status transitions applied to the ledger.",
	}, []string{"from", "to"})
	refreshes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flowdesk_payment_refresh_total",
		Help: "Active reconciliation runs by kind and result.",
	}, []string{"kind", "result"})
	reg.MustRegister(webhookEvents, webhookDuration, transitions, refreshes)
	return &PaymentMetrics{
		webhookEvents:   webhookEvents,
		webhookDuration: webhookDuration,
		transitions:     transitions,
		refreshes:       refreshes,
	}
}

// ObserveWebhook records one delivery and how long it took.
func (m *PaymentMetrics) ObserveWebhook(eventType, outcome string, took time.Duration) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	eventType = normalizeLabel(eventType)
	m.webhookEvents.WithLabelValues(eventType, normalizeLabel(outcome)).Inc()
	m.webhookDuration.WithLabelValues(eventType).Observe(took.Seconds())
}

// IncTransition counts a status change written to an order.
func (m *PaymentMetrics) IncTransition(from, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

// IncRefresh counts a refresh run, kind being "order" or "transactions".
func (m *PaymentMetrics) IncRefresh(kind string, err error) {
	if m == nil || m.refreshes == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.refreshes.WithLabelValues(normalizeLabel(kind), result).Inc()
}
