package metrics

import "github.com/prometheus/client_golang/prometheus"

// OutboxMetrics counts outbox rows handled by the publisher.
type OutboxMetrics struct {
	rows *prometheus.CounterVec
}

// NewOutboxMetrics registers the outbox publisher metrics.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	rows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flowdesk_outbox_rows_total",
		Help: "Outbox rows handled by the publisher by event type and outcome.",
	}, []string{"event_type", "outcome"})
	reg.MustRegister(rows)
	return &OutboxMetrics{rows: rows}
}

// Observe records the outcome for one row.
func (m *OutboxMetrics) Observe(eventType, outcome string) {
	if m == nil || m.rows == nil {
		return
	}
	m.rows.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}
