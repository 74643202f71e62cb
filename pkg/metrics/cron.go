package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	CronOutcomeOK      = "ok"
	CronOutcomeError   = "error"
	CronOutcomeSkipped = "skipped"
)

// CronJobMetrics tracks the cron worker's jobs: how each run ended, how long
// it took, and how many orders or rows it touched.
type CronJobMetrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	items       *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
}

func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	m := &CronJobMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowdesk_cron_job_runs_total",
			Help: "Cron job runs by job and outcome (ok, error, skipped).",
		}, []string{"job", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flowdesk_cron_job_duration_seconds",
			Help:    "Wall time of cron job runs.",
			Buckets: []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"job"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowdesk_cron_job_items_total",
			Help: "Items a cron job handled, e.g. settled orders or pruned outbox rows.",
		}, []string{"job", "kind"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "flowdesk_cron_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run per job.",
		}, []string{"job"}),
	}
	reg.MustRegister(m.runs, m.duration, m.items, m.lastSuccess)
	return m
}

// ObserveRun records a finished run. A successful run also moves the job's
// last-success timestamp to finishedAt.
func (m *CronJobMetrics) ObserveRun(job string, err error, took time.Duration, finishedAt time.Time) {
	if m == nil || m.runs == nil {
		return
	}
	job = normalizeLabel(job)
	m.duration.WithLabelValues(job).Observe(took.Seconds())
	if err != nil {
		m.runs.WithLabelValues(job, CronOutcomeError).Inc()
		return
	}
	m.runs.WithLabelValues(job, CronOutcomeOK).Inc()
	m.lastSuccess.WithLabelValues(job).Set(float64(finishedAt.Unix()))
}

// Skipped counts a due run that did not start because another worker held the lease.
func (m *CronJobMetrics) Skipped(job string) {
	if m == nil || m.runs == nil {
		return
	}
	m.runs.WithLabelValues(normalizeLabel(job), CronOutcomeSkipped).Inc()
}

// AddItems adds a run's per-kind counts.
func (m *CronJobMetrics) AddItems(job string, counts map[string]int) {
	if m == nil || m.items == nil {
		return
	}
	job = normalizeLabel(job)
	for kind, n := range counts {
		if n <= 0 {
			continue
		}
		m.items.WithLabelValues(job, normalizeLabel(kind)).Add(float64(n))
	}
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
