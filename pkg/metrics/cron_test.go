package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronJobMetricsRunsItemsAndLastSuccess(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	finished := time.Date(2026, 3, 1, 9, 15, 0, 0, time.UTC)

	m.ObserveRun("settlement-sync", nil, 2*time.Second, finished)
	m.ObserveRun("settlement-sync", errors.New("stripe unavailable"), time.Second, finished.Add(time.Minute))
	m.Skipped("outbox-prune")
	m.AddItems("settlement-sync", map[string]int{"updated": 3, "failed": 0})
	m.AddItems("settlement-sync", map[string]int{"updated": 2})

	mfs, err := reg.Gather()
	require.NoError(t, err)

	ok, err := fetchCounterValue(mfs, "flowdesk_cron_job_runs_total", map[string]string{"job": "settlement-sync", "outcome": CronOutcomeOK})
	require.NoError(t, err)
	assert.Equal(t, 1.0, ok)

	failed, err := fetchCounterValue(mfs, "flowdesk_cron_job_runs_total", map[string]string{"job": "settlement-sync", "outcome": CronOutcomeError})
	require.NoError(t, err)
	assert.Equal(t, 1.0, failed)

	skipped, err := fetchCounterValue(mfs, "flowdesk_cron_job_runs_total", map[string]string{"job": "outbox-prune", "outcome": CronOutcomeSkipped})
	require.NoError(t, err)
	assert.Equal(t, 1.0, skipped)

	updated, err := fetchCounterValue(mfs, "flowdesk_cron_job_items_total", map[string]string{"job": "settlement-sync", "kind": "updated"})
	require.NoError(t, err)
	assert.Equal(t, 5.0, updated)
	_, err = fetchCounterValue(mfs, "flowdesk_cron_job_items_total", map[string]string{"kind": "failed"})
	assert.Error(t, err, "zero counts are not exported")

	last := findMetric(mfs, "flowdesk_cron_job_last_success_timestamp_seconds", map[string]string{"job": "settlement-sync"})
	require.NotNil(t, last)
	assert.Equal(t, float64(finished.Unix()), last.GetGauge().GetValue(), "a failed run leaves the last success in place")

	sum, err := fetchHistogramSum(mfs, "flowdesk_cron_job_duration_seconds", map[string]string{"job": "settlement-sync"})
	require.NoError(t, err)
	assert.Equal(t, 3.0, sum)
}

func TestCronJobMetricsNilSafe(t *testing.T) {
	var m *CronJobMetrics
	m.ObserveRun("x", nil, time.Second, time.Now())
	m.Skipped("x")
	m.AddItems("x", map[string]int{"updated": 1})
	NewCronJobMetrics(nil).Skipped("x")
}

func findMetric(mfs []*dto.MetricFamily, name string, labels map[string]string) *dto.Metric {
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if hasLabels(metric.GetLabel(), labels) {
				return metric
			}
		}
	}
	return nil
}

func fetchCounterValue(mfs []*dto.MetricFamily, name string, labels map[string]string) (float64, error) {
	metric := findMetric(mfs, name, labels)
	if metric == nil {
		return 0, fmt.Errorf("no %s sample with %v", name, labels)
	}
	return metric.GetCounter().GetValue(), nil
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name string, labels map[string]string) (float64, error) {
	metric := findMetric(mfs, name, labels)
	if metric == nil {
		return 0, fmt.Errorf("no %s sample with %v", name, labels)
	}
	return metric.GetHistogram().GetSampleSum(), nil
}

func hasLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	matched := 0
	for _, pair := range pairs {
		if v, ok := want[pair.GetName()]; ok && v == pair.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
