package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs     *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration *prometheus.HistogramVec
	glLines  *prometheus.CounterVec
	synced   *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// AddCostCenterLines counts ledger lines a correction run updated or skipped.
func (m *Metrics) AddCostCenterLines(updated, skipped int) {
	if m == nil {
		return
	}
	if updated > 0 {
		m.glLines.WithLabelValues("updated").Add(float64(updated))
	}
	if skipped > 0 {
		m.glLines.WithLabelValues("skipped").Add(float64(skipped))
	}
}

// AddSynced counts documents posted by a sync and problems it reported.
func (m *Metrics) AddSynced(posted, problems int) {
	if m == nil {
		return
	}
	if posted > 0 {
		m.synced.WithLabelValues("posted").Add(float64(posted))
	}
	if problems > 0 {
		m.synced.WithLabelValues("problem").Add(float64(problems))
	}
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "expensepay_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "expensepay_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "expensepay_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	glLines := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "expensepay_cost_center_gl_lines_total",
		Help: "VAT ledger lines visited by cost-center corrections, by outcome.",
	}, []string{"outcome"})
	synced := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "expensepay_gl_sync_documents_total",
		Help: "Documents handled by the missing GL entry sync, by outcome.",
	}, []string{"outcome"})
	registerer.MustRegister(runs, failures, duration, glLines, synced)
	return &Metrics{runs: runs, failures: failures, duration: duration, glLines: glLines, synced: synced}
}
