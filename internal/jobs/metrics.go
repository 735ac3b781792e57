package jobs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes job runner activity to prometheus.
type Metrics struct {
	submitted  *prometheus.CounterVec
	completed  *prometheus.CounterVec
	retries    *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	queueDepth prometheus.Gauge
}

// NewMetrics creates and registers the job collectors on reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "sentinel"
	}

	m := &Metrics{
		submitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_submitted_total",
				Help:      "Total number of jobs submitted",
			},
			[]string{"name"},
		),
		completed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_completed_total",
				Help:      "Total number of jobs reaching a terminal state",
			},
			[]string{"name", "status"},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "job_retries_total",
				Help:      "Total number of job retry attempts",
			},
			[]string{"name"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_duration_seconds",
				Help:      "Duration of job attempts",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"name", "status"},
		),
		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "job_queue_depth",
				Help:      "Current depth of the job work queue",
			},
		),
	}

	reg.MustRegister(m.submitted, m.completed, m.retries, m.duration, m.queueDepth)
	return m
}

// Submitted records a job submission.
func (m *Metrics) Submitted(name string) {
	m.submitted.WithLabelValues(name).Inc()
}

// Completed records a terminal job attempt.
func (m *Metrics) Completed(name, status string, elapsed time.Duration) {
	m.completed.WithLabelValues(name, status).Inc()
	m.duration.WithLabelValues(name, status).Observe(elapsed.Seconds())
}

// Retried records a scheduled retry.
func (m *Metrics) Retried(name string) {
	m.retries.WithLabelValues(name).Inc()
}

// SetQueueDepth updates the queue depth gauge.
func (m *Metrics) SetQueueDepth(n int) {
	m.queueDepth.Set(float64(n))
}
