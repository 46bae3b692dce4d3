package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the pipeline's Prometheus collectors.
type Metrics struct {
	jobs     *prometheus.CounterVec
	failures *prometheus.CounterVec
	files    *prometheus.CounterVec
	stages   *prometheus.HistogramVec
	duration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg when non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bill_extractor",
			Name:      "jobs_total",
			Help:      "Extraction jobs by final status.",
		}, []string{"status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bill_extractor",
			Name:      "stage_failures_total",
			Help:      "Failed jobs by the stage that failed.",
		}, []string{"stage"}),
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bill_extractor",
			Name:      "files_total",
			Help:      "Processed files by detected company.",
		}, []string{"company"}),
		stages: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bill_extractor",
			Name:      "stage_duration_seconds",
			Help:      "Duration of successful pipeline stages.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"stage"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "bill_extractor",
			Name:      "job_duration_seconds",
			Help:      "Duration of successful jobs.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.jobs, m.failures, m.files, m.stages, m.duration)
	}
	return m
}

func (m *Metrics) observeStage(stage string, start time.Time) {
	m.stages.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
