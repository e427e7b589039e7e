// Package metrics exposes ingestion and KPI calculation counters for
// Prometheus scraping.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds the pipeline's Prometheus collectors. A nil *Recorder is
// valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	batchesTotal       *prometheus.CounterVec
	findingsExtracted  *prometheus.CounterVec
	findingsAccepted   *prometheus.CounterVec
	findingsRejected   *prometheus.CounterVec
	kpiValuesTotal     *prometheus.CounterVec
	kpiFailuresTotal   *prometheus.CounterVec
	stageDuration      *prometheus.HistogramVec
	externalCallsTotal *prometheus.CounterVec
}

// New creates a Recorder backed by its own registry.
func New() (*Recorder, error) {
	r := &Recorder{registry: prometheus.NewRegistry()}

	r.batchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sirius_ingest_batches_total",
			Help: "Uploaded reports processed, by terminal stage",
		},
		[]string{"format", "outcome"},
	)
	r.findingsExtracted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sirius_ingest_findings_extracted_total",
			Help: "Raw findings produced by extractors",
		},
		[]string{"format"},
	)
	r.findingsAccepted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sirius_ingest_findings_accepted_total",
			Help: "Raw findings that passed normalization",
		},
		[]string{"format"},
	)
	r.findingsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sirius_ingest_findings_rejected_total",
			Help: "Raw findings rejected during normalization, by field",
		},
		[]string{"format", "field"},
	)
	r.kpiValuesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sirius_kpi_values_total",
			Help: "KPI values calculated, by strategy",
		},
		[]string{"strategy"},
	)
	r.kpiFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sirius_kpi_failures_total",
			Help: "KPI calculations that failed or were skipped",
		},
		[]string{"reason"},
	)
	r.stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sirius_ingest_stage_duration_seconds",
			Help:    "Time spent in each pipeline stage",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"stage"},
	)
	r.externalCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sirius_external_calls_total",
			Help: "Calls to collaborating services, by outcome",
		},
		[]string{"service", "outcome"},
	)

	collectors := []prometheus.Collector{
		r.batchesTotal,
		r.findingsExtracted,
		r.findingsAccepted,
		r.findingsRejected,
		r.kpiValuesTotal,
		r.kpiFailuresTotal,
		r.stageDuration,
		r.externalCallsTotal,
	}
	for _, c := range collectors {
		if err := r.registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}
	return r, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) Batch(format, outcome string) {
	if r == nil {
		return
	}
	r.batchesTotal.WithLabelValues(format, outcome).Inc()
}

func (r *Recorder) Extracted(format string, n int) {
	if r == nil || n == 0 {
		return
	}
	r.findingsExtracted.WithLabelValues(format).Add(float64(n))
}

func (r *Recorder) Accepted(format string, n int) {
	if r == nil || n == 0 {
		return
	}
	r.findingsAccepted.WithLabelValues(format).Add(float64(n))
}

func (r *Recorder) Rejected(format, field string) {
	if r == nil {
		return
	}
	r.findingsRejected.WithLabelValues(format, field).Inc()
}

func (r *Recorder) KPIValue(strategy string) {
	if r == nil {
		return
	}
	r.kpiValuesTotal.WithLabelValues(strategy).Inc()
}

func (r *Recorder) KPIFailure(reason string) {
	if r == nil {
		return
	}
	r.kpiFailuresTotal.WithLabelValues(reason).Inc()
}

func (r *Recorder) ExternalCall(service, outcome string) {
	if r == nil {
		return
	}
	r.externalCallsTotal.WithLabelValues(service, outcome).Inc()
}

// ObserveStage records how long a stage took since start.
func (r *Recorder) ObserveStage(stage string, start time.Time) {
	if r == nil {
		return
	}
	r.stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
