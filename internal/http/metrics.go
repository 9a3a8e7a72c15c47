package http

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so several instances can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	DirectivesTotal  *prometheus.CounterVec
	CorrectionsTotal *prometheus.CounterVec
	ErrorsTotal      *prometheus.CounterVec
	ProcessingTime   *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	metrics := &Metrics{
		registry: prometheus.NewRegistry(),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plexvoice_requests_total",
				Help: "Total number of voice requests handled",
			},
			[]string{"type", "status"},
		),
		DirectivesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plexvoice_directives_total",
				Help: "Total number of playback directives returned",
			},
			[]string{"type"},
		),
		CorrectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plexvoice_queue_corrections_total",
				Help: "Total number of stored queue positions corrected from device reports",
			},
			[]string{"event"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plexvoice_errors_total",
				Help: "Total number of errors",
			},
			[]string{"component", "kind"},
		),
		ProcessingTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "plexvoice_processing_duration_seconds",
				Help:    "Time spent handling voice requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"type"},
		),
	}

	metrics.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		metrics.RequestsTotal,
		metrics.DirectivesTotal,
		metrics.CorrectionsTotal,
		metrics.ErrorsTotal,
		metrics.ProcessingTime,
	)

	return metrics
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) RecordRequest(requestType, status string) {
	m.RequestsTotal.WithLabelValues(requestType, status).Inc()
}

func (m *Metrics) RecordDirective(directiveType string) {
	m.DirectivesTotal.WithLabelValues(directiveType).Inc()
}

func (m *Metrics) RecordCorrection(event string) {
	m.CorrectionsTotal.WithLabelValues(event).Inc()
}

func (m *Metrics) RecordError(component, kind string) {
	m.ErrorsTotal.WithLabelValues(component, kind).Inc()
}

func (m *Metrics) RecordProcessingTime(requestType string, duration time.Duration) {
	m.ProcessingTime.WithLabelValues(requestType).Observe(duration.Seconds())
}
