// Package middleware provides cross-cutting concerns for the extraction
// pipeline.
package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/beyourahi/extract-usernames/internal/ports"
)

// PrometheusMetrics implements the MetricsCollector interface using
// Prometheus. It provides real-time monitoring of extraction outcomes,
// engine performance, and duplicate detection for the extraction
// pipeline.
type PrometheusMetrics struct {
	extractionsTotal  *prometheus.CounterVec
	duplicatesTotal   *prometheus.CounterVec
	confidenceScores  *prometheus.HistogramVec
	executionLatency  *prometheus.HistogramVec
	operationCounter  *prometheus.CounterVec
	systemGauges      *prometheus.GaugeVec
	vlmLatencySeconds *prometheus.HistogramVec
	vlmRequestsTotal  *prometheus.CounterVec
	vlmTokensTotal    *prometheus.CounterVec
}

// NewPrometheusMetrics creates a new PrometheusMetrics instance and
// registers all required metrics in the global Prometheus registry.
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		// Extraction-specific metrics.
		extractionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extractions_total",
				Help: "Total number of processed images by terminal status.",
			},
			[]string{"status", "method", "tier"},
		),
		duplicatesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "duplicates_total",
				Help: "Total number of duplicate and near-duplicate detections.",
			},
			[]string{"kind"},
		),
		confidenceScores: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "extraction_confidence",
				Help:    "Distribution of final confidence scores.",
				Buckets: prometheus.LinearBuckets(50, 5, 11),
			},
			[]string{"method"},
		),

		// General execution metrics for comprehensive observability.
		executionLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "extraction_duration_seconds",
				Help:    "Execution time of extraction pipeline operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		operationCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extraction_operations_total",
				Help: "Total number of operations performed by the pipeline.",
			},
			[]string{"operation", "status"},
		),
		systemGauges: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "extraction_system_state",
				Help: "Current system state values for the pipeline.",
			},
			[]string{"metric"},
		),

		// Vision client metrics forwarded from the vlm middleware.
		vlmLatencySeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vlm_latency_seconds",
				Help:    "Latency of vision model requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "model", "status"},
		),
		vlmRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vlm_requests_total",
				Help: "Total number of vision model requests.",
			},
			[]string{"provider", "model", "status"},
		),
		vlmTokensTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vlm_tokens_total",
				Help: "Total number of tokens consumed by vision requests.",
			},
			[]string{"provider", "model", "token_type"},
		),
	}
}

// RecordLatency implements the MetricsCollector interface by recording
// execution latency in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordLatency(
	operation string,
	duration time.Duration,
	labels map[string]string,
) {
	pm.executionLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCounter implements the MetricsCollector interface by incrementing
// Prometheus counters.
func (pm *PrometheusMetrics) RecordCounter(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case "extractions_total":
		pm.extractionsTotal.WithLabelValues(
			labels["status"],
			labels["method"],
			labels["tier"],
		).Add(value)
	case "duplicates_total":
		pm.duplicatesTotal.WithLabelValues(labels["kind"]).Add(value)
	case "vlm_requests_total":
		pm.vlmRequestsTotal.WithLabelValues(
			labels["provider"],
			labels["model"],
			labels["status"],
		).Add(value)
	case "vlm_tokens_total":
		pm.vlmTokensTotal.WithLabelValues(
			labels["provider"],
			labels["model"],
			labels["token_type"],
		).Add(value)
	default:
		status, ok := labels["status"]
		if !ok {
			status = "success"
		}
		pm.operationCounter.WithLabelValues(metric, status).Add(value)
	}
}

// RecordGauge implements the MetricsCollector interface by setting
// Prometheus gauge values.
func (pm *PrometheusMetrics) RecordGauge(
	metric string, value float64, labels map[string]string,
) {
	pm.systemGauges.WithLabelValues(metric).Set(value)
}

// RecordHistogram implements the MetricsCollector interface by recording
// values in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordHistogram(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case "extraction_confidence":
		pm.confidenceScores.WithLabelValues(labels["method"]).Observe(value)
	case "vlm_latency_seconds":
		pm.vlmLatencySeconds.WithLabelValues(
			labels["provider"],
			labels["model"],
			labels["status"],
		).Observe(value)
	default:
		pm.executionLatency.WithLabelValues(metric).Observe(value)
	}
}

// Compile-time verification that PrometheusMetrics implements MetricsCollector.
var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)
