// Package metrics exposes Prometheus metrics for boarding-pass extraction.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"boardingpass_parser/internal/boardingpass"
)

// Outcome label values.
const (
	OutcomeFound    = "found"
	OutcomeNotFound = "not_found"
)

// Metrics holds all extraction metrics.
type Metrics struct {
	Extractions    *prometheus.CounterVec
	SoftFallbacks  *prometheus.CounterVec
	FormatHits     *prometheus.CounterVec
	ExtractionTime prometheus.Histogram
	Errors         *prometheus.CounterVec
}

// New creates the metrics and registers them with reg.
// Pass prometheus.DefaultRegisterer to expose them on the default handler.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Extractions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractions_total",
			Help:      "Boarding-pass extraction attempts by outcome",
		}, []string{"outcome"}),
		SoftFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "missing_fields_total",
			Help:      "Successful extractions where a field fell back or was absent",
		}, []string{"field"}),
		FormatHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datetime_format_hits_total",
			Help:      "Date and time formats that produced a departure time",
		}, []string{"format"}),
		ExtractionTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extraction_duration_seconds",
			Help:      "Time taken to extract one boarding pass",
			Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01},
		}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Infrastructure errors by operation",
		}, []string{"operation"}),
	}

	if reg != nil {
		reg.MustRegister(m.Extractions, m.SoftFallbacks, m.FormatHits, m.ExtractionTime, m.Errors)
	}

	return m
}

// Observe records one extraction. res is ignored when ok is false.
func (m *Metrics) Observe(res boardingpass.Result, ok bool, took time.Duration) {
	if m == nil {
		return
	}

	m.ExtractionTime.Observe(took.Seconds())

	if !ok {
		m.Extractions.WithLabelValues(OutcomeNotFound).Inc()
		return
	}

	m.Extractions.WithLabelValues(OutcomeFound).Inc()
	m.FormatHits.WithLabelValues(res.DateTime.DateFormat).Inc()
	m.FormatHits.WithLabelValues(res.DateTime.TimeFormat).Inc()
	for _, field := range res.Info.MissingFields() {
		m.SoftFallbacks.WithLabelValues(field).Inc()
	}
}

// Error counts a failed infrastructure operation such as "store" or "publish".
func (m *Metrics) Error(operation string) {
	if m == nil {
		return
	}
	m.Errors.WithLabelValues(operation).Inc()
}
