// Package metrics exposes Prometheus metrics for the sync core.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// Namespace prefixes every metric name.
	Namespace = "contentsync"

	KindLabel    = "kind"
	OutcomeLabel = "outcome"
)

// Metrics holds the sync collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	operations   *prometheus.CounterVec
	passDuration prometheus.Histogram
	passes       *prometheus.CounterVec
	queueDepth   prometheus.Gauge
}

// New creates the collectors without registering them.
func New() *Metrics {
	return &Metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "operations_total",
				Help:      "Sync operation attempts by kind and outcome",
			},
			[]string{KindLabel, OutcomeLabel},
		),
		passDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "pass_duration_seconds",
				Help:      "Duration of sync passes over the pending queue",
				Buckets:   prometheus.DefBuckets,
			},
		),
		passes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "passes_total",
				Help:      "Sync passes by result (clean or with_failures)",
			},
			[]string{"result"},
		),
		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "queue_depth",
				Help:      "Number of operations waiting in the pending queue",
			},
		),
	}
}

// Register creates the collectors and registers them on reg.
func Register(reg prometheus.Registerer) (*Metrics, error) {
	m := New()
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// MustRegister is like Register but panics on error.
func MustRegister(reg prometheus.Registerer) *Metrics {
	m, err := Register(reg)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.operations, m.passDuration, m.passes, m.queueDepth}
}

// ObserveOperation counts one attempted operation.
func (m *Metrics) ObserveOperation(kind, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(kind, outcome).Inc()
}

// ObservePass records a completed pass.
func (m *Metrics) ObservePass(d time.Duration, failed int) {
	if m == nil {
		return
	}
	m.passDuration.Observe(d.Seconds())
	result := "clean"
	if failed > 0 {
		result = "with_failures"
	}
	m.passes.WithLabelValues(result).Inc()
}

// SetQueueDepth sets the pending queue depth gauge.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}
