package governance

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline's Prometheus collectors.
//
// Metrics:
//   - helmd_intents_received_total{source,priority}
//   - helmd_intents_resolved_total{outcome} (approved, rejected, expired, error)
//   - helmd_intent_execution_seconds
//   - helmd_pending_intents
//   - helmd_pending_limit_exceeded_total
type Metrics struct {
	Received         *prometheus.CounterVec
	Resolved         *prometheus.CounterVec
	ExecutionSeconds prometheus.Histogram
	Pending          prometheus.Gauge
	LimitExceeded    prometheus.Counter
}

// NewMetrics registers the collectors with reg. A nil reg uses the default
// registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Received: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "helmd_intents_received_total",
				Help: "Total number of proposals admitted to the pipeline",
			},
			[]string{"source", "priority"},
		),
		Resolved: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "helmd_intents_resolved_total",
				Help: "Total number of pending intents resolved, by outcome",
			},
			[]string{"outcome"},
		),
		ExecutionSeconds: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "helmd_intent_execution_seconds",
				Help:    "Time spent executing approved proposals",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
		),
		Pending: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "helmd_pending_intents",
				Help: "Current number of pending intents",
			},
		),
		LimitExceeded: f.NewCounter(
			prometheus.CounterOpts{
				Name: "helmd_pending_limit_exceeded_total",
				Help: "Total number of intakes that found the pending set over its advisory limit",
			},
		),
	}
}

func (m *Metrics) received(source Source, priority Priority) {
	if m == nil {
		return
	}
	m.Received.WithLabelValues(string(source), string(priority)).Inc()
}

func (m *Metrics) resolved(outcome Status) {
	if m == nil {
		return
	}
	m.Resolved.WithLabelValues(string(outcome)).Inc()
}

func (m *Metrics) executed(d time.Duration) {
	if m == nil {
		return
	}
	m.ExecutionSeconds.Observe(d.Seconds())
}

func (m *Metrics) pending(n int) {
	if m == nil {
		return
	}
	m.Pending.Set(float64(n))
}

func (m *Metrics) limitExceeded() {
	if m == nil {
		return
	}
	m.LimitExceeded.Inc()
}
