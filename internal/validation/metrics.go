package validation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// InstrumentationName is the name used for OTEL instrumentation.
const InstrumentationName = "github.com/fyrsmithlabs/helmd/internal/validation"

// Metrics provides OpenTelemetry counters for validation outcomes.
type Metrics struct {
	total    metric.Int64Counter
	rejected metric.Int64Counter

	initialized bool
}

// NewMetrics creates validation counters on meter, or on the global meter
// provider when meter is nil.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(InstrumentationName)
	}

	m := &Metrics{}
	var err error

	m.total, err = meter.Int64Counter(
		"helmd.validation.total",
		metric.WithDescription("Total number of proposal validations"),
		metric.WithUnit("{validation}"),
	)
	if err != nil {
		return nil, err
	}

	m.rejected, err = meter.Int64Counter(
		"helmd.validation.rejected.total",
		metric.WithDescription("Total number of proposals rejected by validation"),
		metric.WithUnit("{validation}"),
	)
	if err != nil {
		return nil, err
	}

	m.initialized = true
	return m, nil
}

// RecordOutcome counts one validation.
func (m *Metrics) RecordOutcome(ctx context.Context, valid bool) {
	if m == nil || !m.initialized {
		return
	}
	m.total.Add(ctx, 1, metric.WithAttributes(attribute.Bool("valid", valid)))
	if !valid {
		m.rejected.Add(ctx, 1)
	}
}
