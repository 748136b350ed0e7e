package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// BootstrapMetrics records bootstrap outcomes and latency.
type BootstrapMetrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

// NewBootstrapMetrics registers the bootstrap instruments on mp. A nil mp records nothing.
func NewBootstrapMetrics(mp metric.MeterProvider) (*BootstrapMetrics, error) {
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	meter := mp.Meter("nova.bootstrap")
	requests, err := meter.Int64Counter("nova.bootstrap.requests",
		metric.WithDescription("Bootstrap requests by outcome."))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("nova.bootstrap.duration",
		metric.WithDescription("Bootstrap latency."), metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &BootstrapMetrics{requests: requests, duration: duration}, nil
}

// Record adds one bootstrap with the given outcome (e.g. "created", "existing", "PROFILE_UPSERT").
func (m *BootstrapMetrics) Record(ctx context.Context, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.requests.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
}
