package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records runtime counters through OTEL. Configure the global
// MeterProvider before constructing (typically via clue.ConfigureOpenTelemetry);
// without one, recording is a no-op against the default provider.
type Metrics struct {
	meter metric.Meter
}

// NewMetrics constructs a Metrics recorder on the global MeterProvider.
func NewMetrics() *Metrics {
	return &Metrics{meter: otel.Meter("github.com/flowd-dev/flowd/runtime")}
}

// RecordNodeDispatch counts one node dispatch, tagged by node kind.
func (m *Metrics) RecordNodeDispatch(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	counter, err := m.meter.Int64Counter("flowd.nodes.dispatched")
	if err != nil {
		return
	}
	counter.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordExecutionTerminal counts one execution reaching terminal status.
func (m *Metrics) RecordExecutionTerminal(ctx context.Context, status string) {
	if m == nil {
		return
	}
	counter, err := m.meter.Int64Counter("flowd.executions.terminal")
	if err != nil {
		return
	}
	counter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
