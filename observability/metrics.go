// Package observability records coordinator lifecycle metrics through
// OpenTelemetry. Recording is best-effort: a nil *Metrics is valid and
// every method on it is a no-op, so callers never guard their call sites.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/farmer1st/farmcode"

// Metrics holds the coordinator's metric instruments.
type Metrics struct {
	ticks       metric.Int64Counter
	transitions metric.Int64Counter
	rewinds     metric.Int64Counter
	failures    metric.Int64Counter
	wakes       metric.Int64Counter
}

// New creates Metrics on the given meter provider. Passing nil uses the
// global provider.
func New(provider metric.MeterProvider) (*Metrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(meterName)

	m := &Metrics{}
	var err error

	if m.ticks, err = meter.Int64Counter("farmcode.loop.ticks",
		metric.WithDescription("Control loop ticks executed")); err != nil {
		return nil, fmt.Errorf("observability: ticks counter: %w", err)
	}
	if m.transitions, err = meter.Int64Counter("farmcode.phase.transitions",
		metric.WithDescription("Phase advancements on PASS")); err != nil {
		return nil, fmt.Errorf("observability: transitions counter: %w", err)
	}
	if m.rewinds, err = meter.Int64Counter("farmcode.workflow.rewinds",
		metric.WithDescription("Rewinds to phase zero on REJECT")); err != nil {
		return nil, fmt.Errorf("observability: rewinds counter: %w", err)
	}
	if m.failures, err = meter.Int64Counter("farmcode.workflow.failures",
		metric.WithDescription("Workflows forced to the failed state")); err != nil {
		return nil, fmt.Errorf("observability: failures counter: %w", err)
	}
	if m.wakes, err = meter.Int64Counter("farmcode.workflow.wakes",
		metric.WithDescription("External notifications accepted")); err != nil {
		return nil, fmt.Errorf("observability: wakes counter: %w", err)
	}
	return m, nil
}

// Tick records one loop tick.
func (m *Metrics) Tick(ctx context.Context) {
	if m == nil {
		return
	}
	m.ticks.Add(ctx, 1)
}

// Transition records an advancement into the named phase.
func (m *Metrics) Transition(ctx context.Context, phaseName string) {
	if m == nil {
		return
	}
	m.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("phase", phaseName)))
}

// Rewind records a rewind to phase zero.
func (m *Metrics) Rewind(ctx context.Context) {
	if m == nil {
		return
	}
	m.rewinds.Add(ctx, 1)
}

// Failure records a terminal failure with its reason class.
func (m *Metrics) Failure(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// Wake records an accepted external notification.
func (m *Metrics) Wake(ctx context.Context) {
	if m == nil {
		return
	}
	m.wakes.Add(ctx, 1)
}
