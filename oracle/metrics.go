package oracle

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const (
	outcomeOK       = "ok"
	outcomeError    = "error"
	outcomeCanceled = "canceled"
)

// guardMetrics are the OpenTelemetry instruments recorded by Guard. They
// report through the global meter provider.
type guardMetrics struct {
	calls       metric.Int64Counter
	attempts    metric.Int64Counter
	duration    metric.Float64Histogram
	transitions metric.Int64Counter
}

func newGuardMetrics() guardMetrics {
	meter := otel.Meter(tracerName)
	var m guardMetrics
	var err error
	if m.calls, err = meter.Int64Counter("oracle.calls",
		metric.WithDescription("Guarded oracle calls by outcome")); err != nil {
		m.calls = noop.Int64Counter{}
	}
	if m.attempts, err = meter.Int64Counter("oracle.attempts",
		metric.WithDescription("Oracle attempts including retries")); err != nil {
		m.attempts = noop.Int64Counter{}
	}
	if m.duration, err = meter.Float64Histogram("oracle.call.duration",
		metric.WithDescription("Guarded oracle call duration including retries"),
		metric.WithUnit("s")); err != nil {
		m.duration = noop.Float64Histogram{}
	}
	if m.transitions, err = meter.Int64Counter("oracle.breaker.transitions",
		metric.WithDescription("Circuit breaker state changes")); err != nil {
		m.transitions = noop.Int64Counter{}
	}
	return m
}

func (m guardMetrics) record(ctx context.Context, name, op, outcome string, attempts int, started time.Time) {
	attrs := metric.WithAttributes(
		attribute.String("oracle.name", name),
		attribute.String("oracle.op", op),
		attribute.String("outcome", outcome),
	)
	// Recording must survive a cancelled call context.
	ctx = context.WithoutCancel(ctx)
	m.calls.Add(ctx, 1, attrs)
	m.attempts.Add(ctx, int64(attempts), attrs)
	m.duration.Record(ctx, time.Since(started).Seconds(), attrs)
}

func (m guardMetrics) transition(name, to string) {
	m.transitions.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("oracle.name", name),
		attribute.String("state", to),
	))
}
