package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterScope = "github.com/spec-kit/mentor-ticket-service/http"

// Metrics records HTTP request counters and latencies through OTel.
type Metrics struct {
	requests metric.Int64Counter
	errors   metric.Int64Counter
	latency  metric.Float64Histogram
}

// NewMetrics registers instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return NewMetricsWithMeter(otel.Meter(meterScope))
}

// NewMetricsWithMeter registers instruments on meter.
func NewMetricsWithMeter(meter metric.Meter) (*Metrics, error) {
	requests, err := meter.Int64Counter("http.server.requests",
		metric.WithDescription("HTTP requests served"))
	if err != nil {
		return nil, err
	}
	errs, err := meter.Int64Counter("http.server.errors",
		metric.WithDescription("HTTP requests that ended in an error code"))
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram("http.server.duration",
		metric.WithDescription("HTTP request latency"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	return &Metrics{requests: requests, errors: errs, latency: latency}, nil
}

// RecordRequest counts a served request.
func (m *Metrics) RecordRequest(ctx context.Context, route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("http.route", route),
		attribute.String("http.method", method),
		attribute.Int("http.status_code", status),
	)
	m.requests.Add(ctx, 1, attrs)
	m.latency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
}

// RecordError counts a request that failed with a domain error code.
func (m *Metrics) RecordError(ctx context.Context, route, method, code string) {
	if m == nil {
		return
	}
	m.errors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("http.route", route),
		attribute.String("http.method", method),
		attribute.String("error.code", code),
	))
}
