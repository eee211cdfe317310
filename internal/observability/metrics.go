package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the application's golden-signal instruments:
// - Latency: how long requests and reconcile steps take
// - Traffic: request/transition throughput
// - Errors: rate of failures
// - Saturation: number of engines created and not yet deleted
type Metrics struct {
	meter metric.Meter

	// HTTP metrics (Latency, Traffic, Errors)
	HTTPRequestDuration metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter
	HTTPErrorsTotal     metric.Int64Counter

	// Engine lifecycle metrics (Latency, Traffic, Errors, Saturation)
	EngineTransitionsTotal metric.Int64Counter
	EngineCASConflicts     metric.Int64Counter
	EnginesActive          metric.Int64UpDownCounter
	ReconcileTickDuration  metric.Float64Histogram
	ReconcileErrorsTotal   metric.Int64Counter
}

// NewMetrics creates and registers all metrics with a Prometheus exporter.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("rucat")
	m := &Metrics{meter: meter}

	if m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	); err != nil {
		return nil, nil, err
	}

	if m.HTTPRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	); err != nil {
		return nil, nil, err
	}

	if m.HTTPErrorsTotal, err = meter.Int64Counter(
		"http_errors_total",
		metric.WithDescription("Total number of HTTP errors (4xx and 5xx)"),
	); err != nil {
		return nil, nil, err
	}

	if m.EngineTransitionsTotal, err = meter.Int64Counter(
		"engine_transitions_total",
		metric.WithDescription("Total successful engine state transitions"),
	); err != nil {
		return nil, nil, err
	}

	if m.EngineCASConflicts, err = meter.Int64Counter(
		"engine_cas_conflicts_total",
		metric.WithDescription("Total compare-and-swap conflicts observed on engine state"),
	); err != nil {
		return nil, nil, err
	}

	if m.EnginesActive, err = meter.Int64UpDownCounter(
		"engines_active",
		metric.WithDescription("Number of engines created and not yet deleted (saturation)"),
	); err != nil {
		return nil, nil, err
	}

	if m.ReconcileTickDuration, err = meter.Float64Histogram(
		"reconcile_tick_duration_seconds",
		metric.WithDescription("Duration of one state monitor tick in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	); err != nil {
		return nil, nil, err
	}

	if m.ReconcileErrorsTotal, err = meter.Int64Counter(
		"reconcile_errors_total",
		metric.WithDescription("Total reconcile steps that failed with an error other than a lost CAS race"),
	); err != nil {
		return nil, nil, err
	}

	return m, promhttp.Handler(), nil
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64) {
	attrs := metric.WithAttributes(
		methodAttr(method),
		pathAttr(path),
		statusAttr(statusCode),
	)

	m.HTTPRequestDuration.Record(ctx, durationSeconds, attrs)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)

	if statusCode >= 400 {
		m.HTTPErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordTransition records a successful CAS-guarded state transition.
func (m *Metrics) RecordTransition(ctx context.Context, engineType string, to string) {
	attrs := metric.WithAttributes(engineTypeAttr(engineType), stateAttr(to))
	m.EngineTransitionsTotal.Add(ctx, 1, attrs)
}

// RecordCASConflict records a CAS attempt that lost to a concurrent writer.
func (m *Metrics) RecordCASConflict(ctx context.Context, engineType string) {
	m.EngineCASConflicts.Add(ctx, 1, metric.WithAttributes(engineTypeAttr(engineType)))
}

// RecordEngineCreated records a newly created engine entering the active set.
func (m *Metrics) RecordEngineCreated(ctx context.Context, engineType string) {
	m.EnginesActive.Add(ctx, 1, metric.WithAttributes(engineTypeAttr(engineType)))
}

// RecordEngineRemoved records an engine leaving the active set (terminal + deleted).
func (m *Metrics) RecordEngineRemoved(ctx context.Context, engineType string) {
	m.EnginesActive.Add(ctx, -1, metric.WithAttributes(engineTypeAttr(engineType)))
}

// RecordReconcileTick records the wall-clock duration of one monitor tick.
func (m *Metrics) RecordReconcileTick(ctx context.Context, durationSeconds float64) {
	m.ReconcileTickDuration.Record(ctx, durationSeconds)
}

// RecordReconcileError records a reconcile step that failed with an error
// other than a lost CAS race (resource client or store).
func (m *Metrics) RecordReconcileError(ctx context.Context, engineType string) {
	m.ReconcileErrorsTotal.Add(ctx, 1, metric.WithAttributes(engineTypeAttr(engineType), successAttr(false)))
}
