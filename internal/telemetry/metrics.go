package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/uabootstrap"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Key store metrics
	KeyStoreLoadsTotal metric.Int64Counter

	// Trust metrics
	TrustDecisionsTotal metric.Int64Counter
	TrustReloadsTotal   metric.Int64Counter
	TrustPoolSize       metric.Int64Gauge

	// Identity metrics
	AuthAttemptsTotal metric.Int64Counter
	AuthDuration      metric.Float64Histogram

	// Endpoint metrics
	EndpointsBuiltTotal metric.Int64Counter

	// HTTP metrics
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	// Key store metrics
	m.KeyStoreLoadsTotal, _ = meter.Int64Counter(
		"uabootstrap.keystore.loads.total",
		metric.WithDescription("Total number of key store loads by outcome"),
		metric.WithUnit("{load}"),
	)

	// Trust metrics
	m.TrustDecisionsTotal, _ = meter.Int64Counter(
		"uabootstrap.trust.decisions.total",
		metric.WithDescription("Total number of peer certificate chain validations"),
		metric.WithUnit("{decision}"),
	)

	m.TrustReloadsTotal, _ = meter.Int64Counter(
		"uabootstrap.trust.reloads.total",
		metric.WithDescription("Total number of trust directory reloads"),
		metric.WithUnit("{reload}"),
	)

	m.TrustPoolSize, _ = meter.Int64Gauge(
		"uabootstrap.trust.pool.size",
		metric.WithDescription("Number of certificates in each trust pool"),
		metric.WithUnit("{certificate}"),
	)

	// Identity metrics
	m.AuthAttemptsTotal, _ = meter.Int64Counter(
		"uabootstrap.auth.attempts.total",
		metric.WithDescription("Total number of authentication attempts"),
		metric.WithUnit("{attempt}"),
	)

	m.AuthDuration, _ = meter.Float64Histogram(
		"uabootstrap.auth.duration",
		metric.WithDescription("Duration of identity validation"),
		metric.WithUnit("ms"),
	)

	// Endpoint metrics
	m.EndpointsBuiltTotal, _ = meter.Int64Counter(
		"uabootstrap.endpoints.built.total",
		metric.WithDescription("Total number of endpoint descriptors built"),
		metric.WithUnit("{endpoint}"),
	)

	// HTTP metrics
	m.HTTPRequestsTotal, _ = meter.Int64Counter(
		"uabootstrap.http.requests.total",
		metric.WithDescription("Total number of HTTP requests served"),
		metric.WithUnit("{request}"),
	)

	m.HTTPRequestDuration, _ = meter.Float64Histogram(
		"uabootstrap.http.request.duration",
		metric.WithDescription("Duration of HTTP requests"),
		metric.WithUnit("ms"),
	)

	return m
}

// RecordTrustDecision counts a trust validation outcome.
func (m *Metrics) RecordTrustDecision(ctx context.Context, accepted bool, reason string) {
	m.TrustDecisionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("accepted", accepted),
		attribute.String("reason", reason),
	))
}

// RecordAuthAttempt counts an authentication attempt and its duration.
func (m *Metrics) RecordAuthAttempt(ctx context.Context, kind string, accepted bool, durationMs float64) {
	attrs := metric.WithAttributes(
		attribute.String("credential", kind),
		attribute.Bool("accepted", accepted),
	)
	m.AuthAttemptsTotal.Add(ctx, 1, attrs)
	m.AuthDuration.Record(ctx, durationMs, attrs)
}
