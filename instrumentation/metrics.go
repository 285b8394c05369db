package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric result attribute values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics holds all metric instruments of the server.
// All Record methods are safe to call on a nil *Metrics.
type Metrics struct {
	// HTTP layer
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram

	// Protocol
	AuthorizationStarted metric.Int64Counter
	CodeIssued           metric.Int64Counter
	CodeExchanged        metric.Int64Counter
	TokenRefreshed       metric.Int64Counter
	IntrospectionTotal   metric.Int64Counter
	GrantRevoked         metric.Int64Counter

	// Security
	TokenReuseDetected   metric.Int64Counter
	PKCEValidationFailed metric.Int64Counter
	RateLimitExceeded    metric.Int64Counter

	// Storage
	StorageOperationTotal     metric.Int64Counter
	StorageOperationDuration  metric.Float64Histogram
	StorageCodesCount         metric.Int64ObservableGauge
	StorageGrantsCount        metric.Int64ObservableGauge
	StorageRefreshTokensCount metric.Int64ObservableGauge
}

type counterSpec struct {
	dst         *metric.Int64Counter
	name        string
	description string
	unit        string
}

// newMetrics creates and registers all metric instruments
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}
	httpMeter := inst.Meter("http")
	serverMeter := inst.Meter("server")
	storageMeter := inst.Meter("storage")

	counters := []struct {
		meter metric.Meter
		specs []counterSpec
	}{
		{httpMeter, []counterSpec{
			{&m.HTTPRequestsTotal, "oauth.http.requests.total", "Total number of HTTP requests", "{request}"},
		}},
		{serverMeter, []counterSpec{
			{&m.AuthorizationStarted, "oauth.authorization.started", "Number of authorization requests received", "{request}"},
			{&m.CodeIssued, "oauth.code.issued", "Number of authorization codes issued", "{code}"},
			{&m.CodeExchanged, "oauth.code.exchanged", "Number of authorization code exchanges", "{exchange}"},
			{&m.TokenRefreshed, "oauth.token.refreshed", "Number of refresh token exchanges", "{refresh}"},
			{&m.IntrospectionTotal, "oauth.introspection.total", "Number of token introspections", "{introspection}"},
			{&m.GrantRevoked, "oauth.grant.revoked", "Number of grants deleted", "{grant}"},
			{&m.TokenReuseDetected, "oauth.token.reuse_detected", "Number of retired refresh tokens presented again", "{event}"},
			{&m.PKCEValidationFailed, "oauth.pkce.validation_failed", "Number of failed PKCE verifications", "{event}"},
			{&m.RateLimitExceeded, "oauth.rate_limit.exceeded", "Number of rate limited requests", "{request}"},
		}},
		{storageMeter, []counterSpec{
			{&m.StorageOperationTotal, "storage.operation.total", "Total number of storage operations", "{operation}"},
		}},
	}
	for _, group := range counters {
		for _, spec := range group.specs {
			c, err := group.meter.Int64Counter(spec.name,
				metric.WithDescription(spec.description),
				metric.WithUnit(spec.unit),
			)
			if err != nil {
				return nil, fmt.Errorf("failed to create %s counter: %w", spec.name, err)
			}
			*spec.dst = c
		}
	}

	var err error
	m.HTTPRequestDuration, err = httpMeter.Float64Histogram(
		"oauth.http.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http.request.duration histogram: %w", err)
	}

	m.StorageOperationDuration, err = storageMeter.Float64Histogram(
		"storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operation.duration histogram: %w", err)
	}

	gauges := []struct {
		dst         *metric.Int64ObservableGauge
		name        string
		description string
	}{
		{&m.StorageCodesCount, "storage.codes.count", "Number of stored authorization codes"},
		{&m.StorageGrantsCount, "storage.grants.count", "Number of stored grants"},
		{&m.StorageRefreshTokensCount, "storage.refresh_tokens.count", "Number of stored refresh tokens"},
	}
	for _, g := range gauges {
		gauge, err := storageMeter.Int64ObservableGauge(g.name,
			metric.WithDescription(g.description),
			metric.WithUnit("{item}"),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s gauge: %w", g.name, err)
		}
		*g.dst = gauge
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request metric
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, endpoint string, statusCode int, durationMs float64) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("endpoint", endpoint),
		attribute.Int("status", statusCode),
	))
	m.HTTPRequestDuration.Record(ctx, durationMs, metric.WithAttributes(attribute.String("endpoint", endpoint)))
}

// RecordAuthorizationStarted records an incoming authorization request.
func (m *Metrics) RecordAuthorizationStarted(ctx context.Context, clientID string) {
	if m == nil {
		return
	}
	m.AuthorizationStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("client_id", clientID)))
}

// RecordCodeIssued records an issued authorization code.
func (m *Metrics) RecordCodeIssued(ctx context.Context, clientID string) {
	if m == nil {
		return
	}
	m.CodeIssued.Add(ctx, 1, metric.WithAttributes(attribute.String("client_id", clientID)))
}

// RecordCodeExchange records an authorization code exchange.
func (m *Metrics) RecordCodeExchange(ctx context.Context, clientID, result string) {
	if m == nil {
		return
	}
	m.CodeExchanged.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.String("result", result),
	))
}

// RecordTokenRefresh records a refresh token exchange.
func (m *Metrics) RecordTokenRefresh(ctx context.Context, clientID, result string) {
	if m == nil {
		return
	}
	m.TokenRefreshed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.String("result", result),
	))
}

// RecordIntrospection records a token introspection and its outcome.
func (m *Metrics) RecordIntrospection(ctx context.Context, active bool) {
	if m == nil {
		return
	}
	m.IntrospectionTotal.Add(ctx, 1, metric.WithAttributes(attribute.Bool("active", active)))
}

// RecordGrantRevoked records a deleted grant. reason is "reuse", "owner" or "account_deleted".
func (m *Metrics) RecordGrantRevoked(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.GrantRevoked.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordTokenReuseDetected records a replayed refresh token.
func (m *Metrics) RecordTokenReuseDetected(ctx context.Context) {
	if m == nil {
		return
	}
	m.TokenReuseDetected.Add(ctx, 1)
}

// RecordPKCEValidationFailed records a PKCE verification failure.
func (m *Metrics) RecordPKCEValidationFailed(ctx context.Context, method string) {
	if m == nil {
		return
	}
	m.PKCEValidationFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("method", method)))
}

// RecordRateLimitExceeded records a rate limited request.
func (m *Metrics) RecordRateLimitExceeded(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	m.RateLimitExceeded.Add(ctx, 1, metric.WithAttributes(attribute.String("endpoint", endpoint)))
}

// RecordStorageOperation records a storage operation
func (m *Metrics) RecordStorageOperation(ctx context.Context, operation, result string, durationMs float64) {
	if m == nil {
		return
	}
	m.StorageOperationTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("result", result),
	))
	m.StorageOperationDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("operation", operation),
	))
}
