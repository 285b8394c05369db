package instrumentation

import (
	"context"
	"errors"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{"disabled", Config{Enabled: false}},
		{"enabled with globals", Config{Enabled: true, ServiceName: "test-service", ServiceVersion: "1.0.0"}},
		{"enabled with defaults", Config{Enabled: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst, err := New(tt.config)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if inst.Meter("http") == nil || inst.Tracer("server") == nil {
				t.Fatal("nil meter or tracer")
			}
			if inst.Metrics() == nil {
				t.Fatal("Metrics() returned nil")
			}
			if inst.Resource() == nil {
				t.Error("Resource() returned nil")
			}

			// Recording must never panic, enabled or not.
			ctx := context.Background()
			inst.Metrics().RecordHTTPRequest(ctx, "POST", "/token", 200, 1.5)
			inst.Metrics().RecordTokenReuseDetected(ctx)
		})
	}
}

func TestShutdownRunsOnce(t *testing.T) {
	calls := 0
	failing := errors.New("flush failed")
	inst, err := New(Config{
		ShutdownFuncs: []func(context.Context) error{
			func(context.Context) error { calls++; return nil },
			func(context.Context) error { return failing },
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := inst.Shutdown(context.Background()); !errors.Is(err, failing) {
		t.Errorf("Shutdown() error = %v, want %v", err, failing)
	}
	if err := inst.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown() error = %v, want nil", err)
	}
	if calls != 1 {
		t.Errorf("shutdown func called %d times, want 1", calls)
	}
}

func TestMetricsAreExported(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	inst, err := New(Config{Enabled: true, MeterProvider: provider})
	if err != nil {
		t.Fatal(err)
	}

	m := inst.Metrics()
	m.RecordCodeExchange(ctx, "client-1", ResultSuccess)
	m.RecordCodeExchange(ctx, "client-1", ResultSuccess)
	m.RecordGrantRevoked(ctx, "reuse")
	m.RecordStorageOperation(ctx, "consume_code", ResultSuccess, 0.2)

	if err := inst.RegisterStorageSizeCallbacks(
		func() int64 { return 3 },
		func() int64 { return 2 },
		nil,
	); err != nil {
		t.Fatal(err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatal(err)
	}

	if got := sumOf(t, rm, "oauth.code.exchanged"); got != 2 {
		t.Errorf("oauth.code.exchanged = %d, want 2", got)
	}
	if got := sumOf(t, rm, "oauth.grant.revoked"); got != 1 {
		t.Errorf("oauth.grant.revoked = %d, want 1", got)
	}
	if got := sumOf(t, rm, "storage.operation.total"); got != 1 {
		t.Errorf("storage.operation.total = %d, want 1", got)
	}
	if got := gaugeOf(t, rm, "storage.codes.count"); got != 3 {
		t.Errorf("storage.codes.count = %d, want 3", got)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordHTTPRequest(ctx, "GET", "/", 200, 1)
	m.RecordAuthorizationStarted(ctx, "c")
	m.RecordCodeIssued(ctx, "c")
	m.RecordCodeExchange(ctx, "c", ResultFailure)
	m.RecordTokenRefresh(ctx, "c", ResultFailure)
	m.RecordIntrospection(ctx, false)
	m.RecordGrantRevoked(ctx, "owner")
	m.RecordTokenReuseDetected(ctx)
	m.RecordPKCEValidationFailed(ctx, "S256")
	m.RecordRateLimitExceeded(ctx, "/token")
	m.RecordStorageOperation(ctx, "get", ResultSuccess, 1)
}

func findMetric(t *testing.T, rm metricdata.ResourceMetrics, name string) metricdata.Metrics {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m
			}
		}
	}
	t.Fatalf("metric %s not exported", name)
	return metricdata.Metrics{}
}

func sumOf(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	sum, ok := findMetric(t, rm, name).Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %s is not an int64 sum", name)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func gaugeOf(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	gauge, ok := findMetric(t, rm, name).Data.(metricdata.Gauge[int64])
	if !ok || len(gauge.DataPoints) == 0 {
		t.Fatalf("metric %s is not an int64 gauge", name)
	}
	return gauge.DataPoints[0].Value
}
