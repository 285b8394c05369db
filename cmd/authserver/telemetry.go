package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/giantswarm/mcp-authserver/instrumentation"
)

// envOTLPEndpoint enables OTLP/HTTP trace export. The exporter reads the
// remaining OTEL_EXPORTER_OTLP_* variables itself.
const envOTLPEndpoint = "OTEL_EXPORTER_OTLP_ENDPOINT"

// telemetry is the process-wide OpenTelemetry setup.
type telemetry struct {
	Instrumentation *instrumentation.Instrumentation

	// MetricsHandler serves the Prometheus exposition; nil when metrics are
	// disabled.
	MetricsHandler http.Handler
}

// setupTelemetry builds the meter and tracer providers. Metrics go to a
// dedicated Prometheus registry through the OpenTelemetry exporter; traces
// are exported over OTLP/HTTP when tracing is enabled or the endpoint
// variable is set.
func setupTelemetry(ctx context.Context, cfg *Config) (*telemetry, error) {
	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.Telemetry.ServiceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	instCfg := instrumentation.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		LogClientIPs:   cfg.Telemetry.LogClientIPs,
		Resource:       res,
	}
	t := &telemetry{}

	if cfg.Telemetry.Metrics {
		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
		if err != nil {
			return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(exporter),
			sdkmetric.WithResource(res),
		)
		instCfg.Enabled = true
		instCfg.MeterProvider = mp
		instCfg.ShutdownFuncs = append(instCfg.ShutdownFuncs, mp.Shutdown)
		t.MetricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	}

	if cfg.Telemetry.Tracing || os.Getenv(envOTLPEndpoint) != "" {
		exporter, err := otlptracehttp.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create otlp trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
		)
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
		instCfg.Enabled = true
		instCfg.TracerProvider = tp
		instCfg.ShutdownFuncs = append(instCfg.ShutdownFuncs, tp.Shutdown)
	}

	inst, err := instrumentation.New(instCfg)
	if err != nil {
		return nil, err
	}
	t.Instrumentation = inst
	return t, nil
}

// Shutdown flushes and stops the providers.
func (t *telemetry) Shutdown(ctx context.Context) error {
	return t.Instrumentation.Shutdown(ctx)
}
