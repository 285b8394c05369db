// Package instrumentation provides OpenTelemetry metrics and tracing for the
// authorization server.
//
// When Config.Enabled is false every meter and tracer is a no-op, so callers
// never need nil checks around instruments. When enabled, the providers in
// Config are used, falling back to the global OpenTelemetry providers; the
// process entry point installs a Prometheus reader and an OTLP span exporter
// there.
//
//	inst, err := instrumentation.New(instrumentation.Config{
//		ServiceName:    "mcp-authserver",
//		ServiceVersion: version,
//		Enabled:        true,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer inst.Shutdown(context.Background())
//
// # Available Metrics
//
// HTTP layer:
//   - oauth.http.requests.total{method, endpoint, status}
//   - oauth.http.request.duration{endpoint} in milliseconds
//
// Protocol:
//   - oauth.authorization.started{client_id}
//   - oauth.code.issued{client_id}
//   - oauth.code.exchanged{client_id, result}
//   - oauth.token.refreshed{client_id, result}
//   - oauth.introspection.total{active}
//   - oauth.grant.revoked{reason}
//
// Security:
//   - oauth.token.reuse_detected
//   - oauth.pkce.validation_failed
//   - oauth.rate_limit.exceeded{endpoint}
//
// Storage:
//   - storage.operation.total{operation, result}
//   - storage.operation.duration{operation} in milliseconds
//   - storage.codes.count, storage.grants.count, storage.refresh_tokens.count
//
// Authorization codes, tokens and passwords are never recorded as attribute
// values; see the attribute keys in tracing.go.
package instrumentation
