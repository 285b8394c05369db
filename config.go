package oauth

import (
	"log/slog"
	"time"

	"github.com/giantswarm/mcp-authserver/instrumentation"
	"github.com/giantswarm/mcp-authserver/security"
	"github.com/giantswarm/mcp-authserver/server"
)

// Config holds the authorization server configuration.
// Structured using composition like the engine it wraps.
type Config struct {
	// Server is the engine configuration. Server.Issuer is required.
	Server server.Config

	// Rate limiting configuration
	RateLimit RateLimitConfig

	// Proxy describes trusted reverse proxies for client IP extraction.
	Proxy security.ProxyConfig

	// EnableAuditLogging enables security audit logging.
	// Logs auth events, token operations and violations (user identifiers hashed).
	EnableAuditLogging bool

	// Instrumentation enables OpenTelemetry tracing and metrics (optional).
	Instrumentation *instrumentation.Instrumentation

	// Logger for structured logging (optional, uses default if not provided)
	Logger *slog.Logger
}

// RateLimitConfig holds per-IP rate limiting configuration for the
// protocol endpoints.
type RateLimitConfig struct {
	// Rate is requests per second allowed per IP. Zero uses DefaultRateLimit
	// and a negative rate disables limiting.
	Rate float64

	// Burst is the maximum burst size allowed per IP.
	Burst int

	// MaxEntries bounds the number of tracked client IPs.
	MaxEntries int

	// IdleTimeout drops limiters of clients that have been quiet this long.
	IdleTimeout time.Duration
}

// Default rate limit when none is configured: 10 req/s, bursts of 20.
const (
	DefaultRateLimit = 10
	DefaultRateBurst = 20
)

// applyDefaults returns a copy of config with defaults for unset fields.
// A negative rate disables limiting.
func applyDefaults(config Config) Config {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.RateLimit.Rate == 0 {
		config.RateLimit.Rate = DefaultRateLimit
		if config.RateLimit.Burst == 0 {
			config.RateLimit.Burst = DefaultRateBurst
		}
	}
	return config
}
