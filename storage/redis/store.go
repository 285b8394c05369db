package redis

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/mcp-authserver/instrumentation"
	"github.com/giantswarm/mcp-authserver/security"
	"github.com/giantswarm/mcp-authserver/storage"
)

const (
	// DefaultKeyPrefix is the default prefix for all keys
	DefaultKeyPrefix = "authserver:"

	// DefaultConnectTimeout bounds the connection retries of New.
	DefaultConnectTimeout = 30 * time.Second

	// tokenIDLogLength is the number of characters to include when logging codes
	tokenIDLogLength = 8

	// refreshTokenRetention keeps expired refresh token records around so a
	// late replay is still recognised.
	refreshTokenRetention = time.Hour

	// maxWatchRetries bounds optimistic transaction retries.
	maxWatchRetries = 10
)

// Config holds configuration for the Redis storage backend.
type Config struct {
	// Address is the Redis server address (required), e.g., "localhost:6379"
	Address string

	// Username and Password are the optional ACL credentials.
	Username string
	Password string

	// DB is the optional database number (default 0)
	DB int

	// KeyPrefix is the prefix for all keys (default "authserver:")
	KeyPrefix string

	// TLS is the optional TLS configuration for encrypted connections
	TLS *tls.Config

	// ConnectTimeout bounds the initial connection attempts (default 30s).
	ConnectTimeout time.Duration

	// Encryptor seals records at rest. Nil stores plain JSON.
	Encryptor *security.Encryptor

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger
}

// Store is a Redis-backed implementation of all storage interfaces.
type Store struct {
	client    goredis.UniversalClient
	prefix    string
	logger    *slog.Logger
	encryptor *security.Encryptor
	now       func() time.Time

	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer
}

// Compile-time interface checks to ensure Store implements all storage interfaces
var (
	_ storage.ClientStore       = (*Store)(nil)
	_ storage.UserStore         = (*Store)(nil)
	_ storage.APIStore          = (*Store)(nil)
	_ storage.CodeStore         = (*Store)(nil)
	_ storage.GrantStore        = (*Store)(nil)
	_ storage.RefreshTokenStore = (*Store)(nil)
)

// New connects to Redis and returns a store. The connection is retried with
// exponential backoff until ConnectTimeout elapses.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, errors.New("redis address is required")
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:      cfg.Address,
		Username:  cfg.Username,
		Password:  cfg.Password,
		DB:        cfg.DB,
		TLSConfig: cfg.TLS,
	})

	s := NewWithClient(client, cfg)

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		if err := client.Ping(ctx).Err(); err != nil {
			s.logger.Warn("Redis not reachable, retrying", "address", cfg.Address, "attempt", attempt, "error", err)
			return struct{}{}, err
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(timeout))
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	s.logger.Info("Connected to Redis storage",
		"address", cfg.Address,
		"db", cfg.DB,
		"prefix", s.prefix)
	return s, nil
}

// NewWithClient creates a store on a pre-configured client without checking
// the connection. Address, credentials and TLS of cfg are ignored.
func NewWithClient(client goredis.UniversalClient, cfg Config) *Store {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Encryptor != nil {
		logger.Info("Record encryption at rest enabled for Redis storage")
	}
	return &Store{
		client:    client,
		prefix:    prefix,
		logger:    logger,
		encryptor: cfg.Encryptor,
		now:       time.Now,
	}
}

// Close closes the Redis client connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping checks Redis connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// SetClock replaces the time source used for code expiry.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// SetInstrumentation sets OpenTelemetry instrumentation for the store
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("storage")
	}
}

// ============================================================
// Key Helpers
// ============================================================

func (s *Store) key(kind, id string) string {
	return s.prefix + kind + ":" + id
}

func (s *Store) codeKey(code string) string             { return s.key("code", code) }
func (s *Store) grantKey(grantID string) string         { return s.key("grant", grantID) }
func (s *Store) grantTokensKey(grantID string) string   { return s.key("idx:grant-tokens", grantID) }
func (s *Store) refreshKey(tokenID string) string       { return s.key("refresh", tokenID) }
func (s *Store) refreshActiveKey(tokenID string) string { return s.key("refresh-active", tokenID) }
func (s *Store) userGrantsKey(username string) string   { return s.key("idx:user-grants", username) }
func (s *Store) userTokensKey(username string) string   { return s.key("idx:user-tokens", username) }
func (s *Store) clientKey(clientID string) string       { return s.key("client", clientID) }
func (s *Store) userKey(username string) string         { return s.key("user", username) }
func (s *Store) apiKey(identifier string) string        { return s.key("api", identifier) }

// ============================================================
// Record Helpers
// ============================================================

func (s *Store) encode(v any) ([]byte, error) {
	return storage.EncodeRecord(v, s.encryptor)
}

func (s *Store) decode(data []byte, v any) error {
	return storage.DecodeRecord(data, v, s.encryptor)
}

// getRecord loads and decodes key into v, returning notFound for a missing key.
func (s *Store) getRecord(ctx context.Context, key string, v any, notFound error) error {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return notFound
	}
	if err != nil {
		return fmt.Errorf("failed to get %s: %w", key, err)
	}
	return s.decode(data, v)
}

// ============================================================
// Instrumentation Helpers
// ============================================================

// observe wraps fn in a span and a storage metric.
func (s *Store) observe(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	span := trace.SpanFromContext(ctx)
	if s.tracer != nil {
		ctx, span = s.tracer.Start(ctx, "storage."+operation,
			trace.WithAttributes(
				attribute.String(instrumentation.AttrStorageOperation, operation),
				attribute.String(instrumentation.AttrStorageType, "redis"),
			))
		defer span.End()
	}

	startTime := time.Now()
	err := fn(ctx)
	if s.instrumentation == nil {
		return err
	}

	result := instrumentation.ResultSuccess
	if err != nil && !storage.IsNotFound(err) {
		result = instrumentation.ResultFailure
		instrumentation.RecordError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	s.instrumentation.Metrics().RecordStorageOperation(ctx, operation, result, float64(time.Since(startTime).Milliseconds()))
	return err
}
