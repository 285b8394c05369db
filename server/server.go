package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/giantswarm/mcp-authserver/instrumentation"
	"github.com/giantswarm/mcp-authserver/security"
	"github.com/giantswarm/mcp-authserver/server/crypto"
	"github.com/giantswarm/mcp-authserver/server/keys"
	"github.com/giantswarm/mcp-authserver/storage"
)

// Stores groups the storage collaborators of a Server.
type Stores struct {
	Clients       storage.ClientStore
	Users         storage.UserStore
	Codes         storage.CodeStore
	Grants        storage.GrantStore
	RefreshTokens storage.RefreshTokenStore

	// APIs is optional. When set, registered API identifiers are accepted
	// as audiences in addition to Config.Audiences.
	APIs storage.APIStore
}

// Server implements the authorization and token legs of the authorization
// code flow. It holds no mutable state besides its collaborators; a single
// instance serves concurrent requests.
type Server struct {
	clients       storage.ClientStore
	users         storage.UserStore
	apis          storage.APIStore
	codes         storage.CodeStore
	grants        storage.GrantStore
	refreshTokens storage.RefreshTokenStore

	signingKey      *crypto.Key
	verificationKey *crypto.Key

	Auditor         *security.Auditor
	Instrumentation *instrumentation.Instrumentation
	Logger          *slog.Logger
	Config          *Config

	tracer       trace.Tracer
	metrics      *instrumentation.Metrics
	clock        Clock
	hashPassword func(password, salt string, iterations int) string
}

// New creates a new authorization server. The signing and verification keys
// are loaded from keyProvider once and kept for the lifetime of the Server.
func New(ctx context.Context, stores Stores, keyProvider keys.Provider, config *Config, logger *slog.Logger) (*Server, error) {
	if stores.Clients == nil {
		return nil, fmt.Errorf("client store is required")
	}
	if stores.Users == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if stores.Codes == nil {
		return nil, fmt.Errorf("code store is required")
	}
	if stores.Grants == nil {
		return nil, fmt.Errorf("grant store is required")
	}
	if stores.RefreshTokens == nil {
		return nil, fmt.Errorf("refresh token store is required")
	}
	if keyProvider == nil {
		return nil, fmt.Errorf("key provider is required")
	}
	if config == nil {
		config = &Config{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	config = applySecureDefaults(config)
	if err := validateConfig(config, logger); err != nil {
		return nil, err
	}

	signingKey, verificationKey, err := loadKeys(ctx, keyProvider)
	if err != nil {
		return nil, err
	}

	return &Server{
		clients:         stores.Clients,
		users:           stores.Users,
		apis:            stores.APIs,
		codes:           stores.Codes,
		grants:          stores.Grants,
		refreshTokens:   stores.RefreshTokens,
		signingKey:      signingKey,
		verificationKey: verificationKey,
		Logger:          logger,
		Config:          config,
		tracer:          noop.NewTracerProvider().Tracer("server"),
		clock:           SystemClock,
		hashPassword:    crypto.HashPassword,
	}, nil
}

func loadKeys(ctx context.Context, provider keys.Provider) (*crypto.Key, *crypto.Key, error) {
	signingJWK, err := provider.SigningKey(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load signing key: %w", err)
	}
	signingKey, err := crypto.ImportECDSAKey(signingJWK, crypto.RoleSign)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to import signing key: %w", err)
	}

	publicJWK, err := provider.PublicKey(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load public key: %w", err)
	}
	verificationKey, err := crypto.ImportECDSAKey(publicJWK, crypto.RoleVerify)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to import public key: %w", err)
	}
	return signingKey, verificationKey, nil
}

// SetAuditor sets the security auditor
func (s *Server) SetAuditor(aud *security.Auditor) {
	s.Auditor = aud
}

// SetInstrumentation enables tracing and metrics for the engine operations.
func (s *Server) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.Instrumentation = inst
	if inst == nil {
		s.tracer = noop.NewTracerProvider().Tracer("server")
		s.metrics = nil
		return
	}
	s.tracer = inst.Tracer("server")
	s.metrics = inst.Metrics()
}

// SetClock replaces the time source. Intended for tests.
func (s *Server) SetClock(clock Clock) {
	if clock == nil {
		clock = SystemClock
	}
	s.clock = clock
}

// PublicKey returns the token verification key, e.g. for a JWKS document.
func (s *Server) PublicKey() *crypto.Key {
	return s.verificationKey
}

func (s *Server) now() time.Time {
	return s.clock.Now()
}

func (s *Server) ttl(seconds int64) time.Duration {
	return time.Duration(seconds) * time.Second
}

func (s *Server) gracePeriod() time.Duration {
	return s.ttl(s.Config.ClockSkewGracePeriod)
}
