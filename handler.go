package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-jose/go-jose/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/giantswarm/mcp-authserver/instrumentation"
	"github.com/giantswarm/mcp-authserver/security"
	"github.com/giantswarm/mcp-authserver/server"
	"github.com/giantswarm/mcp-authserver/server/crypto"
)

// Cache-Control max-age of the discovery documents.
const (
	DefaultJWKSCacheMaxAge      = 3600
	DefaultDiscoveryCacheMaxAge = 3600
)

// Handler is a thin HTTP adapter for the authorization server engine.
// It parses requests, delegates to server.Server and renders the result.
type Handler struct {
	server      *server.Server
	logger      *slog.Logger
	tracer      trace.Tracer
	metrics     *instrumentation.Metrics
	logIPs      bool
	rateLimiter *security.RateLimiter
	proxy       security.ProxyConfig

	jwks     []byte
	metadata []byte
	router   http.Handler
}

// NewHandler creates the HTTP handler for srv.
func NewHandler(srv *server.Server, config Config) (*Handler, error) {
	config = applyDefaults(config)

	h := &Handler{
		server: srv,
		logger: config.Logger,
		tracer: noop.NewTracerProvider().Tracer("http"),
		proxy:  config.Proxy,
	}

	if inst := config.Instrumentation; inst != nil {
		h.tracer = inst.Tracer("http")
		h.metrics = inst.Metrics()
		h.logIPs = inst.ShouldLogClientIPs()
	}

	if config.RateLimit.Rate > 0 {
		h.rateLimiter = security.NewRateLimiter(security.RateLimitConfig{
			Rate:        config.RateLimit.Rate,
			Burst:       config.RateLimit.Burst,
			MaxEntries:  config.RateLimit.MaxEntries,
			IdleTimeout: config.RateLimit.IdleTimeout,
		}, h.logger)
	}

	var err error
	h.jwks, err = json.Marshal(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{srv.PublicKey().JWK()}})
	if err != nil {
		return nil, fmt.Errorf("failed to encode JWKS: %w", err)
	}
	h.metadata, err = json.Marshal(h.buildMetadata())
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}

	h.router = h.Routes()
	return h, nil
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// Close stops background work of the handler.
func (h *Handler) Close() {
	if h.rateLimiter != nil {
		h.rateLimiter.Stop()
	}
}

// Server returns the engine behind the handler.
func (h *Handler) Server() *server.Server {
	return h.server
}

// Routes returns a router with every endpoint registered.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(security.RequestIDMiddleware, h.securityHeaders)

	r.Group(func(r chi.Router) {
		r.Use(h.rateLimit)
		r.Get("/authorize", h.instrument("authorize", h.ServeAuthorize))
		r.Post("/authorize", h.instrument("authorize", h.ServeAuthorize))
		r.Post("/token", h.instrument("token", h.ServeToken))
		r.Post("/introspect", h.instrument("introspect", h.ServeIntrospection))
	})

	r.Get("/.well-known/jwks.json", h.instrument("jwks", h.ServeJWKS))
	r.Get("/.well-known/oauth-authorization-server", h.instrument("metadata", h.ServeAuthorizationServerMetadata))

	r.Route("/me", func(r chi.Router) {
		r.Use(h.requireUserInfoToken)
		r.Get("/", h.instrument("me", h.ServeUserInfo))
		r.Delete("/", h.instrument("me", h.ServeDeleteAccount))
		r.Get("/grants", h.instrument("me_grants", h.ServeListGrants))
		r.Delete("/grants/{id}", h.instrument("me_grants", h.ServeRevokeGrant))
		r.Get("/refreshTokens", h.instrument("me_refresh_tokens", h.ServeListRefreshTokens))
		r.Delete("/refreshTokens/{id}", h.instrument("me_refresh_tokens", h.ServeRevokeRefreshToken))
	})

	return r
}

// instrument wraps an endpoint in an "oauth.http.<endpoint>" span and
// records request metrics.
func (h *Handler) instrument(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, span := h.tracer.Start(r.Context(), "oauth.http."+endpoint)
		defer span.End()

		if requestID := security.GetRequestID(ctx); requestID != "" {
			instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrRequestID, requestID))
		}
		if h.logIPs {
			instrumentation.AddSecurityAttributes(span, h.clientIP(r))
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next(ww, r.WithContext(ctx))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		instrumentation.AddHTTPAttributes(span, r.Method, endpoint, status)
		if status >= http.StatusInternalServerError {
			instrumentation.SetSpanError(span, http.StatusText(status))
		} else {
			instrumentation.SetSpanSuccess(span)
		}
		h.metrics.RecordHTTPRequest(ctx, r.Method, endpoint, status, float64(time.Since(start).Microseconds())/1000)
	}
}

// rateLimit applies the per-IP limit.
func (h *Handler) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.rateLimiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		clientIP := h.clientIP(r)
		if h.rateLimiter.Allow(clientIP) {
			next.ServeHTTP(w, r)
			return
		}

		h.logger.Warn("Rate limit exceeded", "ip", clientIP, "endpoint", r.URL.Path)
		h.metrics.RecordRateLimitExceeded(r.Context(), r.URL.Path)
		h.server.Auditor.LogRateLimitExceeded(clientIP, r.URL.Path)
		w.Header().Set("Retry-After", "60")
		h.writeError(w, server.NewError(ErrorCodeRateLimitExceeded, "rate limit exceeded, please try again later"))
	})
}

func (h *Handler) clientIP(r *http.Request) string {
	return security.ClientIP(r, h.proxy)
}

// ServeAuthorize handles GET and POST /authorize. Every answer is a
// redirect: to the login page, back to the client with a code, or to the
// error page.
func (h *Handler) ServeAuthorize(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.redirectError(w, r, server.ErrInvalidRequest("failed to parse request"))
		return
	}
	params := r.URL.Query()
	if r.Method == http.MethodPost {
		params = r.PostForm
	}

	in := server.AuthorizationInput{Params: params, ClientIP: h.clientIP(r)}
	if r.Header.Get("Authorization") != "" {
		username, password, ok := r.BasicAuth()
		if !ok {
			h.redirectError(w, r, server.ErrInvalidRequest("malformed authorization header"))
			return
		}
		in.Credentials = &server.BasicCredentials{Username: username, Password: password}
	}

	outcome, err := h.server.Authorize(r.Context(), in)
	if err != nil {
		h.redirectError(w, r, err)
		return
	}
	http.Redirect(w, r, outcome.Location(), http.StatusFound)
}

// ServeToken handles POST /token.
func (h *Handler) ServeToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.writeError(w, server.ErrInvalidRequest("failed to parse request"))
		return
	}

	resp, err := h.server.HandleTokenRequest(r.Context(), r.PostForm)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// ServeIntrospection handles POST /introspect. The token is read from the
// token form field or the Authorization header; audience is optional.
// Semantic failures are rendered as {"active":false}.
func (h *Handler) ServeIntrospection(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.writeError(w, server.ErrInvalidRequest("failed to parse request"))
		return
	}

	token := r.PostForm.Get("token")
	if token == "" {
		token = bearerToken(r)
	}
	if token == "" {
		h.writeError(w, server.ErrInvalidRequest("token is required"))
		return
	}

	info, err := h.server.Introspect(r.Context(), token, r.PostForm.Get("audience"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !info.Active {
		h.writeInactive(w)
		return
	}
	h.writeJSON(w, http.StatusOK, IntrospectionResponse{
		Active:    true,
		Scope:     strings.Join(info.Scope, " "),
		ClientID:  info.ClientID,
		Username:  info.Username,
		Subject:   info.Username,
		Audience:  info.Audience,
		IssuedAt:  info.IssuedAt.Unix(),
		ExpiresAt: info.ExpiresAt.Unix(),
		UserInfo:  &UserInfoName{Name: info.Username},
	})
}

// ServeJWKS handles GET /.well-known/jwks.json.
func (h *Handler) ServeJWKS(w http.ResponseWriter, _ *http.Request) {
	writeCacheable(w, h.jwks, DefaultJWKSCacheMaxAge)
}

// ServeAuthorizationServerMetadata serves RFC 8414 Authorization Server Metadata
func (h *Handler) ServeAuthorizationServerMetadata(w http.ResponseWriter, _ *http.Request) {
	writeCacheable(w, h.metadata, DefaultDiscoveryCacheMaxAge)
}

func writeCacheable(w http.ResponseWriter, body []byte, maxAge int) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", maxAge))
	w.Header().Del("Pragma")
	_, _ = w.Write(body)
}

func (h *Handler) buildMetadata() AuthorizationServerMetadata {
	issuer := h.server.Config.Issuer
	return AuthorizationServerMetadata{
		Issuer:                            issuer,
		AuthorizationEndpoint:             issuer + "/authorize",
		TokenEndpoint:                     issuer + "/token",
		IntrospectionEndpoint:             issuer + "/introspect",
		JWKSURI:                           issuer + "/.well-known/jwks.json",
		UserInfoEndpoint:                  h.server.Config.UserInfoURL,
		ResponseTypesSupported:            []string{server.ResponseTypeCode},
		GrantTypesSupported:               []string{server.GrantTypeAuthorizationCode, server.GrantTypeRefreshToken},
		TokenEndpointAuthMethodsSupported: []string{"none"},
		CodeChallengeMethodsSupported:     []string{crypto.PKCEMethodS256},
	}
}

// bearerToken extracts the token of an Authorization header using the
// Bearer scheme or the JWT scheme of issued tokens.
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok {
		return ""
	}
	if !strings.EqualFold(scheme, "bearer") && !strings.EqualFold(scheme, server.TokenTypeJWT) {
		return ""
	}
	return strings.TrimSpace(token)
}

type tokenInfoKey struct{}

// TokenInfoFromContext returns the verified token of a request that passed
// ValidateToken or the /me endpoints.
func TokenInfoFromContext(ctx context.Context) (*server.TokenInfo, bool) {
	info, ok := ctx.Value(tokenInfoKey{}).(*server.TokenInfo)
	return info, ok
}

// ContextWithTokenInfo returns a context carrying info.
// Intended for tests of handlers behind ValidateToken.
func ContextWithTokenInfo(ctx context.Context, info *server.TokenInfo) context.Context {
	return context.WithValue(ctx, tokenInfoKey{}, info)
}

// ValidateToken is middleware for resource servers sharing the process with
// the authorization server. It requires an active access token issued for
// audience and carrying scopes.
func (h *Handler) ValidateToken(audience string, scopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				h.writeErrorStatus(w, server.ErrInvalidRequest("missing bearer token"), http.StatusUnauthorized)
				return
			}
			info, err := h.server.VerifyAccessToken(r.Context(), token, server.VerifyOptions{
				Audience: audience,
				Scopes:   scopes,
			})
			if err != nil {
				h.writeErrorStatus(w, err, http.StatusUnauthorized)
				return
			}
			if !info.Active {
				h.logger.Debug("Token validation failed", "ip", h.clientIP(r))
				h.writeError(w, server.ErrInvalidToken("access token is not active"))
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithTokenInfo(r.Context(), info)))
		})
	}
}
