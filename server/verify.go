package server

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/giantswarm/mcp-authserver/instrumentation"
	"github.com/giantswarm/mcp-authserver/internal/util"
	"github.com/giantswarm/mcp-authserver/storage"
)

// ErrMalformedToken is returned for tokens that are not three dot-separated
// segments. Every other verification failure yields an inactive TokenInfo.
var ErrMalformedToken = ErrInvalidRequest("malformed access token")

// VerifyOptions narrows what a token must grant.
type VerifyOptions struct {
	// Audience, when set, must be one of the token's audiences.
	Audience string

	// Scopes must all be present in the token's scope.
	Scopes []string
}

// TokenInfo describes a verified access token. Only Active is set for
// inactive tokens.
type TokenInfo struct {
	Active    bool
	Username  string
	ClientID  string
	GrantID   string
	Scope     []string
	Audience  []string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// VerifyAccessToken checks the signature, expiry, issuer, audience and scope
// of an access token, and that its grant was not revoked.
func (s *Server) VerifyAccessToken(ctx context.Context, token string, opts VerifyOptions) (*TokenInfo, error) {
	ctx, span := s.tracer.Start(ctx, "oauth.server.verify_access_token")
	defer span.End()

	if strings.Count(token, ".") != 2 {
		instrumentation.RecordError(span, ErrMalformedToken)
		return nil, ErrMalformedToken
	}

	info := s.verifyAccessToken(ctx, token, opts)
	span.SetAttributes(attribute.Bool(instrumentation.AttrTokenActive, info.Active))
	instrumentation.SetSpanSuccess(span)
	return info, nil
}

func (s *Server) verifyAccessToken(ctx context.Context, token string, opts VerifyOptions) *TokenInfo {
	claims, err := s.parseAccessToken(token, opts.Audience)
	if err != nil {
		s.Logger.Debug("Access token rejected", "reason", err.Error())
		return &TokenInfo{}
	}

	if !util.IsSubset(opts.Scopes, claims.Scope) {
		s.Logger.Debug("Access token rejected",
			"reason", "insufficient_scope",
			"missing", util.Missing(opts.Scopes, claims.Scope))
		return &TokenInfo{}
	}

	if claims.GrantID != "" {
		if _, err := s.grants.GetGrant(ctx, claims.GrantID); err != nil {
			if errors.Is(err, storage.ErrGrantNotFound) {
				s.Logger.Debug("Access token rejected", "reason", "grant_revoked", "grant_id", claims.GrantID)
			} else {
				s.Logger.Error("Grant lookup failed during verification", "grant_id", claims.GrantID, "error", err)
			}
			return &TokenInfo{}
		}
	}

	info := &TokenInfo{
		Active:   true,
		Username: claims.Subject,
		ClientID: claims.ClientID,
		GrantID:  claims.GrantID,
		Scope:    claims.Scope,
		Audience: claims.Audience,
	}
	if claims.IssuedAt != nil {
		info.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info
}

// Introspect verifies token for a resource server. audience may be empty.
func (s *Server) Introspect(ctx context.Context, token, audience string) (*TokenInfo, error) {
	info, err := s.VerifyAccessToken(ctx, token, VerifyOptions{Audience: audience})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordIntrospection(ctx, info.Active)
	return info, nil
}
