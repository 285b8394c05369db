package server

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/mcp-authserver/instrumentation"
	"github.com/giantswarm/mcp-authserver/internal/util"
	"github.com/giantswarm/mcp-authserver/security"
	"github.com/giantswarm/mcp-authserver/server/crypto"
	"github.com/giantswarm/mcp-authserver/storage"
)

// Outward token leg failure descriptions.
const (
	descInvalidCode          = "invalid authorization code"
	descInvalidRefreshToken  = "invalid refresh token"
	descRefreshTokenExpired  = "refresh token expired"
	descRefreshTokenNotFound = "refresh token not found"
	descRefreshTokenRevoked  = "refresh token is no longer active"
	descGrantInactive        = "grant is no longer active"
	descScopeExceedsGrant    = "requested scope exceeds granted scope"
	descPKCEFailed           = "code verifier does not match the code challenge"
)

// TokenResponse is the body of a successful token request.
type TokenResponse struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int64    `json:"expires_in"`
	Scope        []string `json:"scope"`
}

// HandleTokenRequest dispatches a token request on its grant_type.
func (s *Server) HandleTokenRequest(ctx context.Context, params url.Values) (*TokenResponse, error) {
	grantType, err := validateGrantType(params)
	if err != nil {
		return nil, AsError(err)
	}
	if grantType == GrantTypeRefreshToken {
		return s.RefreshAccessToken(ctx, params)
	}
	return s.ExchangeAuthorizationCode(ctx, params)
}

// ExchangeAuthorizationCode redeems an authorization code. The code is
// consumed before any check that follows its lookup, so it can never be
// redeemed twice.
func (s *Server) ExchangeAuthorizationCode(ctx context.Context, params url.Values) (*TokenResponse, error) {
	ctx, span := s.tracer.Start(ctx, "oauth.server.exchange_authorization_code",
		trace.WithAttributes(attribute.String(instrumentation.AttrGrantType, GrantTypeAuthorizationCode)))
	defer span.End()

	resp, clientID, err := s.exchangeAuthorizationCode(ctx, span, params)
	if err != nil {
		s.metrics.RecordCodeExchange(ctx, clientID, instrumentation.ResultFailure)
		return nil, s.finishWithError(span, "Authorization code exchange failed", err)
	}
	s.metrics.RecordCodeExchange(ctx, clientID, instrumentation.ResultSuccess)
	instrumentation.SetSpanSuccess(span)
	return resp, nil
}

func (s *Server) exchangeAuthorizationCode(ctx context.Context, span trace.Span, params url.Values) (*TokenResponse, string, error) {
	req, err := parseCodeExchangeRequest(params)
	if err != nil {
		return nil, "", err
	}
	if _, err := s.AuthenticateClient(ctx, req.ClientID, req.RedirectURI, nil); err != nil {
		return nil, req.ClientID, err
	}

	authCode, err := s.codes.ConsumeCode(ctx, req.Code)
	if err != nil {
		if errors.Is(err, storage.ErrCodeNotFound) {
			s.Logger.Debug("Authorization code validation failed",
				"reason", "not_found",
				"client_id", req.ClientID,
				"code_prefix", util.SafeTruncate(req.Code, 8))
			s.Auditor.LogAuthFailure("", req.ClientID, "", "invalid_authorization_code")
			return nil, req.ClientID, ErrInvalidGrant(descInvalidCode)
		}
		return nil, req.ClientID, ErrServerError(fmt.Errorf("failed to consume authorization code: %w", err))
	}

	if authCode.Expired(s.now()) {
		s.Logger.Debug("Authorization code validation failed",
			"reason", "expired",
			"client_id", req.ClientID,
			"code_prefix", util.SafeTruncate(req.Code, 8))
		return nil, req.ClientID, ErrInvalidGrant(descInvalidCode)
	}

	if authCode.ClientID != req.ClientID {
		s.Logger.Debug("Authorization code validation failed",
			"reason", "client_id_mismatch",
			"expected_client_id", authCode.ClientID,
			"provided_client_id", req.ClientID,
			"code_prefix", util.SafeTruncate(req.Code, 8))
		s.Auditor.LogAuthFailure(authCode.Username, req.ClientID, "", "client_id_mismatch")
		return nil, req.ClientID, ErrInvalidGrant(descInvalidCode)
	}

	span.SetAttributes(attribute.String(instrumentation.AttrPKCEMethod, authCode.CodeChallengeMethod))
	if !crypto.VerifyPKCE(authCode.CodeChallenge, authCode.CodeChallengeMethod, req.CodeVerifier) {
		s.Auditor.LogEvent(security.Event{
			Type:     security.EventPKCEValidationFailed,
			Username: authCode.Username,
			ClientID: req.ClientID,
			GrantID:  authCode.GrantID,
			Details: map[string]any{
				"method": authCode.CodeChallengeMethod,
			},
		})
		s.metrics.RecordPKCEValidationFailed(ctx, authCode.CodeChallengeMethod)
		return nil, req.ClientID, ErrInvalidGrant(descPKCEFailed)
	}

	scope := authCode.Scope
	if req.Scope != nil {
		if !util.IsSubset(req.Scope, authCode.Scope) {
			s.logScopeEscalation(authCode.Username, req.ClientID, authCode.GrantID, req.Scope, authCode.Scope)
			return nil, req.ClientID, ErrInvalidGrant(descScopeExceedsGrant)
		}
		scope = req.Scope
	}

	grant, err := s.grants.GetGrant(ctx, authCode.GrantID)
	if err != nil {
		if errors.Is(err, storage.ErrGrantNotFound) {
			return nil, req.ClientID, ErrInvalidGrant(descGrantInactive)
		}
		return nil, req.ClientID, ErrServerError(fmt.Errorf("failed to load grant: %w", err))
	}

	resp, err := s.issueTokens(ctx, grant, scope)
	if err != nil {
		return nil, req.ClientID, err
	}

	instrumentation.AddGrantAttributes(span, req.ClientID, grant.GrantID, scope)
	s.Auditor.LogTokenIssued(grant.Username, req.ClientID, grant.GrantID, scope)
	return resp, req.ClientID, nil
}

// RefreshAccessToken rotates a refresh token. Presenting a token that was
// already rotated deletes its grant together with every refresh token
// issued under it.
func (s *Server) RefreshAccessToken(ctx context.Context, params url.Values) (*TokenResponse, error) {
	ctx, span := s.tracer.Start(ctx, "oauth.server.refresh_access_token",
		trace.WithAttributes(attribute.String(instrumentation.AttrGrantType, GrantTypeRefreshToken)))
	defer span.End()

	resp, clientID, err := s.refreshAccessToken(ctx, span, params)
	if err != nil {
		s.metrics.RecordTokenRefresh(ctx, clientID, instrumentation.ResultFailure)
		return nil, s.finishWithError(span, "Refresh token exchange failed", err)
	}
	s.metrics.RecordTokenRefresh(ctx, clientID, instrumentation.ResultSuccess)
	instrumentation.SetSpanSuccess(span)
	return resp, nil
}

func (s *Server) refreshAccessToken(ctx context.Context, span trace.Span, params url.Values) (*TokenResponse, string, error) {
	req, err := parseRefreshRequest(params)
	if err != nil {
		return nil, "", err
	}

	payload, err := s.parseRefreshToken(req.RefreshToken)
	if err != nil {
		s.Logger.Debug("Refresh token validation failed",
			"reason", "invalid_signature_or_format",
			"error", err,
			"client_id", req.ClientID)
		s.Auditor.LogAuthFailure("", req.ClientID, "", "invalid_refresh_token")
		return nil, req.ClientID, ErrInvalidGrant(descInvalidRefreshToken)
	}
	if security.IsExpired(payload.expiresAt(), s.now(), s.gracePeriod()) {
		s.Logger.Debug("Refresh token validation failed", "reason", "expired", "client_id", req.ClientID)
		return nil, req.ClientID, ErrInvalidGrant(descRefreshTokenExpired)
	}

	stored, err := s.refreshTokens.GetRefreshToken(ctx, payload.TokenID)
	if err != nil {
		if errors.Is(err, storage.ErrRefreshTokenNotFound) {
			return nil, req.ClientID, s.missingRefreshTokenError(ctx, payload.GrantID)
		}
		return nil, req.ClientID, ErrServerError(fmt.Errorf("failed to load refresh token: %w", err))
	}

	if !stored.Active {
		span.SetAttributes(attribute.Bool(instrumentation.AttrTokenReuse, true))
		return nil, req.ClientID, s.revokeGrantOnReuse(ctx, stored)
	}

	grant, err := s.grants.GetGrant(ctx, payload.GrantID)
	if err != nil {
		if errors.Is(err, storage.ErrGrantNotFound) {
			return nil, req.ClientID, ErrInvalidGrant(descGrantInactive)
		}
		return nil, req.ClientID, ErrServerError(fmt.Errorf("failed to load grant: %w", err))
	}

	if stored.ClientID != req.ClientID || stored.GrantID != grant.GrantID {
		s.Logger.Debug("Refresh token validation failed",
			"reason", "client_id_mismatch",
			"expected_client_id", stored.ClientID,
			"provided_client_id", req.ClientID)
		s.Auditor.LogAuthFailure(stored.Username, req.ClientID, "", "client_id_mismatch")
		return nil, req.ClientID, ErrInvalidGrant(descInvalidRefreshToken)
	}

	scope := stored.Scope
	if req.Scope != nil {
		if !util.IsSubset(req.Scope, grant.Scope) {
			s.logScopeEscalation(stored.Username, req.ClientID, grant.GrantID, req.Scope, grant.Scope)
			return nil, req.ClientID, ErrInvalidGrant(descScopeExceedsGrant)
		}
		scope = req.Scope
	}

	// Retire the presented token before minting its successor. A crash in
	// between leaves the user without a live token, never with two.
	if err := s.refreshTokens.DeactivateRefreshToken(ctx, stored.RefreshTokenID); err != nil {
		switch {
		case errors.Is(err, storage.ErrRefreshTokenInactive):
			span.SetAttributes(attribute.Bool(instrumentation.AttrTokenReuse, true))
			return nil, req.ClientID, s.revokeGrantOnReuse(ctx, stored)
		case errors.Is(err, storage.ErrRefreshTokenNotFound):
			return nil, req.ClientID, ErrInvalidGrant(descRefreshTokenNotFound)
		default:
			return nil, req.ClientID, ErrServerError(fmt.Errorf("failed to deactivate refresh token: %w", err))
		}
	}

	resp, err := s.issueTokens(ctx, grant, scope)
	if err != nil {
		return nil, req.ClientID, err
	}

	instrumentation.AddGrantAttributes(span, req.ClientID, grant.GrantID, scope)
	s.Auditor.LogTokenRefreshed(grant.Username, req.ClientID, grant.GrantID)
	return resp, req.ClientID, nil
}

// issueTokens mints an access token and a new active refresh token under grant.
func (s *Server) issueTokens(ctx context.Context, grant *storage.Grant, scope []string) (*TokenResponse, error) {
	now := s.now()
	accessTTL := s.ttl(s.Config.AccessTokenTTL)
	refreshTTL := s.ttl(s.Config.RefreshTokenTTL)

	accessToken, err := s.mintAccessToken(&AccessTokenClaims{
		Scope:    scope,
		ClientID: grant.ClientID,
		GrantID:  grant.GrantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.Config.Issuer,
			Subject:   grant.Username,
			Audience:  jwt.ClaimStrings(grant.Audience),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(accessTTL)),
		},
	})
	if err != nil {
		return nil, ErrServerError(err)
	}

	record := &storage.RefreshToken{
		RefreshTokenID: uuid.NewString(),
		ClientID:       grant.ClientID,
		GrantID:        grant.GrantID,
		Username:       grant.Username,
		Scope:          scope,
		Active:         true,
		IssuedAt:       now,
		ExpiresAt:      now.Add(refreshTTL),
	}
	refreshToken, err := s.mintRefreshToken(&RefreshTokenPayload{
		TokenID:  record.RefreshTokenID,
		GrantID:  record.GrantID,
		Scope:    scope,
		IssuedAt: now.Unix(),
		Expires:  record.ExpiresAt.Unix(),
	})
	if err != nil {
		return nil, ErrServerError(err)
	}
	if err := s.refreshTokens.SaveRefreshToken(ctx, record); err != nil {
		return nil, ErrServerError(fmt.Errorf("failed to save refresh token: %w", err))
	}

	return &TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    TokenTypeJWT,
		ExpiresIn:    s.Config.AccessTokenTTL,
		Scope:        scope,
	}, nil
}

// missingRefreshTokenError distinguishes a token removed with its grant
// from one that never existed.
func (s *Server) missingRefreshTokenError(ctx context.Context, grantID string) error {
	_, err := s.grants.GetGrant(ctx, grantID)
	switch {
	case err == nil:
		return ErrInvalidGrant(descRefreshTokenNotFound)
	case errors.Is(err, storage.ErrGrantNotFound):
		return ErrInvalidGrant(descGrantInactive)
	default:
		return ErrServerError(fmt.Errorf("failed to load grant: %w", err))
	}
}

// revokeGrantOnReuse deletes the grant of a replayed refresh token.
func (s *Server) revokeGrantOnReuse(ctx context.Context, token *storage.RefreshToken) error {
	s.Logger.Warn("Refresh token reuse detected - revoking grant",
		"client_id", token.ClientID,
		"grant_id", token.GrantID)
	s.Auditor.LogRefreshTokenReuse(token.Username, token.ClientID, token.GrantID)
	s.metrics.RecordTokenReuseDetected(ctx)

	if err := s.grants.DeleteGrant(ctx, token.GrantID); err != nil {
		return ErrServerError(fmt.Errorf("failed to delete grant after refresh token reuse: %w", err))
	}
	s.metrics.RecordGrantRevoked(ctx, "reuse")
	return ErrInvalidGrant(descRefreshTokenRevoked)
}

func (s *Server) logScopeEscalation(username, clientID, grantID string, requested, granted []string) {
	s.Logger.Debug("Scope escalation rejected",
		"client_id", clientID,
		"grant_id", grantID,
		"missing", util.Missing(requested, granted))
	s.Auditor.LogEvent(security.Event{
		Type:     security.EventScopeEscalation,
		Username: username,
		ClientID: clientID,
		GrantID:  grantID,
		Details: map[string]any{
			"requested": joinScope(requested),
			"granted":   joinScope(granted),
		},
	})
}

// finishWithError converts err, logs server errors and marks span failed.
func (s *Server) finishWithError(span trace.Span, msg string, err error) *Error {
	protoErr := AsError(err)
	if protoErr.Code == ErrorCodeServerError {
		s.Logger.Error(msg, "error", err)
	} else {
		s.Logger.Debug(msg, "error_code", protoErr.Code, "description", protoErr.Description)
	}
	span.SetAttributes(attribute.String(instrumentation.AttrError, protoErr.Code))
	instrumentation.RecordError(span, protoErr)
	return protoErr
}
