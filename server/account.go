package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/giantswarm/mcp-authserver/security"
	"github.com/giantswarm/mcp-authserver/storage"
)

// UserInfo is the resource owner as shown on the user-info endpoint.
type UserInfo struct {
	Name  string   `json:"name"`
	Scope []string `json:"scope"`
}

// AuthenticateBearer verifies a token presented to the resource owner
// endpoints. It must be issued for the user-info URL and carry the
// user-info scope.
func (s *Server) AuthenticateBearer(ctx context.Context, token string) (*TokenInfo, error) {
	if token == "" {
		return nil, ErrInvalidRequest("missing bearer token")
	}
	info, err := s.VerifyAccessToken(ctx, token, VerifyOptions{
		Audience: s.Config.UserInfoURL,
		Scopes:   []string{s.Config.UserInfoScope},
	})
	if err != nil {
		return nil, err
	}
	if !info.Active {
		return nil, ErrInvalidToken("access token is not active")
	}
	return info, nil
}

// GetUserInfo returns the name and entitled scope of username.
func (s *Server) GetUserInfo(ctx context.Context, username string) (*UserInfo, error) {
	user, err := s.users.GetUser(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &UserInfo{Name: user.Username, Scope: user.Scope}, nil
}

// DeleteAccount deletes every grant of username, and with them every refresh
// token, and then the user record.
func (s *Server) DeleteAccount(ctx context.Context, username string) error {
	grants, err := s.grants.ListGrants(ctx, username)
	if err != nil {
		return fmt.Errorf("failed to list grants: %w", err)
	}
	for _, g := range grants {
		if err := s.grants.DeleteGrant(ctx, g.GrantID); err != nil {
			return fmt.Errorf("failed to delete grant %s: %w", g.GrantID, err)
		}
		s.metrics.RecordGrantRevoked(ctx, "account_deleted")
	}
	if err := s.users.DeleteUser(ctx, username); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	s.Auditor.LogEvent(security.Event{
		Type:     security.EventAccountDeleted,
		Username: username,
		Details: map[string]any{
			"grants_deleted": len(grants),
		},
	})
	return nil
}

// ListGrants returns the grants of username.
func (s *Server) ListGrants(ctx context.Context, username string) ([]*storage.Grant, error) {
	grants, err := s.grants.ListGrants(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	return grants, nil
}

// RevokeGrant deletes a grant owned by username. Grants of other users are
// reported as storage.ErrGrantNotFound.
func (s *Server) RevokeGrant(ctx context.Context, username, grantID string) error {
	grant, err := s.grants.GetGrant(ctx, grantID)
	if err != nil {
		return err
	}
	if grant.Username != username {
		return storage.ErrGrantNotFound
	}
	if err := s.grants.DeleteGrant(ctx, grantID); err != nil {
		return fmt.Errorf("failed to delete grant: %w", err)
	}

	s.metrics.RecordGrantRevoked(ctx, "owner")
	s.Auditor.LogEvent(security.Event{
		Type:     security.EventGrantRevoked,
		Username: username,
		ClientID: grant.ClientID,
		GrantID:  grantID,
	})
	return nil
}

// ListRefreshTokens returns the refresh tokens of username.
func (s *Server) ListRefreshTokens(ctx context.Context, username string) ([]*storage.RefreshToken, error) {
	tokens, err := s.refreshTokens.ListRefreshTokens(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to list refresh tokens: %w", err)
	}
	return tokens, nil
}

// RevokeRefreshToken deactivates a refresh token owned by username.
// Revoking an inactive token succeeds.
func (s *Server) RevokeRefreshToken(ctx context.Context, username, tokenID string) error {
	token, err := s.refreshTokens.GetRefreshToken(ctx, tokenID)
	if err != nil {
		return err
	}
	if token.Username != username {
		return storage.ErrRefreshTokenNotFound
	}
	err = s.refreshTokens.DeactivateRefreshToken(ctx, tokenID)
	if err != nil && !errors.Is(err, storage.ErrRefreshTokenInactive) {
		return fmt.Errorf("failed to deactivate refresh token: %w", err)
	}

	s.Auditor.LogEvent(security.Event{
		Type:     security.EventRefreshTokenRevoked,
		Username: username,
		ClientID: token.ClientID,
		GrantID:  token.GrantID,
	})
	return nil
}
