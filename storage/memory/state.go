package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/giantswarm/mcp-authserver/internal/util"
	"github.com/giantswarm/mcp-authserver/storage"
)

// ============================================================
// CodeStore Implementation
// ============================================================

// SaveCode stores an authorization code. When the code carries no expiry it
// expires after ttl.
func (s *Store) SaveCode(ctx context.Context, code *storage.AuthorizationCode, ttl time.Duration) error {
	return s.observe(ctx, "save_code", func() error {
		if code == nil || code.Code == "" {
			return fmt.Errorf("invalid authorization code")
		}

		s.mu.Lock()
		defer s.mu.Unlock()

		c := code.Clone()
		if c.ExpiresAt.IsZero() {
			c.ExpiresAt = s.now().Add(ttl)
		}
		s.codes[c.Code] = c
		s.codesCountAtomic.Store(int64(len(s.codes)))
		s.logger.Debug("Saved authorization code", "code_prefix", util.SafeTruncate(c.Code, tokenIDLogLength))
		return nil
	})
}

// GetCode retrieves an authorization code without consuming it.
func (s *Store) GetCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	var out *storage.AuthorizationCode
	err := s.observe(ctx, "get_code", func() error {
		s.mu.RLock()
		defer s.mu.RUnlock()

		authCode, ok := s.codes[code]
		if !ok || authCode.Expired(s.now()) {
			return storage.ErrCodeNotFound
		}
		out = authCode.Clone()
		return nil
	})
	return out, err
}

// DeleteCode removes an authorization code
func (s *Store) DeleteCode(ctx context.Context, code string) error {
	return s.observe(ctx, "delete_code", func() error {
		s.mu.Lock()
		defer s.mu.Unlock()

		delete(s.codes, code)
		s.codesCountAtomic.Store(int64(len(s.codes)))
		return nil
	})
}

// ConsumeCode atomically returns and deletes an authorization code.
// Only one concurrent caller can receive a given code.
func (s *Store) ConsumeCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	var out *storage.AuthorizationCode
	err := s.observe(ctx, "consume_code", func() error {
		s.mu.Lock()
		defer s.mu.Unlock()

		authCode, ok := s.codes[code]
		if !ok {
			return storage.ErrCodeNotFound
		}
		delete(s.codes, code)
		s.codesCountAtomic.Store(int64(len(s.codes)))

		if authCode.Expired(s.now()) {
			return storage.ErrCodeNotFound
		}
		out = authCode
		s.logger.Debug("Consumed authorization code",
			"code_prefix", util.SafeTruncate(code, tokenIDLogLength))
		return nil
	})
	return out, err
}

// ============================================================
// GrantStore Implementation
// ============================================================

// SaveGrant stores a grant.
func (s *Store) SaveGrant(ctx context.Context, grant *storage.Grant) error {
	return s.observe(ctx, "save_grant", func() error {
		if grant == nil || grant.GrantID == "" {
			return fmt.Errorf("invalid grant")
		}

		s.mu.Lock()
		defer s.mu.Unlock()

		s.grants[grant.GrantID] = grant.Clone()
		s.grantsCountAtomic.Store(int64(len(s.grants)))
		return nil
	})
}

// GetGrant retrieves a grant by ID
func (s *Store) GetGrant(ctx context.Context, grantID string) (*storage.Grant, error) {
	var out *storage.Grant
	err := s.observe(ctx, "get_grant", func() error {
		s.mu.RLock()
		defer s.mu.RUnlock()

		grant, ok := s.grants[grantID]
		if !ok {
			return storage.ErrGrantNotFound
		}
		out = grant.Clone()
		return nil
	})
	return out, err
}

// DeleteGrant removes a grant and every refresh token issued under it.
func (s *Store) DeleteGrant(ctx context.Context, grantID string) error {
	return s.observe(ctx, "delete_grant", func() error {
		s.mu.Lock()
		defer s.mu.Unlock()

		delete(s.grants, grantID)
		removed := 0
		for id, token := range s.refreshTokens {
			if token.GrantID == grantID {
				delete(s.refreshTokens, id)
				removed++
			}
		}
		s.updateCountsLocked()
		s.logger.Debug("Deleted grant", "grant_id", grantID, "refresh_tokens_removed", removed)
		return nil
	})
}

// ListGrants returns the grants of username, oldest first.
func (s *Store) ListGrants(ctx context.Context, username string) ([]*storage.Grant, error) {
	var out []*storage.Grant
	err := s.observe(ctx, "list_grants", func() error {
		s.mu.RLock()
		defer s.mu.RUnlock()

		for _, grant := range s.grants {
			if grant.Username == username {
				out = append(out, grant.Clone())
			}
		}
		storage.SortGrants(out)
		return nil
	})
	return out, err
}

// ============================================================
// RefreshTokenStore Implementation
// ============================================================

// SaveRefreshToken stores a refresh token record.
func (s *Store) SaveRefreshToken(ctx context.Context, token *storage.RefreshToken) error {
	return s.observe(ctx, "save_refresh_token", func() error {
		if token == nil || token.RefreshTokenID == "" {
			return fmt.Errorf("invalid refresh token")
		}

		s.mu.Lock()
		defer s.mu.Unlock()

		s.refreshTokens[token.RefreshTokenID] = token.Clone()
		s.refreshTokensCountAtomic.Store(int64(len(s.refreshTokens)))
		return nil
	})
}

// GetRefreshToken retrieves a refresh token record by ID
func (s *Store) GetRefreshToken(ctx context.Context, tokenID string) (*storage.RefreshToken, error) {
	var out *storage.RefreshToken
	err := s.observe(ctx, "get_refresh_token", func() error {
		s.mu.RLock()
		defer s.mu.RUnlock()

		token, ok := s.refreshTokens[tokenID]
		if !ok {
			return storage.ErrRefreshTokenNotFound
		}
		out = token.Clone()
		return nil
	})
	return out, err
}

// DeactivateRefreshToken marks an active refresh token inactive.
// Only one concurrent caller can succeed for a given ID.
func (s *Store) DeactivateRefreshToken(ctx context.Context, tokenID string) error {
	return s.observe(ctx, "deactivate_refresh_token", func() error {
		s.mu.Lock()
		defer s.mu.Unlock()

		token, ok := s.refreshTokens[tokenID]
		if !ok {
			return storage.ErrRefreshTokenNotFound
		}
		if !token.Active {
			return storage.ErrRefreshTokenInactive
		}
		s.refreshTokens[tokenID] = token.WithActive(false)
		return nil
	})
}

// ListRefreshTokens returns the refresh tokens of username, oldest first.
func (s *Store) ListRefreshTokens(ctx context.Context, username string) ([]*storage.RefreshToken, error) {
	var out []*storage.RefreshToken
	err := s.observe(ctx, "list_refresh_tokens", func() error {
		s.mu.RLock()
		defer s.mu.RUnlock()

		for _, token := range s.refreshTokens {
			if token.Username == username {
				out = append(out, token.Clone())
			}
		}
		storage.SortRefreshTokens(out)
		return nil
	})
	return out, err
}
