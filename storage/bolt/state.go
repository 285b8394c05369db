package bolt

import (
	"context"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/giantswarm/mcp-authserver/storage"
)

// ============================================================
// CodeStore Implementation
// ============================================================

// SaveCode stores an authorization code. When the code carries no expiry it
// expires after ttl.
func (s *Store) SaveCode(ctx context.Context, code *storage.AuthorizationCode, ttl time.Duration) error {
	if code == nil || code.Code == "" {
		return fmt.Errorf("invalid authorization code")
	}
	c := code.Clone()
	if c.ExpiresAt.IsZero() {
		c.ExpiresAt = s.now().Add(ttl)
	}
	return s.update(ctx, "save_code", func(tx *bbolt.Tx) error {
		return s.put(tx, bucketCodes, c.Code, c)
	})
}

// GetCode retrieves an authorization code without consuming it.
func (s *Store) GetCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	var out storage.AuthorizationCode
	err := s.view(ctx, "get_code", func(tx *bbolt.Tx) error {
		if err := s.get(tx, bucketCodes, code, &out, storage.ErrCodeNotFound); err != nil {
			return err
		}
		if out.Expired(s.now()) {
			return storage.ErrCodeNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteCode removes an authorization code
func (s *Store) DeleteCode(ctx context.Context, code string) error {
	return s.update(ctx, "delete_code", func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCodes).Delete([]byte(code))
	})
}

// ConsumeCode reads and deletes an authorization code in one write
// transaction. Expired codes are deleted and reported as not found.
func (s *Store) ConsumeCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	var out storage.AuthorizationCode
	var expired bool
	err := s.update(ctx, "consume_code", func(tx *bbolt.Tx) error {
		if err := s.get(tx, bucketCodes, code, &out, storage.ErrCodeNotFound); err != nil {
			return err
		}
		expired = out.Expired(s.now())
		return tx.Bucket(bucketCodes).Delete([]byte(code))
	})
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, storage.ErrCodeNotFound
	}
	return &out, nil
}

// ============================================================
// GrantStore Implementation
// ============================================================

// SaveGrant stores a grant.
func (s *Store) SaveGrant(ctx context.Context, grant *storage.Grant) error {
	if grant == nil || grant.GrantID == "" {
		return fmt.Errorf("invalid grant")
	}
	return s.update(ctx, "save_grant", func(tx *bbolt.Tx) error {
		return s.put(tx, bucketGrants, grant.GrantID, grant)
	})
}

// GetGrant retrieves a grant by ID
func (s *Store) GetGrant(ctx context.Context, grantID string) (*storage.Grant, error) {
	var out storage.Grant
	err := s.view(ctx, "get_grant", func(tx *bbolt.Tx) error {
		return s.get(tx, bucketGrants, grantID, &out, storage.ErrGrantNotFound)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteGrant removes a grant and every refresh token issued under it.
func (s *Store) DeleteGrant(ctx context.Context, grantID string) error {
	return s.update(ctx, "delete_grant", func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketGrants).Delete([]byte(grantID)); err != nil {
			return err
		}

		var stale [][]byte
		err := tx.Bucket(bucketRefreshTokens).ForEach(func(k, v []byte) error {
			var token storage.RefreshToken
			if err := s.decode(v, &token); err != nil {
				return err
			}
			if token.GrantID == grantID {
				stale = append(stale, k)
			}
			return nil
		})
		if err != nil {
			return err
		}
		s.logger.Debug("Deleted grant", "grant_id", grantID, "refresh_tokens_removed", len(stale))
		return deleteKeys(tx.Bucket(bucketRefreshTokens), stale)
	})
}

// ListGrants returns the grants of username, oldest first.
func (s *Store) ListGrants(ctx context.Context, username string) ([]*storage.Grant, error) {
	var out []*storage.Grant
	err := s.view(ctx, "list_grants", func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketGrants).ForEach(func(_, v []byte) error {
			var grant storage.Grant
			if err := s.decode(v, &grant); err != nil {
				return err
			}
			if grant.Username == username {
				out = append(out, &grant)
			}
			return nil
		})
	})
	storage.SortGrants(out)
	return out, err
}

// ============================================================
// RefreshTokenStore Implementation
// ============================================================

// SaveRefreshToken stores a refresh token record.
func (s *Store) SaveRefreshToken(ctx context.Context, token *storage.RefreshToken) error {
	if token == nil || token.RefreshTokenID == "" {
		return fmt.Errorf("invalid refresh token")
	}
	return s.update(ctx, "save_refresh_token", func(tx *bbolt.Tx) error {
		return s.put(tx, bucketRefreshTokens, token.RefreshTokenID, token)
	})
}

// GetRefreshToken retrieves a refresh token record by ID
func (s *Store) GetRefreshToken(ctx context.Context, tokenID string) (*storage.RefreshToken, error) {
	var out storage.RefreshToken
	err := s.view(ctx, "get_refresh_token", func(tx *bbolt.Tx) error {
		return s.get(tx, bucketRefreshTokens, tokenID, &out, storage.ErrRefreshTokenNotFound)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeactivateRefreshToken marks an active refresh token inactive.
// Only one concurrent caller can succeed for a given ID.
func (s *Store) DeactivateRefreshToken(ctx context.Context, tokenID string) error {
	return s.update(ctx, "deactivate_refresh_token", func(tx *bbolt.Tx) error {
		var token storage.RefreshToken
		if err := s.get(tx, bucketRefreshTokens, tokenID, &token, storage.ErrRefreshTokenNotFound); err != nil {
			return err
		}
		if !token.Active {
			return storage.ErrRefreshTokenInactive
		}
		return s.put(tx, bucketRefreshTokens, tokenID, token.WithActive(false))
	})
}

// ListRefreshTokens returns the refresh tokens of username, oldest first.
func (s *Store) ListRefreshTokens(ctx context.Context, username string) ([]*storage.RefreshToken, error) {
	var out []*storage.RefreshToken
	err := s.view(ctx, "list_refresh_tokens", func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRefreshTokens).ForEach(func(_, v []byte) error {
			var token storage.RefreshToken
			if err := s.decode(v, &token); err != nil {
				return err
			}
			if token.Username == username {
				out = append(out, &token)
			}
			return nil
		})
	})
	storage.SortRefreshTokens(out)
	return out, err
}
