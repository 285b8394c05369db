package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/giantswarm/mcp-authserver/internal/util"
	"github.com/giantswarm/mcp-authserver/storage"
)

// deactivateScript deletes the active flag of a refresh token.
//
// KEYS[1] = refresh token record key
// KEYS[2] = active flag key
//
// Returns 0 if the record does not exist, 1 if the token was already
// inactive and 2 if this call deactivated it.
var deactivateScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
return 1 + redis.call('DEL', KEYS[2])
`)

// ============================================================
// CodeStore Implementation
// ============================================================

// SaveCode stores an authorization code that expires after ttl.
func (s *Store) SaveCode(ctx context.Context, code *storage.AuthorizationCode, ttl time.Duration) error {
	return s.observe(ctx, "save_code", func(ctx context.Context) error {
		if code == nil || code.Code == "" {
			return fmt.Errorf("invalid authorization code")
		}

		c := code.Clone()
		if c.ExpiresAt.IsZero() {
			c.ExpiresAt = s.now().Add(ttl)
		}
		if ttl <= 0 {
			ttl = c.ExpiresAt.Sub(s.now())
		}
		if ttl <= 0 {
			return fmt.Errorf("authorization code already expired")
		}

		data, err := s.encode(c)
		if err != nil {
			return err
		}
		if err := s.client.Set(ctx, s.codeKey(c.Code), data, ttl).Err(); err != nil {
			return fmt.Errorf("failed to save authorization code: %w", err)
		}
		s.logger.Debug("Saved authorization code", "code_prefix", util.SafeTruncate(c.Code, tokenIDLogLength))
		return nil
	})
}

// GetCode retrieves an authorization code without consuming it.
func (s *Store) GetCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	var out storage.AuthorizationCode
	err := s.observe(ctx, "get_code", func(ctx context.Context) error {
		if err := s.getRecord(ctx, s.codeKey(code), &out, storage.ErrCodeNotFound); err != nil {
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

// DeleteCode removes an authorization code.
func (s *Store) DeleteCode(ctx context.Context, code string) error {
	return s.observe(ctx, "delete_code", func(ctx context.Context) error {
		if err := s.client.Del(ctx, s.codeKey(code)).Err(); err != nil {
			return fmt.Errorf("failed to delete authorization code: %w", err)
		}
		return nil
	})
}

// ConsumeCode atomically reads and deletes an authorization code with GETDEL.
func (s *Store) ConsumeCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	var out storage.AuthorizationCode
	err := s.observe(ctx, "consume_code", func(ctx context.Context) error {
		data, err := s.client.GetDel(ctx, s.codeKey(code)).Bytes()
		if errors.Is(err, goredis.Nil) {
			return storage.ErrCodeNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to consume authorization code: %w", err)
		}
		if err := s.decode(data, &out); err != nil {
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

// ============================================================
// GrantStore Implementation
// ============================================================

// SaveGrant stores a grant and indexes it under its user.
func (s *Store) SaveGrant(ctx context.Context, grant *storage.Grant) error {
	return s.observe(ctx, "save_grant", func(ctx context.Context) error {
		if grant == nil || grant.GrantID == "" {
			return fmt.Errorf("invalid grant")
		}
		data, err := s.encode(grant)
		if err != nil {
			return err
		}
		_, err = s.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			p.Set(ctx, s.grantKey(grant.GrantID), data, 0)
			p.SAdd(ctx, s.userGrantsKey(grant.Username), grant.GrantID)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to save grant: %w", err)
		}
		return nil
	})
}

// GetGrant retrieves a grant by ID
func (s *Store) GetGrant(ctx context.Context, grantID string) (*storage.Grant, error) {
	var out storage.Grant
	err := s.observe(ctx, "get_grant", func(ctx context.Context) error {
		return s.getRecord(ctx, s.grantKey(grantID), &out, storage.ErrGrantNotFound)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteGrant removes a grant and every refresh token issued under it.
// The token index of the grant is watched, so a token saved concurrently
// either is deleted too or makes the transaction retry.
func (s *Store) DeleteGrant(ctx context.Context, grantID string) error {
	return s.observe(ctx, "delete_grant", func(ctx context.Context) error {
		var grant storage.Grant
		err := s.getRecord(ctx, s.grantKey(grantID), &grant, storage.ErrGrantNotFound)
		if errors.Is(err, storage.ErrGrantNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		indexKey := s.grantTokensKey(grantID)
		txf := func(tx *goredis.Tx) error {
			tokenIDs, err := tx.SMembers(ctx, indexKey).Result()
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
				p.Del(ctx, s.grantKey(grantID), indexKey)
				p.SRem(ctx, s.userGrantsKey(grant.Username), grantID)
				for _, id := range tokenIDs {
					p.Del(ctx, s.refreshKey(id), s.refreshActiveKey(id))
					p.SRem(ctx, s.userTokensKey(grant.Username), id)
				}
				return nil
			})
			if err == nil {
				s.logger.Debug("Deleted grant", "grant_id", grantID, "refresh_tokens_removed", len(tokenIDs))
			}
			return err
		}

		for range maxWatchRetries {
			err = s.client.Watch(ctx, txf, indexKey)
			if !errors.Is(err, goredis.TxFailedErr) {
				break
			}
		}
		if err != nil {
			return fmt.Errorf("failed to delete grant: %w", err)
		}
		return nil
	})
}

// ListGrants returns the grants of username, oldest first.
func (s *Store) ListGrants(ctx context.Context, username string) ([]*storage.Grant, error) {
	var out []*storage.Grant
	err := s.observe(ctx, "list_grants", func(ctx context.Context) error {
		ids, err := s.client.SMembers(ctx, s.userGrantsKey(username)).Result()
		if err != nil {
			return fmt.Errorf("failed to list grants: %w", err)
		}
		for _, id := range ids {
			var grant storage.Grant
			err := s.getRecord(ctx, s.grantKey(id), &grant, storage.ErrGrantNotFound)
			if errors.Is(err, storage.ErrGrantNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			out = append(out, &grant)
		}
		storage.SortGrants(out)
		return nil
	})
	return out, err
}

// ============================================================
// RefreshTokenStore Implementation
// ============================================================

// SaveRefreshToken stores a refresh token record and indexes it under its
// user and grant. Records outlive their expiry by an hour.
func (s *Store) SaveRefreshToken(ctx context.Context, token *storage.RefreshToken) error {
	return s.observe(ctx, "save_refresh_token", func(ctx context.Context) error {
		if token == nil || token.RefreshTokenID == "" {
			return fmt.Errorf("invalid refresh token")
		}
		data, err := s.encode(token)
		if err != nil {
			return err
		}

		var ttl time.Duration
		if !token.ExpiresAt.IsZero() {
			ttl = max(token.ExpiresAt.Sub(s.now()), 0) + refreshTokenRetention
		}

		id := token.RefreshTokenID
		_, err = s.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			p.Set(ctx, s.refreshKey(id), data, ttl)
			if token.Active {
				p.Set(ctx, s.refreshActiveKey(id), "1", ttl)
			} else {
				p.Del(ctx, s.refreshActiveKey(id))
			}
			p.SAdd(ctx, s.userTokensKey(token.Username), id)
			p.SAdd(ctx, s.grantTokensKey(token.GrantID), id)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to save refresh token: %w", err)
		}
		return nil
	})
}

// GetRefreshToken retrieves a refresh token record by ID
func (s *Store) GetRefreshToken(ctx context.Context, tokenID string) (*storage.RefreshToken, error) {
	var out *storage.RefreshToken
	err := s.observe(ctx, "get_refresh_token", func(ctx context.Context) error {
		var err error
		out, err = s.loadRefreshToken(ctx, tokenID)
		return err
	})
	return out, err
}

func (s *Store) loadRefreshToken(ctx context.Context, tokenID string) (*storage.RefreshToken, error) {
	var record *goredis.StringCmd
	var active *goredis.IntCmd
	_, err := s.client.Pipelined(ctx, func(p goredis.Pipeliner) error {
		record = p.Get(ctx, s.refreshKey(tokenID))
		active = p.Exists(ctx, s.refreshActiveKey(tokenID))
		return nil
	})
	if errors.Is(record.Err(), goredis.Nil) {
		return nil, storage.ErrRefreshTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}

	data, err := record.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}
	var token storage.RefreshToken
	if err := s.decode(data, &token); err != nil {
		return nil, err
	}
	token.Active = active.Val() == 1
	return &token, nil
}

// DeactivateRefreshToken marks an active refresh token inactive.
// Only one concurrent caller can succeed for a given ID.
func (s *Store) DeactivateRefreshToken(ctx context.Context, tokenID string) error {
	return s.observe(ctx, "deactivate_refresh_token", func(ctx context.Context) error {
		keys := []string{s.refreshKey(tokenID), s.refreshActiveKey(tokenID)}
		result, err := deactivateScript.Run(ctx, s.client, keys).Int()
		if err != nil {
			return fmt.Errorf("failed to deactivate refresh token: %w", err)
		}
		switch result {
		case 0:
			return storage.ErrRefreshTokenNotFound
		case 1:
			return storage.ErrRefreshTokenInactive
		default:
			return nil
		}
	})
}

// ListRefreshTokens returns the refresh tokens of username, oldest first.
// Index entries of expired records are pruned on the way.
func (s *Store) ListRefreshTokens(ctx context.Context, username string) ([]*storage.RefreshToken, error) {
	var out []*storage.RefreshToken
	err := s.observe(ctx, "list_refresh_tokens", func(ctx context.Context) error {
		indexKey := s.userTokensKey(username)
		ids, err := s.client.SMembers(ctx, indexKey).Result()
		if err != nil {
			return fmt.Errorf("failed to list refresh tokens: %w", err)
		}
		for _, id := range ids {
			token, err := s.loadRefreshToken(ctx, id)
			if errors.Is(err, storage.ErrRefreshTokenNotFound) {
				if err := s.client.SRem(ctx, indexKey, id).Err(); err != nil {
					s.logger.Debug("Failed to prune refresh token index", "token_id_prefix", util.SafeTruncate(id, tokenIDLogLength), "error", err)
				}
				continue
			}
			if err != nil {
				return err
			}
			out = append(out, token)
		}
		storage.SortRefreshTokens(out)
		return nil
	})
	return out, err
}
