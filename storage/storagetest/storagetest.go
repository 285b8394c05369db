// Package storagetest holds behavioural tests shared by the storage
// implementations.
package storagetest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/mcp-authserver/storage"
)

// NewTokenStore returns an empty store for one test.
type NewTokenStore func(t *testing.T) storage.TokenStore

// RunTokenStoreTests checks the CodeStore, GrantStore and RefreshTokenStore
// contracts against stores created by newStore.
func RunTokenStoreTests(t *testing.T, newStore NewTokenStore) {
	t.Run("CodeRoundTrip", func(t *testing.T) { testCodeRoundTrip(t, newStore(t)) })
	t.Run("ConsumeCodeOnce", func(t *testing.T) { testConsumeCodeOnce(t, newStore(t)) })
	t.Run("ConsumeCodeConcurrent", func(t *testing.T) { testConsumeCodeConcurrent(t, newStore(t)) })
	t.Run("GrantCascade", func(t *testing.T) { testGrantCascade(t, newStore(t)) })
	t.Run("ListByUser", func(t *testing.T) { testListByUser(t, newStore(t)) })
	t.Run("DeactivateOnce", func(t *testing.T) { testDeactivateOnce(t, newStore(t)) })
	t.Run("DeactivateConcurrent", func(t *testing.T) { testDeactivateConcurrent(t, newStore(t)) })
	t.Run("NotFound", func(t *testing.T) { testNotFound(t, newStore(t)) })
}

// Code returns an authorization code fixture valid for an hour.
func Code(code, grantID string) *storage.AuthorizationCode {
	return &storage.AuthorizationCode{
		Code:                code,
		ClientID:            "client",
		Username:            "alice",
		Scope:               []string{"read", "write"},
		Audience:            []string{"https://api.example.com"},
		CodeChallenge:       "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
		CodeChallengeMethod: "S256",
		GrantID:             grantID,
		ExpiresAt:           time.Now().Add(time.Hour),
	}
}

// Grant returns a grant fixture.
func Grant(id, username string) *storage.Grant {
	return &storage.Grant{
		GrantID:   id,
		ClientID:  "client",
		Username:  username,
		Scope:     []string{"read", "write"},
		Audience:  []string{"https://api.example.com"},
		CreatedAt: time.Now().Truncate(time.Second),
	}
}

// RefreshToken returns an active refresh token fixture.
func RefreshToken(id, grantID, username string) *storage.RefreshToken {
	now := time.Now().Truncate(time.Second)
	return &storage.RefreshToken{
		RefreshTokenID: id,
		ClientID:       "client",
		GrantID:        grantID,
		Username:       username,
		Scope:          []string{"read"},
		Active:         true,
		IssuedAt:       now,
		ExpiresAt:      now.Add(24 * time.Hour),
	}
}

func testCodeRoundTrip(t *testing.T, s storage.TokenStore) {
	ctx := context.Background()
	code := Code("c1", "g1")
	require.NoError(t, s.SaveCode(ctx, code, time.Hour))

	got, err := s.GetCode(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, code.ClientID, got.ClientID)
	assert.Equal(t, code.Scope, got.Scope)
	assert.Equal(t, code.Audience, got.Audience)
	assert.Equal(t, code.CodeChallenge, got.CodeChallenge)
	assert.Equal(t, code.GrantID, got.GrantID)

	require.NoError(t, s.DeleteCode(ctx, "c1"))
	_, err = s.GetCode(ctx, "c1")
	assert.ErrorIs(t, err, storage.ErrCodeNotFound)
	assert.NoError(t, s.DeleteCode(ctx, "c1"), "deleting an unknown code is not an error")
}

func testConsumeCodeOnce(t *testing.T, s storage.TokenStore) {
	ctx := context.Background()
	require.NoError(t, s.SaveCode(ctx, Code("c1", "g1"), time.Hour))

	got, err := s.ConsumeCode(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "g1", got.GrantID)

	_, err = s.ConsumeCode(ctx, "c1")
	assert.ErrorIs(t, err, storage.ErrCodeNotFound)
	_, err = s.GetCode(ctx, "c1")
	assert.ErrorIs(t, err, storage.ErrCodeNotFound)
}

func testConsumeCodeConcurrent(t *testing.T, s storage.TokenStore) {
	ctx := context.Background()
	require.NoError(t, s.SaveCode(ctx, Code("c1", "g1"), time.Hour))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.ConsumeCode(ctx, "c1"); err == nil {
				wins.Add(1)
			} else if !errors.Is(err, storage.ErrCodeNotFound) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func testGrantCascade(t *testing.T, s storage.TokenStore) {
	ctx := context.Background()
	require.NoError(t, s.SaveGrant(ctx, Grant("g1", "alice")))
	require.NoError(t, s.SaveGrant(ctx, Grant("g2", "alice")))
	require.NoError(t, s.SaveRefreshToken(ctx, RefreshToken("r1", "g1", "alice")))
	require.NoError(t, s.SaveRefreshToken(ctx, RefreshToken("r2", "g1", "alice")))
	require.NoError(t, s.SaveRefreshToken(ctx, RefreshToken("r3", "g2", "alice")))

	got, err := s.GetGrant(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, []string{"read", "write"}, got.Scope)

	require.NoError(t, s.DeleteGrant(ctx, "g1"))

	_, err = s.GetGrant(ctx, "g1")
	assert.ErrorIs(t, err, storage.ErrGrantNotFound)
	for _, id := range []string{"r1", "r2"} {
		_, err = s.GetRefreshToken(ctx, id)
		assert.ErrorIs(t, err, storage.ErrRefreshTokenNotFound, id)
	}
	_, err = s.GetRefreshToken(ctx, "r3")
	assert.NoError(t, err, "tokens of other grants survive")

	assert.NoError(t, s.DeleteGrant(ctx, "g1"), "deleting an unknown grant is not an error")
}

func testListByUser(t *testing.T, s storage.TokenStore) {
	ctx := context.Background()
	require.NoError(t, s.SaveGrant(ctx, Grant("g1", "alice")))
	require.NoError(t, s.SaveGrant(ctx, Grant("g2", "bob")))
	require.NoError(t, s.SaveRefreshToken(ctx, RefreshToken("r1", "g1", "alice")))
	require.NoError(t, s.SaveRefreshToken(ctx, RefreshToken("r2", "g2", "bob")))

	grants, err := s.ListGrants(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, "g1", grants[0].GrantID)

	tokens, err := s.ListRefreshTokens(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, "r2", tokens[0].RefreshTokenID)

	grants, err = s.ListGrants(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, grants)
}

func testDeactivateOnce(t *testing.T, s storage.TokenStore) {
	ctx := context.Background()
	require.NoError(t, s.SaveRefreshToken(ctx, RefreshToken("r1", "g1", "alice")))

	require.NoError(t, s.DeactivateRefreshToken(ctx, "r1"))
	got, err := s.GetRefreshToken(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, got.Active)

	assert.ErrorIs(t, s.DeactivateRefreshToken(ctx, "r1"), storage.ErrRefreshTokenInactive)
	assert.ErrorIs(t, s.DeactivateRefreshToken(ctx, "missing"), storage.ErrRefreshTokenNotFound)
}

func testDeactivateConcurrent(t *testing.T, s storage.TokenStore) {
	ctx := context.Background()
	require.NoError(t, s.SaveRefreshToken(ctx, RefreshToken("r1", "g1", "alice")))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.DeactivateRefreshToken(ctx, "r1")
			switch {
			case err == nil:
				wins.Add(1)
			case !errors.Is(err, storage.ErrRefreshTokenInactive):
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func testNotFound(t *testing.T, s storage.TokenStore) {
	ctx := context.Background()
	_, err := s.GetCode(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrCodeNotFound)
	_, err = s.ConsumeCode(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrCodeNotFound)
	_, err = s.GetGrant(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrGrantNotFound)
	_, err = s.GetRefreshToken(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrRefreshTokenNotFound)
}
