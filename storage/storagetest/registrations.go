package storagetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/mcp-authserver/storage"
)

// RegistrationStore is a store of clients, users and APIs that accepts new
// registrations.
type RegistrationStore interface {
	storage.ClientStore
	storage.UserStore
	storage.APIStore

	SaveClient(ctx context.Context, client *storage.Client) error
	SaveUser(ctx context.Context, user *storage.User) error
	SaveAPI(ctx context.Context, api *storage.API) error
}

// RunRegistrationStoreTests checks the ClientStore, UserStore and APIStore
// contracts against stores created by newStore.
func RunRegistrationStoreTests(t *testing.T, newStore func(t *testing.T) RegistrationStore) {
	t.Run("Client", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		client := &storage.Client{ClientID: "c1", Name: "One", RedirectURI: "https://one.example.com/cb"}
		require.NoError(t, s.SaveClient(ctx, client))

		got, err := s.GetClient(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, client, got)

		_, err = s.GetClient(ctx, "c2")
		assert.ErrorIs(t, err, storage.ErrClientNotFound)
	})

	t.Run("User", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		user := &storage.User{
			Username:           "alice",
			PasswordSalt:       "salt",
			PasswordHash:       "abcdef",
			PasswordAlgorithm:  "pbkdf2-sha512",
			PasswordIterations: 1000,
			Scope:              []string{"openid", "read"},
		}
		require.NoError(t, s.SaveUser(ctx, user))

		got, err := s.GetUser(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, user, got)

		require.NoError(t, s.DeleteUser(ctx, "alice"))
		_, err = s.GetUser(ctx, "alice")
		assert.ErrorIs(t, err, storage.ErrUserNotFound)
		assert.ErrorIs(t, s.DeleteUser(ctx, "alice"), storage.ErrUserNotFound)
	})

	t.Run("API", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		api := &storage.API{Identifier: "https://api.example.com", Name: "API", Scope: []string{"read"}}
		require.NoError(t, s.SaveAPI(ctx, api))

		got, err := s.GetAPI(ctx, api.Identifier)
		require.NoError(t, err)
		assert.Equal(t, api, got)

		_, err = s.GetAPI(ctx, "https://other.example.com")
		assert.ErrorIs(t, err, storage.ErrAPINotFound)
	})
}
