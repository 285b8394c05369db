package bolt

import (
	"context"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/giantswarm/mcp-authserver/storage"
)

// ============================================================
// Registrations
// ============================================================

// SaveClient registers or replaces a client.
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) error {
	if client == nil || client.ClientID == "" {
		return fmt.Errorf("invalid client")
	}
	return s.update(ctx, "save_client", func(tx *bbolt.Tx) error {
		return s.put(tx, bucketClients, client.ClientID, client)
	})
}

// GetClient retrieves a client by ID
func (s *Store) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	var out storage.Client
	err := s.view(ctx, "get_client", func(tx *bbolt.Tx) error {
		return s.get(tx, bucketClients, clientID, &out, storage.ErrClientNotFound)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SaveUser registers or replaces a user.
func (s *Store) SaveUser(ctx context.Context, user *storage.User) error {
	if user == nil || user.Username == "" {
		return fmt.Errorf("invalid user")
	}
	return s.update(ctx, "save_user", func(tx *bbolt.Tx) error {
		return s.put(tx, bucketUsers, user.Username, user)
	})
}

// GetUser retrieves a user by username
func (s *Store) GetUser(ctx context.Context, username string) (*storage.User, error) {
	var out storage.User
	err := s.view(ctx, "get_user", func(tx *bbolt.Tx) error {
		return s.get(tx, bucketUsers, username, &out, storage.ErrUserNotFound)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteUser removes a user.
func (s *Store) DeleteUser(ctx context.Context, username string) error {
	return s.update(ctx, "delete_user", func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		if b.Get([]byte(username)) == nil {
			return storage.ErrUserNotFound
		}
		return b.Delete([]byte(username))
	})
}

// SaveAPI registers or replaces an API.
func (s *Store) SaveAPI(ctx context.Context, api *storage.API) error {
	if api == nil || api.Identifier == "" {
		return fmt.Errorf("invalid api")
	}
	return s.update(ctx, "save_api", func(tx *bbolt.Tx) error {
		return s.put(tx, bucketAPIs, api.Identifier, api)
	})
}

// GetAPI retrieves an API by identifier
func (s *Store) GetAPI(ctx context.Context, identifier string) (*storage.API, error) {
	var out storage.API
	err := s.view(ctx, "get_api", func(tx *bbolt.Tx) error {
		return s.get(tx, bucketAPIs, identifier, &out, storage.ErrAPINotFound)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
