package redis

import (
	"context"
	"fmt"

	"github.com/giantswarm/mcp-authserver/storage"
)

// ============================================================
// Registrations
// ============================================================

func (s *Store) saveRecord(ctx context.Context, key string, v any) error {
	data, err := s.encode(v)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, data, 0).Err()
}

// SaveClient registers or replaces a client.
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) error {
	if client == nil || client.ClientID == "" {
		return fmt.Errorf("invalid client")
	}
	if err := s.saveRecord(ctx, s.clientKey(client.ClientID), client); err != nil {
		return fmt.Errorf("failed to save client: %w", err)
	}
	s.logger.Debug("Saved client", "client_id", client.ClientID)
	return nil
}

// GetClient retrieves a client by ID
func (s *Store) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	var out storage.Client
	err := s.observe(ctx, "get_client", func(ctx context.Context) error {
		return s.getRecord(ctx, s.clientKey(clientID), &out, storage.ErrClientNotFound)
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
	if err := s.saveRecord(ctx, s.userKey(user.Username), user); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by username
func (s *Store) GetUser(ctx context.Context, username string) (*storage.User, error) {
	var out storage.User
	err := s.observe(ctx, "get_user", func(ctx context.Context) error {
		return s.getRecord(ctx, s.userKey(username), &out, storage.ErrUserNotFound)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteUser removes a user.
func (s *Store) DeleteUser(ctx context.Context, username string) error {
	return s.observe(ctx, "delete_user", func(ctx context.Context) error {
		n, err := s.client.Del(ctx, s.userKey(username)).Result()
		if err != nil {
			return fmt.Errorf("failed to delete user: %w", err)
		}
		if n == 0 {
			return storage.ErrUserNotFound
		}
		return nil
	})
}

// SaveAPI registers or replaces an API.
func (s *Store) SaveAPI(ctx context.Context, api *storage.API) error {
	if api == nil || api.Identifier == "" {
		return fmt.Errorf("invalid api")
	}
	if err := s.saveRecord(ctx, s.apiKey(api.Identifier), api); err != nil {
		return fmt.Errorf("failed to save api: %w", err)
	}
	return nil
}

// GetAPI retrieves an API by identifier
func (s *Store) GetAPI(ctx context.Context, identifier string) (*storage.API, error) {
	var out storage.API
	err := s.observe(ctx, "get_api", func(ctx context.Context) error {
		return s.getRecord(ctx, s.apiKey(identifier), &out, storage.ErrAPINotFound)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
