package memory

import (
	"context"
	"fmt"
	"slices"

	"github.com/giantswarm/mcp-authserver/storage"
)

// ============================================================
// Registrations
// ============================================================

// SaveClient registers or replaces a client.
func (s *Store) SaveClient(_ context.Context, client *storage.Client) error {
	if client == nil || client.ClientID == "" {
		return fmt.Errorf("invalid client")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *client
	s.clients[c.ClientID] = &c
	return nil
}

// GetClient retrieves a client by ID
func (s *Store) GetClient(_ context.Context, clientID string) (*storage.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	client, ok := s.clients[clientID]
	if !ok {
		return nil, storage.ErrClientNotFound
	}
	c := *client
	return &c, nil
}

// SaveUser registers or replaces a user.
func (s *Store) SaveUser(_ context.Context, user *storage.User) error {
	if user == nil || user.Username == "" {
		return fmt.Errorf("invalid user")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u := *user
	u.Scope = slices.Clone(user.Scope)
	s.users[u.Username] = &u
	return nil
}

// GetUser retrieves a user by username
func (s *Store) GetUser(_ context.Context, username string) (*storage.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[username]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	u := *user
	u.Scope = slices.Clone(user.Scope)
	return &u, nil
}

// DeleteUser removes a user.
func (s *Store) DeleteUser(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[username]; !ok {
		return storage.ErrUserNotFound
	}
	delete(s.users, username)
	return nil
}

// SaveAPI registers or replaces an API.
func (s *Store) SaveAPI(_ context.Context, api *storage.API) error {
	if api == nil || api.Identifier == "" {
		return fmt.Errorf("invalid api")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	a := *api
	a.Scope = slices.Clone(api.Scope)
	s.apis[a.Identifier] = &a
	return nil
}

// GetAPI retrieves an API by identifier
func (s *Store) GetAPI(_ context.Context, identifier string) (*storage.API, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	api, ok := s.apis[identifier]
	if !ok {
		return nil, storage.ErrAPINotFound
	}
	a := *api
	a.Scope = slices.Clone(api.Scope)
	return &a, nil
}
