package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/giantswarm/mcp-authserver/storage"
)

// SaveClient registers or replaces a client.
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) error {
	if client == nil || client.ClientID == "" {
		return fmt.Errorf("invalid client")
	}
	_, err := s.exec(ctx, `
		INSERT INTO clients (client_id, name, redirect_uri) VALUES (?, ?, ?)
		ON CONFLICT (client_id) DO UPDATE SET name = excluded.name, redirect_uri = excluded.redirect_uri`,
		client.ClientID, client.Name, client.RedirectURI)
	if err != nil {
		return fmt.Errorf("failed to save client: %w", err)
	}
	s.logger.Debug("Saved client", "client_id", client.ClientID)
	return nil
}

// GetClient retrieves a client by ID
func (s *Store) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	var c storage.Client
	err := s.queryRow(ctx, `SELECT client_id, name, redirect_uri FROM clients WHERE client_id = ?`, clientID).
		Scan(&c.ClientID, &c.Name, &c.RedirectURI)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrClientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return &c, nil
}

// SaveUser registers or replaces a user.
func (s *Store) SaveUser(ctx context.Context, user *storage.User) error {
	if user == nil || user.Username == "" {
		return fmt.Errorf("invalid user")
	}
	_, err := s.exec(ctx, `
		INSERT INTO users (username, password_salt, password_hash, password_algorithm, password_iterations, scope)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (username) DO UPDATE SET
			password_salt = excluded.password_salt,
			password_hash = excluded.password_hash,
			password_algorithm = excluded.password_algorithm,
			password_iterations = excluded.password_iterations,
			scope = excluded.scope`,
		user.Username, user.PasswordSalt, user.PasswordHash, user.PasswordAlgorithm,
		user.PasswordIterations, joinScope(user.Scope))
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by username
func (s *Store) GetUser(ctx context.Context, username string) (*storage.User, error) {
	var u storage.User
	var scope string
	err := s.queryRow(ctx, `
		SELECT username, password_salt, password_hash, password_algorithm, password_iterations, scope
		FROM users WHERE username = ?`, username).
		Scan(&u.Username, &u.PasswordSalt, &u.PasswordHash, &u.PasswordAlgorithm, &u.PasswordIterations, &scope)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u.Scope = splitScope(scope)
	return &u, nil
}

// DeleteUser removes a user.
func (s *Store) DeleteUser(ctx context.Context, username string) error {
	res, err := s.exec(ctx, `DELETE FROM users WHERE username = ?`, username)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if n == 0 {
		return storage.ErrUserNotFound
	}
	return nil
}

// SaveAPI registers or replaces an API.
func (s *Store) SaveAPI(ctx context.Context, api *storage.API) error {
	if api == nil || api.Identifier == "" {
		return fmt.Errorf("invalid api")
	}
	_, err := s.exec(ctx, `
		INSERT INTO apis (identifier, name, scope) VALUES (?, ?, ?)
		ON CONFLICT (identifier) DO UPDATE SET name = excluded.name, scope = excluded.scope`,
		api.Identifier, api.Name, joinScope(api.Scope))
	if err != nil {
		return fmt.Errorf("failed to save api: %w", err)
	}
	return nil
}

// GetAPI retrieves an API by identifier
func (s *Store) GetAPI(ctx context.Context, identifier string) (*storage.API, error) {
	var a storage.API
	var scope string
	err := s.queryRow(ctx, `SELECT identifier, name, scope FROM apis WHERE identifier = ?`, identifier).
		Scan(&a.Identifier, &a.Name, &scope)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrAPINotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get api: %w", err)
	}
	a.Scope = splitScope(scope)
	return &a, nil
}
