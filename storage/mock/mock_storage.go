// Package mock provides mock implementations of storage interfaces for testing.
//
// Every method dispatches to an overridable func field that defaults to a
// delegate store, so tests can inject failures into single operations and
// count calls.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/giantswarm/mcp-authserver/storage"
)

// MockTokenStore is a mock implementation of storage.TokenStore for testing
type MockTokenStore struct {
	mu sync.Mutex

	SaveCodeFunc               func(ctx context.Context, code *storage.AuthorizationCode, ttl time.Duration) error
	GetCodeFunc                func(ctx context.Context, code string) (*storage.AuthorizationCode, error)
	DeleteCodeFunc             func(ctx context.Context, code string) error
	ConsumeCodeFunc            func(ctx context.Context, code string) (*storage.AuthorizationCode, error)
	SaveGrantFunc              func(ctx context.Context, grant *storage.Grant) error
	GetGrantFunc               func(ctx context.Context, grantID string) (*storage.Grant, error)
	DeleteGrantFunc            func(ctx context.Context, grantID string) error
	ListGrantsFunc             func(ctx context.Context, username string) ([]*storage.Grant, error)
	SaveRefreshTokenFunc       func(ctx context.Context, token *storage.RefreshToken) error
	GetRefreshTokenFunc        func(ctx context.Context, tokenID string) (*storage.RefreshToken, error)
	DeactivateRefreshTokenFunc func(ctx context.Context, tokenID string) error
	ListRefreshTokensFunc      func(ctx context.Context, username string) ([]*storage.RefreshToken, error)

	callCounts map[string]int
}

var _ storage.TokenStore = (*MockTokenStore)(nil)

// NewMockTokenStore creates a mock whose default implementations forward to
// delegate.
func NewMockTokenStore(delegate storage.TokenStore) *MockTokenStore {
	return &MockTokenStore{
		SaveCodeFunc:               delegate.SaveCode,
		GetCodeFunc:                delegate.GetCode,
		DeleteCodeFunc:             delegate.DeleteCode,
		ConsumeCodeFunc:            delegate.ConsumeCode,
		SaveGrantFunc:              delegate.SaveGrant,
		GetGrantFunc:               delegate.GetGrant,
		DeleteGrantFunc:            delegate.DeleteGrant,
		ListGrantsFunc:             delegate.ListGrants,
		SaveRefreshTokenFunc:       delegate.SaveRefreshToken,
		GetRefreshTokenFunc:        delegate.GetRefreshToken,
		DeactivateRefreshTokenFunc: delegate.DeactivateRefreshToken,
		ListRefreshTokensFunc:      delegate.ListRefreshTokens,
		callCounts:                 make(map[string]int),
	}
}

func (m *MockTokenStore) record(op string) {
	m.mu.Lock()
	m.callCounts[op]++
	m.mu.Unlock()
}

// CallCount returns how often op was called.
func (m *MockTokenStore) CallCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCounts[op]
}

// ResetCallCounts resets all call counters
func (m *MockTokenStore) ResetCallCounts() {
	m.mu.Lock()
	m.callCounts = make(map[string]int)
	m.mu.Unlock()
}

func (m *MockTokenStore) SaveCode(ctx context.Context, code *storage.AuthorizationCode, ttl time.Duration) error {
	m.record("SaveCode")
	return m.SaveCodeFunc(ctx, code, ttl)
}

func (m *MockTokenStore) GetCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	m.record("GetCode")
	return m.GetCodeFunc(ctx, code)
}

func (m *MockTokenStore) DeleteCode(ctx context.Context, code string) error {
	m.record("DeleteCode")
	return m.DeleteCodeFunc(ctx, code)
}

func (m *MockTokenStore) ConsumeCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	m.record("ConsumeCode")
	return m.ConsumeCodeFunc(ctx, code)
}

func (m *MockTokenStore) SaveGrant(ctx context.Context, grant *storage.Grant) error {
	m.record("SaveGrant")
	return m.SaveGrantFunc(ctx, grant)
}

func (m *MockTokenStore) GetGrant(ctx context.Context, grantID string) (*storage.Grant, error) {
	m.record("GetGrant")
	return m.GetGrantFunc(ctx, grantID)
}

func (m *MockTokenStore) DeleteGrant(ctx context.Context, grantID string) error {
	m.record("DeleteGrant")
	return m.DeleteGrantFunc(ctx, grantID)
}

func (m *MockTokenStore) ListGrants(ctx context.Context, username string) ([]*storage.Grant, error) {
	m.record("ListGrants")
	return m.ListGrantsFunc(ctx, username)
}

func (m *MockTokenStore) SaveRefreshToken(ctx context.Context, token *storage.RefreshToken) error {
	m.record("SaveRefreshToken")
	return m.SaveRefreshTokenFunc(ctx, token)
}

func (m *MockTokenStore) GetRefreshToken(ctx context.Context, tokenID string) (*storage.RefreshToken, error) {
	m.record("GetRefreshToken")
	return m.GetRefreshTokenFunc(ctx, tokenID)
}

func (m *MockTokenStore) DeactivateRefreshToken(ctx context.Context, tokenID string) error {
	m.record("DeactivateRefreshToken")
	return m.DeactivateRefreshTokenFunc(ctx, tokenID)
}

func (m *MockTokenStore) ListRefreshTokens(ctx context.Context, username string) ([]*storage.RefreshToken, error) {
	m.record("ListRefreshTokens")
	return m.ListRefreshTokensFunc(ctx, username)
}

// Registrations groups the read side of the registration stores.
type Registrations interface {
	storage.ClientStore
	storage.UserStore
	storage.APIStore
}

// MockIdentityStore is a mock implementation of the client, user and API
// stores for testing
type MockIdentityStore struct {
	GetClientFunc  func(ctx context.Context, clientID string) (*storage.Client, error)
	GetUserFunc    func(ctx context.Context, username string) (*storage.User, error)
	DeleteUserFunc func(ctx context.Context, username string) error
	GetAPIFunc     func(ctx context.Context, identifier string) (*storage.API, error)
}

var _ Registrations = (*MockIdentityStore)(nil)

// NewMockIdentityStore creates a mock whose default implementations forward
// to delegate.
func NewMockIdentityStore(delegate Registrations) *MockIdentityStore {
	return &MockIdentityStore{
		GetClientFunc:  delegate.GetClient,
		GetUserFunc:    delegate.GetUser,
		DeleteUserFunc: delegate.DeleteUser,
		GetAPIFunc:     delegate.GetAPI,
	}
}

func (m *MockIdentityStore) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	return m.GetClientFunc(ctx, clientID)
}

func (m *MockIdentityStore) GetUser(ctx context.Context, username string) (*storage.User, error) {
	return m.GetUserFunc(ctx, username)
}

func (m *MockIdentityStore) DeleteUser(ctx context.Context, username string) error {
	return m.DeleteUserFunc(ctx, username)
}

func (m *MockIdentityStore) GetAPI(ctx context.Context, identifier string) (*storage.API, error) {
	return m.GetAPIFunc(ctx, identifier)
}
