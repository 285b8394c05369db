package testutil

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/giantswarm/mcp-authserver/server/crypto"
	"github.com/giantswarm/mcp-authserver/storage"
)

// Fixture values.
const (
	TestIssuer      = "https://auth.example.com"
	TestAPI         = "https://api.example.com"
	TestClientID    = "test-client"
	TestRedirectURI = "https://client.example.com/callback"
	TestUsername    = "alice"
	TestPassword    = "correct horse battery staple"
	TestSalt        = "0123456789abcdef"

	// TestPasswordIterations keeps PBKDF2 fast in tests.
	TestPasswordIterations = 1000
)

// MockTime provides a controllable time source for deterministic testing.
// It is safe for concurrent use.
type MockTime struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockTime creates a new mock time provider
func NewMockTime(t time.Time) *MockTime {
	return &MockTime{now: t}
}

// Now returns the current mock time
func (m *MockTime) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the mock time forward by the given duration
func (m *MockTime) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set sets the mock time to a specific value
func (m *MockTime) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// GenerateSigningJWK returns a fresh private P-521 JWK.
func GenerateSigningJWK(t testing.TB) []byte {
	t.Helper()
	key, err := crypto.GenerateKey("test-key")
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	jwk, err := key.MarshalPrivateJWK()
	if err != nil {
		t.Fatalf("failed to marshal key: %v", err)
	}
	return jwk
}

// GeneratePKCE returns a code verifier and its S256 challenge.
func GeneratePKCE() (verifier, challenge string) {
	verifier = oauth2.GenerateVerifier()
	return verifier, crypto.PKCEChallenge(verifier)
}

// GenerateRandomString returns n random bytes as hex.
func GenerateRandomString(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}

// TestClient returns the fixture client.
func TestClient() *storage.Client {
	return &storage.Client{
		ClientID:    TestClientID,
		Name:        "Test Client",
		RedirectURI: TestRedirectURI,
	}
}

// TestUser returns the fixture user, entitled to scope, with TestPassword
// hashed by PBKDF2-SHA512.
func TestUser(scope ...string) *storage.User {
	return &storage.User{
		Username:           TestUsername,
		PasswordSalt:       TestSalt,
		PasswordHash:       crypto.HashPassword(TestPassword, TestSalt, TestPasswordIterations),
		PasswordAlgorithm:  crypto.AlgorithmPBKDF2SHA512,
		PasswordIterations: TestPasswordIterations,
		Scope:              scope,
	}
}

// LegacyUser returns a user whose password is stored as SHA-512(password+salt).
func LegacyUser(username string, scope ...string) *storage.User {
	return &storage.User{
		Username:          username,
		PasswordSalt:      TestSalt,
		PasswordHash:      crypto.HashPasswordLegacy(TestPassword, TestSalt),
		PasswordAlgorithm: crypto.AlgorithmSHA512,
		Scope:             scope,
	}
}

// Seeder is implemented by stores that accept registrations.
type Seeder interface {
	SaveClient(ctx context.Context, client *storage.Client) error
	SaveUser(ctx context.Context, user *storage.User) error
	SaveAPI(ctx context.Context, api *storage.API) error
}

// Seed registers the fixture client, the fixture user with scope
// "openid read write" and the fixture API.
func Seed(t testing.TB, s Seeder) {
	t.Helper()
	ctx := context.Background()
	if err := s.SaveClient(ctx, TestClient()); err != nil {
		t.Fatalf("failed to seed client: %v", err)
	}
	if err := s.SaveUser(ctx, TestUser("openid", "read", "write")); err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	if err := s.SaveAPI(ctx, &storage.API{Identifier: TestAPI, Name: "Test API", Scope: []string{"read", "write"}}); err != nil {
		t.Fatalf("failed to seed api: %v", err)
	}
}
