package server

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/giantswarm/mcp-authserver/internal/testutil"
	"github.com/giantswarm/mcp-authserver/server/crypto"
	"github.com/giantswarm/mcp-authserver/server/keys"
	"github.com/giantswarm/mcp-authserver/storage/memory"
)

type testEnv struct {
	srv   *Server
	store *memory.Store
	clock *testutil.MockTime
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithConfig(t, &Config{Issuer: testutil.TestIssuer, PasswordIterations: testutil.TestPasswordIterations})
}

func newTestEnvWithConfig(t *testing.T, config *Config) *testEnv {
	t.Helper()

	store := memory.New()
	t.Cleanup(store.Stop)
	testutil.Seed(t, store)

	clock := testutil.NewMockTime(time.Now().Truncate(time.Second))
	store.SetClock(clock.Now)

	provider, err := keys.NewStaticProvider(testutil.GenerateSigningJWK(t))
	if err != nil {
		t.Fatalf("failed to create key provider: %v", err)
	}

	srv, err := New(context.Background(), Stores{
		Clients:       store,
		Users:         store,
		APIs:          store,
		Codes:         store,
		Grants:        store,
		RefreshTokens: store,
	}, provider, config, discardLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	srv.SetClock(clock)

	return &testEnv{srv: srv, store: store, clock: clock}
}

// authorizeParams returns a valid authorization request for the fixture
// client and the challenge of verifier.
func authorizeParams(verifier, scope string) url.Values {
	return url.Values{
		"response_type":         {"code"},
		"client_id":             {testutil.TestClientID},
		"redirect_uri":          {testutil.TestRedirectURI},
		"scope":                 {scope},
		"audience":              {testutil.TestAPI},
		"code_challenge":        {pkceChallenge(verifier)},
		"code_challenge_method": {"S256"},
		"state":                 {"xyz"},
	}
}

func pkceChallenge(verifier string) string {
	return crypto.PKCEChallenge(verifier)
}

func aliceCredentials() *BasicCredentials {
	return &BasicCredentials{Username: testutil.TestUsername, Password: testutil.TestPassword}
}

// issueCode runs a successful authorization and returns the code and verifier.
func (e *testEnv) issueCode(t *testing.T, scope string) (code, verifier string) {
	t.Helper()
	verifier, _ = testutil.GeneratePKCE()
	outcome, err := e.srv.Authorize(context.Background(), AuthorizationInput{
		Params:      authorizeParams(verifier, scope),
		Credentials: aliceCredentials(),
	})
	if err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}
	if outcome.Kind != OutcomeCode {
		t.Fatalf("Authorize() kind = %v, want code", outcome.Kind)
	}
	return outcome.Code, verifier
}

func codeExchangeParams(code, verifier string) url.Values {
	return url.Values{
		"grant_type":    {GrantTypeAuthorizationCode},
		"client_id":     {testutil.TestClientID},
		"redirect_uri":  {testutil.TestRedirectURI},
		"code":          {code},
		"code_verifier": {verifier},
	}
}

func refreshParams(refreshToken string) url.Values {
	return url.Values{
		"grant_type":    {GrantTypeRefreshToken},
		"client_id":     {testutil.TestClientID},
		"refresh_token": {refreshToken},
	}
}

// issueTokens authorizes and exchanges the code.
func (e *testEnv) issueTokens(t *testing.T, scope string) *TokenResponse {
	t.Helper()
	code, verifier := e.issueCode(t, scope)
	resp, err := e.srv.ExchangeAuthorizationCode(context.Background(), codeExchangeParams(code, verifier))
	if err != nil {
		t.Fatalf("ExchangeAuthorizationCode() error = %v", err)
	}
	return resp
}

func requireCode(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	protoErr := AsError(err)
	if protoErr.Code != want {
		t.Fatalf("error code = %q (%v), want %q", protoErr.Code, err, want)
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	store := memory.New()
	defer store.Stop()
	provider := keys.NewGeneratingProvider("k")
	full := Stores{Clients: store, Users: store, Codes: store, Grants: store, RefreshTokens: store}

	tests := []struct {
		name     string
		mutate   func(s *Stores)
		provider keys.Provider
		wantErr  string
	}{
		{"missing clients", func(s *Stores) { s.Clients = nil }, provider, "client store"},
		{"missing users", func(s *Stores) { s.Users = nil }, provider, "user store"},
		{"missing codes", func(s *Stores) { s.Codes = nil }, provider, "code store"},
		{"missing grants", func(s *Stores) { s.Grants = nil }, provider, "grant store"},
		{"missing refresh tokens", func(s *Stores) { s.RefreshTokens = nil }, provider, "refresh token store"},
		{"missing key provider", func(*Stores) {}, nil, "key provider"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stores := full
			tt.mutate(&stores)
			_, err := New(context.Background(), stores, tt.provider, &Config{Issuer: testutil.TestIssuer}, discardLogger())
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("New() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestNew_AppliesDefaults(t *testing.T) {
	env := newTestEnvWithConfig(t, &Config{Issuer: testutil.TestIssuer + "/"})
	c := env.srv.Config

	if c.Issuer != testutil.TestIssuer {
		t.Errorf("Issuer = %q, want trailing slash trimmed", c.Issuer)
	}
	checks := map[string][2]any{
		"AuthorizationCodeTTL": {c.AuthorizationCodeTTL, int64(120)},
		"AccessTokenTTL":       {c.AccessTokenTTL, int64(3600)},
		"RefreshTokenTTL":      {c.RefreshTokenTTL, int64(7776000)},
		"ClockSkewGracePeriod": {c.ClockSkewGracePeriod, int64(5)},
		"PasswordIterations":   {c.PasswordIterations, 1_000_000},
		"LoginURL":             {c.LoginURL, testutil.TestIssuer + "/login"},
		"ErrorURL":             {c.ErrorURL, testutil.TestIssuer + "/error"},
		"UserInfoURL":          {c.UserInfoURL, testutil.TestIssuer + "/me"},
		"UserInfoScope":        {c.UserInfoScope, "openid"},
	}
	for name, pair := range checks {
		if pair[0] != pair[1] {
			t.Errorf("%s = %v, want %v", name, pair[0], pair[1])
		}
	}
}

func TestNew_IssuerValidation(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"https", Config{Issuer: "https://auth.example.com"}, false},
		{"http localhost", Config{Issuer: "http://localhost:8080"}, false},
		{"http loopback ip", Config{Issuer: "http://127.0.0.1:8080"}, false},
		{"http public host", Config{Issuer: "http://auth.example.com"}, true},
		{"http public host allowed", Config{Issuer: "http://auth.example.com", AllowInsecureHTTP: true}, false},
		{"empty", Config{}, true},
		{"relative", Config{Issuer: "/auth"}, true},
		{"bad scheme", Config{Issuer: "ftp://auth.example.com"}, true},
		{"bad audience", Config{Issuer: "https://auth.example.com", Audiences: []string{"api"}}, true},
		{"good audience", Config{Issuer: "https://auth.example.com", Audiences: []string{"https://api.example.com"}}, false},
	}

	provider := keys.NewGeneratingProvider("k")
	store := memory.New()
	defer store.Stop()
	stores := Stores{Clients: store, Users: store, Codes: store, Grants: store, RefreshTokens: store}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := tt.config
			_, err := New(context.Background(), stores, provider, &config, discardLogger())
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNew_DoesNotModifyConfig(t *testing.T) {
	config := &Config{Issuer: testutil.TestIssuer}
	newTestEnvWithConfig(t, config)
	if config.AccessTokenTTL != 0 || config.LoginURL != "" {
		t.Errorf("New() modified the caller's config: %+v", config)
	}
}

func TestNew_RejectsInvalidKeys(t *testing.T) {
	store := memory.New()
	defer store.Stop()
	stores := Stores{Clients: store, Users: store, Codes: store, Grants: store, RefreshTokens: store}

	_, err := New(context.Background(), stores, badProvider{}, &Config{Issuer: testutil.TestIssuer}, discardLogger())
	if err == nil || !strings.Contains(err.Error(), "signing key") {
		t.Errorf("New() error = %v, want signing key error", err)
	}
}

type badProvider struct{}

func (badProvider) SigningKey(context.Context) ([]byte, error) {
	return []byte(`{"kty":"oct","k":"AAAA"}`), nil
}
func (badProvider) PublicKey(context.Context) ([]byte, error) { return nil, keys.ErrNoSigningKey }

func hashWithIterations(password, salt string, iterations int) string {
	return crypto.HashPassword(password, salt, iterations)
}
