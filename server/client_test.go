package server

import (
	"context"
	"testing"

	"github.com/giantswarm/mcp-authserver/internal/testutil"
	"github.com/giantswarm/mcp-authserver/server/crypto"
	"github.com/giantswarm/mcp-authserver/storage"
)

func TestAuthenticateClient(t *testing.T) {
	env := newTestEnvWithConfig(t, &Config{
		Issuer:    testutil.TestIssuer,
		Audiences: []string{"https://configured.example.com"},
	})

	tests := []struct {
		name        string
		clientID    string
		redirectURI string
		audience    []string
		wantErr     bool
	}{
		{"valid without audience", testutil.TestClientID, testutil.TestRedirectURI, nil, false},
		{"registered api", testutil.TestClientID, testutil.TestRedirectURI, []string{testutil.TestAPI}, false},
		{"configured audience", testutil.TestClientID, testutil.TestRedirectURI, []string{"https://configured.example.com"}, false},
		{"user info url", testutil.TestClientID, testutil.TestRedirectURI, []string{testutil.TestIssuer + "/me"}, false},
		{"unknown client", "other", testutil.TestRedirectURI, nil, true},
		{"redirect uri mismatch", testutil.TestClientID, "https://evil.example.com/callback", nil, true},
		{"redirect uri prefix", testutil.TestClientID, testutil.TestRedirectURI + "/extra", nil, true},
		{"unknown audience", testutil.TestClientID, testutil.TestRedirectURI, []string{testutil.TestAPI, "https://unknown.example.com"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := env.srv.AuthenticateClient(context.Background(), tt.clientID, tt.redirectURI, tt.audience)
			if tt.wantErr {
				requireCode(t, err, ErrorCodeUnauthorizedClient)
				if AsError(err).Description != descClientAuthFailed {
					t.Errorf("description = %q, want opaque message", AsError(err).Description)
				}
				return
			}
			if err != nil {
				t.Fatalf("AuthenticateClient() error = %v", err)
			}
			if client.ClientID != tt.clientID {
				t.Errorf("ClientID = %q, want %q", client.ClientID, tt.clientID)
			}
		})
	}
}

func TestAuthenticateUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if err := env.store.SaveUser(ctx, testutil.LegacyUser("bob", "read")); err != nil {
		t.Fatal(err)
	}
	if err := env.store.SaveUser(ctx, &storage.User{
		Username:          "mallory",
		PasswordAlgorithm: "md5",
		PasswordHash:      "x",
	}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		username string
		password string
		scope    []string
		wantDesc string
	}{
		{"valid", testutil.TestUsername, testutil.TestPassword, []string{"read"}, ""},
		{"valid full scope", testutil.TestUsername, testutil.TestPassword, []string{"openid", "read", "write"}, ""},
		{"legacy sha512", "bob", testutil.TestPassword, []string{"read"}, ""},
		{"wrong password", testutil.TestUsername, "wrong", []string{"read"}, descWrongCredentials},
		{"legacy wrong password", "bob", "wrong", []string{"read"}, descWrongCredentials},
		{"unknown user", "nobody", testutil.TestPassword, []string{"read"}, descWrongCredentials},
		{"unknown algorithm", "mallory", "x", nil, descWrongCredentials},
		{"insufficient scope", testutil.TestUsername, testutil.TestPassword, []string{"read", "admin"}, descInsufficientScope},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := env.srv.AuthenticateUser(ctx, tt.username, tt.password, tt.scope)
			if tt.wantDesc != "" {
				requireCode(t, err, ErrorCodeAccessDenied)
				if got := AsError(err).Description; got != tt.wantDesc {
					t.Errorf("description = %q, want %q", got, tt.wantDesc)
				}
				return
			}
			if err != nil {
				t.Fatalf("AuthenticateUser() error = %v", err)
			}
			if user.Username != tt.username {
				t.Errorf("Username = %q, want %q", user.Username, tt.username)
			}
		})
	}
}

func TestAuthenticateUser_DefaultIterations(t *testing.T) {
	env := newTestEnvWithConfig(t, &Config{Issuer: testutil.TestIssuer, PasswordIterations: 10})
	user := testutil.TestUser("read")
	user.Username = "carol"
	user.PasswordIterations = 0
	user.PasswordHash = hashWithIterations(testutil.TestPassword, user.PasswordSalt, 10)
	if err := env.store.SaveUser(context.Background(), user); err != nil {
		t.Fatal(err)
	}

	if _, err := env.srv.AuthenticateUser(context.Background(), "carol", testutil.TestPassword, []string{"read"}); err != nil {
		t.Errorf("AuthenticateUser() error = %v", err)
	}
}

// Rejected usernames must cost the same PBKDF2 work as a wrong password.
func TestAuthenticateUser_HashesForEveryRejection(t *testing.T) {
	env := newTestEnvWithConfig(t, &Config{Issuer: testutil.TestIssuer, PasswordIterations: testutil.TestPasswordIterations})
	ctx := context.Background()
	if err := env.store.SaveUser(ctx, &storage.User{
		Username:          "mallory",
		PasswordAlgorithm: "md5",
		PasswordHash:      "x",
	}); err != nil {
		t.Fatal(err)
	}

	type call struct{ iterations int }
	var calls []call
	env.srv.hashPassword = func(password, salt string, iterations int) string {
		calls = append(calls, call{iterations})
		return crypto.HashPassword(password, salt, iterations)
	}

	tests := []struct {
		name     string
		username string
	}{
		{"known user wrong password", testutil.TestUsername},
		{"unknown user", "nobody"},
		{"unknown algorithm", "mallory"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls = nil
			_, err := env.srv.AuthenticateUser(ctx, tt.username, "wrong", []string{"read"})
			requireCode(t, err, ErrorCodeAccessDenied)
			if len(calls) != 1 {
				t.Fatalf("password hashed %d times, want 1", len(calls))
			}
			if calls[0].iterations != testutil.TestPasswordIterations {
				t.Errorf("iterations = %d, want %d", calls[0].iterations, testutil.TestPasswordIterations)
			}
		})
	}
}

func TestAuthenticateUser_LookupFailureHashes(t *testing.T) {
	env := newMockEnv(t)
	env.identities.GetUserFunc = func(context.Context, string) (*storage.User, error) { return nil, errBackend }

	hashed := 0
	env.srv.hashPassword = func(password, salt string, iterations int) string {
		hashed++
		return crypto.HashPassword(password, salt, iterations)
	}

	_, err := env.srv.AuthenticateUser(context.Background(), testutil.TestUsername, testutil.TestPassword, []string{"read"})
	requireCode(t, err, ErrorCodeAccessDenied)
	if hashed != 1 {
		t.Errorf("password hashed %d times, want 1", hashed)
	}
}
