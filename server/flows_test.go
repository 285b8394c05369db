package server

import (
	"context"
	"net/url"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/giantswarm/mcp-authserver/internal/testutil"
)

func TestAuthorize_LoginOutcome(t *testing.T) {
	env := newTestEnv(t)
	verifier, _ := testutil.GeneratePKCE()
	params := authorizeParams(verifier, "read")

	outcome, err := env.srv.Authorize(context.Background(), AuthorizationInput{Params: params})
	if err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}
	if outcome.Kind != OutcomeLogin {
		t.Fatalf("Kind = %v, want login", outcome.Kind)
	}

	loc, err := url.Parse(outcome.Location())
	if err != nil {
		t.Fatal(err)
	}
	if got := loc.Scheme + "://" + loc.Host + loc.Path; got != testutil.TestIssuer+"/login" {
		t.Errorf("login target = %q", got)
	}
	q := loc.Query()
	for _, key := range []string{"response_type", "client_id", "redirect_uri", "scope", "audience", "code_challenge", "code_challenge_method", "state"} {
		if q.Get(key) != params.Get(key) {
			t.Errorf("%s = %q, want %q", key, q.Get(key), params.Get(key))
		}
	}

	grants, err := env.store.ListGrants(context.Background(), testutil.TestUsername)
	if err != nil {
		t.Fatal(err)
	}
	if len(grants) != 0 {
		t.Errorf("login outcome created %d grants", len(grants))
	}
}

func TestAuthorize_CodeOutcome(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	verifier, _ := testutil.GeneratePKCE()

	outcome, err := env.srv.Authorize(ctx, AuthorizationInput{
		Params:      authorizeParams(verifier, "openid read"),
		Credentials: aliceCredentials(),
		ClientIP:    "192.0.2.1",
	})
	if err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}
	if outcome.Kind != OutcomeCode {
		t.Fatalf("Kind = %v, want code", outcome.Kind)
	}

	loc, err := url.Parse(outcome.Location())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(outcome.Location(), testutil.TestRedirectURI+"?") {
		t.Errorf("Location = %q, want redirect to the client", outcome.Location())
	}
	if loc.Query().Get("code") != outcome.Code || loc.Query().Get("state") != "xyz" {
		t.Errorf("query = %v", loc.Query())
	}

	grant, err := env.store.GetGrant(ctx, outcome.GrantID)
	if err != nil {
		t.Fatalf("grant was not persisted: %v", err)
	}
	wantAudience := []string{testutil.TestAPI, testutil.TestIssuer + "/me"}
	if grant.Username != testutil.TestUsername || grant.ClientID != testutil.TestClientID ||
		!slices.Equal(grant.Scope, []string{"openid", "read"}) || !slices.Equal(grant.Audience, wantAudience) {
		t.Errorf("grant = %+v", grant)
	}

	code, err := env.store.GetCode(ctx, outcome.Code)
	if err != nil {
		t.Fatalf("code was not persisted: %v", err)
	}
	if code.GrantID != grant.GrantID || code.CodeChallengeMethod != "S256" || code.CodeChallenge != pkceChallenge(verifier) {
		t.Errorf("code = %+v", code)
	}
	if want := env.clock.Now().Add(120 * time.Second); !code.ExpiresAt.Equal(want) {
		t.Errorf("code ExpiresAt = %v, want %v", code.ExpiresAt, want)
	}
}

func TestAuthorize_OmitsEmptyState(t *testing.T) {
	env := newTestEnv(t)
	verifier, _ := testutil.GeneratePKCE()
	params := authorizeParams(verifier, "read")
	params.Del("state")

	outcome, err := env.srv.Authorize(context.Background(), AuthorizationInput{Params: params, Credentials: aliceCredentials()})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(outcome.Location(), "state=") {
		t.Errorf("Location = %q should not carry a state", outcome.Location())
	}
}

func TestAuthorize_Failures(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(v url.Values)
		credentials *BasicCredentials
		wantCode    string
	}{
		{
			name:     "unknown client",
			mutate:   func(v url.Values) { v.Set("client_id", "nobody") },
			wantCode: ErrorCodeUnauthorizedClient,
		},
		{
			name:     "redirect uri mismatch",
			mutate:   func(v url.Values) { v.Set("redirect_uri", testutil.TestRedirectURI+"/other") },
			wantCode: ErrorCodeUnauthorizedClient,
		},
		{
			name:     "unknown audience",
			mutate:   func(v url.Values) { v.Set("audience", "https://unknown.example.com") },
			wantCode: ErrorCodeUnauthorizedClient,
		},
		{
			name:        "wrong password",
			credentials: &BasicCredentials{Username: testutil.TestUsername, Password: "nope"},
			wantCode:    ErrorCodeAccessDenied,
		},
		{
			name:        "unknown user",
			credentials: &BasicCredentials{Username: "mallory", Password: testutil.TestPassword},
			wantCode:    ErrorCodeAccessDenied,
		},
		{
			name:        "scope beyond entitlement",
			mutate:      func(v url.Values) { v.Set("scope", "read admin") },
			credentials: aliceCredentials(),
			wantCode:    ErrorCodeAccessDenied,
		},
		{
			name:     "unsupported response type",
			mutate:   func(v url.Values) { v.Set("response_type", "token") },
			wantCode: ErrorCodeUnsupportedResponseType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			verifier, _ := testutil.GeneratePKCE()
			params := authorizeParams(verifier, "read")
			if tt.mutate != nil {
				tt.mutate(params)
			}
			_, err := env.srv.Authorize(context.Background(), AuthorizationInput{Params: params, Credentials: tt.credentials})
			requireCode(t, err, tt.wantCode)
		})
	}
}

func TestAuthorize_ConfiguredAudience(t *testing.T) {
	env := newTestEnvWithConfig(t, &Config{
		Issuer:    testutil.TestIssuer,
		Audiences: []string{"https://static.example.com"},
	})
	verifier, _ := testutil.GeneratePKCE()
	params := authorizeParams(verifier, "read")
	params.Set("audience", "https://static.example.com")

	if _, err := env.srv.Authorize(context.Background(), AuthorizationInput{Params: params}); err != nil {
		t.Errorf("configured audience rejected: %v", err)
	}
}

func TestErrorLocation(t *testing.T) {
	env := newTestEnv(t)

	loc, err := url.Parse(env.srv.ErrorLocation(ErrAccessDenied("wrong username or password")))
	if err != nil {
		t.Fatal(err)
	}
	if loc.Path != "/error" {
		t.Errorf("path = %q, want /error", loc.Path)
	}
	if loc.Query().Get("error") != ErrorCodeAccessDenied || loc.Query().Get("error_description") != "wrong username or password" {
		t.Errorf("query = %v", loc.Query())
	}
}

func TestRedirectLocation(t *testing.T) {
	tests := []struct {
		name string
		base string
		want string
	}{
		{"plain", "https://c.example.com/cb", "https://c.example.com/cb?code=abc"},
		{"existing query", "https://c.example.com/cb?tenant=1", "https://c.example.com/cb?code=abc&tenant=1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RedirectLocation(tt.base, url.Values{"code": {"abc"}}); got != tt.want {
				t.Errorf("RedirectLocation() = %q, want %q", got, tt.want)
			}
		})
	}
}
