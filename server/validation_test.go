package server

import (
	"net/url"
	"slices"
	"testing"

	"github.com/giantswarm/mcp-authserver/internal/testutil"
)

func TestParseAuthorizationRequest_Errors(t *testing.T) {
	env := newTestEnv(t)
	verifier, _ := testutil.GeneratePKCE()

	tests := []struct {
		name     string
		mutate   func(v url.Values)
		wantCode string
	}{
		{"missing response_type", func(v url.Values) { v.Del("response_type") }, ErrorCodeInvalidRequest},
		{"token response_type", func(v url.Values) { v.Set("response_type", "token") }, ErrorCodeUnsupportedResponseType},
		{"missing client_id", func(v url.Values) { v.Del("client_id") }, ErrorCodeInvalidRequest},
		{"missing redirect_uri", func(v url.Values) { v.Del("redirect_uri") }, ErrorCodeInvalidRequest},
		{"empty redirect_uri", func(v url.Values) { v.Set("redirect_uri", "") }, ErrorCodeInvalidRequest},
		{"missing scope", func(v url.Values) { v.Del("scope") }, ErrorCodeInvalidRequest},
		{"blank scope", func(v url.Values) { v.Set("scope", "   ") }, ErrorCodeInvalidRequest},
		{"scope with quote", func(v url.Values) { v.Set("scope", `read "x"`) }, ErrorCodeInvalidRequest},
		{"missing audience", func(v url.Values) { v.Del("audience") }, ErrorCodeInvalidRequest},
		{"relative audience", func(v url.Values) { v.Set("audience", "api") }, ErrorCodeInvalidRequest},
		{"missing code_challenge", func(v url.Values) { v.Del("code_challenge") }, ErrorCodeInvalidRequest},
		{"short code_challenge", func(v url.Values) { v.Set("code_challenge", "abc") }, ErrorCodeInvalidRequest},
		{"missing code_challenge_method", func(v url.Values) { v.Del("code_challenge_method") }, ErrorCodeInvalidRequest},
		{"plain method", func(v url.Values) { v.Set("code_challenge_method", "plain") }, ErrorCodeInvalidRequest},
		{"control character in state", func(v url.Values) { v.Set("state", "a\nb") }, ErrorCodeInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := authorizeParams(verifier, "read")
			tt.mutate(params)
			_, err := env.srv.parseAuthorizationRequest(params)
			requireCode(t, err, tt.wantCode)
		})
	}
}

func TestParseAuthorizationRequest_UserInfoAudience(t *testing.T) {
	env := newTestEnv(t)
	verifier, _ := testutil.GeneratePKCE()
	userInfo := testutil.TestIssuer + "/me"

	t.Run("user info scope without audience", func(t *testing.T) {
		params := authorizeParams(verifier, "openid")
		params.Del("audience")
		req, err := env.srv.parseAuthorizationRequest(params)
		if err != nil {
			t.Fatalf("parseAuthorizationRequest() error = %v", err)
		}
		if !slices.Equal(req.Audience, []string{userInfo}) {
			t.Errorf("Audience = %v, want [%s]", req.Audience, userInfo)
		}
	})

	t.Run("user info scope is unioned", func(t *testing.T) {
		req, err := env.srv.parseAuthorizationRequest(authorizeParams(verifier, "openid read"))
		if err != nil {
			t.Fatalf("parseAuthorizationRequest() error = %v", err)
		}
		if !slices.Equal(req.Audience, []string{testutil.TestAPI, userInfo}) {
			t.Errorf("Audience = %v", req.Audience)
		}
	})

	t.Run("duplicate scopes collapse", func(t *testing.T) {
		req, err := env.srv.parseAuthorizationRequest(authorizeParams(verifier, "read read write"))
		if err != nil {
			t.Fatalf("parseAuthorizationRequest() error = %v", err)
		}
		if !slices.Equal(req.Scope, []string{"read", "write"}) {
			t.Errorf("Scope = %v", req.Scope)
		}
	})

	t.Run("state is optional", func(t *testing.T) {
		params := authorizeParams(verifier, "read")
		params.Del("state")
		req, err := env.srv.parseAuthorizationRequest(params)
		if err != nil {
			t.Fatalf("parseAuthorizationRequest() error = %v", err)
		}
		if req.State != "" {
			t.Errorf("State = %q", req.State)
		}
	})
}

func TestAuthorizationRequestValuesRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	verifier, _ := testutil.GeneratePKCE()

	req, err := env.srv.parseAuthorizationRequest(authorizeParams(verifier, "read write"))
	if err != nil {
		t.Fatal(err)
	}
	again, err := env.srv.parseAuthorizationRequest(req.Values())
	if err != nil {
		t.Fatalf("re-parsing Values() failed: %v", err)
	}
	if again.ClientID != req.ClientID || again.State != req.State || again.CodeChallenge != req.CodeChallenge ||
		!slices.Equal(again.Scope, req.Scope) || !slices.Equal(again.Audience, req.Audience) {
		t.Errorf("round trip mismatch: %+v != %+v", again, req)
	}
}

func TestParseTokenRequests(t *testing.T) {
	verifier, _ := testutil.GeneratePKCE()
	code := "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

	tests := []struct {
		name     string
		parse    func(url.Values) error
		params   url.Values
		wantCode string
	}{
		{
			"valid code exchange",
			func(v url.Values) error { _, err := parseCodeExchangeRequest(v); return err },
			codeExchangeParams(code, verifier),
			"",
		},
		{
			"code with wrong format",
			func(v url.Values) error { _, err := parseCodeExchangeRequest(v); return err },
			codeExchangeParams("not-a-code", verifier),
			ErrorCodeInvalidGrant,
		},
		{
			"short verifier",
			func(v url.Values) error { _, err := parseCodeExchangeRequest(v); return err },
			codeExchangeParams(code, "short"),
			ErrorCodeInvalidRequest,
		},
		{
			"refresh token with three segments",
			func(v url.Values) error { _, err := parseRefreshRequest(v); return err },
			refreshParams("a.b.c"),
			ErrorCodeInvalidGrant,
		},
		{
			"missing refresh token",
			func(v url.Values) error { _, err := parseRefreshRequest(v); return err },
			url.Values{"client_id": {testutil.TestClientID}},
			ErrorCodeInvalidRequest,
		},
		{
			"unknown grant type",
			func(v url.Values) error { _, err := validateGrantType(v); return err },
			url.Values{"grant_type": {"password"}},
			ErrorCodeUnsupportedGrantType,
		},
		{
			"missing grant type",
			func(v url.Values) error { _, err := validateGrantType(v); return err },
			url.Values{},
			ErrorCodeInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.parse(tt.params)
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			requireCode(t, err, tt.wantCode)
		})
	}
}
