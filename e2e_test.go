package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/giantswarm/mcp-authserver/internal/testutil"
	"github.com/giantswarm/mcp-authserver/server"
	"github.com/giantswarm/mcp-authserver/server/keys"
	"github.com/giantswarm/mcp-authserver/storage/memory"
)

// startTestServer serves a handler whose issuer is the URL of the test
// server itself.
func startTestServer(t *testing.T) (*httptest.Server, *Handler) {
	t.Helper()

	var handler *Handler
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)

	store := memory.New()
	t.Cleanup(store.Stop)
	testutil.Seed(t, store)

	provider, err := keys.NewStaticProvider(testutil.GenerateSigningJWK(t))
	require.NoError(t, err)

	handler, err = New(context.Background(), server.Stores{
		Clients:       store,
		Users:         store,
		APIs:          store,
		Codes:         store,
		Grants:        store,
		RefreshTokens: store,
	}, provider, Config{
		Server:    server.Config{Issuer: ts.URL, PasswordIterations: testutil.TestPasswordIterations},
		RateLimit: RateLimitConfig{Rate: -1},
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	t.Cleanup(handler.Close)

	return ts, handler
}

func TestEndToEnd_OAuth2Client(t *testing.T) {
	ts, _ := startTestServer(t)
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, ts.Client())

	cfg := &oauth2.Config{
		ClientID:    testutil.TestClientID,
		RedirectURL: testutil.TestRedirectURI,
		Scopes:      []string{"openid", "read"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   ts.URL + "/authorize",
			TokenURL:  ts.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	verifier := oauth2.GenerateVerifier()
	authURL := cfg.AuthCodeURL("state-1",
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("audience", testutil.TestAPI))

	// The browser leg: the first request is sent to the login page, the
	// second carries the credentials the login page collected.
	noFollow := *ts.Client()
	noFollow.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

	resp, err := noFollow.Get(authURL)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Location"), ts.URL+"/login?")

	req, err := http.NewRequest(http.MethodGet, authURL, nil)
	require.NoError(t, err)
	req.SetBasicAuth(testutil.TestUsername, testutil.TestPassword)
	resp, err = noFollow.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	callback, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "state-1", callback.Query().Get("state"))
	code := callback.Query().Get("code")
	require.Len(t, code, 64)

	tok, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	require.NoError(t, err)
	assert.Equal(t, "JWT", tok.TokenType)
	assert.NotEmpty(t, tok.RefreshToken)
	assert.True(t, tok.Valid())

	// Replaying the code fails.
	_, err = cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	var retrieveErr *oauth2.RetrieveError
	require.True(t, errors.As(err, &retrieveErr))
	assert.Equal(t, server.ErrorCodeInvalidGrant, retrieveErr.ErrorCode)

	// The user-info endpoint accepts the token in the scheme it was issued with.
	meResp, err := cfg.Client(ctx, tok).Get(ts.URL + "/me")
	require.NoError(t, err)
	defer meResp.Body.Close()
	require.Equal(t, http.StatusOK, meResp.StatusCode)

	var me server.UserInfo
	require.NoError(t, json.NewDecoder(meResp.Body).Decode(&me))
	want := server.UserInfo{Name: testutil.TestUsername, Scope: []string{"openid", "read", "write"}}
	if diff := cmp.Diff(want, me); diff != "" {
		t.Errorf("user info mismatch (-want +got):\n%s", diff)
	}

	// Rotation: the refreshed pair works and the old refresh token is burnt.
	expired := &oauth2.Token{RefreshToken: tok.RefreshToken}
	rotated, err := cfg.TokenSource(ctx, expired).Token()
	require.NoError(t, err)
	assert.NotEqual(t, tok.RefreshToken, rotated.RefreshToken)

	_, err = cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: tok.RefreshToken}).Token()
	require.True(t, errors.As(err, &retrieveErr))
	assert.Equal(t, server.ErrorCodeInvalidGrant, retrieveErr.ErrorCode)

	// Reuse revoked the whole grant, including the rotated tokens.
	_, err = cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: rotated.RefreshToken}).Token()
	require.True(t, errors.As(err, &retrieveErr))

	introspection, err := ts.Client().PostForm(ts.URL+"/introspect", url.Values{"token": {rotated.AccessToken}})
	require.NoError(t, err)
	defer introspection.Body.Close()
	var result IntrospectionResponse
	require.NoError(t, json.NewDecoder(introspection.Body).Decode(&result))
	assert.False(t, result.Active)
}

func TestEndToEnd_Discovery(t *testing.T) {
	ts, handler := startTestServer(t)

	resp, err := ts.Client().Get(ts.URL + "/.well-known/oauth-authorization-server")
	require.NoError(t, err)
	defer resp.Body.Close()

	var meta AuthorizationServerMetadata
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&meta))

	want := AuthorizationServerMetadata{
		Issuer:                            ts.URL,
		AuthorizationEndpoint:             ts.URL + "/authorize",
		TokenEndpoint:                     ts.URL + "/token",
		IntrospectionEndpoint:             ts.URL + "/introspect",
		JWKSURI:                           ts.URL + "/.well-known/jwks.json",
		UserInfoEndpoint:                  handler.Server().Config.UserInfoURL,
		ResponseTypesSupported:            []string{"code"},
		GrantTypesSupported:               []string{"authorization_code", "refresh_token"},
		TokenEndpointAuthMethodsSupported: []string{"none"},
		CodeChallengeMethodsSupported:     []string{"S256"},
	}
	if diff := cmp.Diff(want, meta); diff != "" {
		t.Errorf("metadata mismatch (-want +got):\n%s", diff)
	}
}
