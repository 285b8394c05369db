// Package server implements the protocol core of the authorization server.
//
// The Server type owns the authorization and token legs of the OAuth 2.1
// authorization code flow with PKCE:
//   - Authorize validates an authorization request, authenticates the client
//     and the resource owner, records a grant and issues a single-use code.
//   - ExchangeAuthorizationCode redeems a code for an ES512-signed access
//     token and a rotating refresh token.
//   - RefreshAccessToken rotates a refresh token. Replaying a retired refresh
//     token deletes its grant and every token issued under it.
//   - VerifyAccessToken checks presented access tokens for introspection and
//     the resource owner endpoints.
//
// Every collaborator (stores, key provider, clock) is injected through New.
// Failures cross the package boundary as *Error values carrying one of the
// protocol error codes; rendering them is left to the transport.
//
// Example usage:
//
//	store := memory.New()
//	provider, _ := keys.NewFileProvider("signing.jwk")
//
//	srv, err := server.New(ctx, server.Stores{
//	    Clients:       store,
//	    Users:         store,
//	    Codes:         store,
//	    Grants:        store,
//	    RefreshTokens: store,
//	}, provider, &server.Config{Issuer: "https://auth.example.com"}, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
package server
