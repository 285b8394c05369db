package oauth

// ErrorResponse represents an OAuth error response
type ErrorResponse struct {
	// Error is the error code
	Error string `json:"error"`

	// ErrorDescription provides additional information
	ErrorDescription string `json:"error_description,omitempty"`
}

// AuthorizationServerMetadata represents OAuth 2.0 Authorization Server Metadata (RFC 8414)
type AuthorizationServerMetadata struct {
	// Issuer is the authorization server's issuer identifier URL
	Issuer string `json:"issuer"`

	// AuthorizationEndpoint is the URL of the authorization endpoint
	AuthorizationEndpoint string `json:"authorization_endpoint"`

	// TokenEndpoint is the URL of the token endpoint
	TokenEndpoint string `json:"token_endpoint"`

	// IntrospectionEndpoint is the URL of the token introspection endpoint (RFC 7662)
	IntrospectionEndpoint string `json:"introspection_endpoint,omitempty"`

	// JWKSURI is the URL of the public signing key set
	JWKSURI string `json:"jwks_uri"`

	// UserInfoEndpoint is the URL of the resource owner endpoint
	UserInfoEndpoint string `json:"userinfo_endpoint,omitempty"`

	// ScopesSupported lists the OAuth scopes supported
	ScopesSupported []string `json:"scopes_supported,omitempty"`

	// ResponseTypesSupported lists the OAuth response types supported
	ResponseTypesSupported []string `json:"response_types_supported"`

	// GrantTypesSupported lists the OAuth grant types supported
	GrantTypesSupported []string `json:"grant_types_supported"`

	// TokenEndpointAuthMethodsSupported lists the client authentication methods supported at the token endpoint
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`

	// CodeChallengeMethodsSupported lists the PKCE code challenge methods supported
	CodeChallengeMethodsSupported []string `json:"code_challenge_methods_supported"`
}

// IntrospectionResponse is the body of the introspection endpoint.
// Inactive tokens only carry Active.
type IntrospectionResponse struct {
	Active    bool          `json:"active"`
	Scope     string        `json:"scope,omitempty"`
	ClientID  string        `json:"client_id,omitempty"`
	Username  string        `json:"username,omitempty"`
	Subject   string        `json:"sub,omitempty"`
	Audience  []string      `json:"aud,omitempty"`
	IssuedAt  int64         `json:"iat,omitempty"`
	ExpiresAt int64         `json:"exp,omitempty"`
	UserInfo  *UserInfoName `json:"user_info,omitempty"`
}

// UserInfoName identifies the resource owner of an introspected token.
type UserInfoName struct {
	Name string `json:"name"`
}

// GrantResponse is a grant as listed on /me/grants.
type GrantResponse struct {
	GrantID   string   `json:"grant_id"`
	ClientID  string   `json:"client_id"`
	Scope     []string `json:"scope"`
	Audience  []string `json:"audience"`
	CreatedAt int64    `json:"created_at"`
}

// RefreshTokenResponse is a refresh token as listed on /me/refreshTokens.
// The token itself is never returned.
type RefreshTokenResponse struct {
	RefreshTokenID string   `json:"refresh_token_id"`
	ClientID       string   `json:"client_id"`
	GrantID        string   `json:"grant_id"`
	Scope          []string `json:"scope"`
	Active         bool     `json:"active"`
	IssuedAt       int64    `json:"iat"`
	ExpiresAt      int64    `json:"exp"`
}
