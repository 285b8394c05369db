package server

// Config holds authorization server configuration
type Config struct {
	// Issuer is the server's issuer identifier (base URL). It is the "iss"
	// claim of every access token.
	Issuer string

	// LoginURL is where authorization requests without credentials are sent.
	// Default: Issuer + "/login"
	LoginURL string

	// ErrorURL is where authorization failures are redirected to.
	// Default: Issuer + "/error"
	ErrorURL string

	// UserInfoURL identifies the resource owner API as an audience.
	// Default: Issuer + "/me"
	UserInfoURL string

	// UserInfoScope is the reserved scope that grants access to UserInfoURL.
	// Requesting it adds UserInfoURL to the audience.
	// Default: "openid"
	UserInfoScope string

	// Audiences lists the resource server URLs tokens may be issued for, in
	// addition to UserInfoURL and the entries of the optional API store.
	Audiences []string

	// AuthorizationCodeTTL is how long authorization codes are valid
	AuthorizationCodeTTL int64 // seconds, default: 120

	// AccessTokenTTL is how long access tokens are valid
	AccessTokenTTL int64 // seconds, default: 3600 (1 hour)

	// RefreshTokenTTL is how long refresh tokens are valid
	RefreshTokenTTL int64 // seconds, default: 7776000 (90 days)

	// PasswordIterations is the PBKDF2 work factor for users that do not
	// carry their own.
	// Default: 1000000
	PasswordIterations int

	// ClockSkewGracePeriod is the grace period for token expiration checks (in seconds)
	// This prevents false expiration errors due to time synchronization issues
	// Default: 5 seconds
	ClockSkewGracePeriod int64 // seconds, default: 5

	// AllowInsecureHTTP allows running OAuth over HTTP on a non-loopback issuer.
	// WARNING: tokens and credentials are exposed to interception.
	// Default: false
	AllowInsecureHTTP bool
}
