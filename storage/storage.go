package storage

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by every implementation.
var (
	ErrClientNotFound       = errors.New("client not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrAPINotFound          = errors.New("api not found")
	ErrCodeNotFound         = errors.New("authorization code not found")
	ErrGrantNotFound        = errors.New("grant not found")
	ErrRefreshTokenNotFound = errors.New("refresh token not found")

	// ErrRefreshTokenInactive is returned by DeactivateRefreshToken when the
	// token was already deactivated.
	ErrRefreshTokenInactive = errors.New("refresh token is not active")
)

// ClientStore resolves registered clients.
type ClientStore interface {
	// GetClient returns ErrClientNotFound for unknown ids.
	GetClient(ctx context.Context, clientID string) (*Client, error)
}

// UserStore resolves resource owners.
type UserStore interface {
	// GetUser returns ErrUserNotFound for unknown usernames.
	GetUser(ctx context.Context, username string) (*User, error)

	// DeleteUser removes the user record.
	DeleteUser(ctx context.Context, username string) error
}

// APIStore resolves registered resource servers (audiences).
type APIStore interface {
	// GetAPI returns ErrAPINotFound for unknown identifiers.
	GetAPI(ctx context.Context, identifier string) (*API, error)
}

// CodeStore holds authorization codes until they are redeemed or expire.
type CodeStore interface {
	// SaveCode stores a code for ttl.
	SaveCode(ctx context.Context, code *AuthorizationCode, ttl time.Duration) error

	// GetCode returns ErrCodeNotFound for unknown or expired codes.
	GetCode(ctx context.Context, code string) (*AuthorizationCode, error)

	// DeleteCode removes a code. Deleting an unknown code is not an error.
	DeleteCode(ctx context.Context, code string) error

	// ConsumeCode atomically returns and deletes a code.
	// Concurrent callers for the same code see it at most once.
	ConsumeCode(ctx context.Context, code string) (*AuthorizationCode, error)
}

// GrantStore holds standing consents.
type GrantStore interface {
	SaveGrant(ctx context.Context, grant *Grant) error

	// GetGrant returns ErrGrantNotFound for unknown ids.
	GetGrant(ctx context.Context, grantID string) (*Grant, error)

	// DeleteGrant removes a grant together with every refresh token issued
	// under it. Deleting an unknown grant is not an error.
	DeleteGrant(ctx context.Context, grantID string) error

	// ListGrants returns the grants of a user.
	ListGrants(ctx context.Context, username string) ([]*Grant, error)
}

// RefreshTokenStore holds refresh token records.
type RefreshTokenStore interface {
	SaveRefreshToken(ctx context.Context, token *RefreshToken) error

	// GetRefreshToken returns ErrRefreshTokenNotFound for unknown ids.
	GetRefreshToken(ctx context.Context, tokenID string) (*RefreshToken, error)

	// DeactivateRefreshToken atomically marks an active token inactive.
	// It returns ErrRefreshTokenInactive if the token was already inactive
	// and ErrRefreshTokenNotFound if it does not exist.
	DeactivateRefreshToken(ctx context.Context, tokenID string) error

	// ListRefreshTokens returns the refresh tokens of a user.
	ListRefreshTokens(ctx context.Context, username string) ([]*RefreshToken, error)
}

// IdentityStore groups the registration lookups.
type IdentityStore interface {
	ClientStore
	UserStore
}

// TokenStore groups the protocol state stores.
type TokenStore interface {
	CodeStore
	GrantStore
	RefreshTokenStore
}

// IsNotFound reports whether err is one of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrClientNotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrAPINotFound) ||
		errors.Is(err, ErrCodeNotFound) ||
		errors.Is(err, ErrGrantNotFound) ||
		errors.Is(err, ErrRefreshTokenNotFound)
}
