package storage

import (
	"slices"
	"strings"
	"time"
)

// Client is a registered OAuth client.
type Client struct {
	ClientID    string `json:"client_id"`
	Name        string `json:"name"`
	RedirectURI string `json:"redirect_uri"`
}

// User is a resource owner.
type User struct {
	Username     string `json:"username"`
	PasswordSalt string `json:"password_salt"`
	PasswordHash string `json:"password_hash"`

	// PasswordAlgorithm is "pbkdf2-sha512" (default when empty) or the
	// legacy "sha512".
	PasswordAlgorithm string `json:"password_algorithm,omitempty"`

	// PasswordIterations overrides the PBKDF2 work factor; zero uses the server default.
	PasswordIterations int `json:"password_iterations,omitempty"`

	// Scope is the maximal grantable permission set.
	Scope []string `json:"scope"`
}

// API is a registered resource server that may appear in an audience.
type API struct {
	Identifier string   `json:"identifier"`
	Name       string   `json:"name"`
	Scope      []string `json:"scope,omitempty"`
}

// AuthorizationCode is a single-use code bound to a grant and a PKCE challenge.
type AuthorizationCode struct {
	Code                string    `json:"code"`
	ClientID            string    `json:"client_id"`
	Username            string    `json:"username"`
	Scope               []string  `json:"scope"`
	Audience            []string  `json:"audience"`
	CodeChallenge       string    `json:"code_challenge"`
	CodeChallengeMethod string    `json:"code_challenge_method"`
	GrantID             string    `json:"grant_id"`
	ExpiresAt           time.Time `json:"expires_at"`
}

// Expired reports whether the code is past its expiry at now.
func (c *AuthorizationCode) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// Grant is a standing consent of a user to a client.
type Grant struct {
	GrantID   string    `json:"grant_id"`
	ClientID  string    `json:"client_id"`
	Username  string    `json:"username"`
	Scope     []string  `json:"scope"`
	Audience  []string  `json:"audience"`
	CreatedAt time.Time `json:"created_at"`
}

// RefreshToken is the stored state of an issued refresh token.
type RefreshToken struct {
	RefreshTokenID string    `json:"refresh_token_id"`
	ClientID       string    `json:"client_id"`
	GrantID        string    `json:"grant_id"`
	Username       string    `json:"username"`
	Scope          []string  `json:"scope"`
	Active         bool      `json:"active"`
	IssuedAt       time.Time `json:"issued_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// WithActive returns a copy of t with Active set.
func (t RefreshToken) WithActive(active bool) *RefreshToken {
	t.Scope = slices.Clone(t.Scope)
	t.Active = active
	return &t
}

// Clone returns a deep copy of t.
func (t *RefreshToken) Clone() *RefreshToken {
	return t.WithActive(t.Active)
}

// Clone returns a deep copy of g.
func (g *Grant) Clone() *Grant {
	c := *g
	c.Scope = slices.Clone(g.Scope)
	c.Audience = slices.Clone(g.Audience)
	return &c
}

// Clone returns a deep copy of c.
func (c *AuthorizationCode) Clone() *AuthorizationCode {
	cp := *c
	cp.Scope = slices.Clone(c.Scope)
	cp.Audience = slices.Clone(c.Audience)
	return &cp
}

// SortGrants orders grants oldest first, breaking ties by id.
func SortGrants(grants []*Grant) {
	slices.SortFunc(grants, func(a, b *Grant) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.GrantID, b.GrantID)
	})
}

// SortRefreshTokens orders tokens oldest first, breaking ties by id.
func SortRefreshTokens(tokens []*RefreshToken) {
	slices.SortFunc(tokens, func(a, b *RefreshToken) int {
		if c := a.IssuedAt.Compare(b.IssuedAt); c != 0 {
			return c
		}
		return strings.Compare(a.RefreshTokenID, b.RefreshTokenID)
	})
}
