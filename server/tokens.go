package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/giantswarm/mcp-authserver/server/crypto"
)

// TokenTypeJWT is the token_type of issued access tokens.
const TokenTypeJWT = "JWT"

// AccessTokenClaims is the payload of an access token.
type AccessTokenClaims struct {
	Scope    []string `json:"scope"`
	ClientID string   `json:"client_id,omitempty"`
	GrantID  string   `json:"grant_id,omitempty"`
	jwt.RegisteredClaims
}

// RefreshTokenPayload is the signed payload of a refresh token.
type RefreshTokenPayload struct {
	TokenID  string   `json:"token_id"`
	GrantID  string   `json:"grant_id"`
	Scope    []string `json:"scope"`
	IssuedAt int64    `json:"iat"`
	Expires  int64    `json:"exp"`
}

var errRefreshTokenFormat = errors.New("refresh token must have two segments")

// mintAccessToken signs an ES512 access token.
func (s *Server) mintAccessToken(claims *AccessTokenClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodES512, claims)
	if kid := s.signingKey.ID(); kid != "" {
		token.Header["kid"] = kid
	}
	signed, err := token.SignedString(s.signingKey.SigningKey())
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// parseAccessToken verifies the signature, issuer and expiry of token and,
// when audience is not empty, that it is one of the token's audiences.
func (s *Server) parseAccessToken(token, audience string) (*AccessTokenClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{crypto.AlgorithmES512}),
		jwt.WithIssuer(s.Config.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(s.gracePeriod()),
		jwt.WithTimeFunc(s.now),
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}

	claims := &AccessTokenClaims{}
	_, err := jwt.NewParser(opts...).ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.verificationKey.VerificationKey(), nil
	})
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// mintRefreshToken encodes and signs payload as base64url(json).base64url(sig).
func (s *Server) mintRefreshToken(payload *RefreshTokenPayload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode refresh token: %w", err)
	}
	encoded := crypto.Base64URLEncode(data)
	sig, err := crypto.Sign([]byte(encoded), s.signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign refresh token: %w", err)
	}
	return encoded + "." + crypto.Base64URLEncode(sig), nil
}

// parseRefreshToken verifies the signature of token and decodes its payload.
// Expiry is left to the caller.
func (s *Server) parseRefreshToken(token string) (*RefreshTokenPayload, error) {
	encoded, encodedSig, ok := strings.Cut(token, ".")
	if !ok || encoded == "" || encodedSig == "" || strings.Contains(encodedSig, ".") {
		return nil, errRefreshTokenFormat
	}
	sig, err := crypto.Base64URLDecode(encodedSig)
	if err != nil {
		return nil, fmt.Errorf("failed to decode signature: %w", err)
	}
	if err := crypto.Verify([]byte(encoded), sig, s.verificationKey); err != nil {
		return nil, err
	}
	data, err := crypto.Base64URLDecode(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	payload := &RefreshTokenPayload{}
	if err := json.Unmarshal(data, payload); err != nil {
		return nil, fmt.Errorf("failed to parse payload: %w", err)
	}
	if payload.TokenID == "" || payload.GrantID == "" {
		return nil, fmt.Errorf("refresh token payload is incomplete")
	}
	return payload, nil
}

func (p *RefreshTokenPayload) expiresAt() time.Time {
	return time.Unix(p.Expires, 0)
}

func joinScope(scope []string) string {
	return strings.Join(scope, " ")
}
