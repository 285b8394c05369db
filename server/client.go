package server

import (
	"context"
	"errors"
	"slices"

	"github.com/giantswarm/mcp-authserver/internal/util"
	"github.com/giantswarm/mcp-authserver/server/crypto"
	"github.com/giantswarm/mcp-authserver/storage"
)

// Outward authentication failure descriptions. They never reveal which check
// failed.
const (
	descClientAuthFailed  = "client authentication failed"
	descWrongCredentials  = "wrong username or password"
	descInsufficientScope = "insufficient scope"
)

// Compared against when no stored hash exists. Never matches a real digest.
const (
	dummyPasswordSalt = "mcp-authserver-dummy-salt"
	dummyPasswordHash = "00"
)

// AuthenticateClient resolves clientID and checks that redirectURI is the
// exact registered URI and that every audience names a known API.
func (s *Server) AuthenticateClient(ctx context.Context, clientID, redirectURI string, audience []string) (*storage.Client, error) {
	client, err := s.clients.GetClient(ctx, clientID)
	if err != nil {
		if !errors.Is(err, storage.ErrClientNotFound) {
			s.Logger.Error("Client lookup failed", "client_id", clientID, "error", err)
		} else {
			s.Logger.Debug("Client authentication failed", "reason", "unknown_client", "client_id", clientID)
		}
		s.Auditor.LogAuthFailure("", clientID, "", "unknown_client")
		return nil, ErrUnauthorizedClient(descClientAuthFailed)
	}

	if client.RedirectURI != redirectURI {
		s.Logger.Debug("Client authentication failed",
			"reason", "redirect_uri_mismatch",
			"client_id", clientID,
			"expected_uri", client.RedirectURI,
			"provided_uri", redirectURI)
		s.Auditor.LogAuthFailure("", clientID, "", "redirect_uri_mismatch")
		return nil, ErrUnauthorizedClient(descClientAuthFailed)
	}

	for _, aud := range audience {
		known, err := s.isKnownAudience(ctx, aud)
		if err != nil {
			s.Logger.Error("API lookup failed", "audience", aud, "error", err)
			return nil, ErrUnauthorizedClient(descClientAuthFailed)
		}
		if !known {
			s.Logger.Debug("Client authentication failed",
				"reason", "unknown_audience",
				"client_id", clientID,
				"audience", aud)
			s.Auditor.LogAuthFailure("", clientID, "", "unknown_audience")
			return nil, ErrUnauthorizedClient(descClientAuthFailed)
		}
	}

	return client, nil
}

func (s *Server) isKnownAudience(ctx context.Context, aud string) (bool, error) {
	if aud == s.Config.UserInfoURL || slices.Contains(s.Config.Audiences, aud) {
		return true, nil
	}
	if s.apis == nil {
		return false, nil
	}
	if _, err := s.apis.GetAPI(ctx, aud); err != nil {
		if errors.Is(err, storage.ErrAPINotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// AuthenticateUser checks the password of username and that the user is
// entitled to scope.
func (s *Server) AuthenticateUser(ctx context.Context, username, password string, scope []string) (*storage.User, error) {
	user, err := s.users.GetUser(ctx, username)
	if err != nil {
		reason := "unknown_user"
		if !errors.Is(err, storage.ErrUserNotFound) {
			reason = "user_lookup_failed"
			s.Logger.Error("User lookup failed", "error", err)
		}
		s.Logger.Debug("User authentication failed", "reason", reason)
		s.Auditor.LogAuthFailure(username, "", "", reason)
		s.hashDummyPassword(password)
		return nil, ErrAccessDenied(descWrongCredentials)
	}

	if !s.passwordMatches(user, password) {
		s.Logger.Debug("User authentication failed", "reason", "password_mismatch")
		s.Auditor.LogAuthFailure(username, "", "", "password_mismatch")
		return nil, ErrAccessDenied(descWrongCredentials)
	}

	if !util.IsSubset(scope, user.Scope) {
		s.Logger.Debug("User authentication failed",
			"reason", "insufficient_scope",
			"missing", util.Missing(scope, user.Scope))
		s.Auditor.LogAuthFailure(username, "", "", "insufficient_scope")
		return nil, ErrAccessDenied(descInsufficientScope)
	}

	return user, nil
}

func (s *Server) passwordMatches(user *storage.User, password string) bool {
	var computed string
	switch user.PasswordAlgorithm {
	case "", crypto.AlgorithmPBKDF2SHA512:
		iterations := user.PasswordIterations
		if iterations <= 0 {
			iterations = s.Config.PasswordIterations
		}
		computed = s.hashPassword(password, user.PasswordSalt, iterations)
	case crypto.AlgorithmSHA512:
		computed = crypto.HashPasswordLegacy(password, user.PasswordSalt)
	default:
		s.Logger.Error("Unknown password algorithm", "algorithm", user.PasswordAlgorithm)
		s.hashDummyPassword(password)
		return false
	}
	return crypto.EqualHash(computed, user.PasswordHash)
}

// hashDummyPassword does the PBKDF2 work of a real check for logins that
// have no stored hash to compare against.
func (s *Server) hashDummyPassword(password string) {
	computed := s.hashPassword(password, dummyPasswordSalt, s.Config.PasswordIterations)
	crypto.EqualHash(computed, dummyPasswordHash)
}
