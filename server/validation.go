package server

import (
	"net/url"
	"slices"

	"github.com/giantswarm/mcp-authserver/server/crypto"
	"github.com/giantswarm/mcp-authserver/validation"
)

// Grant types accepted at the token endpoint.
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
)

// ResponseTypeCode is the only supported response_type.
const ResponseTypeCode = "code"

// AuthorizationRequest is a validated authorization request.
type AuthorizationRequest struct {
	ClientID            string
	RedirectURI         string
	Scope               []string
	Audience            []string
	CodeChallenge       string
	CodeChallengeMethod string
	State               string
}

// Values returns the request as query parameters, e.g. to round-trip it
// through the login page.
func (r *AuthorizationRequest) Values() url.Values {
	v := url.Values{}
	v.Set("response_type", ResponseTypeCode)
	v.Set("client_id", r.ClientID)
	v.Set("redirect_uri", r.RedirectURI)
	v.Set("scope", joinScope(r.Scope))
	if len(r.Audience) > 0 {
		v.Set("audience", joinScope(r.Audience))
	}
	v.Set("code_challenge", r.CodeChallenge)
	v.Set("code_challenge_method", r.CodeChallengeMethod)
	if r.State != "" {
		v.Set("state", r.State)
	}
	return v
}

// parseAuthorizationRequest validates the parameters of an authorization
// request. The user-info URL is added to the audience when the user-info
// scope is requested.
func (s *Server) parseAuthorizationRequest(params url.Values) (*AuthorizationRequest, error) {
	_, err := validation.Validate[string]("response_type", validation.Param(params, "response_type"),
		validation.NotUndefined(),
		validation.IsString(),
		validation.IsInList(ResponseTypeCode).WithCode(validation.CodeUnsupportedResponseType),
	)
	if err != nil {
		return nil, err
	}

	req := &AuthorizationRequest{}
	if req.ClientID, err = validateClientID(params); err != nil {
		return nil, err
	}
	if req.RedirectURI, err = validateRedirectURI(params); err != nil {
		return nil, err
	}
	req.Scope, err = validation.Validate[[]string]("scope", validation.ListParam(params, "scope"),
		validation.NotUndefined(),
		validation.IsArray(),
		validation.NotEmpty(),
		validation.EachMatchesRegex(validation.ScopeTokenPattern),
	)
	if err != nil {
		return nil, err
	}

	audience, hasAudience, err := validation.Optional[[]string]("audience", validation.ListParam(params, "audience"),
		validation.IsArray(),
		validation.NotEmpty(),
		validation.EachMatchesRegex(validation.AudiencePattern),
	)
	if err != nil {
		return nil, err
	}
	wantsUserInfo := slices.Contains(req.Scope, s.Config.UserInfoScope)
	if !hasAudience && !wantsUserInfo {
		return nil, &validation.Error{Field: "audience", Code: validation.CodeInvalidRequest, Message: "is required"}
	}
	req.Audience = audience
	if wantsUserInfo && !slices.Contains(req.Audience, s.Config.UserInfoURL) {
		req.Audience = append(req.Audience, s.Config.UserInfoURL)
	}

	req.CodeChallenge, err = validation.Validate[string]("code_challenge", validation.Param(params, "code_challenge"),
		validation.NotUndefined(),
		validation.IsString(),
		validation.MatchesRegex(validation.CodeChallengePattern),
	)
	if err != nil {
		return nil, err
	}
	req.CodeChallengeMethod, err = validation.Validate[string]("code_challenge_method", validation.Param(params, "code_challenge_method"),
		validation.NotUndefined(),
		validation.IsString(),
		validation.IsInList(crypto.PKCEMethodS256),
	)
	if err != nil {
		return nil, err
	}

	req.State, _, err = validation.Optional[string]("state", validation.Param(params, "state"),
		validation.IsString(),
		validation.MatchesRegex(validation.StatePattern),
	)
	if err != nil {
		return nil, err
	}
	return req, nil
}

// CodeExchangeRequest is a validated authorization_code token request.
type CodeExchangeRequest struct {
	ClientID     string
	RedirectURI  string
	Code         string
	CodeVerifier string

	// Scope is nil when the client did not narrow the scope.
	Scope []string
}

func parseCodeExchangeRequest(params url.Values) (*CodeExchangeRequest, error) {
	req := &CodeExchangeRequest{}
	var err error
	if req.ClientID, err = validateClientID(params); err != nil {
		return nil, err
	}
	if req.RedirectURI, err = validateRedirectURI(params); err != nil {
		return nil, err
	}
	if req.Scope, err = validateOptionalScope(params); err != nil {
		return nil, err
	}
	req.CodeVerifier, err = validation.Validate[string]("code_verifier", validation.Param(params, "code_verifier"),
		validation.NotUndefined(),
		validation.IsString(),
		validation.MatchesRegex(validation.CodeVerifierPattern),
	)
	if err != nil {
		return nil, err
	}
	req.Code, err = validation.Validate[string]("code", validation.Param(params, "code"),
		validation.NotUndefined(),
		validation.IsString(),
		validation.MatchesRegex(validation.CodePattern).WithCode(validation.CodeInvalidGrant),
	)
	if err != nil {
		return nil, err
	}
	return req, nil
}

// RefreshRequest is a validated refresh_token token request.
type RefreshRequest struct {
	ClientID     string
	RefreshToken string

	// Scope is nil when the client did not narrow the scope.
	Scope []string
}

func parseRefreshRequest(params url.Values) (*RefreshRequest, error) {
	req := &RefreshRequest{}
	var err error
	if req.ClientID, err = validateClientID(params); err != nil {
		return nil, err
	}
	if req.Scope, err = validateOptionalScope(params); err != nil {
		return nil, err
	}
	req.RefreshToken, err = validation.Validate[string]("refresh_token", validation.Param(params, "refresh_token"),
		validation.NotUndefined(),
		validation.IsString(),
		validation.MatchesRegex(validation.RefreshTokenPattern).WithCode(validation.CodeInvalidGrant),
	)
	if err != nil {
		return nil, err
	}
	return req, nil
}

func validateGrantType(params url.Values) (string, error) {
	return validation.Validate[string]("grant_type", validation.Param(params, "grant_type"),
		validation.NotUndefined(),
		validation.IsString(),
		validation.IsInList(GrantTypeAuthorizationCode, GrantTypeRefreshToken).WithCode(validation.CodeUnsupportedGrantType),
	)
}

func validateClientID(params url.Values) (string, error) {
	return validation.Validate[string]("client_id", validation.Param(params, "client_id"),
		validation.NotUndefined(),
		validation.IsString(),
		validation.MatchesRegex(validation.ClientIDPattern),
	)
}

func validateRedirectURI(params url.Values) (string, error) {
	return validation.Validate[string]("redirect_uri", validation.Param(params, "redirect_uri"),
		validation.NotUndefined(),
		validation.IsString(),
		validation.NotEmpty(),
	)
}

func validateOptionalScope(params url.Values) ([]string, error) {
	scope, _, err := validation.Optional[[]string]("scope", validation.ListParam(params, "scope"),
		validation.IsArray(),
		validation.NotEmpty(),
		validation.EachMatchesRegex(validation.ScopeTokenPattern),
	)
	return scope, err
}
