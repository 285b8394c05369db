package server

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/giantswarm/mcp-authserver/instrumentation"
	"github.com/giantswarm/mcp-authserver/internal/util"
	"github.com/giantswarm/mcp-authserver/security"
	"github.com/giantswarm/mcp-authserver/server/crypto"
	"github.com/giantswarm/mcp-authserver/storage"
)

// BasicCredentials are the resource owner credentials of an authorization
// request, taken from the Authorization header.
type BasicCredentials struct {
	Username string
	Password string
}

// AuthorizationInput is a raw authorization request.
type AuthorizationInput struct {
	// Params holds the query (GET) or form (POST) parameters.
	Params url.Values

	// Credentials is nil when the request carried no Authorization header.
	Credentials *BasicCredentials

	// ClientIP is used for audit logging only.
	ClientIP string
}

// OutcomeKind tells the transport how to answer an authorization request.
type OutcomeKind int

const (
	// OutcomeLogin sends the user agent to the login page.
	OutcomeLogin OutcomeKind = iota
	// OutcomeCode sends the user agent back to the client with a code.
	OutcomeCode
)

func (k OutcomeKind) String() string {
	if k == OutcomeLogin {
		return "login"
	}
	return "code"
}

// AuthorizationOutcome is the result of a successful authorization request.
// Both kinds are rendered as a redirect to Location().
type AuthorizationOutcome struct {
	Kind    OutcomeKind
	Request *AuthorizationRequest

	// Code and GrantID are set for OutcomeCode.
	Code    string
	GrantID string

	target string
	query  url.Values
}

// Location returns the redirect target of the outcome.
func (o *AuthorizationOutcome) Location() string {
	return RedirectLocation(o.target, o.query)
}

// RedirectLocation appends params to the query of base.
func RedirectLocation(base string, params url.Values) string {
	u, err := url.Parse(base)
	if err != nil {
		sep := "?"
		if strings.Contains(base, "?") {
			sep = "&"
		}
		return base + sep + params.Encode()
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// ErrorLocation returns the error page redirect for err.
func (s *Server) ErrorLocation(err *Error) string {
	return RedirectLocation(s.Config.ErrorURL, url.Values{
		"error":             {err.Code},
		"error_description": {err.Description},
	})
}

// Authorize runs the authorization leg. Without credentials it returns an
// OutcomeLogin that round-trips the validated parameters; with valid
// credentials it records a grant and returns an OutcomeCode. Every failure
// is an *Error.
func (s *Server) Authorize(ctx context.Context, in AuthorizationInput) (*AuthorizationOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "oauth.server.authorize")
	defer span.End()

	outcome, err := s.authorize(ctx, in)
	if err != nil {
		return nil, s.finishWithError(span, "Authorization request failed", err)
	}

	span.SetAttributes(attribute.String(instrumentation.AttrOutcome, outcome.Kind.String()))
	instrumentation.SetSpanSuccess(span)
	return outcome, nil
}

func (s *Server) authorize(ctx context.Context, in AuthorizationInput) (*AuthorizationOutcome, error) {
	req, err := s.parseAuthorizationRequest(in.Params)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordAuthorizationStarted(ctx, req.ClientID)

	if _, err := s.AuthenticateClient(ctx, req.ClientID, req.RedirectURI, req.Audience); err != nil {
		return nil, err
	}

	if in.Credentials == nil {
		s.Auditor.LogEvent(security.Event{
			Type:      security.EventLoginRequired,
			ClientID:  req.ClientID,
			IPAddress: in.ClientIP,
		})
		return &AuthorizationOutcome{
			Kind:    OutcomeLogin,
			Request: req,
			target:  s.Config.LoginURL,
			query:   req.Values(),
		}, nil
	}

	user, err := s.AuthenticateUser(ctx, in.Credentials.Username, in.Credentials.Password, req.Scope)
	if err != nil {
		return nil, err
	}

	code, err := crypto.GenerateCode()
	if err != nil {
		return nil, ErrServerError(err)
	}

	now := s.now()
	grant := &storage.Grant{
		GrantID:   uuid.NewString(),
		ClientID:  req.ClientID,
		Username:  user.Username,
		Scope:     req.Scope,
		Audience:  req.Audience,
		CreatedAt: now,
	}
	if err := s.grants.SaveGrant(ctx, grant); err != nil {
		return nil, ErrServerError(fmt.Errorf("failed to save grant: %w", err))
	}

	codeTTL := s.ttl(s.Config.AuthorizationCodeTTL)
	authCode := &storage.AuthorizationCode{
		Code:                code,
		ClientID:            req.ClientID,
		Username:            user.Username,
		Scope:               req.Scope,
		Audience:            req.Audience,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		GrantID:             grant.GrantID,
		ExpiresAt:           now.Add(codeTTL),
	}
	if err := s.codes.SaveCode(ctx, authCode, codeTTL); err != nil {
		return nil, ErrServerError(fmt.Errorf("failed to save authorization code: %w", err))
	}

	s.Auditor.LogGrantCreated(user.Username, req.ClientID, grant.GrantID, req.Scope, req.Audience)
	s.Auditor.LogEvent(security.Event{
		Type:      security.EventAuthorizationCodeIssued,
		Username:  user.Username,
		ClientID:  req.ClientID,
		GrantID:   grant.GrantID,
		IPAddress: in.ClientIP,
	})
	s.metrics.RecordCodeIssued(ctx, req.ClientID)
	s.Logger.Debug("Authorization code issued",
		"client_id", req.ClientID,
		"grant_id", grant.GrantID,
		"code_prefix", util.SafeTruncate(code, 8))

	query := url.Values{"code": {code}}
	if req.State != "" {
		query.Set("state", req.State)
	}
	return &AuthorizationOutcome{
		Kind:    OutcomeCode,
		Request: req,
		Code:    code,
		GrantID: grant.GrantID,
		target:  req.RedirectURI,
		query:   query,
	}, nil
}
