package server

import (
	"errors"
	"fmt"

	"github.com/giantswarm/mcp-authserver/validation"
)

// OAuth 2.0 error codes from RFC 6749, plus invalid_token from RFC 6750.
const (
	ErrorCodeInvalidRequest          = "invalid_request"
	ErrorCodeUnauthorizedClient      = "unauthorized_client"
	ErrorCodeAccessDenied            = "access_denied"
	ErrorCodeUnsupportedResponseType = "unsupported_response_type"
	ErrorCodeUnsupportedGrantType    = "unsupported_grant_type"
	ErrorCodeInvalidGrant            = "invalid_grant"
	ErrorCodeServerError             = "server_error"
	ErrorCodeInvalidToken            = "invalid_token"
)

// Error is a protocol error. Code and Description are safe to show to the
// client; Err keeps the internal cause for logging.
type Error struct {
	Code        string
	Description string
	Err         error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Description, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a protocol error.
func NewError(code, description string) *Error {
	return &Error{Code: code, Description: description}
}

// ErrInvalidRequest indicates a malformed request or a missing parameter.
func ErrInvalidRequest(desc string) *Error {
	return NewError(ErrorCodeInvalidRequest, desc)
}

// ErrUnauthorizedClient indicates the client could not be authenticated.
func ErrUnauthorizedClient(desc string) *Error {
	return NewError(ErrorCodeUnauthorizedClient, desc)
}

// ErrAccessDenied indicates the resource owner could not be authenticated or
// is not entitled to the requested scope.
func ErrAccessDenied(desc string) *Error {
	return NewError(ErrorCodeAccessDenied, desc)
}

// ErrUnsupportedResponseType indicates a response_type other than "code".
func ErrUnsupportedResponseType(desc string) *Error {
	return NewError(ErrorCodeUnsupportedResponseType, desc)
}

// ErrUnsupportedGrantType indicates an unknown grant_type.
func ErrUnsupportedGrantType(desc string) *Error {
	return NewError(ErrorCodeUnsupportedGrantType, desc)
}

// ErrInvalidGrant indicates an invalid, expired or revoked code or refresh token.
func ErrInvalidGrant(desc string) *Error {
	return NewError(ErrorCodeInvalidGrant, desc)
}

// ErrInvalidToken indicates an inactive bearer token.
func ErrInvalidToken(desc string) *Error {
	return NewError(ErrorCodeInvalidToken, desc)
}

// ErrServerError wraps an unexpected failure. The cause is not part of the
// description.
func ErrServerError(err error) *Error {
	return &Error{Code: ErrorCodeServerError, Description: "internal server error", Err: err}
}

// AsError converts any error into a protocol error. Validation errors keep
// their category; anything unrecognised becomes server_error.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var protoErr *Error
	if errors.As(err, &protoErr) {
		return protoErr
	}
	var valErr *validation.Error
	if errors.As(err, &valErr) {
		return &Error{Code: valErr.Code, Description: valErr.Error(), Err: err}
	}
	return ErrServerError(err)
}
