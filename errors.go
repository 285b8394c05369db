package oauth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/giantswarm/mcp-authserver/security"
	"github.com/giantswarm/mcp-authserver/server"
	"github.com/giantswarm/mcp-authserver/storage"
)

// Error codes used by the transport in addition to the protocol taxonomy.
const (
	ErrorCodeRateLimitExceeded = "rate_limit_exceeded"
	ErrorCodeNotFound          = "not_found"
)

// errorStatus maps a protocol error code to the HTTP status of JSON error
// responses.
func errorStatus(code string) int {
	switch code {
	case server.ErrorCodeUnauthorizedClient, server.ErrorCodeInvalidToken:
		return http.StatusUnauthorized
	case server.ErrorCodeAccessDenied:
		return http.StatusForbidden
	case server.ErrorCodeServerError:
		return http.StatusInternalServerError
	case ErrorCodeNotFound:
		return http.StatusNotFound
	case ErrorCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusBadRequest
	}
}

// writeError renders err as a JSON error body.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	protoErr := server.AsError(err)
	h.writeErrorStatus(w, protoErr, errorStatus(protoErr.Code))
}

// writeErrorStatus renders err with an explicit status. Bearer-protected
// endpoints answer every authentication failure with 401.
func (h *Handler) writeErrorStatus(w http.ResponseWriter, err error, status int) {
	protoErr := server.AsError(err)
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer error="`+protoErr.Code+`"`)
	}
	h.writeJSON(w, status, ErrorResponse{
		Error:            protoErr.Code,
		ErrorDescription: protoErr.Description,
	})
}

// writeAccountError renders failures of the resource owner endpoints.
// Missing records, including those of other users, are 404.
func (h *Handler) writeAccountError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrGrantNotFound):
		h.writeError(w, server.NewError(ErrorCodeNotFound, "grant not found"))
	case errors.Is(err, storage.ErrRefreshTokenNotFound):
		h.writeError(w, server.NewError(ErrorCodeNotFound, "refresh token not found"))
	case errors.Is(err, storage.ErrUserNotFound):
		h.writeError(w, server.NewError(ErrorCodeNotFound, "user not found"))
	default:
		h.logger.Error("Account operation failed", "error", err)
		h.writeError(w, err)
	}
}

// redirectError sends the user agent to the error page. Authorization
// failures are never rendered as a bare error status.
func (h *Handler) redirectError(w http.ResponseWriter, r *http.Request, err error) {
	http.Redirect(w, r, h.server.ErrorLocation(server.AsError(err)), http.StatusFound)
}

// writeInactive renders an inactive introspection result.
func (h *Handler) writeInactive(w http.ResponseWriter) {
	h.writeJSON(w, http.StatusOK, IntrospectionResponse{Active: false})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Debug("Failed to write response", "error", err)
	}
}

// securityHeaders applies the protocol response headers.
func (h *Handler) securityHeaders(next http.Handler) http.Handler {
	return security.SecurityHeadersMiddleware(h.server.Config.Issuer)(next)
}
