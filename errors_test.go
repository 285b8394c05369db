package oauth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/giantswarm/mcp-authserver/server"
)

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{server.ErrorCodeInvalidRequest, http.StatusBadRequest},
		{server.ErrorCodeInvalidGrant, http.StatusBadRequest},
		{server.ErrorCodeUnsupportedGrantType, http.StatusBadRequest},
		{server.ErrorCodeUnauthorizedClient, http.StatusUnauthorized},
		{server.ErrorCodeInvalidToken, http.StatusUnauthorized},
		{server.ErrorCodeAccessDenied, http.StatusForbidden},
		{server.ErrorCodeServerError, http.StatusInternalServerError},
		{ErrorCodeNotFound, http.StatusNotFound},
		{ErrorCodeRateLimitExceeded, http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := errorStatus(tt.code); got != tt.want {
				t.Errorf("errorStatus(%q) = %d, want %d", tt.code, got, tt.want)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi"},
		{"bearer abc.def.ghi", "abc.def.ghi"},
		{"JWT abc.def.ghi", "abc.def.ghi"},
		{"Basic dXNlcjpwYXNz", ""},
		{"abc.def.ghi", ""},
		{"", ""},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		if got := bearerToken(req); got != tt.want {
			t.Errorf("bearerToken(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}
