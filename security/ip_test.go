package security

import (
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xRealIP    string
		proxy      ProxyConfig
		want       string
	}{
		{
			name:       "direct connection",
			remoteAddr: "203.0.113.7:51234",
			want:       "203.0.113.7",
		},
		{
			name:       "headers ignored without trust",
			remoteAddr: "10.0.0.1:443",
			xff:        "198.51.100.1",
			xRealIP:    "198.51.100.2",
			want:       "10.0.0.1",
		},
		{
			name:       "single trusted proxy",
			remoteAddr: "10.0.0.1:443",
			xff:        "198.51.100.1, 10.0.0.2",
			proxy:      ProxyConfig{Trust: true, Count: 1},
			want:       "198.51.100.1",
		},
		{
			name:       "spoofed leftmost entry skipped",
			remoteAddr: "10.0.0.1:443",
			xff:        "6.6.6.6, 198.51.100.1, 10.0.0.3, 10.0.0.2",
			proxy:      ProxyConfig{Trust: true, Count: 2},
			want:       "198.51.100.1",
		},
		{
			name:       "zero count treated as one",
			remoteAddr: "10.0.0.1:443",
			xff:        "198.51.100.1, 10.0.0.2",
			proxy:      ProxyConfig{Trust: true},
			want:       "198.51.100.1",
		},
		{
			name:       "fewer entries than proxies",
			remoteAddr: "10.0.0.1:443",
			xff:        "198.51.100.1",
			proxy:      ProxyConfig{Trust: true, Count: 3},
			want:       "198.51.100.1",
		},
		{
			name:       "invalid xff falls back to x-real-ip",
			remoteAddr: "10.0.0.1:443",
			xff:        "garbage, 10.0.0.2",
			xRealIP:    "198.51.100.9",
			proxy:      ProxyConfig{Trust: true, Count: 1},
			want:       "198.51.100.9",
		},
		{
			name:       "remote addr without port",
			remoteAddr: "203.0.113.7",
			want:       "203.0.113.7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xRealIP != "" {
				r.Header.Set("X-Real-IP", tt.xRealIP)
			}

			if got := ClientIP(r, tt.proxy); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
