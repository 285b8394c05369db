package security

import (
	"net"
	"net/http"
	"strings"
)

// ProxyConfig describes the reverse proxies in front of the server.
type ProxyConfig struct {
	// Trust enables reading X-Forwarded-For and X-Real-IP.
	// Only enable behind a proxy that overwrites these headers.
	Trust bool

	// Count is the number of trusted proxies appending to X-Forwarded-For.
	// Zero is treated as one.
	Count int
}

// ClientIP returns the address of the client that sent r.
//
// With trusted proxies, X-Forwarded-For is read from the right: the last
// Count entries were appended by our own proxies, so the client is the entry
// just before them. Anything further left is client controlled.
func ClientIP(r *http.Request, proxy ProxyConfig) string {
	if proxy.Trust {
		if ip := forwardedFor(r.Header.Get("X-Forwarded-For"), proxy.Count); ip != "" {
			return ip
		}
		if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(ip) != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func forwardedFor(header string, proxies int) string {
	if header == "" {
		return ""
	}
	if proxies <= 0 {
		proxies = 1
	}
	ips := strings.Split(header, ",")
	idx := max(len(ips)-proxies-1, 0)
	ip := strings.TrimSpace(ips[idx])
	if net.ParseIP(ip) == nil {
		return ""
	}
	return ip
}
