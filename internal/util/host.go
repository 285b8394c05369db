package util

import (
	"net"
	"strings"
)

// IsLoopbackHostname reports whether host names the local machine.
func IsLoopbackHostname(host string) bool {
	host = strings.Trim(host, "[]")
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
