// Package util provides small helpers shared across the server packages:
// log-safe truncation, scope set arithmetic and loopback host detection.
package util
