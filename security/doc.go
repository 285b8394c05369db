// Package security provides the protective layers around the authorization
// server: audit logging with hashed identities, per-client rate limiting,
// response security headers, request ID propagation, client IP extraction,
// expiry checks with clock-skew grace, and AES-256-GCM encryption of stored
// records.
//
// # Rate Limiting
//
// RateLimiter keeps one token bucket per identifier (usually the client IP).
// The number of tracked identifiers is bounded; when the bound is reached the
// least recently used bucket is evicted, and buckets idle for longer than
// IdleTimeout are dropped by a background sweep.
//
//	limiter := security.NewRateLimiter(security.RateLimitConfig{Rate: 10, Burst: 20}, logger)
//	defer limiter.Stop()
//
//	if !limiter.Allow(clientIP) {
//	    // 429
//	}
//
// # Audit
//
// Auditor writes one structured "security_audit" record per event. Usernames
// are replaced with a truncated SHA-256 so audit streams can be correlated
// without holding the identity itself.
package security
