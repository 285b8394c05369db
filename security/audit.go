package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"
)

// Auditor handles security event logging with PII protection.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
	now     func() time.Time
}

// NewAuditor creates a new security auditor
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
		now:     time.Now,
	}
}

// Event represents a security audit event
type Event struct {
	Type      string
	Username  string
	ClientID  string
	GrantID   string
	IPAddress string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent logs a security event with the username hashed.
// It is safe to call on a nil Auditor.
func (a *Auditor) LogEvent(event Event) {
	if a == nil || !a.enabled {
		return
	}

	event.Timestamp = a.now()

	a.logger.Info("security_audit",
		"event_type", event.Type,
		"user_hash", hashForLogging(event.Username),
		"client_id", event.ClientID,
		"grant_id", event.GrantID,
		"ip_address", event.IPAddress,
		"details", event.Details,
		"timestamp", event.Timestamp,
	)
}

// LogGrantCreated logs a new standing consent.
func (a *Auditor) LogGrantCreated(username, clientID, grantID string, scope, audience []string) {
	a.LogEvent(Event{
		Type:     EventGrantCreated,
		Username: username,
		ClientID: clientID,
		GrantID:  grantID,
		Details: map[string]any{
			"scope":    strings.Join(scope, " "),
			"audience": strings.Join(audience, " "),
		},
	})
}

// LogTokenIssued logs an access/refresh token pair issued from a code.
func (a *Auditor) LogTokenIssued(username, clientID, grantID string, scope []string) {
	a.LogEvent(Event{
		Type:     EventTokenIssued,
		Username: username,
		ClientID: clientID,
		GrantID:  grantID,
		Details: map[string]any{
			"scope": strings.Join(scope, " "),
		},
	})
}

// LogTokenRefreshed logs a refresh token rotation.
func (a *Auditor) LogTokenRefreshed(username, clientID, grantID string) {
	a.LogEvent(Event{
		Type:     EventTokenRefreshed,
		Username: username,
		ClientID: clientID,
		GrantID:  grantID,
		Details: map[string]any{
			"rotated": true,
		},
	})
}

// LogRefreshTokenReuse logs theft detection and the resulting grant deletion.
func (a *Auditor) LogRefreshTokenReuse(username, clientID, grantID string) {
	a.LogEvent(Event{
		Type:     EventRefreshTokenReuseDetected,
		Username: username,
		ClientID: clientID,
		GrantID:  grantID,
		Details: map[string]any{
			"action": "grant_deleted",
		},
	})
}

// LogAuthFailure logs an authentication failure
func (a *Auditor) LogAuthFailure(username, clientID, ipAddress, reason string) {
	a.LogEvent(Event{
		Type:      EventAuthFailure,
		Username:  username,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogRateLimitExceeded logs a rate limit violation
func (a *Auditor) LogRateLimitExceeded(ipAddress, endpoint string) {
	a.LogEvent(Event{
		Type:      EventRateLimitExceeded,
		IPAddress: ipAddress,
		Details: map[string]any{
			"endpoint": endpoint,
		},
	})
}

// hashForLogging creates a SHA256 hash of sensitive data for logging
func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}
