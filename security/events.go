package security

// Audit event types.
const (
	// Authorization leg

	EventGrantCreated            = "grant_created"
	EventAuthorizationCodeIssued = "authorization_code_issued"
	EventLoginRequired           = "login_required"

	// Token leg

	EventTokenIssued    = "token_issued"
	EventTokenRefreshed = "token_refreshed"

	// EventRefreshTokenReuseDetected is logged when a retired refresh token is
	// presented again and its grant is deleted.
	EventRefreshTokenReuseDetected = "refresh_token_reuse_detected" //nolint:gosec // G101: event name, not a credential

	EventPKCEValidationFailed = "pkce_validation_failed"
	EventScopeEscalation      = "scope_escalation_attempt"

	// Resource owner actions

	EventGrantRevoked        = "grant_revoked"
	EventRefreshTokenRevoked = "refresh_token_revoked" //nolint:gosec // G101: event name, not a credential
	EventAccountDeleted      = "account_deleted"

	// Violations

	EventAuthFailure       = "auth_failure"
	EventRateLimitExceeded = "rate_limit_exceeded"
)
