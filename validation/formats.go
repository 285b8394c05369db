package validation

import "regexp"

// Formats of the protocol parameters.
var (
	ScopeTokenPattern    = regexp.MustCompile(`^[\x21\x23-\x5B\x5D-\x7E]+$`)
	AudiencePattern      = regexp.MustCompile(`^https?://[^\s]+$`)
	ClientIDPattern      = regexp.MustCompile(`^[\x21-\x7E]{1,256}$`)
	StatePattern         = regexp.MustCompile(`^[\x20-\x7E]{1,512}$`)
	CodeVerifierPattern  = regexp.MustCompile(`^[A-Za-z0-9\-._~]{43,128}$`)
	CodeChallengePattern = regexp.MustCompile(`^[A-Za-z0-9\-_]{43}$`)
	CodePattern          = regexp.MustCompile(`^[0-9a-f]{64}$`)
	RefreshTokenPattern  = regexp.MustCompile(`^[A-Za-z0-9\-_]+\.[A-Za-z0-9\-_]+$`)
)
