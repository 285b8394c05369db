package crypto

import (
	"crypto/subtle"

	"golang.org/x/oauth2"
)

// PKCEMethodS256 is the only accepted code_challenge_method.
const PKCEMethodS256 = "S256"

// PKCEChallenge computes base64url(SHA256(verifier)).
func PKCEChallenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}

// VerifyPKCE reports whether verifier matches the stored challenge.
func VerifyPKCE(challenge, method, verifier string) bool {
	if method != PKCEMethodS256 || challenge == "" || verifier == "" {
		return false
	}
	computed := PKCEChallenge(verifier)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}
