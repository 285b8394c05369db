package crypto

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// DefaultPasswordIterations is the PBKDF2 work factor for stored passwords.
	DefaultPasswordIterations = 1_000_000

	// PasswordHashBytes is the PBKDF2 output length (512 bits).
	PasswordHashBytes = 64
)

// Password hashing algorithms recognised on stored users.
const (
	AlgorithmPBKDF2SHA512 = "pbkdf2-sha512"
	AlgorithmSHA512       = "sha512"
)

// HashPassword derives the hex PBKDF2-HMAC-SHA512 hash of password.
func HashPassword(password, salt string, iterations int) string {
	if iterations <= 0 {
		iterations = DefaultPasswordIterations
	}
	key := pbkdf2.Key([]byte(password), []byte(salt), iterations, PasswordHashBytes, sha512.New)
	return hex.EncodeToString(key)
}

// HashPasswordLegacy returns the hex SHA-512 of password+salt.
func HashPasswordLegacy(password, salt string) string {
	return SHA512Hex(password + salt)
}

// EqualHash compares two hex digests in constant time.
func EqualHash(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
