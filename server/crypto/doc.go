// Package crypto holds the cryptographic primitives of the authorization
// server: base64url coding, SHA-2 digests, PBKDF2 password hashing, P-521
// key import, ES512 signatures, PKCE verification and random code generation.
//
// Everything here is stateless; keys are imported once at startup and may be
// shared between goroutines.
package crypto
