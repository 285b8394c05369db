// Package testutil provides fixtures and helpers shared by the tests of the
// authorization server: a controllable clock, P-521 signing keys, PKCE
// pairs and seeded clients, users and APIs.
package testutil
