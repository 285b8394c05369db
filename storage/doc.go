// Package storage defines the persistence contracts of the authorization server.
//
// The engines in the server package never touch a database directly. They depend on
// the narrow interfaces declared here:
//   - ClientStore, UserStore, APIStore: registrations, usually kept in a relational database
//   - CodeStore, GrantStore, RefreshTokenStore: short-lived protocol state, usually kept in a key-value store
//
// Two consistency guarantees are required from implementations. ConsumeCode must
// return a code at most once, even under concurrent callers. DeactivateRefreshToken
// must flip a refresh token from active to inactive at most once, reporting
// ErrRefreshTokenInactive to every caller that loses the race.
//
// Implementations are provided in subpackages:
//   - storage/memory: in-process storage for development, tests and single instances
//   - storage/redis: Redis storage for codes, grants and refresh tokens
//   - storage/bolt: embedded bbolt storage for codes, grants and refresh tokens
//   - storage/sqlstore: SQLite or PostgreSQL storage for clients, users and APIs
package storage
