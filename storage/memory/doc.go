// Package memory provides an in-memory implementation of every storage
// interface.
//
// It is suitable for development, testing and single-instance deployments
// where persistence is not required. All operations are serialised by a
// sync.RWMutex, which makes ConsumeCode and DeactivateRefreshToken atomic.
//
// Features:
//   - Expired codes are invisible to readers and removed by a background loop
//   - Deleting a grant removes every refresh token issued under it
//   - Optional OpenTelemetry spans and storage metrics
//
// For multi-instance deployments use storage/redis or storage/bolt for the
// protocol state and storage/sqlstore for registrations.
//
// Example usage:
//
//	store := memory.New()
//	defer store.Stop()
//
//	srv, _ := server.New(ctx, server.Stores{
//	    Clients: store, Users: store, APIs: store,
//	    Codes: store, Grants: store, RefreshTokens: store,
//	}, keyProvider, config, logger)
package memory
