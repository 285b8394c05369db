// Package redis provides a Redis-backed implementation of the storage
// interfaces using github.com/redis/go-redis/v9.
//
// Every record is stored as a JSON string under {prefix}{type}:{id}, sealed
// by an optional security.Encryptor. Per-user and per-grant sets index the
// grants and refresh tokens so listing and cascading deletes never scan the
// keyspace.
//
// Atomicity:
//   - ConsumeCode uses GETDEL, so a code is returned to at most one caller
//   - DeactivateRefreshToken deletes a separate active flag in a Lua script,
//     so the compare-and-set works on encrypted records
//   - DeleteGrant runs under WATCH on the grant's token index and retries
//     when a token is added concurrently
//
// Key Layout:
//
//	{prefix}code:{code}                 authorization code, TTL = code lifetime
//	{prefix}grant:{id}                  grant
//	{prefix}idx:grant-tokens:{id}       SET of refresh token ids of a grant
//	{prefix}refresh:{id}                refresh token record
//	{prefix}refresh-active:{id}         present while the token is active
//	{prefix}idx:user-grants:{username}  SET of grant ids of a user
//	{prefix}idx:user-tokens:{username}  SET of refresh token ids of a user
//	{prefix}client:{id}, user:{name}, api:{identifier}   registrations
//
// Example usage:
//
//	store, err := redis.New(ctx, redis.Config{Address: "localhost:6379"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
package redis
