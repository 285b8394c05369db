// Package bolt provides a single-file persistent implementation of the
// storage interfaces on go.etcd.io/bbolt.
//
// Each record kind lives in its own bucket, keyed by its identifier and
// encoded with storage.EncodeRecord. bbolt serialises write transactions,
// so ConsumeCode, DeactivateRefreshToken and the cascading DeleteGrant are
// atomic without further locking. Listing scans a bucket, which is fine for
// the single-instance deployments this backend targets.
//
// Example usage:
//
//	store, err := bolt.Open("authserver.db", bolt.Options{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
package bolt
