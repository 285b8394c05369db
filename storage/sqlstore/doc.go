// Package sqlstore keeps the registrations (clients, users and APIs) in a
// relational database through database/sql.
//
// Two drivers are supported: "sqlite" (modernc.org/sqlite, pure Go) and
// "postgres" (github.com/lib/pq). The schema is applied on Open by goose
// from migrations embedded in the binary. Scope lists are stored as
// space-delimited text.
//
// Protocol state (codes, grants, refresh tokens) belongs in one of the
// key-value backends; see storage/redis and storage/bolt.
package sqlstore
