// Package storage owns the shared SQLite connection used by the Libris
// stores.
//
// It applies the WAL/foreign-key/busy-timeout pragmas, creates the embedded
// schema, verifies the schema version, and exposes busy-retry execution
// helpers. Individual stores (requests, activity, users) wrap the returned
// DB and serialize their own write paths; reads go straight to the
// connection, which WAL keeps safe alongside a single writer.
package storage
