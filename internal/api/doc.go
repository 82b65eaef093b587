// Package api provides transport-friendly representations of requests,
// ledger entries, and accounts, so IPC and HTTP front ends never couple to
// the internal store types. All timestamps are RFC3339 UTC strings and blob
// fields pass through as raw JSON.
package api
