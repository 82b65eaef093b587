// Package activity records the durable audit trail of everything that
// reached a terminal outcome.
//
// The ledger is append-only: one row per terminal event, never mutated, with
// repeated terminations of the same item key allowed (consumers take the
// newest by terminal time). Dismissals live in a separate per-user table with
// one row per (user, item type, item key); clearing history deletes
// dismissals, never ledger rows. History reads reconstruct a best-effort
// snapshot from the live request row for legacy dismissals that predate the
// ledger; that fallback only shapes the returned view and never writes back.
package activity
