// Package approvals orchestrates the request lifecycle on top of the request
// store: creation with quota, size, and duplicate checks, and the
// cancel/reject/fulfil/reopen transitions.
//
// The duplicate-pending and quota checks are separate reads that precede the
// insert, so two concurrent creates for the same title can both pass; the
// window is left open on purpose because the worst case is a duplicate
// pending row, never an inconsistent terminal state. Fulfilment enqueues with
// the external queue outside the store lock: the enqueue is at-least-once,
// the persisted fulfilled row exactly-once.
package approvals
