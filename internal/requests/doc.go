// Package requests owns the persisted acquisition-request entity and its
// state machine.
//
// Requests start pending and end in exactly one of fulfilled, rejected, or
// cancelled; terminal statuses are immutable. The store performs every write
// as a single read-modify-write inside the store mutex and one transaction,
// honoring an optional expected-current-status guard so racing transitions
// resolve deterministically to one winner. The store has no policy
// knowledge: the resolved policy mode arrives as opaque audit data.
package requests
