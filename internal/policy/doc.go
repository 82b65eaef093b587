// Package policy computes the permission mode for a (source, content type,
// user) combination and validates declarative override rules.
//
// Modes order strictest-first: blocked > request_book > request_release >
// download. Resolution prefers an exact (source, content type) rule (the
// user's own rule before the global one), then the per-content-type default
// (user override before global), then a fixed fallback. Everything here is
// side-effect free and safe to call on every request evaluation.
package policy
