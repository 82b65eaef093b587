// Package services defines the shared error taxonomy and context annotation
// helpers used across Libris components.
//
// Errors are classified by wrapping one of the exported sentinel values so
// that edge layers can map failures onto caller-facing status codes with
// HTTPStatus without inspecting message text. Context helpers carry the
// acting user, the affected request, and a per-invocation correlation
// identifier so log lines can be stitched together across layers.
package services
