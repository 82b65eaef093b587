// Package notifications delivers request-lifecycle events via ntfy.
//
// The service publishes to the topic configured in config.toml and degrades
// to a no-op when no topic is set. Per-event enable flags let operators pick
// which milestones reach their phone. Core services never call this package
// directly; the CLI fans events out after the underlying operation commits,
// logging and dropping delivery failures.
package notifications
