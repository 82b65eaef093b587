package testsupport

import (
	"path/filepath"
	"testing"

	"libris/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "logs")

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithMaxPending caps the per-user pending quota on the test config.
func WithMaxPending(limit int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Requests.MaxPending = limit
	}
}

// WithPayloadMaxBytes caps the serialized payload size on the test config.
func WithPayloadMaxBytes(limit int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Requests.PayloadMaxBytes = limit
	}
}

// WithNoteMaxLength caps the note length on the test config.
func WithNoteMaxLength(limit int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Requests.NoteMaxLength = limit
	}
}
