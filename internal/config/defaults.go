package config

const (
	defaultStateDir        = "~/.local/share/libris"
	defaultLogDir          = "~/.local/share/libris/logs"
	defaultLogFormat       = "text"
	defaultLogLevel        = "info"
	defaultMaxPending      = 25
	defaultNoteMaxLength   = 500
	defaultPayloadMaxBytes = 32 * 1024
	defaultQueuePriority   = 0
	defaultSyncInterval    = 30
	defaultNtfyTimeout     = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Requests: Requests{
			MaxPending:      defaultMaxPending,
			NoteMaxLength:   defaultNoteMaxLength,
			PayloadMaxBytes: defaultPayloadMaxBytes,
			QueuePriority:   defaultQueuePriority,
		},
		Policy: Policy{
			Defaults: map[string]string{
				"book":      "request_book",
				"audiobook": "request_book",
			},
		},
		Sync: Sync{
			IntervalSeconds: defaultSyncInterval,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyTimeout,
			Created:        true,
			Fulfilled:      true,
			Rejected:       true,
			Delivery:       true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
