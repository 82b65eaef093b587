// Package config loads, validates, and normalizes the Libris TOML
// configuration.
//
// Configuration sections by subsystem:
//   - Paths: state and log directories
//   - Requests: per-user pending quota and payload caps
//   - Policy: per-content-type default modes, override rules, and the
//     sources each rule may reference
//   - Sync: delivery-state synchronizer cadence
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
//
// Load resolves the config path (explicit flag, then ~/.config/libris/
// config.toml, then ./libris.toml), decodes over Default(), expands home
// paths, and validates the result.
package config
