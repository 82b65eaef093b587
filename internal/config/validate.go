package config

import (
	"errors"
	"fmt"

	"libris/internal/policy"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateRequests(); err != nil {
		return err
	}
	if err := c.validatePolicy(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateRequests() error {
	if c.Requests.MaxPending <= 0 {
		return errors.New("requests.max_pending must be positive")
	}
	if c.Requests.NoteMaxLength <= 0 {
		return errors.New("requests.note_max_length must be positive")
	}
	if c.Requests.PayloadMaxBytes <= 0 {
		return errors.New("requests.payload_max_bytes must be positive")
	}
	return nil
}

func (c *Config) validatePolicy() error {
	defaults := make(map[string]policy.Mode, len(c.Policy.Defaults))
	for contentType, mode := range c.Policy.Defaults {
		if contentType == "" {
			return errors.New("policy.defaults contains an empty content type")
		}
		parsed, ok := policy.ParseMode(mode)
		if !ok {
			return fmt.Errorf("policy.defaults[%s]: unknown mode %q", contentType, mode)
		}
		defaults[contentType] = parsed
	}

	sources := make([]policy.Source, 0, len(c.Policy.Sources))
	for i, source := range c.Policy.Sources {
		if source.ID == "" {
			return fmt.Errorf("policy.sources[%d].id must be set", i)
		}
		if len(source.ContentTypes) == 0 {
			return fmt.Errorf("policy.sources[%d].content_types must not be empty", i)
		}
		sources = append(sources, policy.Source{ID: source.ID, ContentTypes: source.ContentTypes})
	}

	rules := make([]policy.Rule, 0, len(c.Policy.Rules))
	for i, rule := range c.Policy.Rules {
		mode, ok := policy.ParseMode(rule.Mode)
		if !ok {
			return fmt.Errorf("policy.rules[%d].mode: unknown mode %q", i, rule.Mode)
		}
		rules = append(rules, policy.Rule{
			Source:      rule.Source,
			ContentType: rule.ContentType,
			Mode:        mode,
		})
	}

	return policy.ValidateRules(rules, sources, defaults)
}

func (c *Config) validateSync() error {
	if c.Sync.IntervalSeconds <= 0 {
		return errors.New("sync.interval_seconds must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.NtfyTopic != "" && c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive when ntfy_topic is set")
	}
	return nil
}
