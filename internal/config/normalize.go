package config

import "strings"

func (c *Config) normalize() error {
	var err error
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)

	normalized := make(map[string]string, len(c.Policy.Defaults))
	for contentType, mode := range c.Policy.Defaults {
		normalized[strings.ToLower(strings.TrimSpace(contentType))] = strings.ToLower(strings.TrimSpace(mode))
	}
	c.Policy.Defaults = normalized

	for i := range c.Policy.Rules {
		c.Policy.Rules[i].Source = strings.ToLower(strings.TrimSpace(c.Policy.Rules[i].Source))
		c.Policy.Rules[i].ContentType = strings.ToLower(strings.TrimSpace(c.Policy.Rules[i].ContentType))
		c.Policy.Rules[i].Mode = strings.ToLower(strings.TrimSpace(c.Policy.Rules[i].Mode))
	}
	for i := range c.Policy.Sources {
		c.Policy.Sources[i].ID = strings.ToLower(strings.TrimSpace(c.Policy.Sources[i].ID))
		for j := range c.Policy.Sources[i].ContentTypes {
			c.Policy.Sources[i].ContentTypes[j] = strings.ToLower(strings.TrimSpace(c.Policy.Sources[i].ContentTypes[j]))
		}
	}

	return nil
}
