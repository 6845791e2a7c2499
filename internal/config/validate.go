package config

import (
	"fmt"
	"net/url"
	"strings"
)

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"text": true,
	"json": true,
}

// Validate checks a Config for invalid values. An empty server URL is
// allowed: configuration may come later via `linkloom config set`.
func Validate(cfg *Config) error {
	if cfg.Server.URL != "" {
		u, err := url.Parse(cfg.Server.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("server.url %q is not a valid URL", cfg.Server.URL)
		}

		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("server.url scheme %q must be http or https", u.Scheme)
		}
	}

	if !validLogLevels[strings.ToLower(cfg.Logging.Level)] {
		return fmt.Errorf("logging.level %q must be one of debug, info, warn, error", cfg.Logging.Level)
	}

	if !validLogFormats[strings.ToLower(cfg.Logging.Format)] {
		return fmt.Errorf("logging.format %q must be text or json", cfg.Logging.Format)
	}

	if cfg.Sync.PollIntervalMinutes < 1 {
		return fmt.Errorf("sync.poll_interval_minutes %d must be at least 1", cfg.Sync.PollIntervalMinutes)
	}

	if cfg.Sync.PullLimit < 1 || cfg.Sync.PullLimit > 1000 {
		return fmt.Errorf("sync.pull_limit %d must be between 1 and 1000", cfg.Sync.PullLimit)
	}

	if cfg.Network.TimeoutSeconds < 1 {
		return fmt.Errorf("network.timeout_seconds %d must be at least 1", cfg.Network.TimeoutSeconds)
	}

	return nil
}
