package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
[server]
url = "https://links.example.com"
api_token = "secret"

[sync]
poll_interval_minutes = 10
pull_limit = 100

[logging]
level = "debug"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://links.example.com", cfg.Server.URL)
	assert.Equal(t, "secret", cfg.Server.APIToken)
	assert.Equal(t, 10, cfg.Sync.PollIntervalMinutes)
	assert.Equal(t, 100, cfg.Sync.PullLimit)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format, "unset fields keep defaults")
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
[server]
url = "https://links.example.com"
api_tokn = "typo"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown keys")
	assert.Contains(t, err.Error(), "api_tokn")
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad url", func(c *Config) { c.Server.URL = "not a url" }, "not a valid URL"},
		{"bad scheme", func(c *Config) { c.Server.URL = "ftp://x.example" }, "must be http or https"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"bad interval", func(c *Config) { c.Sync.PollIntervalMinutes = 0 }, "poll_interval_minutes"},
		{"bad pull limit", func(c *Config) { c.Sync.PullLimit = 5000 }, "pull_limit"},
		{"bad timeout", func(c *Config) { c.Network.TimeoutSeconds = 0 }, "timeout_seconds"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			tc.mutate(cfg)

			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestResolvePrecedence(t *testing.T) {
	path := writeConfig(t, `
[server]
url = "https://from-file.example.com"
api_token = "file-token"
`)

	cfg, err := Resolve(
		EnvOverrides{ConfigPath: path, ServerURL: "https://from-env.example.com", LogLevel: "warn"},
		CLIOverrides{ServerURL: "https://from-cli.example.com"},
	)
	require.NoError(t, err)

	assert.Equal(t, "https://from-cli.example.com", cfg.Server.URL, "CLI beats env beats file")
	assert.Equal(t, "file-token", cfg.Server.APIToken, "untouched layers survive")
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.NotEmpty(t, cfg.Sync.DataDir, "data dir defaults when unset")
}

func TestPathHelpers(t *testing.T) {
	t.Parallel()

	assert.Equal(t, filepath.Join("/data", "sync.db"), StateDBPath("/data"))
	assert.Equal(t, filepath.Join("/data", "bookmarks.db"), TreeDBPath("/data"))
}
