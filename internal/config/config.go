// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for linkloom. It supports a three-layer
// override chain (defaults -> config file -> environment -> CLI flags).
//
// The config file holds workstation-level options: where databases live, how
// chatty logging is, HTTP timeouts. Durable sync settings (server URL, API
// token, client id, poll interval) live in the sync state database and are
// seeded from here on first use.
package config

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Sync    SyncConfig    `toml:"sync"`
	Logging LoggingConfig `toml:"logging"`
	Network NetworkConfig `toml:"network"`
}

// ServerConfig identifies the LinkLoom server and credentials. Values here
// seed the sync state database; `linkloom config set` updates both.
type ServerConfig struct {
	URL      string `toml:"url"`
	APIToken string `toml:"api_token"`
}

// SyncConfig controls sync engine behavior.
type SyncConfig struct {
	PollIntervalMinutes int    `toml:"poll_interval_minutes"`
	PullLimit           int    `toml:"pull_limit"`
	DataDir             string `toml:"data_dir"`
}

// LoggingConfig controls log output level and format.
type LoggingConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // text or json
}

// NetworkConfig controls HTTP client behavior.
type NetworkConfig struct {
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Sync: SyncConfig{
			PollIntervalMinutes: 5,
			PullLimit:           200,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Network: NetworkConfig{
			TimeoutSeconds: 30,
		},
	}
}
