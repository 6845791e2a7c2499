package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig   = "LINKLOOM_CONFIG"
	EnvServer   = "LINKLOOM_SERVER"
	EnvAPIToken = "LINKLOOM_API_TOKEN"
	EnvDataDir  = "LINKLOOM_DATA_DIR"
	EnvLogLevel = "LINKLOOM_LOG_LEVEL"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // LINKLOOM_CONFIG: override config file path
	ServerURL  string // LINKLOOM_SERVER: server base URL
	APIToken   string // LINKLOOM_API_TOKEN: bearer token
	DataDir    string // LINKLOOM_DATA_DIR: database directory
	LogLevel   string // LINKLOOM_LOG_LEVEL: log verbosity
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. This does not modify the Config; Resolve applies the fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		ServerURL:  os.Getenv(EnvServer),
		APIToken:   os.Getenv(EnvAPIToken),
		DataDir:    os.Getenv(EnvDataDir),
		LogLevel:   os.Getenv(EnvLogLevel),
	}
}
