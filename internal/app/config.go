package app

import (
	"subflow/internal/config"
)

// Config holds the application configuration
type Config struct {
	// Debug forces debug logging regardless of the configured level.
	Debug bool

	// Quiet discards all log output.
	Quiet bool

	// ConfigPath is the directory holding config.yaml. Empty means
	// ~/.config/subflow.
	ConfigPath string

	// WorkingDir anchors relative workflow references of top-level calls.
	// Empty means the process working directory.
	WorkingDir string

	// Subflow is the loaded configuration. When set, NewApplication does
	// not read config.yaml.
	Subflow *config.SubflowConfig
}

// NewConfig creates a new application configuration
func NewConfig(debug bool, configPath string) *Config {
	return &Config{
		Debug:      debug,
		ConfigPath: configPath,
	}
}
