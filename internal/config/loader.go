package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"subflow/pkg/logging"

	"gopkg.in/yaml.v3"
)

const (
	userConfigDir  = ".config/subflow"
	configFileName = "config.yaml"
)

// GetDefaultConfigPath returns ~/.config/subflow.
func GetDefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir), nil
}

// LoadConfig loads config.yaml from configPath on top of the defaults.
// A missing file is not an error. The result is validated.
func LoadConfig(configPath string) (SubflowConfig, error) {
	config := GetDefaultConfig()
	if configPath == "" {
		return config, nil
	}

	configFilePath := filepath.Join(configPath, configFileName)
	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Debug("Config", "No config.yaml found at %s, using defaults", configFilePath)
			return config, nil
		}
		return SubflowConfig{}, fmt.Errorf("error reading config from %s: %w", configFilePath, err)
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return SubflowConfig{}, fmt.Errorf("error loading config from %s: %w", configFilePath, err)
	}

	if err := config.Validate(); err != nil {
		return SubflowConfig{}, fmt.Errorf("invalid config %s: %w", configFilePath, err)
	}

	logging.Info("Config", "Loaded configuration from %s", configFilePath)
	return config, nil
}

// Validate checks the configuration for values the runtime cannot work with.
func (c SubflowConfig) Validate() error {
	var errs ValidationErrors

	if c.Cache.MaxSize < 1 {
		errs.Add("cache.maxSize", "must be at least 1", c.Cache.MaxSize)
	}
	errs.Check(ValidatePositiveDuration("cache.maxIdle", c.Cache.MaxIdle))
	errs.Check(ValidatePositiveDuration("cache.cleanupDelay", c.Cache.CleanupDelay))
	if c.Cache.LoadTimeout < 0 {
		errs.Add("cache.loadTimeout", "must not be negative", c.Cache.LoadTimeout)
	}
	errs.Check(ValidatePositiveDuration("remote.timeout", c.Remote.Timeout))
	if c.Remote.MaxRetries < 0 {
		errs.Add("remote.maxRetries", "must not be negative", c.Remote.MaxRetries)
	}
	if c.Pool.Interactive < 1 {
		errs.Add("pool.interactive", "must be at least 1", c.Pool.Interactive)
	}
	if c.Pool.Background < 1 {
		errs.Add("pool.background", "must be at least 1", c.Pool.Background)
	}
	if c.Watch.Enabled {
		errs.Check(ValidatePositiveDuration("watch.debounce", c.Watch.Debounce))
	}
	errs.Check(ValidateOneOf("logging.level", c.Logging.Level, []string{"debug", "info", "warn", "error"}))
	errs.Check(ValidateOneOf("logging.format", c.Logging.Format, []string{logging.FormatText, logging.FormatJSON}))

	return errs.OrNil()
}
