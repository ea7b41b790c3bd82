package config

import "time"

// SubflowConfig is the top-level configuration structure for subflow.
type SubflowConfig struct {
	Cache   CacheConfig   `yaml:"cache"`
	Remote  RemoteConfig  `yaml:"remote"`
	Pool    PoolConfig    `yaml:"pool"`
	Watch   WatchConfig   `yaml:"watch"`
	Logging LoggingConfig `yaml:"logging"`
}

// CacheConfig configures the callee instance registry.
type CacheConfig struct {
	MaxIdle      time.Duration `yaml:"maxIdle,omitempty"`      // Idle eviction threshold (default: 60s)
	MaxSize      int           `yaml:"maxSize,omitempty"`      // Maximum number of loaded workflows (default: 3)
	CleanupDelay time.Duration `yaml:"cleanupDelay,omitempty"` // Delay of the cleanup pass scheduled after a release (default: 61s)
	LoadTimeout  time.Duration `yaml:"loadTimeout,omitempty"`  // Upper bound for a single load, 0 disables it
}

// RemoteConfig configures downloads of workflows referenced by http(s) URL.
type RemoteConfig struct {
	Timeout    time.Duration `yaml:"timeout,omitempty"`    // Per-attempt download timeout (default: 2m)
	MaxRetries int           `yaml:"maxRetries,omitempty"` // Retries for transient failures (default: 3)
	TempDir    string        `yaml:"tempDir,omitempty"`    // Parent of extracted downloads (default: os.TempDir())
}

// PoolConfig sizes the shared worker pool.
type PoolConfig struct {
	Interactive int `yaml:"interactive,omitempty"`
	Background  int `yaml:"background,omitempty"`
}

// WatchConfig configures filesystem driven invalidation of cached workflows.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce,omitempty"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}
