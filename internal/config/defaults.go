package config

import "time"

const (
	DefaultMaxIdle          = 60 * time.Second
	DefaultMaxSize          = 3
	DefaultCleanupDelay     = DefaultMaxIdle + time.Second
	DefaultRemoteTimeout    = 2 * time.Minute
	DefaultRemoteMaxRetries = 3
	DefaultPoolSize         = 4
	DefaultWatchDebounce    = 500 * time.Millisecond
)

// GetDefaultConfig returns the default configuration.
func GetDefaultConfig() SubflowConfig {
	return SubflowConfig{
		Cache: CacheConfig{
			MaxIdle:      DefaultMaxIdle,
			MaxSize:      DefaultMaxSize,
			CleanupDelay: DefaultCleanupDelay,
		},
		Remote: RemoteConfig{
			Timeout:    DefaultRemoteTimeout,
			MaxRetries: DefaultRemoteMaxRetries,
		},
		Pool: PoolConfig{
			Interactive: DefaultPoolSize,
			Background:  DefaultPoolSize,
		},
		Watch: WatchConfig{
			Enabled:  true,
			Debounce: DefaultWatchDebounce,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
