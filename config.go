package bastion

import "time"

// Config holds configuration for the Bastion engine.
type Config struct {
	// CacheTTL is how long clean protections stay cached.
	// Defaults to 5 minutes.
	CacheTTL time.Duration `json:"cache_ttl,omitempty" mapstructure:"cache_ttl"`

	// CacheSize bounds the number of clean cached protections.
	// Defaults to 10000.
	CacheSize int `json:"cache_size,omitempty" mapstructure:"cache_size"`

	// SaveInterval is how often the save queue wakes without a signal.
	// Defaults to 1 second.
	SaveInterval time.Duration `json:"save_interval,omitempty" mapstructure:"save_interval"`

	// ShutdownTimeout bounds the final drain of the save queue.
	// Defaults to 30 seconds.
	ShutdownTimeout time.Duration `json:"shutdown_timeout,omitempty" mapstructure:"shutdown_timeout"`

	// EnableHistory records protection history entries.
	// Defaults to true.
	EnableHistory *bool `json:"enable_history,omitempty" mapstructure:"enable_history"`

	// ReconnectInterval is how often an unreachable store is retried.
	// Defaults to 30 seconds.
	ReconnectInterval time.Duration `json:"reconnect_interval,omitempty" mapstructure:"reconnect_interval"`

	// SkipMigrate leaves table creation to the host.
	SkipMigrate bool `json:"skip_migrate,omitempty" mapstructure:"skip_migrate"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	t := true
	return Config{
		CacheTTL:          5 * time.Minute,
		CacheSize:         10000,
		SaveInterval:      time.Second,
		ShutdownTimeout:   30 * time.Second,
		ReconnectInterval: 30 * time.Second,
		EnableHistory:     &t,
	}
}

func (c Config) historyEnabled() bool { return c.EnableHistory == nil || *c.EnableHistory }

func (c Config) reconnectInterval() time.Duration {
	if c.ReconnectInterval <= 0 {
		return 30 * time.Second
	}
	return c.ReconnectInterval
}

func (c Config) shutdownTimeout() time.Duration {
	if c.ShutdownTimeout <= 0 {
		return 30 * time.Second
	}
	return c.ShutdownTimeout
}
