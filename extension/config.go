package extension

import (
	"strings"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/database"
)

// Config holds the Bastion extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.bastion" or "bastion" keys).
type Config struct {
	// DisableRoutes prevents HTTP route registration.
	DisableRoutes bool `json:"disable_routes" mapstructure:"disable_routes" yaml:"disable_routes"`

	// DisableMigrate prevents table creation on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// DisableCache saves every change before the request returns instead
	// of writing behind through the save queue.
	DisableCache bool `json:"disable_cache" mapstructure:"disable_cache" yaml:"disable_cache"`

	// Engine tunes the protection engine.
	Engine bastion.Config `json:"engine" mapstructure:"engine" yaml:"engine"`

	// Database holds database settings keyed without the "database."
	// prefix (adapter, path, host, pool_size, ...). When set and no store is
	// registered in the DI container, the extension opens a relational store.
	Database map[string]string `json:"database" mapstructure:"database" yaml:"database"`

	// GroveMigrations runs the table migrations through the grove.DB
	// registered in the DI container instead of the store's own loader.
	GroveMigrations bool `json:"grove_migrations" mapstructure:"grove_migrations" yaml:"grove_migrations"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Engine: bastion.DefaultConfig(),
	}
}

// databaseConfig converts the Database section into database keys.
func (c Config) databaseConfig() database.StaticConfig {
	out := make(database.StaticConfig, len(c.Database))
	for k, v := range c.Database {
		k = strings.ToLower(strings.TrimSpace(k))
		if !strings.HasPrefix(k, "database.") {
			k = "database." + k
		}
		out[k] = v
	}
	return out
}

// engineConfig fills zero engine settings with defaults.
func (c Config) engineConfig() bastion.Config {
	cfg := c.Engine
	def := bastion.DefaultConfig()
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = def.CacheSize
	}
	if cfg.SaveInterval <= 0 {
		cfg.SaveInterval = def.SaveInterval
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = def.ReconnectInterval
	}
	if cfg.EnableHistory == nil {
		cfg.EnableHistory = def.EnableHistory
	}
	if c.DisableMigrate {
		cfg.SkipMigrate = true
	}
	return cfg
}
