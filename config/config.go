// Package config loads Bastion settings from a YAML file and BASTION_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/database"
)

// EnvPrefix is prepended to environment variable names. The key
// database.adapter is read from BASTION_DATABASE_ADAPTER.
const EnvPrefix = "BASTION"

// Config is the loaded configuration. It also serves raw keys to the
// database layer through GetString.
type Config struct {
	Engine bastion.Config `mapstructure:"engine"`
	Server ServerConfig   `mapstructure:"server"`
	Log    LogConfig      `mapstructure:"log"`

	v *viper.Viper
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Path   string `mapstructure:"path"`
	Level  string `mapstructure:"level"`
	Stderr bool   `mapstructure:"stderr"`
}

var _ database.Configuration = (*Config)(nil)

// Load reads path, or bastion.yaml from ~/.config/bastion and the working
// directory when path is empty. A missing default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("bastion")
		v.AddConfigPath("$HOME/.config/bastion")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	applyDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read %s: %w", v.ConfigFileUsed(), err)
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{v: v}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(v *viper.Viper) {
	def := bastion.DefaultConfig()

	v.SetDefault(database.KeyAdapter, "sqlite")
	v.SetDefault(database.KeyPath, "bastion.db")
	v.SetDefault(database.KeyPrefix, database.DefaultPrefix)
	v.SetDefault(database.KeyPoolSize, database.DefaultPoolSize)
	v.SetDefault(database.KeyConnectionTimeout, database.DefaultConnectionTimeout.String())
	v.SetDefault(database.KeyStatementCache, true)
	v.SetDefault(database.KeyStatementTTL, database.DefaultStatementTTL.String())

	v.SetDefault("engine.cache_ttl", def.CacheTTL.String())
	v.SetDefault("engine.cache_size", def.CacheSize)
	v.SetDefault("engine.save_interval", def.SaveInterval.String())
	v.SetDefault("engine.shutdown_timeout", def.ShutdownTimeout.String())
	v.SetDefault("engine.reconnect_interval", def.ReconnectInterval.String())
	v.SetDefault("engine.enable_history", true)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("log.level", "info")
}

// Validate checks values the loaders cannot.
func (c *Config) Validate() error {
	adapter := c.GetString(database.KeyAdapter, "none")
	if !database.MatchBackend(adapter).Configured() {
		return fmt.Errorf("config: unsupported database.adapter %q", adapter)
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	if c.Server.Addr == "" {
		return errors.New("config: server.addr is required")
	}
	return nil
}

// GetString returns the raw value of key, or def when it is unset.
func (c *Config) GetString(key, def string) string {
	if c.v == nil || !c.v.IsSet(key) {
		return def
	}
	return c.v.GetString(key)
}

// Set overrides a key, as a command-line flag would.
func (c *Config) Set(key string, value any) {
	if c.v == nil {
		c.v = viper.New()
	}
	c.v.Set(key, value)
}

// LogLevel parses log.level.
func (c *Config) LogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return lvl, fmt.Errorf("config: invalid log.level %q", c.Log.Level)
	}
	return lvl, nil
}
