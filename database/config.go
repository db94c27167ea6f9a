package database

import (
	"strconv"
	"time"
)

// Configuration reads string settings supplied by the host.
type Configuration interface {
	GetString(key, def string) string
}

// Configuration keys.
const (
	KeyAdapter           = "database.adapter"
	KeyPath              = "database.path"
	KeyHost              = "database.host"
	KeyDatabase          = "database.database"
	KeyUsername          = "database.username"
	KeyPassword          = "database.password"
	KeySSLMode           = "database.sslmode"
	KeyPrefix            = "database.prefix"
	KeyPoolSize          = "database.pool_size"
	KeyConnectionTimeout = "database.connection_timeout"
	KeyStatementCache    = "database.statement_cache"
	KeyStatementTTL      = "database.statement_ttl"
	KeyKeepalive         = "database.keepalive"
)

// Defaults.
const (
	DefaultPrefix            = "bastion_"
	DefaultPoolSize          = 10
	DefaultConnectionTimeout = 5 * time.Second
	DefaultStatementTTL      = 5 * time.Minute
)

// StaticConfig is a fixed key/value Configuration.
type StaticConfig map[string]string

// GetString returns the value for key, or def when unset or empty.
func (c StaticConfig) GetString(key, def string) string {
	if v, ok := c[key]; ok && v != "" {
		return v
	}
	return def
}

func durationValue(cfg Configuration, key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(cfg.GetString(key, def.String()))
	if err != nil || d < 0 {
		return def
	}
	return d
}

func intValue(cfg Configuration, key string, def int) int {
	n, err := strconv.Atoi(cfg.GetString(key, strconv.Itoa(def)))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func boolValue(cfg Configuration, key string, def bool) bool {
	b, err := strconv.ParseBool(cfg.GetString(key, strconv.FormatBool(def)))
	if err != nil {
		return def
	}
	return b
}
