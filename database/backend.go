package database

import (
	"fmt"
	"net/url"
	"strings"
)

// Kind selects the storage engine.
type Kind int

// Backend kinds.
const (
	KindNone Kind = iota
	KindSQLite
	KindPostgres
)

// KeyStyle is how a backend reports keys generated by an insert.
type KeyStyle int

// Generated key styles.
const (
	KeysUnsupported KeyStyle = iota
	KeysLastInsertID
	KeysReturning
)

// Backend describes one storage engine: its driver and how to address it.
type Backend struct {
	Kind Kind
	Name string

	// Driver is the database/sql driver name.
	Driver string

	// Networked backends are addressed by host and credentials; local ones
	// by a file path.
	Networked bool

	Keys KeyStyle
}

// Known backends.
var (
	None = Backend{Kind: KindNone, Name: "none"}

	SQLite = Backend{
		Kind:   KindSQLite,
		Name:   "sqlite",
		Driver: "sqlite",
		Keys:   KeysLastInsertID,
	}

	Postgres = Backend{
		Kind:      KindPostgres,
		Name:      "postgres",
		Driver:    "pgx",
		Networked: true,
		Keys:      KeysReturning,
	}
)

// MatchBackend resolves a configured adapter name. Unknown names resolve
// to None.
func MatchBackend(name string) Backend {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sqlite", "sqlite3":
		return SQLite
	case "postgres", "postgresql", "pg":
		return Postgres
	default:
		return None
	}
}

func (b Backend) String() string { return b.Name }

// Configured reports whether b is a real engine.
func (b Backend) Configured() bool { return b.Kind != KindNone }

// DSN composes the driver connection string from configuration.
func (b Backend) DSN(cfg Configuration) (string, error) {
	switch b.Kind {
	case KindSQLite:
		q := url.Values{}
		q.Add("_pragma", "busy_timeout(5000)")
		q.Add("_pragma", "journal_mode(WAL)")
		return "file:" + sqlitePath(cfg) + "?" + q.Encode(), nil

	case KindPostgres:
		host := cfg.GetString(KeyHost, "")
		name := cfg.GetString(KeyDatabase, "")
		if host == "" || name == "" {
			return "", fmt.Errorf("database: %s requires %s and %s", b.Name, KeyHost, KeyDatabase)
		}
		u := url.URL{
			Scheme: "postgres",
			Host:   host,
			Path:   "/" + name,
		}
		if user := cfg.GetString(KeyUsername, ""); user != "" {
			if pass := cfg.GetString(KeyPassword, ""); pass != "" {
				u.User = url.UserPassword(user, pass)
			} else {
				u.User = url.User(user)
			}
		}
		q := url.Values{}
		q.Set("sslmode", cfg.GetString(KeySSLMode, "prefer"))
		timeout := durationValue(cfg, KeyConnectionTimeout, DefaultConnectionTimeout)
		if secs := int(timeout.Seconds()); secs > 0 {
			q.Set("connect_timeout", fmt.Sprint(secs))
		}
		u.RawQuery = q.Encode()
		return u.String(), nil

	default:
		return "", ErrNotConfigured
	}
}

func sqlitePath(cfg Configuration) string {
	return cfg.GetString(KeyPath, "bastion.db")
}

// Rebind rewrites '?' placeholders into the backend's native form.
// Placeholders inside single-quoted literals are left alone.
func (b Backend) Rebind(query string) string {
	if b.Kind != KindPostgres || !strings.Contains(query, "?") {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	quoted := false
	for _, r := range query {
		switch {
		case r == '\'':
			quoted = !quoted
			sb.WriteRune(r)
		case r == '?' && !quoted:
			n++
			fmt.Fprintf(&sb, "$%d", n)
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
