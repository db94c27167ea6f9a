package database

import (
	"context"
	"fmt"
	"strings"
)

// Table names, without prefix.
const (
	TableProtections = "protections"
	TableRoles       = "roles"
	TableHistory     = "history"
)

// schemaStep is one named DDL step with per-backend statements.
type schemaStep struct {
	name     string
	version  string
	up       []string
	down     []string
	postgres map[int]string // statement index -> postgres override
}

func schemaSteps() []schemaStep {
	return []schemaStep{
		{
			name:    "create_protections",
			version: "20240601000001",
			up: []string{
				`CREATE TABLE IF NOT EXISTS {p}protections (
    id          TEXT PRIMARY KEY,
    owner       TEXT NOT NULL,
    kind        TEXT NOT NULL DEFAULT 'private',
    world       TEXT NOT NULL,
    x           INTEGER NOT NULL,
    y           INTEGER NOT NULL,
    z           INTEGER NOT NULL,
    created     BIGINT NOT NULL,
    updated     BIGINT NOT NULL,

    UNIQUE(world, x, y, z)
)`,
				`CREATE INDEX IF NOT EXISTS idx_{p}protections_owner ON {p}protections (owner)`,
			},
			down: []string{`DROP TABLE IF EXISTS {p}protections`},
		},
		{
			name:    "create_roles",
			version: "20240601000002",
			up: []string{
				`CREATE TABLE IF NOT EXISTS {p}roles (
    protection_id TEXT NOT NULL,
    type          INTEGER NOT NULL,
    name          TEXT NOT NULL,
    name_key      TEXT NOT NULL,
    access        INTEGER NOT NULL,

    PRIMARY KEY (protection_id, type, name_key)
)`,
			},
			down: []string{`DROP TABLE IF EXISTS {p}roles`},
		},
		{
			name:    "create_history",
			version: "20240601000003",
			up: []string{
				`CREATE TABLE IF NOT EXISTS {p}history (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    protection_id TEXT NOT NULL,
    principal     TEXT NOT NULL,
    action        TEXT NOT NULL,
    detail        TEXT NOT NULL DEFAULT '',
    created       BIGINT NOT NULL
)`,
				`CREATE INDEX IF NOT EXISTS idx_{p}history_protection ON {p}history (protection_id, id)`,
			},
			down: []string{`DROP TABLE IF EXISTS {p}history`},
			postgres: map[int]string{
				0: `CREATE TABLE IF NOT EXISTS {p}history (
    id            BIGSERIAL PRIMARY KEY,
    protection_id TEXT NOT NULL,
    principal     TEXT NOT NULL,
    action        TEXT NOT NULL,
    detail        TEXT NOT NULL DEFAULT '',
    created       BIGINT NOT NULL
)`,
			},
		},
	}
}

// statements renders the step for a backend and prefix.
func (s schemaStep) statements(kind Kind, prefix string, down bool) []string {
	src := s.up
	if down {
		src = s.down
	}
	out := make([]string, len(src))
	for i, stmt := range src {
		if alt, ok := s.postgres[i]; ok && kind == KindPostgres && !down {
			stmt = alt
		}
		out[i] = strings.ReplaceAll(stmt, "{p}", prefix)
	}
	return out
}

// Schema returns the DDL creating every table for kind.
func Schema(kind Kind, prefix string) []string {
	var out []string
	for _, step := range schemaSteps() {
		out = append(out, step.statements(kind, prefix, false)...)
	}
	return out
}

// Load creates any missing tables on a single pooled connection.
func (d *Database) Load(ctx context.Context) error {
	conn, err := d.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	for _, stmt := range Schema(d.backend.Kind, d.prefix) {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("database: load schema: %w", err)
		}
	}
	d.logger.Debug("schema loaded", "backend", d.backend.Name, "prefix", d.prefix)
	return nil
}
