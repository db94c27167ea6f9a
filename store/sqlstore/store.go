// Package sqlstore implements the Bastion composite store on the database
// package. SQLite and PostgreSQL share one code path: queries are written
// with ? placeholders and rebound per backend, and every statement runs
// through the cached query executor.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/bastion/database"
	"github.com/xraph/bastion/history"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/protection"
	"github.com/xraph/bastion/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is a relational implementation of the composite Bastion store.
type Store struct {
	db *database.Database

	protections string
	roles       string
	history     string
}

// New creates a store on db. The database may connect later; until then
// every operation fails with database.ErrNotConnected.
func New(db *database.Database) *Store {
	return &Store{
		db:          db,
		protections: db.Table(database.TableProtections),
		roles:       db.Table(database.TableRoles),
		history:     db.Table(database.TableHistory),
	}
}

// Open connects db and returns a store on it.
func Open(ctx context.Context, db *database.Database) (*Store, error) {
	s := New(db)
	if err := s.Reconnect(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Connected reports whether the database accepts queries.
func (s *Store) Connected() bool { return s.db.IsConnected() }

// Reconnect connects the database if it is not connected.
func (s *Store) Reconnect(ctx context.Context) error {
	if !s.db.Connect(ctx) {
		return fmt.Errorf("bastion/sqlstore: connect %s: %w", s.db.Backend().Name, database.ErrNotConnected)
	}
	return nil
}

// Database returns the underlying database.
func (s *Store) Database() *database.Database { return s.db }

// Migrate creates any missing tables.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.Load(ctx); err != nil {
		return fmt.Errorf("bastion/sqlstore: migrate: %w", err)
	}
	return nil
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close disposes the database.
func (s *Store) Close() error {
	s.db.Dispose()
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// ──────────────────────────────────────────────────
// Protection operations
// ──────────────────────────────────────────────────

func (s *Store) InsertProtection(ctx context.Context, rec *protection.Record) error {
	m := protectionToRow(rec)
	_, err := database.Exec(ctx, s.db,
		"INSERT INTO "+s.protections+" (id, owner, kind, world, x, y, z, created, updated) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		[]any{m.ID, m.Owner, m.Kind, m.World, m.X, m.Y, m.Z, m.Created, m.Updated})
	if err != nil {
		return fmt.Errorf("bastion: insert protection: %w", err)
	}
	return nil
}

func (s *Store) UpdateProtection(ctx context.Context, rec *protection.Record) error {
	m := protectionToRow(rec)
	res, err := database.Exec(ctx, s.db,
		"UPDATE "+s.protections+" SET owner = ?, kind = ?, updated = ? WHERE id = ?",
		[]any{m.Owner, m.Kind, m.Updated, m.ID})
	if err != nil {
		return fmt.Errorf("bastion: update protection: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("protection %s: %w", rec.ID, protection.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteProtection(ctx context.Context, protID id.ProtectionID) error {
	if _, err := database.Exec(ctx, s.db,
		"DELETE FROM "+s.roles+" WHERE protection_id = ?", []any{protID.String()}); err != nil {
		return fmt.Errorf("bastion: delete protection roles: %w", err)
	}
	if _, err := database.Exec(ctx, s.db,
		"DELETE FROM "+s.protections+" WHERE id = ?", []any{protID.String()}); err != nil {
		return fmt.Errorf("bastion: delete protection: %w", err)
	}
	return nil
}

func (s *Store) SaveRole(ctx context.Context, rec *protection.RoleRecord) error {
	_, err := database.Exec(ctx, s.db,
		"INSERT INTO "+s.roles+" (protection_id, type, name, name_key, access) VALUES (?, ?, ?, ?, ?)"+
			" ON CONFLICT (protection_id, type, name_key) DO UPDATE SET name = excluded.name, access = excluded.access",
		[]any{rec.ProtectionID.String(), int(rec.Type), rec.Name, protection.NameKey(rec.Name), int(rec.Access)})
	if err != nil {
		return fmt.Errorf("bastion: save role: %w", err)
	}
	return nil
}

func (s *Store) DeleteRole(ctx context.Context, protID id.ProtectionID, typ protection.RoleType, name string) error {
	_, err := database.Exec(ctx, s.db,
		"DELETE FROM "+s.roles+" WHERE protection_id = ? AND type = ? AND name_key = ?",
		[]any{protID.String(), int(typ), protection.NameKey(name)})
	if err != nil {
		return fmt.Errorf("bastion: delete role: %w", err)
	}
	return nil
}

const protectionColumns = "id, owner, kind, world, x, y, z, created, updated"

func (s *Store) GetProtection(ctx context.Context, protID id.ProtectionID) (*protection.Record, error) {
	rec, err := s.getOne(ctx, "SELECT "+protectionColumns+" FROM "+s.protections+" WHERE id = ?", protID.String())
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("protection %s: %w", protID, protection.ErrNotFound)
		}
		return nil, fmt.Errorf("bastion: get protection: %w", err)
	}
	return rec, nil
}

func (s *Store) GetProtectionAt(ctx context.Context, loc protection.Location) (*protection.Record, error) {
	rec, err := s.getOne(ctx,
		"SELECT "+protectionColumns+" FROM "+s.protections+" WHERE world = ? AND x = ? AND y = ? AND z = ?",
		loc.World, loc.X, loc.Y, loc.Z)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("protection at %s: %w", loc, protection.ErrNotFound)
		}
		return nil, fmt.Errorf("bastion: get protection at: %w", err)
	}
	return rec, nil
}

// getOne loads a single protection and its roles. A missing row is reported
// as sql.ErrNoRows without passing through the error handler.
func (s *Store) getOne(ctx context.Context, query string, args ...any) (*protection.Record, error) {
	m, err := database.Execute(ctx, s.db, query, func(ctx context.Context, stmt *database.Statement) (*protectionRow, error) {
		m := new(protectionRow)
		err := m.scan(stmt.QueryRowContext(ctx, args...))
		if isNoRows(err) {
			return nil, nil
		}
		return m, err
	})
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, sql.ErrNoRows
	}
	rec, err := protectionFromRow(m)
	if err != nil {
		return nil, err
	}
	if rec.Roles, err = s.loadRoles(ctx, rec.ID); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) loadRoles(ctx context.Context, protID id.ProtectionID) ([]protection.RoleRecord, error) {
	rows, err := database.Execute(ctx, s.db,
		"SELECT protection_id, type, name, access FROM "+s.roles+" WHERE protection_id = ? ORDER BY type, name",
		func(ctx context.Context, stmt *database.Statement) ([]roleRow, error) {
			rs, err := stmt.QueryContext(ctx, protID.String())
			if err != nil {
				return nil, err
			}
			defer rs.Close()
			var out []roleRow
			for rs.Next() {
				var m roleRow
				if err := rs.Scan(&m.ProtectionID, &m.Type, &m.Name, &m.Access); err != nil {
					return nil, err
				}
				out = append(out, m)
			}
			return out, rs.Err()
		})
	if err != nil {
		return nil, fmt.Errorf("bastion: load roles: %w", err)
	}
	result := make([]protection.RoleRecord, 0, len(rows))
	for i := range rows {
		r, err := roleFromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, nil
}

func protectionWhere(filter *protection.ListFilter) (string, []any) {
	var clauses []string
	var args []any
	if filter != nil {
		if filter.Owner != "" {
			clauses = append(clauses, "LOWER(owner) = LOWER(?)")
			args = append(args, filter.Owner)
		}
		if filter.World != "" {
			clauses = append(clauses, "world = ?")
			args = append(args, filter.World)
		}
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// page renders a LIMIT/OFFSET clause. SQLite needs a LIMIT before any
// OFFSET, for which -1 means unbounded.
func (s *Store) page(limit, offset int) string {
	switch {
	case limit > 0 && offset > 0:
		return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
	case limit > 0:
		return fmt.Sprintf(" LIMIT %d", limit)
	case offset > 0 && s.db.Backend().Kind == database.KindPostgres:
		return fmt.Sprintf(" OFFSET %d", offset)
	case offset > 0:
		return fmt.Sprintf(" LIMIT -1 OFFSET %d", offset)
	}
	return ""
}

func (s *Store) ListProtections(ctx context.Context, filter *protection.ListFilter) ([]*protection.Record, error) {
	where, args := protectionWhere(filter)
	query := "SELECT " + protectionColumns + " FROM " + s.protections + where + " ORDER BY created ASC, id ASC"
	if filter != nil {
		query += s.page(filter.Limit, filter.Offset)
	}

	models, err := database.Execute(ctx, s.db, query, func(ctx context.Context, stmt *database.Statement) ([]protectionRow, error) {
		rs, err := stmt.QueryContext(ctx, args...)
		if err != nil {
			return nil, err
		}
		defer rs.Close()
		var out []protectionRow
		for rs.Next() {
			var m protectionRow
			if err := m.scan(rs); err != nil {
				return nil, err
			}
			out = append(out, m)
		}
		return out, rs.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("bastion: list protections: %w", err)
	}

	result := make([]*protection.Record, len(models))
	for i := range models {
		rec, err := protectionFromRow(&models[i])
		if err != nil {
			return nil, fmt.Errorf("bastion: list protections: %w", err)
		}
		if rec.Roles, err = s.loadRoles(ctx, rec.ID); err != nil {
			return nil, err
		}
		result[i] = rec
	}
	return result, nil
}

func (s *Store) CountProtections(ctx context.Context, filter *protection.ListFilter) (int64, error) {
	where, args := protectionWhere(filter)
	count, err := database.Execute(ctx, s.db, "SELECT COUNT(*) FROM "+s.protections+where,
		func(ctx context.Context, stmt *database.Statement) (int64, error) {
			var n int64
			err := stmt.QueryRowContext(ctx, args...).Scan(&n)
			return n, err
		})
	if err != nil {
		return 0, fmt.Errorf("bastion: count protections: %w", err)
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// History operations
// ──────────────────────────────────────────────────

func (s *Store) AppendHistory(ctx context.Context, e *history.Entry) error {
	m := historyToRow(e)
	key, err := database.Execute(ctx, s.db,
		"INSERT INTO "+s.history+" (protection_id, principal, action, detail, created) VALUES (?, ?, ?, ?, ?)",
		func(ctx context.Context, stmt *database.Statement) (int64, error) {
			return stmt.Insert(ctx, m.ProtectionID, m.Principal, m.Action, m.Detail, m.Created)
		},
		database.WithGeneratedKeys("id"))
	if err != nil {
		return fmt.Errorf("bastion: append history: %w", err)
	}
	e.ID = key
	return nil
}

func (s *Store) ListHistory(ctx context.Context, filter *history.QueryFilter) ([]*history.Entry, error) {
	var clauses []string
	var args []any
	if filter != nil {
		if !filter.ProtectionID.IsNil() {
			clauses = append(clauses, "protection_id = ?")
			args = append(args, filter.ProtectionID.String())
		}
		if filter.Principal != "" {
			clauses = append(clauses, "LOWER(principal) = LOWER(?)")
			args = append(args, filter.Principal)
		}
		if filter.Action != "" {
			clauses = append(clauses, "action = ?")
			args = append(args, string(filter.Action))
		}
		if filter.After != nil {
			clauses = append(clauses, "created > ?")
			args = append(args, filter.After.Unix())
		}
		if filter.Before != nil {
			clauses = append(clauses, "created < ?")
			args = append(args, filter.Before.Unix())
		}
	}
	query := "SELECT id, protection_id, principal, action, detail, created FROM " + s.history
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id DESC"
	if filter != nil {
		query += s.page(filter.Limit, filter.Offset)
	}

	models, err := database.Execute(ctx, s.db, query, func(ctx context.Context, stmt *database.Statement) ([]historyRow, error) {
		rs, err := stmt.QueryContext(ctx, args...)
		if err != nil {
			return nil, err
		}
		defer rs.Close()
		var out []historyRow
		for rs.Next() {
			var m historyRow
			if err := rs.Scan(&m.ID, &m.ProtectionID, &m.Principal, &m.Action, &m.Detail, &m.Created); err != nil {
				return nil, err
			}
			out = append(out, m)
		}
		return out, rs.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("bastion: list history: %w", err)
	}
	result := make([]*history.Entry, len(models))
	for i := range models {
		e, err := historyFromRow(&models[i])
		if err != nil {
			return nil, fmt.Errorf("bastion: list history: %w", err)
		}
		result[i] = e
	}
	return result, nil
}

func (s *Store) PurgeHistory(ctx context.Context, before time.Time) (int64, error) {
	res, err := database.Exec(ctx, s.db, "DELETE FROM "+s.history+" WHERE created < ?", []any{before.Unix()})
	if err != nil {
		return 0, fmt.Errorf("bastion: purge history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("bastion: purge history: %w", err)
	}
	return n, nil
}
