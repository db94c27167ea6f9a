package database

import (
	"context"
	"fmt"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"
)

// Migrations returns the grove migration group creating the Bastion tables
// for kind with the given table prefix. Hosts that manage their schema with
// grove run this group instead of Database.Load.
func Migrations(kind Kind, prefix string) *migrate.Group {
	group := migrate.NewGroup("bastion")
	for _, step := range schemaSteps() {
		up := step.statements(kind, prefix, false)
		down := step.statements(kind, prefix, true)
		group.MustRegister(&migrate.Migration{
			Name:    step.name,
			Version: step.version,
			Up: func(ctx context.Context, exec migrate.Executor) error {
				return runAll(ctx, exec, up)
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				return runAll(ctx, exec, down)
			},
		})
	}
	return group
}

func runAll(ctx context.Context, exec migrate.Executor, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := exec.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// MigrateGrove applies Migrations through the grove orchestrator on a
// host-owned grove database.
func MigrateGrove(ctx context.Context, db *grove.DB, kind Kind, prefix string) error {
	group := Migrations(kind, prefix)
	switch kind {
	case KindSQLite:
		executor, err := migrate.NewExecutorFor(sqlitedriver.Unwrap(db))
		if err != nil {
			return fmt.Errorf("database: create migration executor: %w", err)
		}
		if _, err := migrate.NewOrchestrator(executor, group).Migrate(ctx); err != nil {
			return fmt.Errorf("database: migration failed: %w", err)
		}
	case KindPostgres:
		executor, err := migrate.NewExecutorFor(pgdriver.Unwrap(db))
		if err != nil {
			return fmt.Errorf("database: create migration executor: %w", err)
		}
		if _, err := migrate.NewOrchestrator(executor, group).Migrate(ctx); err != nil {
			return fmt.Errorf("database: migration failed: %w", err)
		}
	default:
		return ErrNotConfigured
	}
	return nil
}
