package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Handler binds parameters, executes the statement and produces a result.
type Handler[T any] func(ctx context.Context, stmt *Statement) (T, error)

// ErrorHandler receives every prepare, execute or handler failure. The
// returned error is what Execute returns; nil swallows the failure.
type ErrorHandler func(err error) error

type execConfig struct {
	keyColumn string
	useCache  bool
	onError   ErrorHandler
}

// ExecOption configures a single Execute call.
type ExecOption func(*execConfig)

// WithGeneratedKeys prepares the statement so Statement.Insert returns the
// value generated for column.
func WithGeneratedKeys(column string) ExecOption {
	return func(c *execConfig) { c.keyColumn = column }
}

// WithoutStatementCache forces a fresh prepare that is closed after use.
func WithoutStatementCache() ExecOption {
	return func(c *execConfig) { c.useCache = false }
}

// WithErrorHandler replaces the default error handler for this call.
func WithErrorHandler(h ErrorHandler) ExecOption {
	return func(c *execConfig) { c.onError = h }
}

// LogErrors is an ErrorHandler that logs the failure and swallows it.
func (d *Database) LogErrors(err error) error {
	d.logger.Warn("query failed", "backend", d.backend.Name, "code", ErrorCode(err), "error", err)
	return nil
}

// escalate is the default error handler. It wraps the failure as fatal and
// forwards it to the fatal sink.
func (d *Database) escalate(err error) error {
	fatal := &FatalError{Err: err}
	d.logger.Error("query failed", "backend", d.backend.Name, "code", ErrorCode(err), "error", err)
	if d.onFatal != nil {
		d.onFatal(fatal)
	}
	return fatal
}

// Execute prepares query (or reuses a cached statement), hands it to
// handler and returns the handler's result.
//
// While disconnected it returns ErrNotConnected immediately without calling
// the handler, the error handler or touching the cache. All other failures
// go through the error handler, which defaults to escalation as a
// *FatalError. Each successful call counts as one query.
func Execute[T any](ctx context.Context, d *Database, query string, handler Handler[T], opts ...ExecOption) (T, error) {
	var zero T
	if !d.IsConnected() {
		d.stats.addDropped()
		return zero, ErrNotConnected
	}

	cfg := &execConfig{useCache: d.UseStatementCache(), onError: d.escalate}
	for _, opt := range opts {
		opt(cfg)
	}

	stmt, err := d.statement(ctx, query, cfg)
	if err != nil {
		d.stats.addFailure()
		return zero, cfg.onError(err)
	}
	defer stmt.release()

	result, err := runHandler(ctx, stmt, handler)
	if err != nil {
		d.stats.addFailure()
		return zero, cfg.onError(&QueryError{Op: "execute", SQL: stmt.SQL(), Err: err})
	}
	d.stats.addQuery()
	return result, nil
}

func runHandler[T any](ctx context.Context, stmt *Statement, handler Handler[T]) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, stmt)
}

// Exec runs a statement that returns no rows.
func Exec(ctx context.Context, d *Database, query string, args []any, opts ...ExecOption) (sql.Result, error) {
	return Execute(ctx, d, query, func(ctx context.Context, stmt *Statement) (sql.Result, error) {
		return stmt.ExecContext(ctx, args...)
	}, opts...)
}

// TryExec runs an uncached statement, logging and swallowing failures.
// It reports whether the statement succeeded.
func (d *Database) TryExec(ctx context.Context, query string) bool {
	failed := false
	_, err := Exec(ctx, d, query, nil,
		WithoutStatementCache(),
		WithErrorHandler(func(err error) error {
			failed = true
			d.logger.Debug("statement failed", "sql", query, "code", ErrorCode(err), "error", err)
			return nil
		}),
	)
	return err == nil && !failed
}

// AddColumn adds a column to a prefixed table.
func (d *Database) AddColumn(ctx context.Context, table, column, typ string) bool {
	return d.TryExec(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", d.Table(table), column, typ))
}

// DropColumn removes a column from a prefixed table.
func (d *Database) DropColumn(ctx context.Context, table, column string) bool {
	return d.TryExec(ctx, fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", d.Table(table), column))
}

// RenameTable renames a prefixed table.
func (d *Database) RenameTable(ctx context.Context, from, to string) bool {
	return d.TryExec(ctx, fmt.Sprintf("ALTER TABLE %s RENAME TO %s", d.Table(from), d.Table(to)))
}

// DropTable drops a prefixed table if it exists.
func (d *Database) DropTable(ctx context.Context, table string) bool {
	return d.TryExec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", d.Table(table)))
}
