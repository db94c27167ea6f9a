package database

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
)

var (
	// ErrNotConnected is returned when a query is issued while the
	// database is not connected. The query is dropped without reaching the
	// error handler.
	ErrNotConnected = errors.New("database: not connected")

	// ErrNotConfigured is returned for the none backend.
	ErrNotConfigured = errors.New("database: no backend configured")

	// ErrPoolTimeout is returned when no connection frees up in time.
	ErrPoolTimeout = errors.New("database: timed out acquiring connection")

	// ErrNoGeneratedKeys is returned by Statement.Insert when the statement
	// was not prepared for generated keys.
	ErrNoGeneratedKeys = errors.New("database: statement does not return generated keys")
)

// ConnectionError reports an unreachable backend or an exhausted pool.
type ConnectionError struct {
	Backend string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("database: %s connection: %v", e.Backend, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// QueryError reports a failed prepare, execution or handler.
type QueryError struct {
	Op  string
	SQL string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("database: %s %q: %v", e.Op, e.SQL, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// FatalError is what the default error handler turns query failures into.
// It aborts the calling operation; the process keeps running.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return "database: fatal: " + e.Err.Error()
}

func (e *FatalError) Unwrap() error { return e.Err }

// ErrorCode extracts the backend-reported error code, or "" if there is none.
func ErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return strconv.Itoa(liteErr.Code())
	}
	return ""
}
