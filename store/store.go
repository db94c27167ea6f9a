// Package store defines the aggregate persistence interface. The protection
// and history subsystems each define their own store interface; the
// composite Store composes them. Backends: sqlstore (SQLite and PostgreSQL
// through the database package) and memory.
package store

import (
	"context"

	"github.com/xraph/bastion/history"
	"github.com/xraph/bastion/protection"
)

// Store is the aggregate persistence interface.
type Store interface {
	protection.Store
	history.Store

	// Migrate creates any missing tables.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases the backend.
	Close() error
}

// Reconnector is implemented by stores whose backend can be unreachable,
// such as a database that failed to connect at startup.
type Reconnector interface {
	Connected() bool
	Reconnect(ctx context.Context) error
}
