// Package database is the relational persistence layer: a pooled connection
// to one configured backend, a TTL statement cache, and a query executor
// that routes failures to error handlers.
//
// Supported backends are SQLite (modernc.org/sqlite, file addressed) and
// PostgreSQL (pgx, host addressed). The none backend represents an
// unconfigured database; connecting to it fails without side effects.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
)

// Option configures a Database.
type Option func(*Database)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(d *Database) { d.logger = l } }

// WithFatalHandler sets the sink that receives every error produced by the
// default error handler.
func WithFatalHandler(fn func(error)) Option { return func(d *Database) { d.onFatal = fn } }

// Database owns the connection pool and statement cache of one backend.
type Database struct {
	backend Backend
	cfg     Configuration
	logger  *slog.Logger
	onFatal func(error)

	prefix    string
	poolSize  int
	timeout   time.Duration
	keepalive time.Duration
	useCache  atomic.Bool

	cache *StatementCache
	stats *statistics

	// connectMu serialises Connect and Dispose.
	connectMu sync.Mutex
	mu        sync.RWMutex
	db        *sql.DB
	connected atomic.Bool
	stop      chan struct{}
	wg        sync.WaitGroup
}

// New creates an unconnected Database for backend.
func New(backend Backend, cfg Configuration, opts ...Option) *Database {
	if cfg == nil {
		cfg = StaticConfig{}
	}
	d := &Database{
		backend:   backend,
		cfg:       cfg,
		logger:    slog.Default(),
		prefix:    cfg.GetString(KeyPrefix, DefaultPrefix),
		poolSize:  intValue(cfg, KeyPoolSize, DefaultPoolSize),
		timeout:   durationValue(cfg, KeyConnectionTimeout, DefaultConnectionTimeout),
		keepalive: durationValue(cfg, KeyKeepalive, 0),
		cache:     NewStatementCache(durationValue(cfg, KeyStatementTTL, DefaultStatementTTL)),
		stats:     newStatistics(),
	}
	d.useCache.Store(boolValue(cfg, KeyStatementCache, true))
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Open resolves the backend from the database.adapter key and creates a
// Database for it.
func Open(cfg Configuration, opts ...Option) *Database {
	if cfg == nil {
		cfg = StaticConfig{}
	}
	return New(MatchBackend(cfg.GetString(KeyAdapter, "none")), cfg, opts...)
}

// Backend returns the configured backend.
func (d *Database) Backend() Backend { return d.backend }

// Prefix returns the table name prefix.
func (d *Database) Prefix() string { return d.prefix }

// Table returns name with the table prefix applied.
func (d *Database) Table(name string) string { return d.prefix + name }

// IsConnected reports whether queries are currently accepted.
func (d *Database) IsConnected() bool { return d.connected.Load() }

// UseStatementCache reports whether statements are cached by default.
func (d *Database) UseStatementCache() bool { return d.useCache.Load() }

// SetUseStatementCache toggles default statement caching.
func (d *Database) SetUseStatementCache(v bool) { d.useCache.Store(v) }

// StatementCache returns the statement cache.
func (d *Database) StatementCache() *StatementCache { return d.cache }

// Logger returns the logger.
func (d *Database) Logger() *slog.Logger { return d.logger }

// Connect opens the pool and verifies the backend with a trivial query.
// Failures are logged with the backend error code and reported as false.
// Concurrent callers share one pool.
func (d *Database) Connect(ctx context.Context) bool {
	d.connectMu.Lock()
	defer d.connectMu.Unlock()
	if d.IsConnected() {
		return true
	}
	if !d.backend.Configured() {
		d.logger.Error("invalid database backend", "backend", d.backend.Name)
		return false
	}

	dsn, err := d.backend.DSN(d.cfg)
	if err != nil {
		d.logger.Error("failed to build connection string", "backend", d.backend.Name, "error", err)
		return false
	}
	if !d.backend.Networked {
		if dir := filepath.Dir(sqlitePath(d.cfg)); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				d.logger.Error("failed to create database directory", "dir", dir, "error", err)
				return false
			}
		}
	}

	db, err := sql.Open(d.backend.Driver, dsn)
	if err != nil {
		d.logger.Error("failed to open database", "backend", d.backend.Name, "error", err)
		return false
	}
	db.SetMaxOpenConns(d.poolSize)
	db.SetMaxIdleConns(d.poolSize)

	pingCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if _, err := db.ExecContext(pingCtx, "SELECT 1"); err != nil {
		d.logger.Error("failed to connect",
			"backend", d.backend.Name,
			"code", ErrorCode(err),
			"error", err,
		)
		_ = db.Close()
		return false
	}

	d.mu.Lock()
	d.db = db
	d.stop = make(chan struct{})
	d.connected.Store(true)
	d.mu.Unlock()

	d.wg.Add(1)
	go d.janitor(d.stop)

	d.logger.Info("database connected",
		"backend", d.backend.Name,
		"pool_size", d.poolSize,
		"prefix", d.prefix,
	)
	return true
}

// pool returns the live *sql.DB or ErrNotConnected.
func (d *Database) pool() (*sql.DB, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.db == nil || !d.connected.Load() {
		return nil, ErrNotConnected
	}
	return d.db, nil
}

// DB returns the underlying pool, or nil when disconnected.
func (d *Database) DB() *sql.DB {
	db, _ := d.pool()
	return db
}

// Conn acquires a dedicated connection, waiting at most the configured
// timeout. The caller must Close it to return it to the pool.
func (d *Database) Conn(ctx context.Context) (*sql.Conn, error) {
	if !d.backend.Configured() {
		return nil, &ConnectionError{Backend: d.backend.Name, Err: ErrNotConfigured}
	}
	db, err := d.pool()
	if err != nil {
		return nil, &ConnectionError{Backend: d.backend.Name, Err: err}
	}
	acquireCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	conn, err := db.Conn(acquireCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = ErrPoolTimeout
		}
		return nil, &ConnectionError{Backend: d.backend.Name, Err: err}
	}
	return conn, nil
}

// Ping round-trips to the backend.
func (d *Database) Ping(ctx context.Context) error {
	db, err := d.pool()
	if err != nil {
		return err
	}
	pingCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return &ConnectionError{Backend: d.backend.Name, Err: err}
	}
	return nil
}

// Dispose closes every cached statement and pooled connection. It is safe
// to call more than once.
func (d *Database) Dispose() {
	d.connectMu.Lock()
	defer d.connectMu.Unlock()

	d.mu.Lock()
	db := d.db
	stop := d.stop
	d.db = nil
	d.stop = nil
	d.connected.Store(false)
	d.mu.Unlock()

	if stop != nil {
		close(stop)
		d.wg.Wait()
	}
	d.cache.Purge()
	if db != nil {
		if err := db.Close(); err != nil {
			d.logger.Warn("closing database pool", "error", err)
		}
		d.logger.Info("database disposed", "backend", d.backend.Name)
	}
}

// Stats returns a snapshot of query and pool activity.
func (d *Database) Stats() Stats {
	s := Stats{
		Backend:          d.backend.Name,
		Connected:        d.IsConnected(),
		Queries:          d.stats.queries.Load(),
		QueriesPerSecond: d.stats.qps(),
		Prepares:         d.stats.prepares.Load(),
		Failures:         d.stats.failures.Load(),
		Dropped:          d.stats.dropped.Load(),
		StatementCache:   d.cache.Stats(),
	}
	if db := d.DB(); db != nil {
		ps := db.Stats()
		s.OpenConnections = ps.OpenConnections
		s.InUse = ps.InUse
		s.Idle = ps.Idle
		s.WaitCount = ps.WaitCount
	}
	return s
}

// janitor sweeps expired statements, feeds the query rate and keeps
// networked connections alive until stop closes.
func (d *Database) janitor(stop <-chan struct{}) {
	defer d.wg.Done()

	sweepEvery := d.cache.TTL() / 5
	if sweepEvery < time.Second {
		sweepEvery = time.Second
	}
	sweep := time.NewTicker(sweepEvery)
	defer sweep.Stop()
	rate := time.NewTicker(time.Second)
	defer rate.Stop()

	var keepalive <-chan time.Time
	if d.backend.Networked && d.keepalive > 0 {
		t := time.NewTicker(d.keepalive)
		defer t.Stop()
		keepalive = t.C
	}

	for {
		select {
		case <-stop:
			return
		case <-sweep.C:
			if n := d.cache.Sweep(); n > 0 {
				d.logger.Debug("evicted expired statements", "count", n)
			}
		case <-rate.C:
			d.stats.tick()
		case <-keepalive:
			if err := d.Ping(context.Background()); err != nil {
				d.logger.Warn("database keepalive failed", "backend", d.backend.Name, "error", err)
			}
		}
	}
}

// statement returns a prepared statement for query, from the cache when
// allowed. The caller must release it.
func (d *Database) statement(ctx context.Context, query string, cfg *execConfig) (*Statement, error) {
	text := d.backend.Rebind(query)
	keys := KeysUnsupported
	if cfg.keyColumn != "" {
		keys = d.backend.Keys
		if keys == KeysReturning {
			text = strings.TrimRight(strings.TrimSpace(text), ";") + " RETURNING " + cfg.keyColumn
		}
	}

	if cfg.useCache {
		if s := d.cache.Get(text); s != nil {
			return s, nil
		}
	}

	db, err := d.pool()
	if err != nil {
		return nil, err
	}
	prepCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	raw, err := db.PrepareContext(prepCtx, text)
	if err != nil {
		return nil, &QueryError{Op: "prepare", SQL: text, Err: err}
	}
	d.stats.addPrepare()

	s := newStatement(text, raw, keys, cfg.keyColumn, time.Now())
	s.acquire()
	if cfg.useCache {
		d.cache.Put(text, s)
	} else {
		s.retire()
	}
	return s, nil
}

func (d *Database) String() string {
	return fmt.Sprintf("database(%s, connected=%t)", d.backend.Name, d.IsConnected())
}
