package database

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
	"time"
)

// Statement is a prepared statement handed to query handlers.
//
// Statements are reference counted: the cache may evict a statement while a
// handler still uses it, in which case the underlying handle closes when the
// last user releases it.
type Statement struct {
	query   string
	stmt    *sql.Stmt
	keys    KeyStyle
	keyCol  string
	created time.Time

	mu      sync.Mutex
	refs    int
	retired bool
	closed  bool
}

func newStatement(query string, stmt *sql.Stmt, keys KeyStyle, keyCol string, created time.Time) *Statement {
	return &Statement{query: query, stmt: stmt, keys: keys, keyCol: keyCol, created: created}
}

// SQL returns the prepared SQL text.
func (s *Statement) SQL() string { return s.query }

// Prepared returns when the statement was prepared.
func (s *Statement) Prepared() time.Time { return s.created }

// ExecContext executes the statement with args.
func (s *Statement) ExecContext(ctx context.Context, args ...any) (sql.Result, error) {
	return s.stmt.ExecContext(ctx, args...)
}

// QueryContext runs the statement and returns its rows.
func (s *Statement) QueryContext(ctx context.Context, args ...any) (*sql.Rows, error) {
	return s.stmt.QueryContext(ctx, args...)
}

// QueryRowContext runs the statement and returns at most one row.
func (s *Statement) QueryRowContext(ctx context.Context, args ...any) *sql.Row {
	return s.stmt.QueryRowContext(ctx, args...)
}

// Insert executes the statement and returns the generated key. The
// statement must have been prepared with WithGeneratedKeys.
func (s *Statement) Insert(ctx context.Context, args ...any) (int64, error) {
	switch s.keys {
	case KeysReturning:
		var key int64
		if err := s.stmt.QueryRowContext(ctx, args...).Scan(&key); err != nil {
			return 0, err
		}
		return key, nil
	case KeysLastInsertID:
		res, err := s.stmt.ExecContext(ctx, args...)
		if err != nil {
			return 0, err
		}
		return res.LastInsertId()
	default:
		return 0, ErrNoGeneratedKeys
	}
}

// Close closes the underlying handle. A closed statement is never handed
// out again by the cache.
func (s *Statement) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.stmt == nil {
		return nil
	}
	return s.stmt.Close()
}

// IsClosed reports whether the handle has been closed.
func (s *Statement) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// acquire registers a user. It fails once the statement is retired or closed.
func (s *Statement) acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retired || s.closed {
		return false
	}
	s.refs++
	return true
}

// release drops a user and closes a retired statement once unused.
func (s *Statement) release() {
	s.mu.Lock()
	s.refs--
	closeNow := s.retired && s.refs <= 0 && !s.closed
	if closeNow {
		s.closed = true
	}
	s.mu.Unlock()
	if closeNow {
		closeQuietly(s.stmt)
	}
}

// retire stops new users and closes the handle when the current ones finish.
func (s *Statement) retire() {
	s.mu.Lock()
	s.retired = true
	closeNow := s.refs <= 0 && !s.closed
	if closeNow {
		s.closed = true
	}
	s.mu.Unlock()
	if closeNow {
		closeQuietly(s.stmt)
	}
}

// closeQuietly closes a handle, ignoring failures and panics.
func closeQuietly(stmt *sql.Stmt) {
	if stmt == nil {
		return
	}
	defer func() { _ = recover() }()
	_ = stmt.Close()
}

// CacheStats is a snapshot of statement cache counters.
type CacheStats struct {
	Size      int   `json:"size"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

type cacheEntry struct {
	stmt    *Statement
	written time.Time
}

// StatementCache maps SQL text to prepared statements. Entries expire a
// fixed time after they were written; expired entries are closed.
type StatementCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// NewStatementCache creates a cache whose entries live for ttl.
func NewStatementCache(ttl time.Duration) *StatementCache {
	if ttl <= 0 {
		ttl = DefaultStatementTTL
	}
	return &StatementCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// TTL returns the entry lifetime.
func (c *StatementCache) TTL() time.Duration { return c.ttl }

// Get returns an acquired statement for query, or nil on a miss. Expired
// and closed entries count as misses and are dropped. The caller must
// release the returned statement.
func (c *StatementCache) Get(query string) *Statement {
	c.mu.Lock()
	e, ok := c.entries[query]
	if ok && c.now().Sub(e.written) >= c.ttl {
		delete(c.entries, query)
		c.mu.Unlock()
		c.evictions.Add(1)
		e.stmt.retire()
		c.misses.Add(1)
		return nil
	}
	c.mu.Unlock()

	if !ok || !e.stmt.acquire() {
		if ok {
			c.drop(query, e.stmt)
		}
		c.misses.Add(1)
		return nil
	}
	c.hits.Add(1)
	return e.stmt
}

// Put stores stmt under query. An existing entry is replaced and retired.
func (c *StatementCache) Put(query string, stmt *Statement) {
	c.mu.Lock()
	old, ok := c.entries[query]
	c.entries[query] = cacheEntry{stmt: stmt, written: c.now()}
	c.mu.Unlock()
	if ok && old.stmt != stmt {
		old.stmt.retire()
	}
}

// drop removes query if it still maps to stmt.
func (c *StatementCache) drop(query string, stmt *Statement) {
	c.mu.Lock()
	if e, ok := c.entries[query]; ok && e.stmt == stmt {
		delete(c.entries, query)
	}
	c.mu.Unlock()
}

// Sweep evicts expired entries and returns how many were removed.
func (c *StatementCache) Sweep() int {
	now := c.now()
	var expired []*Statement
	c.mu.Lock()
	for k, e := range c.entries {
		if now.Sub(e.written) >= c.ttl {
			delete(c.entries, k)
			expired = append(expired, e.stmt)
		}
	}
	c.mu.Unlock()
	for _, s := range expired {
		s.retire()
	}
	c.evictions.Add(int64(len(expired)))
	return len(expired)
}

// Purge evicts every entry.
func (c *StatementCache) Purge() {
	c.mu.Lock()
	entries := c.entries
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
	for _, e := range entries {
		e.stmt.retire()
	}
	c.evictions.Add(int64(len(entries)))
}

// Len returns the number of cached statements.
func (c *StatementCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns the cache counters.
func (c *StatementCache) Stats() CacheStats {
	return CacheStats{
		Size:      c.Len(),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}
