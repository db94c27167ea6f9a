package bastion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xraph/bastion/access"
	"github.com/xraph/bastion/database"
	"github.com/xraph/bastion/history"
	"github.com/xraph/bastion/plugin"
	"github.com/xraph/bastion/protection"
	"github.com/xraph/bastion/savequeue"
	"github.com/xraph/bastion/store"
)

// Engine is the central protection engine. It owns the live protection
// entities, routes their changes to storage and resolves access.
type Engine struct {
	store   store.Store
	cache   Cache
	queue   *savequeue.Queue
	plugins *plugin.Registry
	logger  *slog.Logger
	config  Config

	// protectMu serialises the occupied-location check with creation.
	protectMu sync.Mutex

	// reconnectMu serialises reconnect attempts.
	reconnectMu    sync.Mutex
	pendingMigrate atomic.Bool
	stopWatch      context.CancelFunc
	watchWG        sync.WaitGroup
}

// NewEngine creates a new Bastion engine with the given options.
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{
		logger: slog.Default(),
		config: DefaultConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.store == nil {
		return nil, ErrStoreRequired
	}
	e.queue = savequeue.New(
		savequeue.WithLogger(e.logger),
		savequeue.WithInterval(e.config.SaveInterval),
		savequeue.WithFailureHandler(e.onSaveFailed),
	)
	return e, nil
}

// Store returns the underlying composite store.
func (e *Engine) Store() store.Store { return e.store }

// Cache returns the protection cache (may be nil).
func (e *Engine) Cache() Cache { return e.cache }

// Plugins returns the plugin registry (may be nil).
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Queue returns the save queue.
func (e *Engine) Queue() *savequeue.Queue { return e.queue }

// Start creates missing tables and starts the save queue.
//
// An unreachable store does not fail Start. Changes then stay in memory,
// dirty, until a reconnect succeeds; the engine retries every
// ReconnectInterval and on each Save.
func (e *Engine) Start(ctx context.Context) error {
	if !e.config.SkipMigrate {
		if err := e.store.Migrate(ctx); err != nil {
			if !isUnreachable(err) {
				return fmt.Errorf("bastion: start: %w", err)
			}
			e.logger.Warn("bastion: store unreachable, persistence paused", "error", err)
			e.pendingMigrate.Store(true)
		}
	}
	e.queue.Start()
	if rc, ok := e.store.(store.Reconnector); ok {
		watchCtx, cancel := context.WithCancel(context.Background())
		e.stopWatch = cancel
		e.watchWG.Add(1)
		go e.watch(watchCtx, rc)
	}
	return nil
}

// isUnreachable reports whether err means the store could not be reached,
// as opposed to a failed query.
func isUnreachable(err error) bool {
	var cerr *database.ConnectionError
	return errors.Is(err, database.ErrNotConnected) || errors.As(err, &cerr)
}

// watch retries an unreachable store and saves what piled up once it is
// back.
func (e *Engine) watch(ctx context.Context, rc store.Reconnector) {
	defer e.watchWG.Done()

	ticker := time.NewTicker(e.config.reconnectInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if rc.Connected() && !e.pendingMigrate.Load() {
			continue
		}
		if err := e.reconnect(ctx, rc); err != nil {
			e.logger.Debug("bastion: reconnect failed", "error", err)
			continue
		}
		if err := e.queue.Flush(ctx); err != nil {
			e.logger.Warn("bastion: flush after reconnect", "error", err)
		}
	}
}

// reconnect connects rc and creates missing tables if Start could not.
func (e *Engine) reconnect(ctx context.Context, rc store.Reconnector) error {
	e.reconnectMu.Lock()
	defer e.reconnectMu.Unlock()

	if !rc.Connected() {
		if err := rc.Reconnect(ctx); err != nil {
			return err
		}
		e.logger.Info("bastion: store reconnected", "pending", e.queue.Len(), "parked", e.queue.Stats().Parked)
	}
	if e.pendingMigrate.Load() {
		if err := e.store.Migrate(ctx); err != nil {
			return fmt.Errorf("bastion: migrate after reconnect: %w", err)
		}
		e.pendingMigrate.Store(false)
	}
	return nil
}

// Stop drains the save queue, notifies plugins and closes the store.
func (e *Engine) Stop(ctx context.Context) error {
	if e.stopWatch != nil {
		e.stopWatch()
		e.watchWG.Wait()
	}
	drainCtx, cancel := context.WithTimeout(ctx, e.config.shutdownTimeout())
	defer cancel()
	err := e.queue.Close(drainCtx)
	if err != nil {
		e.logger.Error("bastion: save queue drain incomplete", "pending", e.queue.Len(), "error", err)
	}
	if e.plugins != nil {
		e.plugins.EmitShutdown(ctx)
	}
	if cerr := e.store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// ReportFatal forwards an escalated database error to Fatal plugins. Pass
// it to database.WithFatalHandler.
func (e *Engine) ReportFatal(err error) {
	e.logger.Error("bastion: fatal database error", "error", err)
	if e.plugins != nil {
		e.plugins.EmitFatal(context.Background(), err)
	}
}

func (e *Engine) onSaveFailed(s savequeue.Savable, err error) {
	if e.plugins != nil {
		e.plugins.EmitSaveFailed(context.Background(), s, err)
	}
}

// persist writes s behind when a cache keeps the live entity resident, and
// immediately otherwise. A save that finds the store unreachable is handed
// to the queue so the entity is written once the store is back.
func (e *Engine) persist(ctx context.Context, s savequeue.Savable) error {
	if e.cache != nil && e.queue.Add(s) {
		return nil
	}
	err := s.SaveImmediately(ctx)
	if err != nil && isUnreachable(err) && e.queue.Add(s) {
		e.logger.Warn("bastion: store unreachable, save deferred", "error", err)
		return nil
	}
	return err
}

func (e *Engine) record(ctx context.Context, protID ProtectionID, action history.Action, detail string) {
	if !e.config.historyEnabled() {
		return
	}
	ev := history.NewEvent(e.store, history.Entry{
		ProtectionID: protID,
		Principal:    ActorFromContext(ctx),
		Action:       action,
		Detail:       detail,
	})
	if err := e.persist(ctx, ev); err != nil {
		e.logger.Warn("bastion: history not recorded", "protection", protID.String(), "action", action, "error", err)
	}
}

// ──────────────────────────────────────────────────
// Lookup
// ──────────────────────────────────────────────────

// Get returns the live protection with the given ID.
func (e *Engine) Get(ctx context.Context, protID ProtectionID) (*protection.Protection, error) {
	if e.cache != nil {
		if p, ok := e.cache.Get(ctx, protID); ok && p.State() != protection.StateRemoved {
			return p, nil
		}
	}
	rec, err := e.store.GetProtection(ctx, protID)
	if err != nil {
		return nil, err
	}
	return e.adopt(ctx, rec), nil
}

// Find returns the live protection at loc.
func (e *Engine) Find(ctx context.Context, loc protection.Location) (*protection.Protection, error) {
	if e.cache != nil {
		if p, ok := e.cache.GetAt(ctx, loc); ok && p.State() != protection.StateRemoved {
			return p, nil
		}
	}
	rec, err := e.store.GetProtectionAt(ctx, loc)
	if err != nil {
		return nil, err
	}
	return e.adopt(ctx, rec), nil
}

// adopt restores rec and caches it.
func (e *Engine) adopt(ctx context.Context, rec *protection.Record) *protection.Protection {
	p := protection.Restore(e.store, rec)
	if e.cache != nil {
		e.cache.Set(ctx, p)
	}
	return p
}

// List flushes pending changes and returns the stored protections matching
// filter with the total match count.
func (e *Engine) List(ctx context.Context, filter *protection.ListFilter) ([]*protection.Record, int64, error) {
	if err := e.Save(ctx); err != nil {
		return nil, 0, err
	}
	recs, err := e.store.ListProtections(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	var countFilter *protection.ListFilter
	if filter != nil {
		countFilter = &protection.ListFilter{Owner: filter.Owner, World: filter.World}
	}
	total, err := e.store.CountProtections(ctx, countFilter)
	if err != nil {
		return nil, 0, err
	}
	return recs, total, nil
}

// ──────────────────────────────────────────────────
// Mutations
// ──────────────────────────────────────────────────

// Protect registers a new protection at loc owned by owner.
func (e *Engine) Protect(ctx context.Context, owner string, kind protection.Kind, loc protection.Location) (*protection.Protection, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, ErrOwnerRequired
	}
	kind, err := protection.ParseKind(string(kind))
	if err != nil {
		return nil, err
	}

	e.protectMu.Lock()
	defer e.protectMu.Unlock()

	// While the store is unreachable only the cache is consulted.
	existing, err := e.Find(ctx, loc)
	switch {
	case err == nil:
		return nil, fmt.Errorf("%w: %s by %s", ErrAlreadyProtected, loc, existing.Owner())
	case errors.Is(err, ErrProtectionNotFound):
	case isUnreachable(err) && e.cache != nil:
		e.logger.Warn("bastion: store unreachable, protecting from cache", "location", loc.String())
	default:
		return nil, fmt.Errorf("bastion: protect: %w", err)
	}

	p := protection.New(e.store, owner, kind, loc)
	if e.cache != nil {
		e.cache.Set(ctx, p)
	}
	if err := e.persist(ctx, p); err != nil {
		if e.cache != nil {
			e.cache.Invalidate(ctx, p)
		}
		return nil, fmt.Errorf("bastion: protect: %w", err)
	}

	e.record(ctx, p.ID(), history.ActionCreated, string(kind))
	if e.plugins != nil {
		e.plugins.EmitProtectionCreated(ctx, p)
	}
	e.logger.Debug("protection created", "id", p.ID().String(), "owner", owner, "location", loc.String())
	return p, nil
}

// Unprotect removes a protection and its roles from storage immediately.
func (e *Engine) Unprotect(ctx context.Context, protID ProtectionID) error {
	p, err := e.Get(ctx, protID)
	if err != nil {
		return err
	}
	if err := p.Remove(ctx); err != nil {
		return fmt.Errorf("bastion: unprotect: %w", err)
	}
	if e.cache != nil {
		e.cache.Invalidate(ctx, p)
	}

	e.record(ctx, protID, history.ActionRemoved, p.Owner())
	if e.plugins != nil {
		e.plugins.EmitProtectionRemoved(ctx, protID)
	}
	return nil
}

// Grant gives the principals matched by (typ, name) the level on a
// protection. Granting an existing role changes its level.
func (e *Engine) Grant(ctx context.Context, protID ProtectionID, typ protection.RoleType, name string, level access.Level) (*protection.Role, error) {
	if _, ok := protection.LookupType(typ); !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRoleType, int(typ))
	}
	if !level.Valid() || level == access.None {
		return nil, fmt.Errorf("%w: %s", ErrInvalidLevel, level)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("bastion: grant: role name is required")
	}

	p, err := e.Get(ctx, protID)
	if err != nil {
		return nil, err
	}
	r := p.Grant(typ, name, level)
	if r == nil {
		return nil, fmt.Errorf("protection %s: %w", protID, ErrProtectionNotFound)
	}
	if err := e.persist(ctx, p); err != nil {
		return nil, fmt.Errorf("bastion: grant: %w", err)
	}

	e.record(ctx, protID, history.ActionGranted, fmt.Sprintf("%s:%s=%s", typ, displayName(r), r.Access()))
	if e.plugins != nil {
		e.plugins.EmitRoleGranted(ctx, r)
	}
	return r, nil
}

// Revoke removes the role (typ, name) from a protection. Password roles
// may be named by plaintext or stored digest.
func (e *Engine) Revoke(ctx context.Context, protID ProtectionID, typ protection.RoleType, name string) error {
	p, err := e.Get(ctx, protID)
	if err != nil {
		return err
	}
	if !p.Revoke(typ, name) {
		return fmt.Errorf("%w: %s:%s", ErrRoleNotFound, typ, name)
	}
	if err := e.persist(ctx, p); err != nil {
		return fmt.Errorf("bastion: revoke: %w", err)
	}

	detail := fmt.Sprintf("%s:%s", typ, name)
	if typ == protection.PasswordRole {
		detail = typ.String() + ":********"
	}
	e.record(ctx, protID, history.ActionRevoked, detail)
	if e.plugins != nil {
		e.plugins.EmitRoleRevoked(ctx, protID, typ, name)
	}
	return nil
}

// Transfer hands a protection to a new owner.
func (e *Engine) Transfer(ctx context.Context, protID ProtectionID, owner string) (*protection.Protection, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, ErrOwnerRequired
	}
	p, err := e.Get(ctx, protID)
	if err != nil {
		return nil, err
	}
	previous := p.Owner()
	if previous == owner {
		return p, nil
	}
	p.SetOwner(owner)
	if err := e.persist(ctx, p); err != nil {
		return nil, fmt.Errorf("bastion: transfer: %w", err)
	}

	e.record(ctx, protID, history.ActionTransferred, previous+" -> "+owner)
	if e.plugins != nil {
		e.plugins.EmitProtectionTransferred(ctx, p, previous)
	}
	return p, nil
}

// Save writes every pending change now, reconnecting the store first if
// it is unreachable. Changes that still cannot be written stay pending.
func (e *Engine) Save(ctx context.Context) error {
	if rc, ok := e.store.(store.Reconnector); ok && (!rc.Connected() || e.pendingMigrate.Load()) {
		if err := e.reconnect(ctx, rc); err != nil {
			e.logger.Warn("bastion: store unreachable, changes kept", "pending", e.queue.Len(), "error", err)
		}
	}
	return e.queue.Flush(ctx)
}

// ──────────────────────────────────────────────────
// Access
// ──────────────────────────────────────────────────

// Check resolves the principal's access at the request location. This is
// the hot path: with a warm cache it never touches storage. Engines built
// without WithCache load the protection from storage on every check, so
// hosts that check from a game loop should configure one. Unprotected
// locations allow every action.
func (e *Engine) Check(ctx context.Context, req *CheckRequest) (*CheckResult, error) {
	start := time.Now()

	if e.plugins != nil {
		e.plugins.EmitBeforeCheck(ctx, req)
	}

	result := &CheckResult{}
	p, err := e.Find(ctx, req.Location)
	switch {
	case err == nil:
		result.Decision = ResolveAccess(req.Principal, p, req.Action)
		result.Protected = true
		result.ProtectionID = p.ID()
		result.Owner = p.Owner()
	case errors.Is(err, ErrProtectionNotFound):
		result.Decision = unprotectedDecision(req.Action)
	default:
		return nil, fmt.Errorf("bastion check: %w", err)
	}
	result.EvalTimeNs = time.Since(start).Nanoseconds()

	if e.plugins != nil {
		e.plugins.EmitAfterCheck(ctx, req, result.Decision)
	}
	return result, nil
}

// Enforce returns an error if the access check is denied.
func (e *Engine) Enforce(ctx context.Context, req *CheckRequest) error {
	result, err := e.Check(ctx, req)
	if err != nil {
		return err
	}
	if !result.Allowed {
		return fmt.Errorf("%w: %s needs %s, has %s (%s)",
			ErrAccessDenied, result.Action, result.Required, result.Level, result.Reason)
	}
	return nil
}

// Can is a shorthand for a simple access check.
func (e *Engine) Can(ctx context.Context, principal access.Principal, loc protection.Location, action access.Action) (bool, error) {
	result, err := e.Check(ctx, &CheckRequest{Principal: principal, Location: loc, Action: action})
	if err != nil {
		return false, err
	}
	return result.Allowed, nil
}

// ──────────────────────────────────────────────────
// History & stats
// ──────────────────────────────────────────────────

// History flushes pending changes and returns a protection's history,
// newest first.
func (e *Engine) History(ctx context.Context, protID ProtectionID, limit, offset int) ([]*history.Entry, error) {
	if err := e.Save(ctx); err != nil {
		return nil, err
	}
	return e.store.ListHistory(ctx, &history.QueryFilter{ProtectionID: protID, Limit: limit, Offset: offset})
}

// Stats is a snapshot of engine activity.
type Stats struct {
	Protections int64           `json:"protections"`
	Cached      int             `json:"cached"`
	Queue       savequeue.Stats `json:"queue"`
	Database    *database.Stats `json:"database,omitempty"`
}

// Stats reports protection counts, cache and queue activity and, for
// relational stores, database statistics.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	n, err := e.store.CountProtections(ctx, nil)
	if err != nil {
		return Stats{}, err
	}
	s := Stats{Protections: n, Queue: e.queue.Stats()}
	if e.cache != nil {
		s.Cached = e.cache.Len()
	}
	if ds, ok := e.store.(interface{ Database() *database.Database }); ok {
		dbStats := ds.Database().Stats()
		s.Database = &dbStats
	}
	return s, nil
}
