// Package extension provides a Forge extension entry point for Bastion.
package extension

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/xraph/forge"
	"github.com/xraph/grove"
	"github.com/xraph/vessel"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/api"
	"github.com/xraph/bastion/cache"
	"github.com/xraph/bastion/database"
	"github.com/xraph/bastion/plugin"
	"github.com/xraph/bastion/store"
	"github.com/xraph/bastion/store/sqlstore"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "bastion"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Block protection persistence and access control"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Bastion as a Forge extension.
type Extension struct {
	config      Config
	eng         *bastion.Engine
	apiHandler  *api.API
	logger      *slog.Logger
	store       store.Store
	bastionOpts []bastion.Option
	plugins     []plugin.Plugin

	// db is set when the extension opened the database itself.
	db  *database.Database
	app forge.App
}

// New creates a Bastion Forge extension with the given options.
func New(opts ...ExtOption) *Extension {
	e := &Extension{config: DefaultConfig()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name returns the extension name.
func (e *Extension) Name() string { return ExtensionName }

// Description returns the extension description.
func (e *Extension) Description() string { return ExtensionDescription }

// Version returns the extension version.
func (e *Extension) Version() string { return ExtensionVersion }

// Dependencies returns the list of extension names this extension depends on.
func (e *Extension) Dependencies() []string { return []string{} }

// Engine returns the underlying Bastion engine.
func (e *Extension) Engine() *bastion.Engine { return e.eng }

// API returns the API handler.
func (e *Extension) API() *api.API { return e.apiHandler }

// Register implements [forge.Extension]. It initializes the engine,
// registers it in the DI container, and optionally registers HTTP routes.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.init(fapp); err != nil {
		return err
	}

	if err := vessel.Provide(fapp.Container(), func() (*bastion.Engine, error) {
		return e.eng, nil
	}); err != nil {
		return fmt.Errorf("bastion: register engine in container: %w", err)
	}

	return nil
}

func (e *Extension) init(fapp forge.App) error {
	e.app = fapp
	logger := e.logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := e.config.engineConfig()

	s, err := e.resolveStore(fapp, logger)
	if err != nil {
		return err
	}

	opts := make([]bastion.Option, 0, len(e.bastionOpts)+len(e.plugins)+4)
	opts = append(opts,
		bastion.WithLogger(logger),
		bastion.WithConfig(cfg),
		bastion.WithStore(s),
	)
	if !e.config.DisableCache {
		opts = append(opts, bastion.WithCache(cache.NewMemory(
			cache.WithTTL(cfg.CacheTTL),
			cache.WithMaxSize(cfg.CacheSize),
		)))
	}

	// User-provided options may override the defaults above.
	opts = append(opts, e.bastionOpts...)

	for _, x := range e.plugins {
		opts = append(opts, bastion.WithPlugin(x))
	}

	eng, err := bastion.NewEngine(opts...)
	if err != nil {
		return fmt.Errorf("bastion: create engine: %w", err)
	}
	e.eng = eng

	e.apiHandler = api.New(eng, fapp.Router())

	if !e.config.DisableRoutes {
		if err := e.apiHandler.RegisterRoutes(fapp.Router()); err != nil {
			return fmt.Errorf("bastion: register routes: %w", err)
		}
	}

	return nil
}

// resolveStore picks the store: an explicit option first, then the DI
// container, then a relational store opened from the Database section.
func (e *Extension) resolveStore(fapp forge.App, logger *slog.Logger) (store.Store, error) {
	if e.store != nil {
		return e.store, nil
	}
	if s, err := forge.Inject[store.Store](fapp.Container()); err == nil {
		return s, nil
	}
	if len(e.config.Database) == 0 {
		return nil, bastion.ErrStoreRequired
	}

	e.db = database.Open(e.config.databaseConfig(),
		database.WithLogger(logger),
		database.WithFatalHandler(e.reportFatal),
	)
	s := sqlstore.New(e.db)
	if err := s.Reconnect(context.Background()); err != nil {
		logger.Warn("bastion: database unavailable, starting without persistence", "error", err)
	}
	return s, nil
}

func (e *Extension) reportFatal(err error) {
	if e.eng != nil {
		e.eng.ReportFatal(err)
	}
}

// Start runs grove migrations if enabled and starts the engine.
func (e *Extension) Start(ctx context.Context) error {
	if e.eng == nil {
		return errors.New("bastion: extension not initialized")
	}

	if e.config.GroveMigrations && !e.config.DisableMigrate {
		if err := e.migrateGrove(ctx); err != nil {
			return err
		}
	}

	return e.eng.Start(ctx)
}

func (e *Extension) migrateGrove(ctx context.Context) error {
	gdb, err := forge.Inject[*grove.DB](e.app.Container())
	if err != nil {
		return fmt.Errorf("bastion: resolve grove database: %w", err)
	}
	backend := database.MatchBackend(e.config.databaseConfig().GetString(database.KeyAdapter, "none"))
	prefix := e.config.databaseConfig().GetString(database.KeyPrefix, database.DefaultPrefix)
	if e.db != nil {
		backend = e.db.Backend()
		prefix = e.db.Prefix()
	}
	if err := database.MigrateGrove(ctx, gdb, backend.Kind, prefix); err != nil {
		return fmt.Errorf("bastion: migration failed: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the bastion engine.
func (e *Extension) Stop(ctx context.Context) error {
	if e.eng == nil {
		return nil
	}
	return e.eng.Stop(ctx)
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.eng == nil {
		return errors.New("bastion: extension not initialized")
	}
	return e.eng.Store().Ping(ctx)
}

// Handler returns the HTTP handler for all API routes.
func (e *Extension) Handler() http.Handler {
	if e.apiHandler == nil {
		return http.NotFoundHandler()
	}
	return e.apiHandler.Handler()
}

// RegisterRoutes registers all bastion API routes into a Forge router.
func (e *Extension) RegisterRoutes(router forge.Router) error {
	if e.apiHandler != nil {
		return e.apiHandler.RegisterRoutes(router)
	}
	return nil
}
