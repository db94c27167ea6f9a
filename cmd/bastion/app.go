package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/cache"
	"github.com/xraph/bastion/config"
	"github.com/xraph/bastion/database"
	"github.com/xraph/bastion/internal/logger"
	"github.com/xraph/bastion/protection"
	"github.com/xraph/bastion/store/sqlstore"
)

// app holds what every command needs: configuration, the log file and an
// engine over the configured database.
type app struct {
	cfg *config.Config
	log *logger.Logger
	db  *database.Database
	eng *bastion.Engine
}

// openApp loads configuration and opens the engine. Long-running commands
// pass writeBehind to cache protections and save through the queue;
// one-shot commands save before returning.
func openApp(ctx context.Context, writeBehind bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	level, _ := cfg.LogLevel()
	if debug {
		level = slog.LevelDebug
	}
	a := &app{
		cfg: cfg,
		log: logger.New(logger.Options{Path: cfg.Log.Path, Level: level, Stderr: debug || cfg.Log.Stderr}),
	}

	a.db = database.Open(cfg,
		database.WithLogger(a.log.Logger),
		database.WithFatalHandler(func(err error) {
			if a.eng != nil {
				a.eng.ReportFatal(err)
			}
		}),
	)
	s := sqlstore.New(a.db)
	if err := s.Reconnect(ctx); err != nil {
		if !writeBehind {
			_ = a.log.Close()
			return nil, fmt.Errorf("%w (see %s)", err, a.log.Path)
		}
		// serve keeps running and saves once the database is back.
		a.log.Warn("database unavailable, starting without persistence", "error", err)
	}

	opts := []bastion.Option{
		bastion.WithStore(s),
		bastion.WithLogger(a.log.Logger),
		bastion.WithConfig(cfg.Engine),
	}
	if writeBehind {
		opts = append(opts, bastion.WithCache(cache.NewMemory(
			cache.WithTTL(cfg.Engine.CacheTTL),
			cache.WithMaxSize(cfg.Engine.CacheSize),
		)))
	}
	a.eng, err = bastion.NewEngine(opts...)
	if err != nil {
		_ = s.Close()
		_ = a.log.Close()
		return nil, err
	}
	if err := a.eng.Start(ctx); err != nil {
		_ = a.close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *app) close(ctx context.Context) error {
	err := a.eng.Stop(ctx)
	_ = a.log.Close()
	return err
}

// withApp runs fn against an opened one-shot app and closes it.
func withApp(ctx context.Context, fn func(a *app) error) error {
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	runErr := fn(a)
	if err := a.close(ctx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// parseLocation reads "world x y z" from args.
func parseLocation(args []string) (protection.Location, error) {
	if len(args) != 4 {
		return protection.Location{}, fmt.Errorf("expected <world> <x> <y> <z>, got %d arguments", len(args))
	}
	loc := protection.Location{World: args[0]}
	for i, dst := range []*int{&loc.X, &loc.Y, &loc.Z} {
		v, err := strconv.Atoi(args[i+1])
		if err != nil {
			return loc, fmt.Errorf("invalid coordinate %q", args[i+1])
		}
		*dst = v
	}
	return loc, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
