package bastion_test

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/access"
	"github.com/xraph/bastion/cache"
	"github.com/xraph/bastion/database"
	"github.com/xraph/bastion/protection"
	"github.com/xraph/bastion/store"
	"github.com/xraph/bastion/store/memory"
	"github.com/xraph/bastion/store/sqlstore"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)) }

func TestUnreachableStoreKeepsChangesUntilReconnect(t *testing.T) {
	ctx := context.Background()

	// The database directory is a regular file, so connecting fails until
	// it is removed.
	blocker := filepath.Join(t.TempDir(), "data")
	if err := os.WriteFile(blocker, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	db := database.Open(database.StaticConfig{
		database.KeyAdapter: "sqlite",
		database.KeyPath:    filepath.Join(blocker, "bastion.db"),
	}, database.WithLogger(quietLogger()))
	s := sqlstore.New(db)

	cfg := bastion.DefaultConfig()
	cfg.ReconnectInterval = time.Hour
	eng, err := bastion.NewEngine(
		bastion.WithStore(s),
		bastion.WithCache(cache.NewMemory()),
		bastion.WithLogger(quietLogger()),
		bastion.WithConfig(cfg),
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("start with unreachable store: %v", err)
	}
	defer eng.Stop(ctx)

	p, err := eng.Protect(ctx, "alice", protection.KindPrivate, chest)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Grant(ctx, p.ID(), protection.PlayerRole, "bob", access.Deposit); err != nil {
		t.Fatal(err)
	}
	if err := eng.Save(ctx); err != nil {
		t.Fatal(err)
	}
	if !p.IsSaveNeeded() {
		t.Fatal("protection should stay dirty while the store is unreachable")
	}
	if ok, _ := eng.Can(ctx, access.Principal{Name: "bob"}, chest, access.ActionDeposit); !ok {
		t.Error("in-memory grant should apply while disconnected")
	}

	if err := os.Remove(blocker); err != nil {
		t.Fatal(err)
	}
	if err := eng.Save(ctx); err != nil {
		t.Fatal(err)
	}
	if p.IsSaveNeeded() {
		t.Fatal("protection should be saved after reconnecting")
	}
	if !s.Connected() {
		t.Fatal("store should be connected")
	}

	rec, err := s.GetProtectionAt(ctx, chest)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Owner != "alice" || len(rec.Roles) != 1 || rec.Roles[0].Name != "bob" {
		t.Errorf("stored record = %+v", rec)
	}
	if got := eng.Queue().Stats().Parked; got != 0 {
		t.Errorf("parked = %d, want 0", got)
	}
}

func TestStartFailsOnQueryErrors(t *testing.T) {
	eng, err := bastion.NewEngine(bastion.WithStore(&failingMigrateStore{Store: memory.New()}), bastion.WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}
	if err := eng.Start(context.Background()); err == nil {
		t.Fatal("expected a migration query failure to fail Start")
	}
}

type failingMigrateStore struct {
	store.Store
}

func (s *failingMigrateStore) Migrate(context.Context) error {
	return &database.QueryError{Op: "execute", SQL: "CREATE TABLE", Err: os.ErrPermission}
}

// lookupCountingStore counts location lookups that reach storage.
type lookupCountingStore struct {
	store.Store
	lookups atomic.Int32
}

func (s *lookupCountingStore) GetProtectionAt(ctx context.Context, loc protection.Location) (*protection.Record, error) {
	s.lookups.Add(1)
	return s.Store.GetProtectionAt(ctx, loc)
}

func TestCachedChecksSkipStorage(t *testing.T) {
	ctx := context.Background()
	s := &lookupCountingStore{Store: memory.New()}
	eng, err := bastion.NewEngine(bastion.WithStore(s), bastion.WithCache(cache.NewMemory()))
	if err != nil {
		t.Fatal(err)
	}

	p, err := eng.Protect(ctx, "alice", protection.KindPrivate, chest)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Grant(ctx, p.ID(), protection.PlayerRole, "bob", access.Deposit); err != nil {
		t.Fatal(err)
	}
	if err := eng.Save(ctx); err != nil {
		t.Fatal(err)
	}
	before := s.lookups.Load()

	for i := 0; i < 10; i++ {
		check(t, eng, access.Principal{Name: "bob"}, access.ActionDeposit)
	}
	if got := s.lookups.Load(); got != before {
		t.Errorf("checks reached storage %d times", got-before)
	}
}
