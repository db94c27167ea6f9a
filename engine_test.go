package bastion_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/access"
	"github.com/xraph/bastion/cache"
	"github.com/xraph/bastion/history"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/protection"
	"github.com/xraph/bastion/store/memory"
)

var chest = protection.Location{World: "world", X: 10, Y: 64, Z: -3}

func newTestEngine(t *testing.T, opts ...bastion.Option) (*bastion.Engine, *memory.Store) {
	t.Helper()
	s := memory.New()
	opts = append([]bastion.Option{bastion.WithStore(s), bastion.WithCache(cache.NewMemory())}, opts...)
	eng, err := bastion.NewEngine(opts...)
	if err != nil {
		t.Fatal(err)
	}
	return eng, s
}

func check(t *testing.T, eng *bastion.Engine, p access.Principal, action access.Action) *bastion.CheckResult {
	t.Helper()
	result, err := eng.Check(context.Background(), &bastion.CheckRequest{Principal: p, Location: chest, Action: action})
	if err != nil {
		t.Fatal(err)
	}
	return result
}

func TestNewEngine_RequiresStore(t *testing.T) {
	_, err := bastion.NewEngine()
	if !errors.Is(err, bastion.ErrStoreRequired) {
		t.Fatalf("expected bastion.ErrStoreRequired, got %v", err)
	}
}

func TestAccessResolution(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	p, err := eng.Protect(ctx, "alice", protection.KindPrivate, chest)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Grant(ctx, p.ID(), protection.PlayerRole, "bob", access.Deposit); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Grant(ctx, p.ID(), protection.GroupRole, "builders", access.Full); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Grant(ctx, p.ID(), protection.PasswordRole, "hunter2", access.Full); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		principal access.Principal
		action    access.Action
		allowed   bool
		level     access.Level
		reason    access.Reason
	}{
		{"owner", access.Principal{Name: "alice"}, access.ActionManage, true, access.Full, access.ReasonOwner},
		{"owner case-insensitive", access.Principal{Name: "ALICE"}, access.ActionWithdraw, true, access.Full, access.ReasonOwner},
		{"admin", access.Principal{Name: "mod", Admin: true}, access.ActionManage, true, access.Full, access.ReasonAdmin},
		{"player deposit", access.Principal{Name: "bob"}, access.ActionDeposit, true, access.Deposit, access.ReasonRole},
		{"player withdraw", access.Principal{Name: "Bob"}, access.ActionWithdraw, false, access.Deposit, access.ReasonInsufficient},
		{"group withdraw", access.Principal{Name: "carol", Groups: []string{"Builders"}}, access.ActionWithdraw, true, access.Full, access.ReasonRole},
		{"password", access.Principal{Name: "dave", Passwords: []string{"hunter2"}}, access.ActionManage, true, access.Full, access.ReasonRole},
		{"wrong password", access.Principal{Name: "dave", Passwords: []string{"hunter3"}}, access.ActionDeposit, false, access.None, access.ReasonNoMatch},
		{"stranger", access.Principal{Name: "eve"}, access.ActionDeposit, false, access.None, access.ReasonNoMatch},
		{"highest role wins", access.Principal{Name: "bob", Groups: []string{"builders"}}, access.ActionWithdraw, true, access.Full, access.ReasonRole},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := check(t, eng, tt.principal, tt.action)
			if !r.Protected {
				t.Fatal("expected protected location")
			}
			if r.Allowed != tt.allowed || r.Level != tt.level || r.Reason != tt.reason {
				t.Fatalf("got allowed=%v level=%s reason=%s, want allowed=%v level=%s reason=%s",
					r.Allowed, r.Level, r.Reason, tt.allowed, tt.level, tt.reason)
			}
		})
	}
}

func TestCheck_PasswordNameMasked(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	p, _ := eng.Protect(ctx, "alice", protection.KindPassword, chest)
	if _, err := eng.Grant(ctx, p.ID(), protection.PasswordRole, "secret", access.Full); err != nil {
		t.Fatal(err)
	}

	r := check(t, eng, access.Principal{Name: "bob", Passwords: []string{"secret"}}, access.ActionWithdraw)
	if len(r.MatchedBy) != 1 {
		t.Fatalf("expected 1 match, got %d", len(r.MatchedBy))
	}
	if r.MatchedBy[0].Name != "********" {
		t.Fatalf("password leaked in match: %q", r.MatchedBy[0].Name)
	}
}

func TestCheck_Unprotected(t *testing.T) {
	eng, _ := newTestEngine(t)
	r := check(t, eng, access.Principal{Name: "anyone"}, access.ActionWithdraw)
	if r.Protected || !r.Allowed || r.Reason != access.ReasonUnprotected {
		t.Fatalf("unexpected result for unprotected location: %+v", r)
	}
}

func TestEnforceAndCan(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	if _, err := eng.Protect(ctx, "alice", "", chest); err != nil {
		t.Fatal(err)
	}

	err := eng.Enforce(ctx, &bastion.CheckRequest{Principal: access.Principal{Name: "eve"}, Location: chest, Action: access.ActionDeposit})
	if !errors.Is(err, bastion.ErrAccessDenied) {
		t.Fatalf("expected bastion.ErrAccessDenied, got %v", err)
	}
	ok, err := eng.Can(ctx, access.Principal{Name: "alice"}, chest, access.ActionManage)
	if err != nil || !ok {
		t.Fatalf("owner should be allowed: ok=%v err=%v", ok, err)
	}
}

func TestProtect_Validation(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	if _, err := eng.Protect(ctx, "  ", protection.KindPrivate, chest); !errors.Is(err, bastion.ErrOwnerRequired) {
		t.Fatalf("expected bastion.ErrOwnerRequired, got %v", err)
	}
	if _, err := eng.Protect(ctx, "alice", protection.Kind("vault"), chest); err == nil {
		t.Fatal("expected error for unknown kind")
	}
	p, err := eng.Protect(ctx, "alice", "", chest)
	if err != nil {
		t.Fatal(err)
	}
	if p.Kind() != protection.KindPrivate {
		t.Fatalf("expected default kind private, got %s", p.Kind())
	}
	if _, err := eng.Protect(ctx, "bob", protection.KindPublic, chest); !errors.Is(err, bastion.ErrAlreadyProtected) {
		t.Fatalf("expected bastion.ErrAlreadyProtected, got %v", err)
	}
}

func TestGrant_Validation(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	p, _ := eng.Protect(ctx, "alice", "", chest)

	if _, err := eng.Grant(ctx, p.ID(), protection.RoleType(99), "x", access.Full); !errors.Is(err, bastion.ErrUnknownRoleType) {
		t.Fatalf("expected bastion.ErrUnknownRoleType, got %v", err)
	}
	if _, err := eng.Grant(ctx, p.ID(), protection.PlayerRole, "bob", access.None); !errors.Is(err, bastion.ErrInvalidLevel) {
		t.Fatalf("expected bastion.ErrInvalidLevel, got %v", err)
	}
	if _, err := eng.Grant(ctx, id.NewProtectionID(), protection.PlayerRole, "bob", access.Full); !errors.Is(err, bastion.ErrProtectionNotFound) {
		t.Fatalf("expected bastion.ErrProtectionNotFound, got %v", err)
	}

	first, _ := eng.Grant(ctx, p.ID(), protection.PlayerRole, "Bob", access.Deposit)
	second, err := eng.Grant(ctx, p.ID(), protection.PlayerRole, "bob", access.Full)
	if err != nil {
		t.Fatal(err)
	}
	if first != second || second.Name() != "Bob" || second.Access() != access.Full {
		t.Fatalf("regrant should update the existing role, got %s", second)
	}
	if n := len(p.Roles()); n != 1 {
		t.Fatalf("expected 1 role, got %d", n)
	}
}

func TestRevoke(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)
	p, _ := eng.Protect(ctx, "alice", "", chest)
	_, _ = eng.Grant(ctx, p.ID(), protection.PlayerRole, "bob", access.Full)
	_, _ = eng.Grant(ctx, p.ID(), protection.PasswordRole, "pw", access.Deposit)
	if err := eng.Save(ctx); err != nil {
		t.Fatal(err)
	}

	if err := eng.Revoke(ctx, p.ID(), protection.PlayerRole, "nobody"); !errors.Is(err, bastion.ErrRoleNotFound) {
		t.Fatalf("expected bastion.ErrRoleNotFound, got %v", err)
	}
	if err := eng.Revoke(ctx, p.ID(), protection.PlayerRole, "BOB"); err != nil {
		t.Fatal(err)
	}
	if err := eng.Revoke(ctx, p.ID(), protection.PasswordRole, "pw"); err != nil {
		t.Fatal(err)
	}
	if r := check(t, eng, access.Principal{Name: "bob"}, access.ActionDeposit); r.Allowed {
		t.Fatal("revoked role should no longer grant access")
	}

	// The deletes reach storage on the next save.
	rec, _ := s.GetProtection(ctx, p.ID())
	if len(rec.Roles) != 2 {
		t.Fatalf("expected 2 stored roles before save, got %d", len(rec.Roles))
	}
	if err := eng.Save(ctx); err != nil {
		t.Fatal(err)
	}
	rec, _ = s.GetProtection(ctx, p.ID())
	if len(rec.Roles) != 0 {
		t.Fatalf("expected 0 stored roles after save, got %d", len(rec.Roles))
	}
}

func TestWriteBehind(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)

	p, err := eng.Protect(ctx, "alice", "", chest)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = eng.Grant(ctx, p.ID(), protection.PlayerRole, "bob", access.Full)

	if _, err := s.GetProtection(ctx, p.ID()); !errors.Is(err, protection.ErrNotFound) {
		t.Fatalf("expected nothing stored before save, got %v", err)
	}
	// Reads observe pending changes through the cache.
	if r := check(t, eng, access.Principal{Name: "bob"}, access.ActionWithdraw); !r.Allowed {
		t.Fatal("pending grant should be visible to checks")
	}

	if err := eng.Save(ctx); err != nil {
		t.Fatal(err)
	}
	rec, err := s.GetProtection(ctx, p.ID())
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Roles) != 1 || rec.Roles[0].Access != access.Full {
		t.Fatalf("unexpected stored roles: %+v", rec.Roles)
	}
	if p.IsSaveNeeded() {
		t.Fatal("protection should be clean after save")
	}
}

func TestSynchronousWithoutCache(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	eng, err := bastion.NewEngine(bastion.WithStore(s))
	if err != nil {
		t.Fatal(err)
	}

	p, err := eng.Protect(ctx, "alice", "", chest)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Grant(ctx, p.ID(), protection.GroupRole, "staff", access.Deposit); err != nil {
		t.Fatal(err)
	}
	rec, err := s.GetProtection(ctx, p.ID())
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Roles) != 1 {
		t.Fatalf("expected role stored immediately, got %d", len(rec.Roles))
	}
	if n := eng.Queue().Len(); n != 0 {
		t.Fatalf("expected empty queue, got %d", n)
	}
}

func TestReloadFromStore(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)
	p, _ := eng.Protect(ctx, "alice", "", chest)
	_, _ = eng.Grant(ctx, p.ID(), protection.PlayerRole, "bob", access.Full)
	if err := eng.Stop(ctx); err != nil {
		t.Fatal(err)
	}

	// A fresh engine over the same store resolves identically.
	eng2, err := bastion.NewEngine(bastion.WithStore(s), bastion.WithCache(cache.NewMemory()))
	if err != nil {
		t.Fatal(err)
	}
	r, err := eng2.Check(ctx, &bastion.CheckRequest{Principal: access.Principal{Name: "bob"}, Location: chest, Action: access.ActionWithdraw})
	if err != nil {
		t.Fatal(err)
	}
	if !r.Allowed || r.ProtectionID.String() != p.ID().String() || r.Owner != "alice" {
		t.Fatalf("unexpected result after reload: %+v", r)
	}
	if eng2.Cache().Len() != 1 {
		t.Fatalf("expected loaded protection to be cached")
	}
}

func TestUnprotect(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)
	p, _ := eng.Protect(ctx, "alice", "", chest)
	_, _ = eng.Grant(ctx, p.ID(), protection.PlayerRole, "bob", access.Full)
	_ = eng.Save(ctx)

	if err := eng.Unprotect(ctx, p.ID()); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Get(ctx, p.ID()); !errors.Is(err, bastion.ErrProtectionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := s.GetProtectionAt(ctx, chest); !errors.Is(err, protection.ErrNotFound) {
		t.Fatalf("expected removed from store, got %v", err)
	}
	if r := check(t, eng, access.Principal{Name: "eve"}, access.ActionWithdraw); r.Protected {
		t.Fatal("location should be unprotected")
	}
	// The location can be protected again.
	if _, err := eng.Protect(ctx, "eve", "", chest); err != nil {
		t.Fatal(err)
	}
}

func TestTransfer(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	p, _ := eng.Protect(ctx, "alice", "", chest)

	if _, err := eng.Transfer(ctx, p.ID(), ""); !errors.Is(err, bastion.ErrOwnerRequired) {
		t.Fatalf("expected bastion.ErrOwnerRequired, got %v", err)
	}
	if _, err := eng.Transfer(ctx, p.ID(), "bob"); err != nil {
		t.Fatal(err)
	}
	if r := check(t, eng, access.Principal{Name: "alice"}, access.ActionDeposit); r.Allowed {
		t.Fatal("previous owner should lose access")
	}
	if r := check(t, eng, access.Principal{Name: "bob"}, access.ActionManage); r.Reason != access.ReasonOwner {
		t.Fatalf("expected owner reason, got %s", r.Reason)
	}
}

func TestHistory(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := bastion.WithActor(context.Background(), "alice")

	p, _ := eng.Protect(ctx, "alice", "", chest)
	_, _ = eng.Grant(ctx, p.ID(), protection.PlayerRole, "bob", access.Deposit)
	_, _ = eng.Grant(ctx, p.ID(), protection.PasswordRole, "secret", access.Full)
	_ = eng.Revoke(context.Background(), p.ID(), protection.PlayerRole, "bob")

	entries, err := eng.History(ctx, p.ID(), 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	want := []history.Action{history.ActionRevoked, history.ActionGranted, history.ActionGranted, history.ActionCreated}
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(entries))
	}
	for i, e := range entries {
		if e.Action != want[i] {
			t.Errorf("entry %d: expected %s, got %s", i, want[i], e.Action)
		}
	}
	if entries[0].Principal != bastion.DefaultActor {
		t.Errorf("expected default actor, got %q", entries[0].Principal)
	}
	if entries[3].Principal != "alice" {
		t.Errorf("expected actor alice, got %q", entries[3].Principal)
	}
	if entries[1].Detail != "password:********=full" {
		t.Errorf("password not masked in history: %q", entries[1].Detail)
	}
	if entries[2].Detail != "player:bob=deposit" {
		t.Errorf("unexpected grant detail: %q", entries[2].Detail)
	}
}

func TestHistoryDisabled(t *testing.T) {
	ctx := context.Background()
	off := false
	cfg := bastion.DefaultConfig()
	cfg.EnableHistory = &off
	eng, _ := newTestEngine(t, bastion.WithConfig(cfg))

	p, _ := eng.Protect(ctx, "alice", "", chest)
	entries, err := eng.History(ctx, p.ID(), 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no history, got %d", len(entries))
	}
}

func TestListAndStats(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	for i := 0; i < 3; i++ {
		loc := chest
		loc.X += i
		if _, err := eng.Protect(ctx, "alice", "", loc); err != nil {
			t.Fatal(err)
		}
	}
	loc := chest
	loc.World = "nether"
	_, _ = eng.Protect(ctx, "bob", "", loc)

	recs, total, err := eng.List(ctx, &protection.ListFilter{Owner: "ALICE", Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || total != 3 {
		t.Fatalf("expected 2 of 3, got %d of %d", len(recs), total)
	}

	stats, err := eng.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Protections != 4 || stats.Cached != 4 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.Queue.Pending != 0 || stats.Queue.Saved == 0 {
		t.Fatalf("unexpected queue stats: %+v", stats.Queue)
	}
	if stats.Database != nil {
		t.Fatal("memory store has no database stats")
	}
}

// ──────────────────────────────────────────────────
// Plugins
// ──────────────────────────────────────────────────

type recordingPlugin struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPlugin) Name() string { return "recorder" }

func (p *recordingPlugin) add(ev string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPlugin) OnProtectionCreated(_ context.Context, _ *protection.Protection) error {
	p.add("created")
	return nil
}

func (p *recordingPlugin) OnRoleGranted(_ context.Context, _ *protection.Role) error {
	p.add("granted")
	return nil
}

func (p *recordingPlugin) OnAfterCheck(_ context.Context, _, result any) error {
	d, ok := result.(access.Decision)
	if !ok {
		return errors.New("unexpected result type")
	}
	p.add("checked:" + string(d.Reason))
	return nil
}

func (p *recordingPlugin) OnShutdown(_ context.Context) error {
	p.add("shutdown")
	return nil
}

func TestPluginHooks(t *testing.T) {
	ctx := context.Background()
	rec := &recordingPlugin{}
	eng, _ := newTestEngine(t, bastion.WithPlugin(rec))

	p, _ := eng.Protect(ctx, "alice", "", chest)
	_, _ = eng.Grant(ctx, p.ID(), protection.PlayerRole, "bob", access.Deposit)
	check(t, eng, access.Principal{Name: "alice"}, access.ActionManage)
	if err := eng.Stop(ctx); err != nil {
		t.Fatal(err)
	}

	want := []string{"created", "granted", "checked:owner", "shutdown"}
	if len(rec.events) != len(want) {
		t.Fatalf("expected events %v, got %v", want, rec.events)
	}
	for i := range want {
		if rec.events[i] != want[i] {
			t.Fatalf("expected events %v, got %v", want, rec.events)
		}
	}
}
