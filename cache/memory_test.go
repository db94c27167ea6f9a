package cache

import (
	"context"
	"testing"
	"time"

	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/protection"
)

func clean(x int) *protection.Protection {
	return protection.Restore(nil, &protection.Record{
		ID:       id.NewProtectionID(),
		Owner:    "alice",
		Kind:     protection.KindPrivate,
		Location: protection.Location{World: "w", X: x},
	})
}

func dirty(x int) *protection.Protection {
	return protection.New(nil, "alice", protection.KindPrivate, protection.Location{World: "w", X: x})
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestMemoryCacheHitMiss(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(WithTTL(time.Minute))
	p := clean(1)

	// Miss
	if _, ok := c.Get(ctx, p.ID()); ok {
		t.Fatal("expected cache miss")
	}

	// Set + Hit by ID and location
	c.Set(ctx, p)
	got, ok := c.Get(ctx, p.ID())
	if !ok || got != p {
		t.Fatal("expected cache hit by id")
	}
	got, ok = c.GetAt(ctx, p.Location())
	if !ok || got != p {
		t.Fatal("expected cache hit by location")
	}
	if _, ok := c.GetAt(ctx, protection.Location{World: "w", X: 2}); ok {
		t.Fatal("expected miss at another location")
	}
}

func TestMemoryCacheTTLExpiry(t *testing.T) {
	ctx := context.Background()
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	c := NewMemory(WithTTL(time.Minute))
	c.now = clk.now

	p := clean(1)
	c.Set(ctx, p)
	clk.advance(2 * time.Minute)

	if _, ok := c.Get(ctx, p.ID()); ok {
		t.Fatal("expected cache miss after TTL expiry")
	}
	if _, ok := c.GetAt(ctx, p.Location()); ok {
		t.Fatal("location index should be cleared with the entry")
	}
	if c.Len() != 0 {
		t.Fatalf("expected empty cache, got %d", c.Len())
	}
}

func TestMemoryCacheKeepsDirtyEntries(t *testing.T) {
	ctx := context.Background()
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	c := NewMemory(WithTTL(time.Minute), WithMaxSize(2))
	c.now = clk.now

	d := dirty(1)
	c.Set(ctx, d)
	clk.advance(time.Hour)

	if _, ok := c.Get(ctx, d.ID()); !ok {
		t.Fatal("dirty protection must not expire")
	}

	// Filling past capacity evicts clean entries only.
	a, b := clean(2), clean(3)
	c.Set(ctx, a)
	c.Set(ctx, b)
	if _, ok := c.Get(ctx, d.ID()); !ok {
		t.Fatal("dirty protection must not be evicted")
	}
	if _, ok := c.Get(ctx, a.ID()); ok {
		t.Fatal("expected the older clean entry to be evicted")
	}
	if _, ok := c.Get(ctx, b.ID()); !ok {
		t.Fatal("expected the newest entry to be cached")
	}
}

func TestMemoryCacheAllDirtyExceedsBound(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(WithMaxSize(1))
	c.Set(ctx, dirty(1))
	c.Set(ctx, dirty(2))
	if c.Len() != 2 {
		t.Fatalf("expected 2 dirty entries, got %d", c.Len())
	}
}

func TestMemoryCacheInvalidate(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()
	p := dirty(7)
	c.Set(ctx, p)
	c.Invalidate(ctx, p)

	if _, ok := c.Get(ctx, p.ID()); ok {
		t.Fatal("expected miss after invalidate")
	}
	if _, ok := c.GetAt(ctx, p.Location()); ok {
		t.Fatal("expected location miss after invalidate")
	}
}

func TestMemoryCacheReplaceAtLocation(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()
	old := clean(5)
	c.Set(ctx, old)
	c.Invalidate(ctx, old)

	fresh := dirty(5)
	c.Set(ctx, fresh)
	got, ok := c.GetAt(ctx, fresh.Location())
	if !ok || got != fresh {
		t.Fatal("expected the new protection at the location")
	}
}
