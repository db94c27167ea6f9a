// Package cache provides caching implementations for Bastion protections.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/protection"
)

// Compile-time interface check.
var _ bastion.Cache = (*Memory)(nil)

// Memory is an in-memory protection index with TTL-based expiration.
// Protections with unsaved changes are never expired or evicted, so the
// cache may temporarily exceed its size bound.
type Memory struct {
	mu        sync.RWMutex
	entries   map[string]*entry
	locations map[protection.Location]string
	ttl       time.Duration
	maxSize   int
	now       func() time.Time
}

type entry struct {
	p         *protection.Protection
	loc       protection.Location
	expiresAt time.Time
}

// MemoryOption configures the memory cache.
type MemoryOption func(*Memory)

// WithTTL sets the cache entry time-to-live.
func WithTTL(ttl time.Duration) MemoryOption {
	return func(m *Memory) { m.ttl = ttl }
}

// WithMaxSize sets the maximum number of clean cache entries.
func WithMaxSize(n int) MemoryOption {
	return func(m *Memory) { m.maxSize = n }
}

// NewMemory creates a new in-memory cache.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries:   make(map[string]*entry),
		locations: make(map[protection.Location]string),
		ttl:       5 * time.Minute,
		maxSize:   10000,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns a cached protection by ID.
func (m *Memory) Get(_ context.Context, protID id.ProtectionID) (*protection.Protection, bool) {
	return m.lookup(protID.String())
}

// GetAt returns the cached protection at loc.
func (m *Memory) GetAt(_ context.Context, loc protection.Location) (*protection.Protection, bool) {
	m.mu.RLock()
	key, ok := m.locations[loc]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return m.lookup(key)
}

func (m *Memory) lookup(key string) (*protection.Protection, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if m.now().After(e.expiresAt) && !e.p.IsSaveNeeded() {
		m.mu.Lock()
		if cur, ok := m.entries[key]; ok && cur == e {
			m.deleteLocked(key)
		}
		m.mu.Unlock()
		return nil, false
	}
	return e.p, true
}

// Set stores a protection in the cache.
func (m *Memory) Set(_ context.Context, p *protection.Protection) {
	key := p.ID().String()
	m.mu.Lock()
	defer m.mu.Unlock()

	// Evict if at capacity.
	if _, exists := m.entries[key]; !exists && len(m.entries) >= m.maxSize {
		m.evictExpired()
		if len(m.entries) >= m.maxSize {
			m.evictOne()
		}
	}

	if old, ok := m.entries[key]; ok && old.loc != p.Location() {
		delete(m.locations, old.loc)
	}
	loc := p.Location()
	m.entries[key] = &entry{
		p:         p,
		loc:       loc,
		expiresAt: m.now().Add(m.ttl),
	}
	m.locations[loc] = key
}

// Invalidate removes a protection from the cache.
func (m *Memory) Invalidate(_ context.Context, p *protection.Protection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteLocked(p.ID().String())
}

// Len returns the number of cached protections.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// deleteLocked must hold write lock.
func (m *Memory) deleteLocked(key string) {
	if e, ok := m.entries[key]; ok {
		if m.locations[e.loc] == key {
			delete(m.locations, e.loc)
		}
		delete(m.entries, key)
	}
}

// evictExpired removes expired clean entries. Must hold write lock.
func (m *Memory) evictExpired() {
	now := m.now()
	for k, e := range m.entries {
		if now.After(e.expiresAt) && !e.p.IsSaveNeeded() {
			m.deleteLocked(k)
		}
	}
}

// evictOne removes the clean entry closest to expiry. Must hold write lock.
func (m *Memory) evictOne() {
	var victim string
	var soonest time.Time
	for k, e := range m.entries {
		if e.p.IsSaveNeeded() {
			continue
		}
		if victim == "" || e.expiresAt.Before(soonest) {
			victim, soonest = k, e.expiresAt
		}
	}
	if victim != "" {
		m.deleteLocked(victim)
	}
}
