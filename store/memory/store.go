// Package memory provides an in-memory implementation of the Bastion
// composite store. It is intended for testing and development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xraph/bastion/history"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/protection"
	"github.com/xraph/bastion/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is a thread-safe in-memory store for all Bastion entities.
type Store struct {
	mu sync.RWMutex

	protections map[string]*protection.Record               // id -> record without roles
	locations   map[protection.Location]string              // location -> id
	roles       map[string]map[string]protection.RoleRecord // id -> role key -> role
	history     []*history.Entry
	nextHistory int64
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		protections: make(map[string]*protection.Record),
		locations:   make(map[protection.Location]string),
		roles:       make(map[string]map[string]protection.RoleRecord),
	}
}

// Migrate is a no-op for the memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping is a no-op for the memory store.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (s *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Protection Store
// ──────────────────────────────────────────────────

func (s *Store) InsertProtection(_ context.Context, rec *protection.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := rec.ID.String()
	if _, ok := s.protections[key]; ok {
		return fmt.Errorf("bastion: insert protection %s: duplicate id", rec.ID)
	}
	if other, ok := s.locations[rec.Location]; ok {
		return fmt.Errorf("bastion: insert protection: location %s taken by %s", rec.Location, other)
	}
	s.protections[key] = copyRecord(rec)
	s.locations[rec.Location] = key
	return nil
}

func (s *Store) UpdateProtection(_ context.Context, rec *protection.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.protections[rec.ID.String()]
	if !ok {
		return fmt.Errorf("protection %s: %w", rec.ID, protection.ErrNotFound)
	}
	cur.Owner = rec.Owner
	cur.Kind = rec.Kind
	cur.UpdatedAt = rec.UpdatedAt
	return nil
}

func (s *Store) DeleteProtection(_ context.Context, protID id.ProtectionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := protID.String()
	if cur, ok := s.protections[key]; ok {
		delete(s.locations, cur.Location)
	}
	delete(s.protections, key)
	delete(s.roles, key)
	return nil
}

func (s *Store) SaveRole(_ context.Context, rec *protection.RoleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := rec.ProtectionID.String()
	set, ok := s.roles[key]
	if !ok {
		set = make(map[string]protection.RoleRecord)
		s.roles[key] = set
	}
	set[roleKey(rec.Type, rec.Name)] = *rec
	return nil
}

func (s *Store) DeleteRole(_ context.Context, protID id.ProtectionID, typ protection.RoleType, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.roles[protID.String()]; ok {
		delete(set, roleKey(typ, name))
	}
	return nil
}

func (s *Store) GetProtection(_ context.Context, protID id.ProtectionID) (*protection.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.protections[protID.String()]
	if !ok {
		return nil, fmt.Errorf("protection %s: %w", protID, protection.ErrNotFound)
	}
	return s.withRoles(rec), nil
}

func (s *Store) GetProtectionAt(_ context.Context, loc protection.Location) (*protection.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.locations[loc]
	if !ok {
		return nil, fmt.Errorf("protection at %s: %w", loc, protection.ErrNotFound)
	}
	return s.withRoles(s.protections[key]), nil
}

func (s *Store) ListProtections(_ context.Context, filter *protection.ListFilter) ([]*protection.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*protection.Record, 0, len(s.protections))
	for _, rec := range s.protections {
		if matchProtection(rec, filter) {
			result = append(result, s.withRoles(rec))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID.String() < result[j].ID.String()
	})
	if filter == nil {
		return result, nil
	}
	return applyPagination(result, filter.Limit, filter.Offset), nil
}

func (s *Store) CountProtections(_ context.Context, filter *protection.ListFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, rec := range s.protections {
		if matchProtection(rec, filter) {
			n++
		}
	}
	return n, nil
}

func matchProtection(rec *protection.Record, f *protection.ListFilter) bool {
	if f == nil {
		return true
	}
	if f.Owner != "" && !strings.EqualFold(f.Owner, rec.Owner) {
		return false
	}
	if f.World != "" && f.World != rec.Location.World {
		return false
	}
	return true
}

// withRoles must be called with s.mu held.
func (s *Store) withRoles(rec *protection.Record) *protection.Record {
	c := copyRecord(rec)
	for _, r := range s.roles[rec.ID.String()] {
		c.Roles = append(c.Roles, r)
	}
	sort.Slice(c.Roles, func(i, j int) bool {
		if c.Roles[i].Type != c.Roles[j].Type {
			return c.Roles[i].Type < c.Roles[j].Type
		}
		return c.Roles[i].Name < c.Roles[j].Name
	})
	return c
}

// ──────────────────────────────────────────────────
// History Store
// ──────────────────────────────────────────────────

func (s *Store) AppendHistory(_ context.Context, e *history.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextHistory++
	e.ID = s.nextHistory
	c := *e
	s.history = append(s.history, &c)
	return nil
}

func (s *Store) ListHistory(_ context.Context, filter *history.QueryFilter) ([]*history.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*history.Entry, 0)
	for i := len(s.history) - 1; i >= 0; i-- {
		if filter.Match(s.history[i]) {
			c := *s.history[i]
			result = append(result, &c)
		}
	}
	if filter == nil {
		return result, nil
	}
	return applyPagination(result, filter.Limit, filter.Offset), nil
}

func (s *Store) PurgeHistory(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.history[:0]
	var count int64
	for _, e := range s.history {
		if e.CreatedAt.Before(before) {
			count++
			continue
		}
		kept = append(kept, e)
	}
	s.history = kept
	return count, nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func roleKey(t protection.RoleType, name string) string {
	return fmt.Sprintf("%d:%s", t, protection.NameKey(name))
}

func copyRecord(rec *protection.Record) *protection.Record {
	c := *rec
	c.Roles = nil
	return &c
}

func applyPagination[T any](items []*T, limit, offset int) []*T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
