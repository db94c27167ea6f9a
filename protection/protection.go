// Package protection defines the Protection and Role entities, their
// persistence lifecycle, and the Store they are saved through.
//
// A Protection owns its roles. Mutations happen in memory and move the
// entity to StateModified; SaveImmediately writes the current state and
// settles it back to StateUnmodified. Access checks read the in-memory role
// set and never touch storage.
package protection

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xraph/bastion/access"
	"github.com/xraph/bastion/id"
)

// Kind is the protection flavour shown to players. Access resolution
// depends only on owner and roles.
type Kind string

// Protection kinds.
const (
	KindPrivate  Kind = "private"
	KindPublic   Kind = "public"
	KindPassword Kind = "password"
)

// ParseKind validates a kind name. An empty string means KindPrivate.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return KindPrivate, nil
	case KindPrivate, KindPublic, KindPassword:
		return k, nil
	}
	return "", fmt.Errorf("protection: unknown kind %q", s)
}

// Location is a block position in a world.
type Location struct {
	World string `json:"world"`
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Z     int    `json:"z"`
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%d,%d,%d", l.World, l.X, l.Y, l.Z)
}

// Protection is one protected world object.
type Protection struct {
	saveMu sync.Mutex

	store Store
	id    id.ProtectionID

	mu        sync.RWMutex
	owner     string
	kind      Kind
	location  Location
	createdAt time.Time
	updatedAt time.Time
	roles     map[string]*Role
	revoked   []*Role
	state     State
	persisted bool
	version   uint64
}

// New creates an unsaved protection with a fresh identifier.
func New(s Store, owner string, kind Kind, loc Location) *Protection {
	now := now()
	return &Protection{
		store:     s,
		id:        id.NewProtectionID(),
		owner:     owner,
		kind:      kind,
		location:  loc,
		createdAt: now,
		updatedAt: now,
		roles:     make(map[string]*Role),
		state:     StateNew,
	}
}

// Restore rebuilds a protection loaded from storage. The protection and all
// of its roles start out unmodified.
func Restore(s Store, rec *Record) *Protection {
	p := &Protection{
		store:     s,
		id:        rec.ID,
		owner:     rec.Owner,
		kind:      rec.Kind,
		location:  rec.Location,
		createdAt: rec.CreatedAt,
		updatedAt: rec.UpdatedAt,
		roles:     make(map[string]*Role, len(rec.Roles)),
		state:     StateUnmodified,
		persisted: true,
	}
	for _, rr := range rec.Roles {
		r := restoreRole(p, rr)
		p.roles[r.Key()] = r
	}
	return p
}

func now() time.Time { return time.Now().UTC().Truncate(time.Second) }

// ID returns the protection identifier.
func (p *Protection) ID() id.ProtectionID { return p.id }

// Owner returns the owning player.
func (p *Protection) Owner() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.owner
}

// IsOwner reports whether name owns the protection, case-insensitively.
func (p *Protection) IsOwner(name string) bool {
	return name != "" && strings.EqualFold(p.Owner(), name)
}

// Kind returns the protection kind.
func (p *Protection) Kind() Kind {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.kind
}

// Location returns where the protection is.
func (p *Protection) Location() Location {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.location
}

// CreatedAt returns the creation time.
func (p *Protection) CreatedAt() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.createdAt
}

// UpdatedAt returns the time of the last mutation.
func (p *Protection) UpdatedAt() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.updatedAt
}

// State returns the lifecycle state.
func (p *Protection) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// IsSaveNeeded reports whether the protection is new or modified.
func (p *Protection) IsSaveNeeded() bool { return p.State().SaveNeeded() }

// Store returns the store the protection saves through.
func (p *Protection) Store() Store { return p.store }

// touchLocked records a mutation. Must hold p.mu.
func (p *Protection) touchLocked() {
	p.state = p.state.touched()
	p.updatedAt = now()
	p.version++
}

// SetOwner transfers the protection.
func (p *Protection) SetOwner(owner string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateRemoved || p.owner == owner {
		return
	}
	p.owner = owner
	p.touchLocked()
}

// SetKind changes the protection kind.
func (p *Protection) SetKind(kind Kind) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateRemoved || p.kind == kind {
		return
	}
	p.kind = kind
	p.touchLocked()
}

// Grant gives principals matched by (typ, name) the level. The name is
// normalized by the variant first, so password roles take the plaintext.
// Granting an existing role changes its level. Returns the role, or nil if
// the protection is removed.
func (p *Protection) Grant(typ RoleType, name string, level access.Level) *Role {
	if info, ok := LookupType(typ); ok && info.Normalize != nil {
		name = info.Normalize(name)
	}
	return p.AddRole(NewRole(p, typ, name, level))
}

// AddRole attaches r. If a role with the same key already exists, its level
// is updated instead and the existing role is returned.
func (p *Protection) AddRole(r *Role) *Role {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateRemoved {
		return nil
	}
	key := r.Key()
	if existing, ok := p.roles[key]; ok {
		if existing.setAccess(r.Access()) {
			p.touchLocked()
		}
		return existing
	}
	r.protection = p
	p.roles[key] = r
	p.dropRevokedLocked(key)
	p.touchLocked()
	return r
}

// Revoke detaches the role (typ, name). The delete is issued on the next
// save. Returns false if no such role exists.
func (p *Protection) Revoke(typ RoleType, name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := roleKey(typ, name)
	r, ok := p.roles[key]
	if !ok && typ == PasswordRole {
		key = roleKey(typ, HashPassword(name))
		r, ok = p.roles[key]
	}
	if !ok || p.state == StateRemoved {
		return false
	}
	delete(p.roles, key)
	p.revoked = append(p.revoked, r)
	p.touchLocked()
	return true
}

func (p *Protection) dropRevokedLocked(key string) {
	kept := p.revoked[:0]
	for _, r := range p.revoked {
		if r.Key() != key {
			kept = append(kept, r)
		}
	}
	p.revoked = kept
}

// detach removes r from the role set without scheduling a delete.
func (p *Protection) detach(r *Role) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cur, ok := p.roles[r.Key()]; ok && cur == r {
		delete(p.roles, r.Key())
	}
}

// Role returns the role (typ, name), if attached.
func (p *Protection) Role(typ RoleType, name string) (*Role, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	r, ok := p.roles[roleKey(typ, name)]
	return r, ok
}

// Roles returns the attached roles ordered by type and name.
func (p *Protection) Roles() []*Role {
	p.mu.RLock()
	out := make([]*Role, 0, len(p.roles))
	for _, r := range p.roles {
		out = append(out, r)
	}
	p.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].typ != out[j].typ {
			return out[i].typ < out[j].typ
		}
		return out[i].name < out[j].name
	})
	return out
}

// Record returns a snapshot of the protection and its roles.
func (p *Protection) Record() *Record {
	p.mu.RLock()
	rec := p.recordLocked()
	p.mu.RUnlock()
	for _, r := range p.Roles() {
		rec.Roles = append(rec.Roles, r.Record())
	}
	return rec
}

func (p *Protection) recordLocked() *Record {
	return &Record{
		ID:        p.id,
		Owner:     p.owner,
		Kind:      p.kind,
		Location:  p.location,
		CreatedAt: p.createdAt,
		UpdatedAt: p.updatedAt,
	}
}

// SaveImmediately writes the protection row (insert when never persisted,
// update otherwise), deletes revoked roles and saves dirty roles. The
// protection settles to unmodified only if it was not mutated meanwhile.
// Saving a clean or removed protection does nothing.
func (p *Protection) SaveImmediately(ctx context.Context) error {
	p.saveMu.Lock()
	defer p.saveMu.Unlock()

	p.mu.Lock()
	if !p.state.SaveNeeded() {
		p.mu.Unlock()
		return nil
	}
	if p.store == nil {
		p.mu.Unlock()
		return ErrNoStore
	}
	rec := p.recordLocked()
	insert := !p.persisted
	version := p.version
	revoked := p.revoked
	p.revoked = nil
	roles := make([]*Role, 0, len(p.roles))
	for _, r := range p.roles {
		roles = append(roles, r)
	}
	p.mu.Unlock()

	var err error
	if insert {
		err = p.store.InsertProtection(ctx, rec)
	} else {
		err = p.store.UpdateProtection(ctx, rec)
	}
	if err != nil {
		p.requeueRevoked(revoked)
		return fmt.Errorf("protection: save %s: %w", p.id, err)
	}

	p.mu.Lock()
	p.persisted = true
	p.mu.Unlock()

	var failed []*Role
	for _, r := range revoked {
		if rerr := r.Remove(ctx); rerr != nil {
			failed = append(failed, r)
			if err == nil {
				err = rerr
			}
		}
	}
	p.requeueRevoked(failed)

	for _, r := range roles {
		if serr := r.SaveImmediately(ctx); serr != nil && err == nil {
			err = serr
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		if p.state == StateNew {
			p.state = StateModified
		}
		return err
	}
	p.state = p.state.settled(p.version != version)
	return nil
}

func (p *Protection) requeueRevoked(rs []*Role) {
	if len(rs) == 0 {
		return
	}
	p.mu.Lock()
	p.revoked = append(rs, p.revoked...)
	p.mu.Unlock()
}

// Remove deletes the protection and its roles from storage. Later saves
// and removes do nothing.
func (p *Protection) Remove(ctx context.Context) error {
	p.saveMu.Lock()
	defer p.saveMu.Unlock()

	p.mu.RLock()
	removed := p.state == StateRemoved
	p.mu.RUnlock()
	if removed {
		return nil
	}
	if p.store == nil {
		return ErrNoStore
	}
	if err := p.store.DeleteProtection(ctx, p.id); err != nil {
		return fmt.Errorf("protection: remove %s: %w", p.id, err)
	}

	p.mu.Lock()
	p.state = StateRemoved
	roles := make([]*Role, 0, len(p.roles)+len(p.revoked))
	for _, r := range p.roles {
		roles = append(roles, r)
	}
	roles = append(roles, p.revoked...)
	p.revoked = nil
	p.mu.Unlock()

	for _, r := range roles {
		r.markRemoved()
	}
	return nil
}
