package protection

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/xraph/bastion/access"
)

// RoleType identifies a role variant. The value is persisted.
type RoleType int

// Built-in role variants.
const (
	PlayerRole   RoleType = 1
	GroupRole    RoleType = 2
	PasswordRole RoleType = 3
)

// Matcher reports whether a role named name accepts the principal.
type Matcher func(name string, p access.Principal) bool

// TypeInfo describes a registered role variant.
type TypeInfo struct {
	Type  RoleType
	Name  string
	Match Matcher

	// Normalize converts user input into the stored role name. Nil keeps
	// the name as given.
	Normalize func(string) string
}

var (
	typesMu sync.RWMutex
	types   = map[RoleType]TypeInfo{
		PlayerRole: {
			Type: PlayerRole,
			Name: "player",
			Match: func(name string, p access.Principal) bool {
				return strings.EqualFold(name, p.Name)
			},
		},
		GroupRole: {
			Type:  GroupRole,
			Name:  "group",
			Match: func(name string, p access.Principal) bool { return p.InGroup(name) },
		},
		PasswordRole: {
			Type: PasswordRole,
			Name: "password",
			Match: func(name string, p access.Principal) bool {
				for _, pw := range p.Passwords {
					if HashPassword(pw) == name {
						return true
					}
				}
				return false
			},
			Normalize: HashPassword,
		},
	}
)

// RegisterType adds a role variant. It fails if the type or name is taken.
func RegisterType(info TypeInfo) error {
	if info.Match == nil || info.Name == "" {
		return fmt.Errorf("protection: role type %d needs a name and matcher", info.Type)
	}
	typesMu.Lock()
	defer typesMu.Unlock()
	for t, existing := range types {
		if t == info.Type || strings.EqualFold(existing.Name, info.Name) {
			return fmt.Errorf("protection: role type %d (%s) already registered", info.Type, info.Name)
		}
	}
	types[info.Type] = info
	return nil
}

// LookupType returns the registered info for t.
func LookupType(t RoleType) (TypeInfo, bool) {
	typesMu.RLock()
	defer typesMu.RUnlock()
	info, ok := types[t]
	return info, ok
}

// ParseRoleType resolves a variant by its registered name.
func ParseRoleType(s string) (RoleType, error) {
	typesMu.RLock()
	defer typesMu.RUnlock()
	for t, info := range types {
		if strings.EqualFold(info.Name, strings.TrimSpace(s)) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("protection: unknown role type %q", s)
}

// RegisteredTypes returns all registered variants ordered by type.
func RegisteredTypes() []TypeInfo {
	typesMu.RLock()
	defer typesMu.RUnlock()
	out := make([]TypeInfo, 0, len(types))
	for _, info := range types {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

func (t RoleType) String() string {
	if info, ok := LookupType(t); ok {
		return info.Name
	}
	return fmt.Sprintf("type(%d)", int(t))
}

// HashPassword returns the stored name of a password role.
func HashPassword(pw string) string {
	sum := sha256.Sum256([]byte(pw))
	return hex.EncodeToString(sum[:])
}

// Role grants an access level on one protection to every principal its
// variant matches.
type Role struct {
	saveMu sync.Mutex

	mu         sync.RWMutex
	protection *Protection
	typ        RoleType
	name       string
	level      access.Level
	state      State
	version    uint64
}

// NewRole creates an unsaved role. name is stored as given; use
// Protection.Grant to apply the variant's normalization.
func NewRole(p *Protection, typ RoleType, name string, level access.Level) *Role {
	return &Role{protection: p, typ: typ, name: name, level: level, state: StateNew}
}

// restoreRole builds a role loaded from storage.
func restoreRole(p *Protection, rec RoleRecord) *Role {
	return &Role{protection: p, typ: rec.Type, name: rec.Name, level: rec.Access, state: StateUnmodified}
}

// Protection returns the owning protection.
func (r *Role) Protection() *Protection { return r.protection }

// Type returns the role variant.
func (r *Role) Type() RoleType { return r.typ }

// Name returns the role name.
func (r *Role) Name() string { return r.name }

// Access returns the granted level.
func (r *Role) Access() access.Level {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.level
}

// State returns the lifecycle state.
func (r *Role) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// IsSaveNeeded reports whether the role is new or modified.
func (r *Role) IsSaveNeeded() bool { return r.State().SaveNeeded() }

// Key identifies the role within its protection. It ignores access and state.
func (r *Role) Key() string { return roleKey(r.typ, r.name) }

func roleKey(t RoleType, name string) string {
	return fmt.Sprintf("%d:%s", int(t), NameKey(name))
}

// NameKey folds a role name for comparison. Stores key roles on it so that
// names differing only in case address the same row.
func NameKey(name string) string { return strings.ToLower(name) }

// Equal compares variant, name, access level and lifecycle state. Two roles
// that differ only in persistence state are not equal.
func (r *Role) Equal(o *Role) bool {
	if r == nil || o == nil {
		return r == o
	}
	if r == o {
		return true
	}
	r.mu.RLock()
	level, state := r.level, r.state
	r.mu.RUnlock()
	o.mu.RLock()
	defer o.mu.RUnlock()
	return r.typ == o.typ && r.name == o.name && level == o.level && state == o.state
}

// Matches reports whether the role's variant accepts the principal.
func (r *Role) Matches(p access.Principal) bool {
	info, ok := LookupType(r.typ)
	if !ok {
		return false
	}
	return info.Match(r.name, p)
}

func (r *Role) String() string {
	return fmt.Sprintf("%s role %q access=%s", r.typ, r.name, r.Access())
}

// setAccess changes the granted level and marks the role modified.
// Returns false when nothing changed.
func (r *Role) setAccess(level access.Level) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateRemoved || r.level == level {
		return false
	}
	r.level = level
	r.state = r.state.touched()
	r.version++
	return true
}

// Record returns the persisted form of the role.
func (r *Role) Record() RoleRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.recordLocked()
}

func (r *Role) recordLocked() RoleRecord {
	rec := RoleRecord{Type: r.typ, Name: r.name, Access: r.level}
	if r.protection != nil {
		rec.ProtectionID = r.protection.ID()
	}
	return rec
}

func (r *Role) store() Store {
	if r.protection == nil {
		return nil
	}
	return r.protection.store
}

// SaveImmediately upserts the role when it has unpersisted changes.
// Saving a removed or clean role does nothing.
func (r *Role) SaveImmediately(ctx context.Context) error {
	r.saveMu.Lock()
	defer r.saveMu.Unlock()

	r.mu.RLock()
	if !r.state.SaveNeeded() {
		r.mu.RUnlock()
		return nil
	}
	rec := r.recordLocked()
	version := r.version
	r.mu.RUnlock()

	s := r.store()
	if s == nil {
		return ErrNoStore
	}
	if err := s.SaveRole(ctx, &rec); err != nil {
		return fmt.Errorf("protection: save role %s/%s: %w", r.typ, r.name, err)
	}

	r.mu.Lock()
	r.state = r.state.settled(r.version != version)
	r.mu.Unlock()
	return nil
}

// Remove deletes the role from storage and detaches it from its
// protection. A second call does nothing.
func (r *Role) Remove(ctx context.Context) error {
	r.saveMu.Lock()
	defer r.saveMu.Unlock()

	r.mu.RLock()
	if r.state == StateRemoved {
		r.mu.RUnlock()
		return nil
	}
	rec := r.recordLocked()
	r.mu.RUnlock()

	s := r.store()
	if s == nil {
		return ErrNoStore
	}
	if err := s.DeleteRole(ctx, rec.ProtectionID, rec.Type, rec.Name); err != nil {
		return fmt.Errorf("protection: remove role %s/%s: %w", r.typ, r.name, err)
	}
	r.markRemoved()
	if r.protection != nil {
		r.protection.detach(r)
	}
	return nil
}

func (r *Role) markRemoved() {
	r.mu.Lock()
	r.state = StateRemoved
	r.mu.Unlock()
}
