package protection

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/bastion/access"
	"github.com/xraph/bastion/id"
)

// recordingStore counts calls and can be told to fail.
type recordingStore struct {
	mu          sync.Mutex
	inserts     int
	updates     int
	deletes     int
	roleSaves   []RoleRecord
	roleDeletes []RoleRecord
	last        *Record
	fail        error
}

func (s *recordingStore) InsertProtection(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.inserts++
	s.last = rec
	return nil
}

func (s *recordingStore) UpdateProtection(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.updates++
	s.last = rec
	return nil
}

func (s *recordingStore) DeleteProtection(_ context.Context, _ id.ProtectionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.deletes++
	return nil
}

func (s *recordingStore) SaveRole(_ context.Context, rec *RoleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.roleSaves = append(s.roleSaves, *rec)
	return nil
}

func (s *recordingStore) DeleteRole(_ context.Context, protID id.ProtectionID, typ RoleType, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.roleDeletes = append(s.roleDeletes, RoleRecord{ProtectionID: protID, Type: typ, Name: name})
	return nil
}

func (s *recordingStore) GetProtection(context.Context, id.ProtectionID) (*Record, error) {
	return nil, ErrNotFound
}

func (s *recordingStore) GetProtectionAt(context.Context, Location) (*Record, error) {
	return nil, ErrNotFound
}

func (s *recordingStore) ListProtections(context.Context, *ListFilter) ([]*Record, error) {
	return nil, nil
}

func (s *recordingStore) CountProtections(context.Context, *ListFilter) (int64, error) {
	return 0, nil
}

func (s *recordingStore) setFail(err error) {
	s.mu.Lock()
	s.fail = err
	s.mu.Unlock()
}

var chest = Location{World: "world", X: 10, Y: 64, Z: -3}

func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	s := &recordingStore{}
	p := New(s, "Alice", KindPrivate, chest)

	assert.Equal(t, StateNew, p.State())
	assert.True(t, p.IsSaveNeeded())

	// Mutating a new protection keeps it new.
	p.SetKind(KindPublic)
	assert.Equal(t, StateNew, p.State())

	require.NoError(t, p.SaveImmediately(ctx))
	assert.Equal(t, StateUnmodified, p.State())
	assert.False(t, p.IsSaveNeeded())
	assert.Equal(t, 1, s.inserts)

	// Saving a clean entity is a no-op.
	require.NoError(t, p.SaveImmediately(ctx))
	assert.Equal(t, 1, s.inserts)
	assert.Equal(t, 0, s.updates)

	p.SetOwner("Bob")
	assert.Equal(t, StateModified, p.State())
	require.NoError(t, p.SaveImmediately(ctx))
	assert.Equal(t, 1, s.updates)
	assert.Equal(t, "Bob", s.last.Owner)
	assert.Equal(t, StateUnmodified, p.State())

	require.NoError(t, p.Remove(ctx))
	assert.Equal(t, StateRemoved, p.State())
	assert.False(t, p.IsSaveNeeded())

	// Removed is terminal.
	p.SetOwner("Carol")
	assert.Equal(t, StateRemoved, p.State())
	assert.Equal(t, "Bob", p.Owner())
	require.NoError(t, p.SaveImmediately(ctx))
	assert.Equal(t, 1, s.updates)
}

func TestRemoveTwiceDeletesOnce(t *testing.T) {
	ctx := context.Background()
	s := &recordingStore{}
	p := New(s, "Alice", KindPrivate, chest)
	r := p.Grant(PlayerRole, "Bob", access.Full)

	require.NoError(t, p.Remove(ctx))
	require.NoError(t, p.Remove(ctx))
	assert.Equal(t, 1, s.deletes)
	assert.Equal(t, StateRemoved, r.State())

	// A role removed with its protection does not issue its own delete.
	require.NoError(t, r.Remove(ctx))
	assert.Empty(t, s.roleDeletes)
}

func TestRoleRemoveTwiceDeletesOnce(t *testing.T) {
	ctx := context.Background()
	s := &recordingStore{}
	p := New(s, "Alice", KindPrivate, chest)
	r := p.Grant(GroupRole, "Mods", access.Deposit)

	require.NoError(t, r.Remove(ctx))
	require.NoError(t, r.Remove(ctx))
	assert.Len(t, s.roleDeletes, 1)
	assert.Equal(t, StateRemoved, r.State())
	assert.False(t, r.IsSaveNeeded())

	_, ok := p.Role(GroupRole, "Mods")
	assert.False(t, ok, "removed role stays attached")
}

func TestSaveFailureKeepsDirty(t *testing.T) {
	ctx := context.Background()
	s := &recordingStore{}
	p := New(s, "Alice", KindPrivate, chest)

	s.setFail(errors.New("disk full"))
	err := p.SaveImmediately(ctx)
	require.Error(t, err)
	assert.Equal(t, StateNew, p.State())
	assert.True(t, p.IsSaveNeeded())

	s.setFail(nil)
	require.NoError(t, p.SaveImmediately(ctx))
	assert.Equal(t, 1, s.inserts)
	assert.Equal(t, StateUnmodified, p.State())
}

func TestRoleFailureAfterInsertUpdatesNextTime(t *testing.T) {
	ctx := context.Background()
	s := &failingRoleStore{recordingStore: &recordingStore{}, failRoles: true}
	p := New(s, "Alice", KindPrivate, chest)
	p.Grant(PlayerRole, "Bob", access.Full)

	require.Error(t, p.SaveImmediately(ctx))
	assert.Equal(t, StateModified, p.State(), "row exists, so the protection is no longer new")

	s.failRoles = false
	require.NoError(t, p.SaveImmediately(ctx))
	assert.Equal(t, 1, s.inserts)
	assert.Equal(t, 1, s.updates)
	assert.Equal(t, StateUnmodified, p.State())
}

type failingRoleStore struct {
	*recordingStore
	failRoles bool
}

func (s *failingRoleStore) SaveRole(ctx context.Context, rec *RoleRecord) error {
	if s.failRoles {
		return errors.New("constraint")
	}
	return s.recordingStore.SaveRole(ctx, rec)
}

func TestGrantAndRevoke(t *testing.T) {
	ctx := context.Background()
	s := &recordingStore{}
	p := New(s, "Alice", KindPrivate, chest)

	bob := p.Grant(PlayerRole, "Bob", access.Deposit)
	require.NotNil(t, bob)
	require.NoError(t, p.SaveImmediately(ctx))
	assert.Len(t, s.roleSaves, 1)
	assert.Equal(t, StateUnmodified, bob.State())

	// Regranting with a different case updates the existing role.
	same := p.Grant(PlayerRole, "BOB", access.Full)
	assert.Same(t, bob, same)
	assert.Equal(t, access.Full, bob.Access())
	assert.Equal(t, "Bob", bob.Name())
	assert.Equal(t, StateModified, bob.State())
	assert.Equal(t, StateModified, p.State())

	require.NoError(t, p.SaveImmediately(ctx))
	assert.Len(t, s.roleSaves, 2)
	assert.Equal(t, access.Full, s.roleSaves[1].Access)

	assert.True(t, p.Revoke(PlayerRole, "bob"))
	assert.False(t, p.Revoke(PlayerRole, "bob"))
	assert.Empty(t, p.Roles())
	assert.Empty(t, s.roleDeletes, "revoke is deferred to the next save")

	require.NoError(t, p.SaveImmediately(ctx))
	require.Len(t, s.roleDeletes, 1)
	assert.Equal(t, "Bob", s.roleDeletes[0].Name)
	assert.Equal(t, StateRemoved, bob.State())
}

func TestRegrantAfterRevokeCancelsDelete(t *testing.T) {
	ctx := context.Background()
	s := &recordingStore{}
	p := New(s, "Alice", KindPrivate, chest)
	p.Grant(PlayerRole, "Bob", access.Deposit)
	require.NoError(t, p.SaveImmediately(ctx))

	p.Revoke(PlayerRole, "Bob")
	p.Grant(PlayerRole, "Bob", access.Full)
	require.NoError(t, p.SaveImmediately(ctx))
	assert.Empty(t, s.roleDeletes)
	assert.Equal(t, access.Full, s.roleSaves[len(s.roleSaves)-1].Access)
}

func TestPasswordRole(t *testing.T) {
	p := New(&recordingStore{}, "Alice", KindPassword, chest)
	r := p.Grant(PasswordRole, "hunter2", access.Full)

	assert.Equal(t, HashPassword("hunter2"), r.Name())
	assert.True(t, r.Matches(access.Principal{Name: "Eve", Passwords: []string{"nope", "hunter2"}}))
	assert.False(t, r.Matches(access.Principal{Name: "Eve", Passwords: []string{"hunter3"}}))
	assert.False(t, r.Matches(access.Principal{Name: "hunter2"}))

	assert.True(t, p.Revoke(PasswordRole, "hunter2"))
}

func TestRoleMatching(t *testing.T) {
	p := New(&recordingStore{}, "Alice", KindPrivate, chest)
	player := p.Grant(PlayerRole, "Bob", access.Deposit)
	group := p.Grant(GroupRole, "Mods", access.Full)

	bob := access.Principal{Name: "bob"}
	mod := access.Principal{Name: "Carol", Groups: []string{"mods"}}

	assert.True(t, player.Matches(bob))
	assert.False(t, player.Matches(mod))
	assert.True(t, group.Matches(mod))
	assert.False(t, group.Matches(bob))

	unknown := NewRole(p, RoleType(99), "x", access.Full)
	assert.False(t, unknown.Matches(access.Principal{Name: "x"}))
}

func TestRoleEqualityIncludesState(t *testing.T) {
	p := New(&recordingStore{}, "Alice", KindPrivate, chest)
	a := NewRole(p, PlayerRole, "Bob", access.Full)
	b := NewRole(p, PlayerRole, "Bob", access.Full)
	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Key(), b.Key())

	restored := restoreRole(p, RoleRecord{Type: PlayerRole, Name: "Bob", Access: access.Full})
	assert.False(t, a.Equal(restored), "state participates in equality")
	assert.Equal(t, a.Key(), restored.Key(), "key ignores state")

	c := NewRole(p, PlayerRole, "Bob", access.Deposit)
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(nil))
}

func TestRegisterType(t *testing.T) {
	const towny RoleType = 40
	err := RegisterType(TypeInfo{
		Type: towny,
		Name: "town",
		Match: func(name string, p access.Principal) bool {
			return p.InGroup("town:" + name)
		},
	})
	require.NoError(t, err)

	assert.Error(t, RegisterType(TypeInfo{Type: towny, Name: "other", Match: func(string, access.Principal) bool { return false }}))
	assert.Error(t, RegisterType(TypeInfo{Type: 41, Name: "player", Match: func(string, access.Principal) bool { return false }}))
	assert.Error(t, RegisterType(TypeInfo{Type: 42, Name: "nomatch"}))

	got, err := ParseRoleType("TOWN")
	require.NoError(t, err)
	assert.Equal(t, towny, got)
	assert.Equal(t, "town", towny.String())

	p := New(&recordingStore{}, "Alice", KindPrivate, chest)
	r := p.Grant(towny, "riverwood", access.Deposit)
	assert.True(t, r.Matches(access.Principal{Name: "Dan", Groups: []string{"town:riverwood"}}))
}

func TestRestoreRoundTrip(t *testing.T) {
	p := New(&recordingStore{}, "Alice", KindPublic, chest)
	p.Grant(PlayerRole, "Bob", access.Deposit)
	p.Grant(GroupRole, "Mods", access.Full)

	rec := p.Record()
	require.Len(t, rec.Roles, 2)
	for _, rr := range rec.Roles {
		assert.Equal(t, p.ID(), rr.ProtectionID)
	}

	q := Restore(p.Store(), rec)
	assert.Equal(t, p.ID().String(), q.ID().String())
	assert.Equal(t, p.Owner(), q.Owner())
	assert.Equal(t, p.Kind(), q.Kind())
	assert.Equal(t, p.Location(), q.Location())
	assert.Equal(t, StateUnmodified, q.State())
	for _, r := range q.Roles() {
		assert.Equal(t, StateUnmodified, r.State())
		orig, ok := p.Role(r.Type(), r.Name())
		require.True(t, ok)
		assert.Equal(t, orig.Access(), r.Access())
	}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, KindPrivate, k)

	k, err = ParseKind("Password")
	require.NoError(t, err)
	assert.Equal(t, KindPassword, k)

	_, err = ParseKind("donation")
	assert.Error(t, err)
}

func TestNoStore(t *testing.T) {
	p := New(nil, "Alice", KindPrivate, chest)
	assert.ErrorIs(t, p.SaveImmediately(context.Background()), ErrNoStore)
	assert.ErrorIs(t, p.Remove(context.Background()), ErrNoStore)
	assert.True(t, p.IsSaveNeeded())
}

func TestConcurrentMutationDuringSave(t *testing.T) {
	ctx := context.Background()
	s := &blockingStore{recordingStore: &recordingStore{}, entered: make(chan struct{}), release: make(chan struct{})}
	p := New(s, "Alice", KindPrivate, chest)

	done := make(chan error, 1)
	go func() { done <- p.SaveImmediately(ctx) }()

	<-s.entered
	p.SetOwner("Bob")
	close(s.release)
	require.NoError(t, <-done)

	assert.Equal(t, StateModified, p.State(), "mutation during save keeps the entity dirty")
	assert.Equal(t, "Alice", s.last.Owner)

	require.NoError(t, p.SaveImmediately(ctx))
	assert.Equal(t, "Bob", s.last.Owner)
	assert.Equal(t, StateUnmodified, p.State())
}

type blockingStore struct {
	*recordingStore
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (s *blockingStore) InsertProtection(ctx context.Context, rec *Record) error {
	s.once.Do(func() {
		close(s.entered)
		<-s.release
	})
	return s.recordingStore.InsertProtection(ctx, rec)
}
