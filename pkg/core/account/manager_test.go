package account_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmelnik/spotcore/pkg/core"
	"github.com/dmelnik/spotcore/pkg/core/account"
	"github.com/dmelnik/spotcore/pkg/util"
)

type memUserStore struct {
	fail    error
	saved   map[uuid.UUID]account.User
	deleted []uuid.UUID
}

func newMemUserStore() *memUserStore {
	return &memUserStore{saved: make(map[uuid.UUID]account.User)}
}

func (s *memUserStore) SaveUser(u *account.User) error {
	if s.fail != nil {
		return s.fail
	}
	s.saved[u.ID] = *u
	return nil
}

func (s *memUserStore) DeleteUser(id uuid.UUID) error {
	if s.fail != nil {
		return s.fail
	}
	s.deleted = append(s.deleted, id)
	return nil
}

func newManager() (*account.Manager, *memUserStore) {
	store := newMemUserStore()
	return account.NewManager(store, util.NewManualClock(time.Unix(1700000000, 0))), store
}

func TestRegister(t *testing.T) {
	m, store := newManager()

	u, err := m.Register("alice", "s3cret", account.RoleUser)
	require.NoError(t, err)

	assert.Equal(t, "alice", u.Name)
	assert.True(t, strings.HasPrefix(u.APIKey, "key-"), "api key %q", u.APIKey)
	assert.NotEmpty(t, u.PasswordHash)
	assert.NotEqual(t, "s3cret", u.PasswordHash)
	assert.Contains(t, store.saved, u.ID, "registration must persist")

	got, err := m.Get(u.ID)
	require.NoError(t, err)
	assert.Equal(t, u, got)
}

func TestRegisterDuplicateName(t *testing.T) {
	m, _ := newManager()
	_, err := m.Register("alice", "", account.RoleUser)
	require.NoError(t, err)

	_, err = m.Register("alice", "other", account.RoleUser)
	assert.ErrorIs(t, err, core.ErrUserExists)
}

func TestRegisterStoreFailure(t *testing.T) {
	m, store := newManager()
	store.fail = errors.New("disk full")

	_, err := m.Register("alice", "", account.RoleUser)
	require.Error(t, err)

	// The name must not be burned by the failed attempt
	store.fail = nil
	_, err = m.Register("alice", "", account.RoleUser)
	assert.NoError(t, err)
}

func TestAuthenticate(t *testing.T) {
	m, _ := newManager()
	u, err := m.Register("alice", "", account.RoleUser)
	require.NoError(t, err)

	got, ok := m.Authenticate(u.APIKey)
	require.True(t, ok)
	assert.Equal(t, u.ID, got.ID)

	_, ok = m.Authenticate("key-" + uuid.NewString())
	assert.False(t, ok)
}

func TestCheckPassword(t *testing.T) {
	m, _ := newManager()
	_, err := m.Register("alice", "s3cret", account.RoleUser)
	require.NoError(t, err)

	_, ok := m.CheckPassword("alice", "s3cret")
	assert.True(t, ok)
	_, ok = m.CheckPassword("alice", "wrong")
	assert.False(t, ok)
	_, ok = m.CheckPassword("bob", "s3cret")
	assert.False(t, ok)
}

func TestEmptyPasswordNeverAuthenticates(t *testing.T) {
	m, _ := newManager()
	_, err := m.Register("alice", "", account.RoleUser)
	require.NoError(t, err)

	_, ok := m.CheckPassword("alice", "")
	assert.False(t, ok, "empty hash must not match any password")
}

func TestRestore(t *testing.T) {
	m, _ := newManager()
	u := &account.User{
		ID:     uuid.New(),
		Name:   "alice",
		APIKey: "key-" + uuid.NewString(),
		Role:   account.RoleAdmin,
	}
	m.Restore([]*account.User{u})

	got, ok := m.Authenticate(u.APIKey)
	require.True(t, ok)
	assert.Equal(t, account.RoleAdmin, got.Role)
}

func TestForget(t *testing.T) {
	m, store := newManager()
	u, err := m.Register("alice", "", account.RoleUser)
	require.NoError(t, err)

	m.Forget(u.ID)

	_, err = m.Get(u.ID)
	assert.ErrorIs(t, err, core.ErrUserNotFound)
	_, ok := m.Authenticate(u.APIKey)
	assert.False(t, ok)
	assert.Empty(t, store.deleted, "Forget must not touch the store")

	m.Forget(u.ID) // repeat is a no-op
}

func TestRemove(t *testing.T) {
	m, store := newManager()
	u, err := m.Register("alice", "", account.RoleUser)
	require.NoError(t, err)

	require.NoError(t, m.Remove(u.ID))
	assert.Equal(t, []uuid.UUID{u.ID}, store.deleted)
	_, err = m.Get(u.ID)
	assert.ErrorIs(t, err, core.ErrUserNotFound)

	assert.ErrorIs(t, m.Remove(u.ID), core.ErrUserNotFound)
}

func TestListSortedByName(t *testing.T) {
	m, _ := newManager()
	for _, name := range []string{"carol", "alice", "bob"} {
		_, err := m.Register(name, "", account.RoleUser)
		require.NoError(t, err)
	}

	users := m.List()
	require.Len(t, users, 3)
	assert.Equal(t, "alice", users[0].Name)
	assert.Equal(t, "bob", users[1].Name)
	assert.Equal(t, "carol", users[2].Name)
}
