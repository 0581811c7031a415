package account

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/dmelnik/spotcore/pkg/core"
	"github.com/dmelnik/spotcore/pkg/util"
)

// Store is the durable side of the manager, implemented by pkg/storage
type Store interface {
	SaveUser(u *User) error
	DeleteUser(id uuid.UUID) error
}

// Manager manages all registered users in a thread-safe manner.
// In-memory maps are the source of truth for lookups; every mutation is
// persisted through Store before it becomes visible.
type Manager struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]*User
	byName map[string]*User
	byKey  map[string]*User

	store Store
	clock util.Clock
}

// NewManager creates a manager backed by the given store
func NewManager(store Store, clock util.Clock) *Manager {
	return &Manager{
		byID:   make(map[uuid.UUID]*User),
		byName: make(map[string]*User),
		byKey:  make(map[string]*User),
		store:  store,
		clock:  clock,
	}
}

// Restore loads previously persisted users (boot time only)
func (m *Manager) Restore(users []*User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range users {
		m.byID[u.ID] = u
		m.byName[u.Name] = u
		m.byKey[u.APIKey] = u
	}
}

// Register creates a new user with a fresh API key.
// An empty password is allowed (hash left empty).
// Returns ErrUserExists if the name is taken.
func (m *Manager) Register(name, password string, role Role) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byName[name]; exists {
		return nil, core.ErrUserExists
	}

	hash := ""
	if password != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		hash = string(h)
	}

	u := &User{
		ID:           uuid.New(),
		Name:         name,
		PasswordHash: hash,
		APIKey:       "key-" + uuid.NewString(),
		Role:         role,
		CreatedAt:    m.clock.Now().UnixNano(),
	}

	if err := m.store.SaveUser(u); err != nil {
		return nil, fmt.Errorf("persist user: %w", err)
	}

	m.byID[u.ID] = u
	m.byName[u.Name] = u
	m.byKey[u.APIKey] = u
	return u, nil
}

// Authenticate resolves an API key to its user
func (m *Manager) Authenticate(apiKey string) (*User, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.byKey[apiKey]
	return u, ok
}

// CheckPassword verifies a user's password against the stored bcrypt hash
func (m *Manager) CheckPassword(name, password string) (*User, bool) {
	m.mu.RLock()
	u, ok := m.byName[name]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, false
	}
	return u, true
}

// Get retrieves a user by id
func (m *Manager) Get(id uuid.UUID) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, core.ErrUserNotFound
	}
	return u, nil
}

// List returns all users sorted by name
func (m *Manager) List() []*User {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*User, 0, len(m.byID))
	for _, u := range m.byID {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Forget drops a user from the in-memory maps only. Used after the engine's
// RemoveUser, which already deleted the durable record in its atomic batch.
func (m *Manager) Forget(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return
	}
	delete(m.byID, id)
	delete(m.byName, u.Name)
	delete(m.byKey, u.APIKey)
}

// Remove deletes a user. The engine is responsible for cancelling the user's
// resting orders and archiving balances before calling this.
func (m *Manager) Remove(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.byID[id]
	if !ok {
		return core.ErrUserNotFound
	}
	if err := m.store.DeleteUser(id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	delete(m.byID, id)
	delete(m.byName, u.Name)
	delete(m.byKey, u.APIKey)
	return nil
}
