package auth

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memStore is an in-memory Store for exercising the service without a
// database.
type memStore struct {
	mu          sync.Mutex
	users       map[string]*User
	roles       map[string]*Role
	assignments map[string]map[string]bool
}

func newMemStore() *memStore {
	return &memStore{
		users:       make(map[string]*User),
		roles:       make(map[string]*Role),
		assignments: make(map[string]map[string]bool),
	}
}

func (m *memStore) Users(context.Context) UserStore { return (*memUserStore)(m) }
func (m *memStore) Roles(context.Context) RoleStore { return (*memRoleStore)(m) }

type memUserStore memStore

func (m *memUserStore) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return ErrAlreadyExists
		}
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memUserStore) Find(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUserStore) FindByLogin(_ context.Context, login string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == login || u.Email == strings.ToLower(login) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memUserStore) List(_ context.Context) ([]*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*User, 0, len(m.users))
	for _, u := range m.users {
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (m *memUserStore) Update(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.users[u.ID]
	if !ok {
		return ErrNotFound
	}
	stored.Username = u.Username
	stored.Email = u.Email
	stored.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memUserStore) UpdatePassword(_ context.Context, userID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (m *memUserStore) SaveRefreshToken(_ context.Context, userID, refreshToken string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.RefreshToken = refreshToken
	u.RefreshTokenExpiresAt = expiresAt
	return nil
}

func (m *memUserStore) ClearRefreshToken(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.RefreshToken = ""
	u.RefreshTokenExpiresAt = time.Time{}
	return nil
}

func (m *memUserStore) RollSecurityStamp(_ context.Context, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return "", ErrNotFound
	}
	u.SecurityStamp = uuid.NewString()
	return u.SecurityStamp, nil
}

func (m *memUserStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return ErrNotFound
	}
	delete(m.users, id)
	delete(m.assignments, id)
	return nil
}

type memRoleStore memStore

func (m *memRoleStore) Create(_ context.Context, role *Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[role.Name]; ok {
		return ErrAlreadyExists
	}
	role.CreatedAt = time.Now().UTC()
	cp := *role
	m.roles[role.Name] = &cp
	return nil
}

func (m *memRoleStore) FindByName(_ context.Context, name string) (*Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[name]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *role
	return &cp, nil
}

func (m *memRoleStore) List(_ context.Context) ([]*Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Role, 0, len(m.roles))
	for _, role := range m.roles {
		cp := *role
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memRoleStore) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[name]; !ok {
		return ErrNotFound
	}
	delete(m.roles, name)
	for _, assigned := range m.assignments {
		delete(assigned, name)
	}
	return nil
}

func (m *memRoleStore) AssignToUser(_ context.Context, userID, roleName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[roleName]; !ok {
		return ErrNotFound
	}
	if _, ok := m.users[userID]; !ok {
		return ErrNotFound
	}
	if m.assignments[userID] == nil {
		m.assignments[userID] = make(map[string]bool)
	}
	m.assignments[userID][roleName] = true
	return nil
}

func (m *memRoleStore) RemoveFromUser(_ context.Context, userID, roleName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.assignments[userID][roleName] {
		return ErrNotFound
	}
	delete(m.assignments[userID], roleName)
	return nil
}

func (m *memRoleStore) RolesForUser(_ context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for name := range m.assignments[userID] {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}
