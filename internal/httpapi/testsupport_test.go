package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"authgate.org/internal/auth"
	"authgate.org/internal/token"
)

// fakeStore is an in-memory auth.Store for exercising the HTTP layer.
type fakeStore struct {
	mu          sync.Mutex
	users       map[string]*auth.User
	roles       map[string]*auth.Role
	assignments map[string]map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:       make(map[string]*auth.User),
		roles:       make(map[string]*auth.Role),
		assignments: make(map[string]map[string]bool),
	}
}

func (f *fakeStore) Users(context.Context) auth.UserStore { return (*fakeUserStore)(f) }
func (f *fakeStore) Roles(context.Context) auth.RoleStore { return (*fakeRoleStore)(f) }

type fakeUserStore fakeStore

func (f *fakeUserStore) Create(_ context.Context, u *auth.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return auth.ErrAlreadyExists
		}
	}
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *fakeUserStore) Find(_ context.Context, id string) (*auth.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserStore) FindByLogin(_ context.Context, login string) (*auth.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == login || u.Email == strings.ToLower(login) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (f *fakeUserStore) List(_ context.Context) ([]*auth.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*auth.User, 0, len(f.users))
	for _, u := range f.users {
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (f *fakeUserStore) Update(_ context.Context, u *auth.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.users[u.ID]
	if !ok {
		return auth.ErrNotFound
	}
	stored.Username = u.Username
	stored.Email = u.Email
	return nil
}

func (f *fakeUserStore) UpdatePassword(_ context.Context, userID, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return auth.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (f *fakeUserStore) SaveRefreshToken(_ context.Context, userID, refreshToken string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return auth.ErrNotFound
	}
	u.RefreshToken = refreshToken
	u.RefreshTokenExpiresAt = expiresAt
	return nil
}

func (f *fakeUserStore) ClearRefreshToken(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return auth.ErrNotFound
	}
	u.RefreshToken = ""
	u.RefreshTokenExpiresAt = time.Time{}
	return nil
}

func (f *fakeUserStore) RollSecurityStamp(_ context.Context, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return "", auth.ErrNotFound
	}
	u.SecurityStamp = uuid.NewString()
	return u.SecurityStamp, nil
}

func (f *fakeUserStore) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[id]; !ok {
		return auth.ErrNotFound
	}
	delete(f.users, id)
	delete(f.assignments, id)
	return nil
}

type fakeRoleStore fakeStore

func (f *fakeRoleStore) Create(_ context.Context, role *auth.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.roles[role.Name]; ok {
		return auth.ErrAlreadyExists
	}
	cp := *role
	f.roles[role.Name] = &cp
	return nil
}

func (f *fakeRoleStore) FindByName(_ context.Context, name string) (*auth.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	role, ok := f.roles[name]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *role
	return &cp, nil
}

func (f *fakeRoleStore) List(_ context.Context) ([]*auth.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*auth.Role, 0, len(f.roles))
	for _, role := range f.roles {
		cp := *role
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeRoleStore) Delete(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.roles[name]; !ok {
		return auth.ErrNotFound
	}
	delete(f.roles, name)
	for _, assigned := range f.assignments {
		delete(assigned, name)
	}
	return nil
}

func (f *fakeRoleStore) AssignToUser(_ context.Context, userID, roleName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.roles[roleName]; !ok {
		return auth.ErrNotFound
	}
	if f.assignments[userID] == nil {
		f.assignments[userID] = make(map[string]bool)
	}
	f.assignments[userID][roleName] = true
	return nil
}

func (f *fakeRoleStore) RemoveFromUser(_ context.Context, userID, roleName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.assignments[userID], roleName)
	return nil
}

func (f *fakeRoleStore) RolesForUser(_ context.Context, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for name := range f.assignments[userID] {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

type testEnv struct {
	api     *API
	handler http.Handler
	svc     *auth.Service
	store   *fakeStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	tokens, err := token.NewManager(token.Config{
		AccessSecret:  []byte("access-secret-for-tests-0123456789"),
		RefreshSecret: []byte("refresh-secret-for-tests-0123456789"),
		Issuer:        "authgate",
		Audience:      "authgate-api",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("token.NewManager: %v", err)
	}
	store := newFakeStore()
	svc := auth.NewService(store, tokens)
	api := New(Options{Auth: svc, Version: "test"})
	return &testEnv{api: api, handler: api.Handler(), svc: svc, store: store}
}

// seedUser registers an account and optionally grants roles.
func (e *testEnv) seedUser(t *testing.T, username, password string, roles ...string) *auth.User {
	t.Helper()
	ctx := context.Background()
	user, err := e.svc.Register(ctx, username, username+"@example.com", password)
	if err != nil {
		t.Fatalf("Register(%s): %v", username, err)
	}
	for _, role := range roles {
		if _, err := e.store.Roles(ctx).FindByName(ctx, role); err != nil {
			if _, err := e.svc.CreateRole(ctx, role); err != nil {
				t.Fatalf("CreateRole(%s): %v", role, err)
			}
		}
		if err := e.svc.AddRoleToUser(ctx, user.ID, role); err != nil {
			t.Fatalf("AddRoleToUser(%s, %s): %v", username, role, err)
		}
	}
	return user
}

// login performs a real login request and returns the response cookies.
func (e *testEnv) login(t *testing.T, username, password string) []*http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login",
		strings.NewReader(`{"login":"`+username+`","password":"`+password+`"}`))
	req.Header.Set("Content-Type", "application/json")
	e.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", rec.Code, rec.Body.String())
	}
	return rec.Result().Cookies()
}

func cookieByName(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}
