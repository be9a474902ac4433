package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"authgate.org/internal/ids"
	"authgate.org/internal/token"
)

// dummyHash is compared against when the login identifier resolves to no
// account, so the miss path costs the same as a wrong password.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Service owns the credential lifecycle: login, refresh rotation, logout and
// per-request access authentication. All state lives in the Store.
type Service struct {
	store  Store
	tokens *token.Manager
	now    func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a Service over the given store and codec.
func NewService(store Store, tokens *token.Manager, opts ...Option) *Service {
	svc := &Service{store: store, tokens: tokens, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Login authenticates an email-or-username plus password and, on success,
// issues a fresh access/refresh pair and persists the refresh credential.
// Unknown identifier and wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, login, password string) (TokenPair, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return TokenPair{}, ErrInvalidCredentials
	}
	user, err := s.store.Users(ctx).FindByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			_ = VerifyPassword(dummyHash, password)
			return TokenPair{}, ErrInvalidCredentials
		}
		return TokenPair{}, err
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return TokenPair{}, ErrInvalidCredentials
	}
	return s.issuePair(ctx, user)
}

// Refresh exchanges a presented refresh credential for a fresh pair. The
// previous credential stops working on every successful rotation.
func (s *Service) Refresh(ctx context.Context, presented string) (TokenPair, error) {
	presented = strings.TrimSpace(presented)
	subject, err := s.tokens.ReadExpiredSubject(presented)
	if err != nil || subject == "" {
		return TokenPair{}, ErrInvalidRefreshToken
	}
	user, err := s.store.Users(ctx).Find(ctx, subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, ErrUserNotFound
		}
		return TokenPair{}, err
	}
	if user.RefreshToken == "" || !tokensEqual(user.RefreshToken, presented) {
		return TokenPair{}, ErrInvalidRefreshToken
	}
	if s.now().UTC().After(user.RefreshTokenExpiresAt) {
		return TokenPair{}, ErrInvalidRefreshToken
	}
	return s.issuePair(ctx, user)
}

// Logout clears the stored refresh credential and rolls the security stamp,
// which immediately invalidates every outstanding access credential. The
// operation is best-effort: logging out an unknown user is not an error.
func (s *Service) Logout(ctx context.Context, userID string) error {
	users := s.store.Users(ctx)
	if _, err := users.Find(ctx, userID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if err := users.ClearRefreshToken(ctx, userID); err != nil {
		return err
	}
	_, err := users.RollSecurityStamp(ctx, userID)
	return err
}

// AuthenticateAccess verifies an access credential, resolves its principal
// and cross-checks the embedded security stamp against the stored one.
// Verification and lookup failures surface as soft errors the middleware
// passes through; a stamp mismatch is ErrStaleCredential and must hard-fail
// the request.
func (s *Service) AuthenticateAccess(ctx context.Context, raw string) (Principal, error) {
	subject, err := s.tokens.Verify(raw)
	if err != nil {
		return Principal{}, token.ErrInvalidToken
	}
	user, err := s.store.Users(ctx).Find(ctx, subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Principal{}, ErrUserNotFound
		}
		return Principal{}, err
	}
	stamp, ok := s.tokens.ReadSecurityStamp(raw)
	if !ok || stamp != user.SecurityStamp {
		return Principal{}, ErrStaleCredential
	}
	roles, err := s.store.Roles(ctx).RolesForUser(ctx, user.ID)
	if err != nil {
		return Principal{}, err
	}
	return Principal{User: user, Roles: roles}, nil
}

func (s *Service) issuePair(ctx context.Context, user *User) (TokenPair, error) {
	roles, err := s.store.Roles(ctx).RolesForUser(ctx, user.ID)
	if err != nil {
		return TokenPair{}, err
	}
	access, accessExp, err := s.tokens.IssueAccess(user.ID, user.Email, user.Username, user.SecurityStamp, roles)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := s.tokens.IssueRefresh(user.ID)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.store.Users(ctx).SaveRefreshToken(ctx, user.ID, refresh, refreshExp); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func tokensEqual(stored, presented string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1
}

// Register creates a new account with a hashed password and a fresh security
// stamp.
func (s *Service) Register(ctx context.Context, username, email, password string) (*User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(strings.ToLower(email))
	if username == "" || email == "" || len(password) < 8 {
		return nil, ErrInvalidInput
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := &User{
		ID:            ids.New(),
		Username:      username,
		Email:         email,
		PasswordHash:  hash,
		SecurityStamp: uuid.NewString(),
	}
	if err := s.store.Users(ctx).Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// ChangePassword verifies the current password, stores a new hash and rolls
// the security stamp so outstanding credentials stop working.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	if len(next) < 8 {
		return ErrInvalidInput
	}
	users := s.store.Users(ctx)
	user, err := users.Find(ctx, userID)
	if err != nil {
		return err
	}
	if err := VerifyPassword(user.PasswordHash, current); err != nil {
		return ErrInvalidCredentials
	}
	hash, err := HashPassword(next)
	if err != nil {
		return err
	}
	if err := users.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}
	if err := users.ClearRefreshToken(ctx, userID); err != nil {
		return err
	}
	_, err = users.RollSecurityStamp(ctx, userID)
	return err
}

// Users returns all principals.
func (s *Service) Users(ctx context.Context) ([]*User, error) {
	return s.store.Users(ctx).List(ctx)
}

// User returns one principal by id.
func (s *Service) User(ctx context.Context, id string) (*User, error) {
	return s.store.Users(ctx).Find(ctx, id)
}

// UpdateUser persists username/email changes.
func (s *Service) UpdateUser(ctx context.Context, u *User) error {
	if u == nil || strings.TrimSpace(u.ID) == "" {
		return ErrInvalidInput
	}
	return s.store.Users(ctx).Update(ctx, u)
}

// DeleteUser removes a principal and its role assignments.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	return s.store.Users(ctx).Delete(ctx, id)
}

// AddRoleToUser assigns a role and rolls the stamp: role claims inside
// outstanding access credentials are authentication-affecting state.
func (s *Service) AddRoleToUser(ctx context.Context, userID, roleName string) error {
	if err := s.store.Roles(ctx).AssignToUser(ctx, userID, roleName); err != nil {
		return err
	}
	_, err := s.store.Users(ctx).RollSecurityStamp(ctx, userID)
	return err
}

// RemoveRoleFromUser removes a role assignment and rolls the stamp.
func (s *Service) RemoveRoleFromUser(ctx context.Context, userID, roleName string) error {
	if err := s.store.Roles(ctx).RemoveFromUser(ctx, userID, roleName); err != nil {
		return err
	}
	_, err := s.store.Users(ctx).RollSecurityStamp(ctx, userID)
	return err
}

// UserRoles lists the roles assigned to a user.
func (s *Service) UserRoles(ctx context.Context, userID string) ([]string, error) {
	return s.store.Roles(ctx).RolesForUser(ctx, userID)
}

// CreateRole adds a role to the catalog.
func (s *Service) CreateRole(ctx context.Context, name string) (*Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidInput
	}
	role := &Role{ID: ids.New(), Name: name}
	if err := s.store.Roles(ctx).Create(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// DeleteRole removes a role from the catalog.
func (s *Service) DeleteRole(ctx context.Context, name string) error {
	return s.store.Roles(ctx).Delete(ctx, name)
}

// Roles lists the role catalog.
func (s *Service) Roles(ctx context.Context) ([]*Role, error) {
	return s.store.Roles(ctx).List(ctx)
}
