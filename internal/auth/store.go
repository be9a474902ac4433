package auth

import (
	"context"
	"time"
)

// Store describes the persistence operations the session manager and request
// authenticator need. All session state lives behind this interface; the
// service itself keeps nothing in memory.
type Store interface {
	Users(ctx context.Context) UserStore
	Roles(ctx context.Context) RoleStore
}

// UserStore manages principal records.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	// FindByLogin resolves a principal by email or username.
	FindByLogin(ctx context.Context, login string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	Update(ctx context.Context, u *User) error
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	// SaveRefreshToken overwrites the single live refresh credential.
	SaveRefreshToken(ctx context.Context, userID, refreshToken string, expiresAt time.Time) error
	ClearRefreshToken(ctx context.Context, userID string) error
	// RollSecurityStamp replaces the stamp with a fresh value and returns it,
	// invalidating every access credential issued under the old one.
	RollSecurityStamp(ctx context.Context, userID string) (string, error)
	Delete(ctx context.Context, id string) error
}

// RoleStore manages the role catalog and user role membership.
type RoleStore interface {
	Create(ctx context.Context, role *Role) error
	FindByName(ctx context.Context, name string) (*Role, error)
	List(ctx context.Context) ([]*Role, error)
	Delete(ctx context.Context, name string) error
	AssignToUser(ctx context.Context, userID, roleName string) error
	RemoveFromUser(ctx context.Context, userID, roleName string) error
	RolesForUser(ctx context.Context, userID string) ([]string, error)
}
