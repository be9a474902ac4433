package auth

import "time"

// User is the principal record owned by the account store. SecurityStamp is
// an opaque version marker that changes whenever previously issued
// credentials must stop working (logout, password change, role change).
type User struct {
	ID                    string
	Username              string
	Email                 string
	PasswordHash          string
	SecurityStamp         string
	RefreshToken          string
	RefreshTokenExpiresAt time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Role is a named role that can be assigned to users and travels as a claim
// inside access credentials.
type Role struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}
