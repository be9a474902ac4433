package token

import (
	"bytes"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken indicates the credential failed signature, issuer,
// audience, algorithm or lifetime validation.
var ErrInvalidToken = errors.New("token: invalid token")

// Config carries the signing material and claim policy for issued credentials.
//
// AccessSecret and RefreshSecret must be distinct: the refresh flow validates
// presented tokens against its own key so that an access token can never be
// replayed as a refresh credential.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	Issuer        string
	Audience      string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// Claims is the claim set embedded in every access credential.
type Claims struct {
	Email         string   `json:"email,omitempty"`
	Username      string   `json:"username,omitempty"`
	SecurityStamp string   `json:"security_stamp,omitempty"`
	Roles         []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// refreshClaims is the claim set of a refresh credential: the subject binding
// plus an unguessable random component.
type refreshClaims struct {
	Random string `json:"rnd"`
	jwt.RegisteredClaims
}

// Manager signs and verifies session credentials.
type Manager struct {
	cfg Config
	now func() time.Time
}

// Option configures Manager behavior.
type Option func(*Manager)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(m *Manager) {
		if fn != nil {
			m.now = fn
		}
	}
}

// NewManager validates the configuration and constructs a Manager.
func NewManager(cfg Config, opts ...Option) (*Manager, error) {
	if len(cfg.AccessSecret) == 0 {
		return nil, errors.New("token: access signing key is required")
	}
	if len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("token: refresh signing key is required")
	}
	if bytes.Equal(cfg.AccessSecret, cfg.RefreshSecret) {
		return nil, errors.New("token: access and refresh signing keys must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token: credential lifetimes must be greater than zero")
	}
	m := &Manager{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// IssueAccess signs a short-lived access credential binding the user's
// identity, current security stamp and role set.
func (m *Manager) IssueAccess(userID, email, username, securityStamp string, roles []string) (string, time.Time, error) {
	if strings.TrimSpace(userID) == "" {
		return "", time.Time{}, errors.New("token: subject is required")
	}
	now := m.now().UTC()
	expiresAt := now.Add(m.cfg.AccessTTL)
	claims := Claims{
		Email:         email,
		Username:      username,
		SecurityStamp: securityStamp,
		Roles:         roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.cfg.Issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	if m.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.cfg.Audience}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.cfg.AccessSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify checks signature, algorithm, issuer, audience and expiry (no clock
// skew allowance) and returns the subject claim.
func (m *Manager) Verify(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidToken
	}
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.cfg.Issuer))
	}
	if m.cfg.Audience != "" {
		options = append(options, jwt.WithAudience(m.cfg.Audience))
	}
	parser := jwt.NewParser(options...)
	parsed, err := parser.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return m.cfg.AccessSecret, nil
	})
	if err != nil {
		return "", ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// ReadSecurityStamp decodes the payload without verifying the signature and
// returns the embedded security-stamp claim. Callers must treat the value as
// untrusted: it exists only as a cheap pre-check next to a full Verify pass.
func (m *Manager) ReadSecurityStamp(raw string) (string, bool) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(strings.TrimSpace(raw), claims); err != nil {
		return "", false
	}
	if claims.SecurityStamp == "" {
		return "", false
	}
	return claims.SecurityStamp, true
}

// IssueRefresh signs a long-lived refresh credential bound to the subject.
// The rnd claim carries the opaque secret that makes the value unguessable.
func (m *Manager) IssueRefresh(userID string) (string, time.Time, error) {
	if strings.TrimSpace(userID) == "" {
		return "", time.Time{}, errors.New("token: subject is required")
	}
	secret, err := NewSecret()
	if err != nil {
		return "", time.Time{}, err
	}
	now := m.now().UTC()
	expiresAt := now.Add(m.cfg.RefreshTTL)
	claims := refreshClaims{
		Random: secret,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.cfg.RefreshSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ReadExpiredSubject validates only the signature of a presented refresh
// credential against the refresh signing key and returns its subject claim.
// Expiry, issuer and audience are deliberately not checked here: the session
// manager enforces lifetime against the stored expiry instead.
func (m *Manager) ReadExpiredSubject(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidToken
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	parsed, err := parser.ParseWithClaims(raw, &refreshClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return m.cfg.RefreshSecret, nil
	})
	if err != nil {
		return "", ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*refreshClaims)
	if !ok || strings.TrimSpace(claims.Subject) == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
