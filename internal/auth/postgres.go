package auth

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"authgate.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Users(context.Context) UserStore { return &userStore{db: s.db} }
func (s *PGStore) Roles(context.Context) RoleStore { return &roleStore{db: s.db} }

const userColumns = `id, username, email, password_hash, security_stamp,
	coalesce(refresh_token, ''), coalesce(refresh_token_expires_at, 'epoch'::timestamptz),
	created_at, updated_at`

// User store ---------------------------------------------------------------
type userStore struct{ db *sql.DB }

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.SecurityStamp,
		&u.RefreshToken, &u.RefreshTokenExpiresAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *userStore) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	if u.SecurityStamp == "" {
		u.SecurityStamp = uuid.NewString()
	}
	res, err := s.db.ExecContext(ctx,
		`insert into users(id, username, email, password_hash, security_stamp)
		 select $1, $2, $3, $4, $5
		 where not exists (select 1 from users where email=$3 or username=$2)`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.SecurityStamp,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrAlreadyExists
	}
	return nil
}

func (s *userStore) Find(ctx context.Context, id string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id=$1`, id))
}

func (s *userStore) FindByLogin(ctx context.Context, login string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where email=lower($1) or username=$1`, login))
}

func (s *userStore) List(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+userColumns+` from users order by created_at asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.SecurityStamp,
			&u.RefreshToken, &u.RefreshTokenExpiresAt, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}

func (s *userStore) Update(ctx context.Context, u *User) error {
	res, err := s.db.ExecContext(ctx,
		`update users set username=$2, email=$3, updated_at=now() where id=$1`,
		u.ID, u.Username, u.Email,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *userStore) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set password_hash=$2, updated_at=now() where id=$1`,
		userID, passwordHash,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *userStore) SaveRefreshToken(ctx context.Context, userID, refreshToken string, expiresAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update users set refresh_token=$2, refresh_token_expires_at=$3, updated_at=now() where id=$1`,
		userID, refreshToken, expiresAt.UTC(),
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *userStore) ClearRefreshToken(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set refresh_token=null, refresh_token_expires_at=null, updated_at=now() where id=$1`,
		userID,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *userStore) RollSecurityStamp(ctx context.Context, userID string) (string, error) {
	stamp := uuid.NewString()
	res, err := s.db.ExecContext(ctx,
		`update users set security_stamp=$2, updated_at=now() where id=$1`,
		userID, stamp,
	)
	if err != nil {
		return "", err
	}
	if err := requireRow(res); err != nil {
		return "", err
	}
	return stamp, nil
}

func (s *userStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from users where id=$1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Role store ---------------------------------------------------------------
type roleStore struct{ db *sql.DB }

func (s *roleStore) Create(ctx context.Context, role *Role) error {
	if role.ID == "" {
		role.ID = ids.New()
	}
	res, err := s.db.ExecContext(ctx,
		`insert into roles(id, name) values($1, $2) on conflict (name) do nothing`,
		role.ID, role.Name,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrAlreadyExists
	}
	return nil
}

func (s *roleStore) FindByName(ctx context.Context, name string) (*Role, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, name, created_at from roles where name=$1`, name)
	var role Role
	if err := row.Scan(&role.ID, &role.Name, &role.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &role, nil
}

func (s *roleStore) List(ctx context.Context) ([]*Role, error) {
	rows, err := s.db.QueryContext(ctx, `select id, name, created_at from roles order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []*Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.CreatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, &role)
	}
	return roles, rows.Err()
}

func (s *roleStore) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `delete from roles where name=$1`, name)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *roleStore) AssignToUser(ctx context.Context, userID, roleName string) error {
	res, err := s.db.ExecContext(ctx,
		`insert into user_roles(user_id, role_id)
		 select $1, id from roles where name=$2
		 on conflict do nothing`,
		userID, roleName,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// Either the role does not exist or the assignment was already there.
		if _, err := s.FindByName(ctx, roleName); err != nil {
			return err
		}
	}
	return nil
}

func (s *roleStore) RemoveFromUser(ctx context.Context, userID, roleName string) error {
	_, err := s.db.ExecContext(ctx,
		`delete from user_roles using roles
		 where user_roles.role_id = roles.id and user_roles.user_id=$1 and roles.name=$2`,
		userID, roleName,
	)
	return err
}

func (s *roleStore) RolesForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`select r.name from roles r
		 join user_roles ur on ur.role_id = r.id
		 where ur.user_id=$1 order by r.name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		roles = append(roles, name)
	}
	return roles, rows.Err()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
