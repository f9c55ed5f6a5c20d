package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/otep/portal-core/internal/user/entity"
)

var (
	ErrNotFound  = errors.New("user not found")
	ErrDuplicate = errors.New("username already exists")
)

// Store is the contract every credential-store backend satisfies. The
// Postgres repo backs real deployments; the memory store backs tests and
// single-instance setups without a database.
type Store interface {
	Get(ctx context.Context, username string) (*entity.User, error)
	List(ctx context.Context) ([]entity.User, error)
	Create(ctx context.Context, u *entity.User) error
	UpdatePassword(ctx context.Context, username, passwordHash string) error
	UpdateEmail(ctx context.Context, username, email string) error
	UpdateAllowedViews(ctx context.Context, username string, views []string) error
	Delete(ctx context.Context, username string) error
}

// UserRepo provides data access for the portal_users table using sqlx.
type UserRepo struct {
	db *sqlx.DB
}

var _ Store = (*UserRepo)(nil)

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

// EnsureTable creates the portal_users table if not exists (idempotent).
// This is a convenience for early development; prefer migrations in production.
func (r *UserRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS portal_users (
  username TEXT PRIMARY KEY,
  password_hash TEXT NOT NULL,
  display_name TEXT NOT NULL DEFAULT '',
  role TEXT NOT NULL DEFAULT 'User',
  email TEXT NOT NULL DEFAULT '',
  allowed_views TEXT[] NOT NULL DEFAULT '{}',
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_portal_users_role ON portal_users(role);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

type userRow struct {
	Username     string         `db:"username"`
	PasswordHash string         `db:"password_hash"`
	DisplayName  string         `db:"display_name"`
	Role         string         `db:"role"`
	Email        string         `db:"email"`
	AllowedViews pq.StringArray `db:"allowed_views"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

func (row *userRow) toEntity() (*entity.User, error) {
	role, err := entity.ParseRole(row.Role)
	if err != nil {
		return nil, err
	}
	return &entity.User{
		Username:     row.Username,
		PasswordHash: row.PasswordHash,
		DisplayName:  row.DisplayName,
		Role:         role,
		Email:        row.Email,
		AllowedViews: []string(row.AllowedViews),
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}, nil
}

const userColumns = `username, password_hash, display_name, role, email, allowed_views, created_at, updated_at`

// Get fetches a user by username or ErrNotFound.
func (r *UserRepo) Get(ctx context.Context, username string) (*entity.User, error) {
	const q = `SELECT ` + userColumns + ` FROM portal_users WHERE username=$1`
	var row userRow
	if err := r.db.GetContext(ctx, &row, q, username); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.toEntity()
}

// List returns all users ordered by username.
func (r *UserRepo) List(ctx context.Context) ([]entity.User, error) {
	const q = `SELECT ` + userColumns + ` FROM portal_users ORDER BY username`
	var rows []userRow
	if err := r.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, err
	}
	out := make([]entity.User, 0, len(rows))
	for i := range rows {
		u, err := rows[i].toEntity()
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, nil
}

// Create inserts a new user row. A unique violation maps to ErrDuplicate.
func (r *UserRepo) Create(ctx context.Context, u *entity.User) error {
	const q = `INSERT INTO portal_users (username, password_hash, display_name, role, email, allowed_views)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.ExecContext(ctx, q, u.Username, u.PasswordHash, u.DisplayName, string(u.Role), u.Email, pq.StringArray(u.AllowedViews))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// UpdatePassword replaces the stored hash.
func (r *UserRepo) UpdatePassword(ctx context.Context, username, passwordHash string) error {
	const q = `UPDATE portal_users SET password_hash=$2, updated_at=NOW() WHERE username=$1`
	return r.execExpectingRow(ctx, q, username, passwordHash)
}

// UpdateEmail replaces the stored email address.
func (r *UserRepo) UpdateEmail(ctx context.Context, username, email string) error {
	const q = `UPDATE portal_users SET email=$2, updated_at=NOW() WHERE username=$1`
	return r.execExpectingRow(ctx, q, username, email)
}

// UpdateAllowedViews replaces the dashboard allow-list.
func (r *UserRepo) UpdateAllowedViews(ctx context.Context, username string, views []string) error {
	const q = `UPDATE portal_users SET allowed_views=$2, updated_at=NOW() WHERE username=$1`
	return r.execExpectingRow(ctx, q, username, pq.StringArray(views))
}

// Delete removes a user row.
func (r *UserRepo) Delete(ctx context.Context, username string) error {
	const q = `DELETE FROM portal_users WHERE username=$1`
	return r.execExpectingRow(ctx, q, username)
}

func (r *UserRepo) execExpectingRow(ctx context.Context, q string, args ...any) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
