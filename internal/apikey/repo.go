package apikey

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

// KeyRepo persists API keys in the portal_api_keys table.
type KeyRepo struct {
	db *sqlx.DB
}

var _ Store = (*KeyRepo)(nil)

func NewKeyRepo(db *sqlx.DB) *KeyRepo { return &KeyRepo{db: db} }

// EnsureTable creates the key table if not exists (idempotent).
func (r *KeyRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS portal_api_keys (
  key_hash TEXT PRIMARY KEY,
  key_prefix TEXT NOT NULL,
  label TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_portal_api_keys_prefix ON portal_api_keys(key_prefix);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

func (r *KeyRepo) Insert(ctx context.Context, k Key) error {
	const q = `INSERT INTO portal_api_keys (key_hash, key_prefix, label, created_at) VALUES ($1, $2, $3, $4)`
	_, err := r.db.ExecContext(ctx, q, k.Hash, k.Prefix, k.Label, k.CreatedAt)
	return err
}

func (r *KeyRepo) FindByHash(ctx context.Context, hash string) (*Key, error) {
	const q = `SELECT key_hash, key_prefix, label, created_at FROM portal_api_keys WHERE key_hash=$1`
	var k Key
	var created time.Time
	row := r.db.QueryRowxContext(ctx, q, hash)
	if err := row.Scan(&k.Hash, &k.Prefix, &k.Label, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	k.CreatedAt = created
	return &k, nil
}

func (r *KeyRepo) List(ctx context.Context) ([]Key, error) {
	const q = `SELECT key_hash, key_prefix, label, created_at FROM portal_api_keys ORDER BY created_at DESC`
	rows, err := r.db.QueryxContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Key
	for rows.Next() {
		var k Key
		if err := rows.Scan(&k.Hash, &k.Prefix, &k.Label, &k.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (r *KeyRepo) DeleteByPrefix(ctx context.Context, prefix string) error {
	const q = `DELETE FROM portal_api_keys WHERE key_prefix=$1`
	res, err := r.db.ExecContext(ctx, q, prefix)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrKeyNotFound
	}
	return nil
}
