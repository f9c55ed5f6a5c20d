package audit

import (
	"context"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
)

// MemoryStore keeps a bounded in-memory event list behind a mutex.
type MemoryStore struct {
	mu     sync.Mutex
	events []Event
	max    int
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(max int) *MemoryStore {
	if max <= 0 {
		max = 10000
	}
	return &MemoryStore{max: max}
}

func (s *MemoryStore) Append(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	if len(s.events) > s.max {
		s.events = s.events[len(s.events)-s.max:]
	}
	return nil
}

func (s *MemoryStore) Recent(_ context.Context, limit int) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.events)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Event, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.events[i])
	}
	return out, nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
	return nil
}

// EventRepo persists audit events in the portal_audit_events table.
type EventRepo struct {
	db *sqlx.DB
}

var _ Store = (*EventRepo)(nil)

func NewEventRepo(db *sqlx.DB) *EventRepo { return &EventRepo{db: db} }

// EnsureTable creates the audit table if not exists (idempotent).
func (r *EventRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS portal_audit_events (
  id TEXT PRIMARY KEY,
  ts TIMESTAMPTZ NOT NULL,
  actor TEXT NOT NULL,
  action TEXT NOT NULL,
  detail TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_portal_audit_events_ts ON portal_audit_events(ts);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

func (r *EventRepo) Append(ctx context.Context, e Event) error {
	const q = `INSERT INTO portal_audit_events (id, ts, actor, action, detail) VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.ExecContext(ctx, q, e.ID, e.Timestamp, e.Actor, e.Action, e.Detail)
	return err
}

func (r *EventRepo) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 200
	}
	const q = `SELECT id, ts, actor, action, detail FROM portal_audit_events ORDER BY ts DESC LIMIT $1`
	rows, err := r.db.QueryxContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var e Event
		var ts time.Time
		if err := rows.Scan(&e.ID, &ts, &e.Actor, &e.Action, &e.Detail); err != nil {
			return nil, err
		}
		e.Timestamp = ts
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *EventRepo) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM portal_audit_events`)
	return err
}
