package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/otep/portal-core/internal/user/entity"
)

// MemoryStore is a mutex-guarded in-memory Store for tests and
// single-instance deployments without a database. Writes are serialized so
// concurrent admin edits cannot lose each other's updates.
type MemoryStore struct {
	mu    sync.Mutex
	users map[string]entity.User
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]entity.User)}
}

func copyUser(u entity.User) entity.User {
	cp := u
	cp.AllowedViews = append([]string(nil), u.AllowedViews...)
	return cp
}

func (s *MemoryStore) Get(_ context.Context, username string) (*entity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return nil, ErrNotFound
	}
	cp := copyUser(u)
	return &cp, nil
}

func (s *MemoryStore) List(_ context.Context) ([]entity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entity.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, copyUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *MemoryStore) Create(_ context.Context, u *entity.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.Username]; ok {
		return ErrDuplicate
	}
	cp := copyUser(*u)
	now := time.Now()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	s.users[u.Username] = cp
	return nil
}

func (s *MemoryStore) UpdatePassword(_ context.Context, username, passwordHash string) error {
	return s.update(username, func(u *entity.User) { u.PasswordHash = passwordHash })
}

func (s *MemoryStore) UpdateEmail(_ context.Context, username, email string) error {
	return s.update(username, func(u *entity.User) { u.Email = email })
}

func (s *MemoryStore) UpdateAllowedViews(_ context.Context, username string, views []string) error {
	return s.update(username, func(u *entity.User) {
		u.AllowedViews = append([]string(nil), views...)
	})
}

func (s *MemoryStore) Delete(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; !ok {
		return ErrNotFound
	}
	delete(s.users, username)
	return nil
}

func (s *MemoryStore) update(username string, fn func(*entity.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return ErrNotFound
	}
	fn(&u)
	u.UpdatedAt = time.Now()
	s.users[username] = u
	return nil
}
