package apikey

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/otep/portal-core/pkg/utilities"
)

// keyPrefix marks keys issued by this portal. Inherited from the legacy
// key format.
const keyPrefix = "otep-"

// prefixLen is how much of the raw key is kept in clear for listing and
// revocation. Enough to identify, not enough to use.
const prefixLen = 13

var ErrKeyNotFound = errors.New("api key not found")

// Key is one machine credential for the external read API. The raw key is
// never stored; only its SHA-256 hash and a short identification prefix.
type Key struct {
	Hash      string    `json:"-"`
	Prefix    string    `json:"prefix"`
	Label     string    `json:"label"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists keys. Revoked keys are removed outright, so validation is
// a membership test with no cache window.
type Store interface {
	Insert(ctx context.Context, k Key) error
	FindByHash(ctx context.Context, hash string) (*Key, error)
	List(ctx context.Context) ([]Key, error)
	DeleteByPrefix(ctx context.Context, prefix string) error
}

func hashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Registry issues, validates and revokes API keys. Deliberately decoupled
// from the user/session system: the external API only ever sees bearer
// keys.
type Registry struct {
	store Store
}

func NewRegistry(store Store) *Registry { return &Registry{store: store} }

// Generate mints a fresh high-entropy key for the named external system.
// The raw key is returned exactly once.
func (r *Registry) Generate(ctx context.Context, ownerLabel string) (string, *Key, error) {
	raw := keyPrefix + utilities.NewKSUID()
	k := Key{
		Hash:      hashKey(raw),
		Prefix:    raw[:prefixLen],
		Label:     ownerLabel,
		CreatedAt: time.Now(),
	}
	if err := r.store.Insert(ctx, k); err != nil {
		return "", nil, err
	}
	return raw, &k, nil
}

// Validate is the membership test run once per inbound external-API
// request. Revoked and unknown keys fail identically.
func (r *Registry) Validate(ctx context.Context, presented string) bool {
	if presented == "" {
		return false
	}
	_, err := r.store.FindByHash(ctx, hashKey(presented))
	return err == nil
}

// Revoke removes the key with the given prefix. Effective on the next
// Validate call, and idempotent: revoking an absent key is a no-op.
func (r *Registry) Revoke(ctx context.Context, prefix string) error {
	err := r.store.DeleteByPrefix(ctx, prefix)
	if errors.Is(err, ErrKeyNotFound) {
		return nil
	}
	return err
}

// List returns all active keys, newest first.
func (r *Registry) List(ctx context.Context) ([]Key, error) {
	return r.store.List(ctx)
}

// MemoryStore is a mutex-guarded in-memory Store.
type MemoryStore struct {
	mu   sync.Mutex
	keys map[string]Key // by hash
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[string]Key)}
}

func (s *MemoryStore) Insert(_ context.Context, k Key) error {
	s.mu.Lock()
	s.keys[k.Hash] = k
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) FindByHash(_ context.Context, hash string) (*Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[hash]
	if !ok {
		return nil, ErrKeyNotFound
	}
	cp := k
	return &cp, nil
}

func (s *MemoryStore) List(_ context.Context) ([]Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Key, 0, len(s.keys))
	for _, k := range s.keys {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) DeleteByPrefix(_ context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for hash, k := range s.keys {
		if k.Prefix == prefix {
			delete(s.keys, hash)
			return nil
		}
	}
	return ErrKeyNotFound
}
