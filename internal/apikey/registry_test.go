package apikey

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(NewMemoryStore())
}

func TestGenerateAndValidate(t *testing.T) {
	r := newTestRegistry(t)

	raw, k, err := r.Generate(context.Background(), "Mobile App")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(raw, "otep-"))
	require.Equal(t, raw[:prefixLen], k.Prefix)
	require.Equal(t, "Mobile App", k.Label)
	require.NotContains(t, k.Hash, raw[prefixLen:], "raw key material must not appear in the stored hash")

	require.True(t, r.Validate(context.Background(), raw))
	require.False(t, r.Validate(context.Background(), raw+"x"))
	require.False(t, r.Validate(context.Background(), ""))
}

func TestKeysAreUnique(t *testing.T) {
	r := newTestRegistry(t)
	seen := map[string]bool{}
	for range 20 {
		raw, _, err := r.Generate(context.Background(), "sys")
		require.NoError(t, err)
		require.False(t, seen[raw])
		seen[raw] = true
	}
}

func TestRevokeImmediate(t *testing.T) {
	r := newTestRegistry(t)
	raw, k, err := r.Generate(context.Background(), "ERP")
	require.NoError(t, err)
	require.True(t, r.Validate(context.Background(), raw))

	require.NoError(t, r.Revoke(context.Background(), k.Prefix))
	// no caching window: the very next validation fails
	require.False(t, r.Validate(context.Background(), raw))
}

func TestRevokeIdempotent(t *testing.T) {
	r := newTestRegistry(t)
	raw, k, err := r.Generate(context.Background(), "ERP")
	require.NoError(t, err)

	require.NoError(t, r.Revoke(context.Background(), k.Prefix))
	require.NoError(t, r.Revoke(context.Background(), k.Prefix))
	require.False(t, r.Validate(context.Background(), raw))

	keys, err := r.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, keys)
}

func TestListNewestFirst(t *testing.T) {
	r := newTestRegistry(t)
	_, _, err := r.Generate(context.Background(), "first")
	require.NoError(t, err)
	_, _, err = r.Generate(context.Background(), "second")
	require.NoError(t, err)

	keys, err := r.List(context.Background())
	require.NoError(t, err)
	require.Len(t, keys, 2)
	require.False(t, keys[0].CreatedAt.Before(keys[1].CreatedAt))
}
