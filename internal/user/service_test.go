package user

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/otep/portal-core/internal/user/entity"
	userrepo "github.com/otep/portal-core/internal/user/repo"
)

func newTestService(t *testing.T) (*Service, userrepo.Store) {
	t.Helper()
	store := userrepo.NewMemoryStore()
	// low cost keeps the hashing fast in tests
	return NewService(store, BcryptHasher{Cost: 4}), store
}

func mustCreate(t *testing.T, svc *Service, username, password string, role entity.Role, email string, views []string) *entity.User {
	t.Helper()
	u, err := svc.Create(context.Background(), username, password, username+" display", role, email, views)
	require.NoError(t, err)
	return u
}

func TestCheckCredentials(t *testing.T) {
	svc, _ := newTestService(t)
	mustCreate(t, svc, "somchai", "s3cret", entity.RoleUser, "somchai@example.org", []string{"eis"})

	t.Run("success", func(t *testing.T) {
		u, err := svc.CheckCredentials(context.Background(), "somchai", "s3cret")
		require.NoError(t, err)
		require.Equal(t, "somchai", u.Username)
		require.Equal(t, entity.RoleUser, u.Role)
		require.Equal(t, []string{"eis"}, u.AllowedViews)
	})

	t.Run("wrong password and unknown username are indistinguishable", func(t *testing.T) {
		_, errWrongPw := svc.CheckCredentials(context.Background(), "somchai", "nope")
		_, errUnknown := svc.CheckCredentials(context.Background(), "nobody", "nope")
		require.ErrorIs(t, errWrongPw, ErrInvalidCredentials)
		require.ErrorIs(t, errUnknown, ErrInvalidCredentials)
		require.Equal(t, errWrongPw.Error(), errUnknown.Error())
	})

	t.Run("empty inputs rejected", func(t *testing.T) {
		_, err := svc.CheckCredentials(context.Background(), "", "")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestPasswordsAreHashedAtRest(t *testing.T) {
	svc, store := newTestService(t)
	mustCreate(t, svc, "somchai", "s3cret", entity.RoleUser, "", nil)

	stored, err := store.Get(context.Background(), "somchai")
	require.NoError(t, err)
	require.NotEqual(t, "s3cret", stored.PasswordHash)
	require.NotContains(t, stored.PasswordHash, "s3cret")
}

func TestCreateDuplicateUsername(t *testing.T) {
	svc, _ := newTestService(t)
	mustCreate(t, svc, "somchai", "s3cret", entity.RoleUser, "", nil)

	_, err := svc.Create(context.Background(), "somchai", "other", "Dup", entity.RoleUser, "", nil)
	require.ErrorIs(t, err, ErrDuplicateUsername)
}

func TestUpdatePassword(t *testing.T) {
	svc, _ := newTestService(t)
	mustCreate(t, svc, "somchai", "old", entity.RoleUser, "", nil)

	require.NoError(t, svc.UpdatePassword(context.Background(), "somchai", "new"))

	_, err := svc.CheckCredentials(context.Background(), "somchai", "old")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.CheckCredentials(context.Background(), "somchai", "new")
	require.NoError(t, err)

	require.ErrorIs(t, svc.UpdatePassword(context.Background(), "ghost", "x"), ErrUserNotFound)
}

func TestDeleteProtectedAdmin(t *testing.T) {
	svc, _ := newTestService(t)
	require.NoError(t, svc.EnsureAdmin(context.Background(), "admin123", "admin@example.org"))

	err := svc.Delete(context.Background(), ProtectedUsername)
	require.ErrorIs(t, err, ErrProtectedAccount)

	// the account is still there and still works
	_, err = svc.CheckCredentials(context.Background(), "admin", "admin123")
	require.NoError(t, err)
}

func TestDeleteUser(t *testing.T) {
	svc, _ := newTestService(t)
	mustCreate(t, svc, "somchai", "s3cret", entity.RoleUser, "", nil)

	require.NoError(t, svc.Delete(context.Background(), "somchai"))
	require.ErrorIs(t, svc.Delete(context.Background(), "somchai"), ErrUserNotFound)
}

func TestEnsureAdminDoesNotOverwrite(t *testing.T) {
	svc, _ := newTestService(t)
	require.NoError(t, svc.EnsureAdmin(context.Background(), "first", "first@example.org"))
	require.NoError(t, svc.UpdateEmail(context.Background(), ProtectedUsername, "changed@example.org"))

	// a second bootstrap must not reset password or email
	require.NoError(t, svc.EnsureAdmin(context.Background(), "second", "second@example.org"))

	u, err := svc.CheckCredentials(context.Background(), "admin", "first")
	require.NoError(t, err)
	require.Equal(t, "changed@example.org", u.Email)
}

func TestCreateRejectsUnknownRole(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Create(context.Background(), "x", "y", "X", entity.Role("Root"), "", nil)
	require.Error(t, err)
}

func TestUpdateAllowedViews(t *testing.T) {
	svc, _ := newTestService(t)
	mustCreate(t, svc, "somchai", "s3cret", entity.RoleUser, "", []string{"eis"})

	require.NoError(t, svc.UpdateAllowedViews(context.Background(), "somchai", []string{"eis", "finance"}))
	u, err := svc.Get(context.Background(), "somchai")
	require.NoError(t, err)
	require.Equal(t, []string{"eis", "finance"}, u.AllowedViews)
}
