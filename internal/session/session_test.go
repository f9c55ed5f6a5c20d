package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/otep/portal-core/internal/user/entity"
	userrepo "github.com/otep/portal-core/internal/user/repo"
)

func newTestManager(t *testing.T) (*Manager, *userrepo.MemoryStore, *RememberTokens) {
	t.Helper()
	store := userrepo.NewMemoryStore()
	remember, err := NewRememberTokens(RememberConfig{Secret: "test-secret", TTL: DefaultRememberTTL})
	require.NoError(t, err)
	return NewManager(store, remember), store, remember
}

func seedUser(t *testing.T, store *userrepo.MemoryStore, username string, role entity.Role, views []string) *entity.User {
	t.Helper()
	u := &entity.User{
		Username:     username,
		PasswordHash: "$2a$04$notchecked",
		DisplayName:  username + " display",
		Role:         role,
		Email:        username + "@example.org",
		AllowedViews: views,
	}
	require.NoError(t, store.Create(context.Background(), u))
	return u
}

func TestLoginStateMachine(t *testing.T) {
	m, store, _ := newTestManager(t)
	u := seedUser(t, store, "somchai", entity.RoleUser, []string{"eis"})

	pending := m.BeginOTP(u, "challenge-1")
	require.Equal(t, StageAwaitingOTP, pending.Stage)
	require.Equal(t, "challenge-1", pending.ChallengeID)
	// role and views are not populated until the second factor clears
	require.Empty(t, pending.Role)

	promoted, ok := m.Promote(pending.ID, u)
	require.True(t, ok)
	require.Equal(t, StageAuthenticated, promoted.Stage)
	require.Equal(t, entity.RoleUser, promoted.Role)
	require.Equal(t, []string{"eis"}, promoted.AllowedViews)
	require.Empty(t, promoted.ChallengeID)

	// promoting twice is refused; Authenticated is a rest state
	_, ok = m.Promote(pending.ID, u)
	require.False(t, ok)
}

func TestSessionSnapshotsUserAtLogin(t *testing.T) {
	m, store, _ := newTestManager(t)
	u := seedUser(t, store, "somchai", entity.RoleUser, []string{"eis"})

	s := m.Establish(u)
	require.NoError(t, store.UpdateAllowedViews(context.Background(), "somchai", []string{"finance"}))

	got, ok := m.Get(s.ID)
	require.True(t, ok)
	// the session keeps the login-time snapshot
	require.Equal(t, []string{"eis"}, got.AllowedViews)
}

func TestTeardown(t *testing.T) {
	m, store, _ := newTestManager(t)
	u := seedUser(t, store, "somchai", entity.RoleUser, nil)

	s := m.Establish(u)
	m.Teardown(s.ID)
	_, ok := m.Get(s.ID)
	require.False(t, ok)
	// a retried teardown sees the same final state
	m.Teardown(s.ID)
	_, ok = m.Get(s.ID)
	require.False(t, ok)
}

func TestRememberRoundTrip(t *testing.T) {
	m, store, _ := newTestManager(t)
	seedUser(t, store, "somchai", entity.RoleSuperuser, nil)

	token, expires, err := m.IssueRememberToken("somchai")
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(DefaultRememberTTL), expires, time.Minute)

	s, ok := m.RestoreFromToken(context.Background(), token)
	require.True(t, ok)
	require.Equal(t, StageAuthenticated, s.Stage)
	require.Equal(t, "somchai", s.Username)
	require.Equal(t, entity.RoleSuperuser, s.Role)
}

func TestRestoreFailsClosedWhenUserDeleted(t *testing.T) {
	m, store, _ := newTestManager(t)
	seedUser(t, store, "somchai", entity.RoleUser, nil)

	token, _, err := m.IssueRememberToken("somchai")
	require.NoError(t, err)
	require.NoError(t, store.Delete(context.Background(), "somchai"))

	_, ok := m.RestoreFromToken(context.Background(), token)
	require.False(t, ok)
}

func TestRestoreRejectsGarbageAndForgedTokens(t *testing.T) {
	m, store, _ := newTestManager(t)
	seedUser(t, store, "somchai", entity.RoleUser, nil)

	_, ok := m.RestoreFromToken(context.Background(), "not-a-token")
	require.False(t, ok)

	// token signed with a different secret
	other, err := NewRememberTokens(RememberConfig{Secret: "other-secret"})
	require.NoError(t, err)
	forged, _, err := other.Issue("somchai")
	require.NoError(t, err)
	_, ok = m.RestoreFromToken(context.Background(), forged)
	require.False(t, ok)
}

func TestRememberTokenExpiry(t *testing.T) {
	remember, err := NewRememberTokens(RememberConfig{Secret: "s", TTL: DefaultRememberTTL})
	require.NoError(t, err)

	token, _, err := remember.Issue("somchai")
	require.NoError(t, err)

	// jump past the 10-day expiry
	remember.now = func() time.Time { return time.Now().Add(DefaultRememberTTL + time.Hour) }
	_, err = remember.Parse(token)
	require.Error(t, err)
}

func TestRestoreReResolvesCurrentRecord(t *testing.T) {
	m, store, _ := newTestManager(t)
	seedUser(t, store, "somchai", entity.RoleUser, []string{"eis"})

	token, _, err := m.IssueRememberToken("somchai")
	require.NoError(t, err)

	// views changed since the token was issued; restore must see the change
	require.NoError(t, store.UpdateAllowedViews(context.Background(), "somchai", []string{"finance"}))

	s, ok := m.RestoreFromToken(context.Background(), token)
	require.True(t, ok)
	require.Equal(t, []string{"finance"}, s.AllowedViews)
}
