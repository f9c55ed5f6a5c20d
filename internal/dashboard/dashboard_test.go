package dashboard

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/otep/portal-core/internal/user/entity"
)

func catalogOf(ids ...string) []Dashboard {
	out := make([]Dashboard, 0, len(ids))
	for _, id := range ids {
		out = append(out, Dashboard{ID: id, Title: "Dashboard " + id})
	}
	return out
}

func ids(ds []Dashboard) []string {
	out := make([]string, 0, len(ds))
	for _, d := range ds {
		out = append(out, d.ID)
	}
	return out
}

func TestVisible(t *testing.T) {
	catalog := catalogOf("A", "B", "C", "D")

	tests := []struct {
		name    string
		role    entity.Role
		allowed []string
		want    []string
	}{
		{"user gets intersection in catalog order", entity.RoleUser, []string{"C", "A"}, []string{"A", "C"}},
		{"admin gets full catalog", entity.RoleAdmin, nil, []string{"A", "B", "C", "D"}},
		{"superuser gets full catalog", entity.RoleSuperuser, []string{"A"}, []string{"A", "B", "C", "D"}},
		{"user with empty allow-list sees nothing", entity.RoleUser, nil, []string{}},
		{"allow-list entries outside the catalog are dropped", entity.RoleUser, []string{"A", "Z"}, []string{"A"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ids(Visible(tt.role, tt.allowed, catalog)))
		})
	}
}

func TestVisibleDoesNotAliasCatalog(t *testing.T) {
	catalog := catalogOf("A", "B")
	got := Visible(entity.RoleAdmin, nil, catalog)
	got[0].Title = "mutated"
	require.Equal(t, "Dashboard A", catalog[0].Title)
}

func TestDefaultCatalogOrderStable(t *testing.T) {
	first := ids(DefaultCatalog())
	second := ids(DefaultCatalog())
	require.Equal(t, first, second)
	require.Equal(t, "eis", first[0])
}

func TestAnnouncementStore(t *testing.T) {
	s := NewAnnouncementStore()

	_, ok := s.Get()
	require.False(t, ok)

	s.Set(Announcement{Message: "maintenance tonight", Level: "warning"})
	a, ok := s.Get()
	require.True(t, ok)
	require.Equal(t, "maintenance tonight", a.Message)

	s.Clear()
	_, ok = s.Get()
	require.False(t, ok)
}
