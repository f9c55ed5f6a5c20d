package dashboard

import (
	"sync"

	"github.com/otep/portal-core/internal/user/entity"
)

// Dashboard is one entry in the portal menu.
type Dashboard struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// DefaultCatalog lists the office dashboards the portal serves, in menu
// order. The titles keep the Thai office names the organization uses.
func DefaultCatalog() []Dashboard {
	return []Dashboard{
		{ID: "eis", Title: "สำนัก ช.พ.ค. - ช.พ.ส"},
		{ID: "treasury", Title: "สำนักการคลัง - กลุ่มการเงิน"},
		{ID: "procurement", Title: "สำนักการคลัง - กลุ่มการพัสดุและอาคารสถานที่"},
		{ID: "finance", Title: "สำนักการคลัง - กลุ่มบัญชี"},
		{ID: "strategy", Title: "สำนักนโยบาย และยุทธศาสตร์"},
		{ID: "hospital", Title: "โรงพยาบาลครู"},
		{ID: "welfare", Title: "สำนักสวัสดิการ"},
		{ID: "dorm", Title: "หอพัก สกสค."},
		{ID: "admin-office", Title: "สำนักอำนวยการ"},
		{ID: "internal-audit", Title: "หน่วยตรวจสอบภายใน"},
		{ID: "legal", Title: "สำนักนิติการ"},
	}
}

// Visible filters the catalog for a role. Admin and Superuser get the full
// catalog; User gets the intersection with the allow-list, in catalog order
// regardless of allow-list order.
func Visible(role entity.Role, allowedViews []string, catalog []Dashboard) []Dashboard {
	if role.SeesAllDashboards() {
		return append([]Dashboard(nil), catalog...)
	}
	allowed := make(map[string]struct{}, len(allowedViews))
	for _, v := range allowedViews {
		allowed[v] = struct{}{}
	}
	out := make([]Dashboard, 0, len(allowedViews))
	for _, d := range catalog {
		if _, ok := allowed[d.ID]; ok {
			out = append(out, d)
		}
	}
	return out
}

// Announcement is the global banner shown above every dashboard.
type Announcement struct {
	Message string `json:"message"`
	Level   string `json:"level"` // info / warning / error / success
}

// AnnouncementStore holds the banner behind a mutex so concurrent admin
// edits serialize.
type AnnouncementStore struct {
	mu      sync.Mutex
	current *Announcement
}

func NewAnnouncementStore() *AnnouncementStore { return &AnnouncementStore{} }

func (s *AnnouncementStore) Get() (Announcement, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Announcement{}, false
	}
	return *s.current, true
}

func (s *AnnouncementStore) Set(a Announcement) {
	s.mu.Lock()
	s.current = &a
	s.mu.Unlock()
}

func (s *AnnouncementStore) Clear() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
}
