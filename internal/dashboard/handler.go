package dashboard

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/otep/portal-core/internal/audit"
	"github.com/otep/portal-core/internal/session"
)

// Handler serves the dashboard menu and the dashboards themselves. Every
// dashboard-serving endpoint re-checks visibility; the menu filter alone is
// not the gate.
type Handler struct {
	sessions      *session.Manager
	catalog       []Dashboard
	announcements *AnnouncementStore
	audit         *audit.Recorder
	logger        *zap.SugaredLogger
}

func NewHandler(sessions *session.Manager, catalog []Dashboard, announcements *AnnouncementStore, rec *audit.Recorder, logger *zap.SugaredLogger) *Handler {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Handler{sessions: sessions, catalog: catalog, announcements: announcements, audit: rec, logger: logger}
}

// List returns the menu for the current session.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessions.AuthenticatedFromRequest(r)
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not logged in"})
		return
	}
	h.writeJSON(w, http.StatusOK, Visible(s.Role, s.AllowedViews, h.catalog))
}

// Get serves one dashboard after re-validating visibility. Direct
// navigation to a disallowed id gets a 403, not the menu's silence.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessions.AuthenticatedFromRequest(r)
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not logged in"})
		return
	}
	id := r.PathValue("id")
	var found *Dashboard
	for i := range h.catalog {
		if h.catalog[i].ID == id {
			found = &h.catalog[i]
			break
		}
	}
	if found == nil {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown dashboard"})
		return
	}
	visible := false
	for _, d := range Visible(s.Role, s.AllowedViews, h.catalog) {
		if d.ID == id {
			visible = true
			break
		}
	}
	if !visible {
		h.writeJSON(w, http.StatusForbidden, map[string]string{"error": "dashboard not permitted"})
		return
	}
	h.audit.Record(r.Context(), s.Username, "View Dashboard", found.Title)
	h.writeJSON(w, http.StatusOK, found)
}

// Announcement returns the current global banner, if any.
func (h *Handler) Announcement(w http.ResponseWriter, r *http.Request) {
	a, ok := h.announcements.Get()
	if !ok {
		h.writeJSON(w, http.StatusOK, map[string]any{"present": false})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"present": true, "message": a.Message, "level": a.Level})
}

// SetAnnouncement replaces the banner. Admin only (enforced in the router).
func (h *Handler) SetAnnouncement(w http.ResponseWriter, r *http.Request) {
	var a Announcement
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil || a.Message == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	switch a.Level {
	case "info", "warning", "error", "success":
	case "":
		a.Level = "info"
	default:
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid level"})
		return
	}
	h.announcements.Set(a)
	h.audit.Record(r.Context(), session.Actor(r.Context()), "Update Announcement", a.Message)
	h.writeJSON(w, http.StatusOK, a)
}

// ClearAnnouncement removes the banner.
func (h *Handler) ClearAnnouncement(w http.ResponseWriter, r *http.Request) {
	h.announcements.Clear()
	h.audit.Record(r.Context(), session.Actor(r.Context()), "Clear Announcement", "removed banner")
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
