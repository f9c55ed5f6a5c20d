package audit

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/otep/portal-core/internal/session"
)

// Handler exposes the audit log to administrators.
type Handler struct {
	recorder *Recorder
	logger   *zap.SugaredLogger
}

func NewHandler(recorder *Recorder, logger *zap.SugaredLogger) *Handler {
	return &Handler{recorder: recorder, logger: logger}
}

// List returns recent events, newest first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit := 200
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	events, err := h.recorder.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Errorw("audit listing failed", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list failed"})
		return
	}
	if events == nil {
		events = []Event{}
	}
	h.writeJSON(w, http.StatusOK, events)
}

// Clear wipes the stored events and records who did it.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.recorder.Clear(r.Context()); err != nil {
		h.logger.Errorw("audit clear failed", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "clear failed"})
		return
	}
	h.recorder.Record(r.Context(), session.Actor(r.Context()), "Clear Logs", "admin cleared all audit events")
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
