package apikey

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/otep/portal-core/internal/audit"
	"github.com/otep/portal-core/internal/dataset"
	"github.com/otep/portal-core/internal/session"
)

// HeaderName is the bearer header external systems must send.
const HeaderName = "X-API-KEY"

// Handler covers both sides of the registry: the admin key-management
// endpoints and the key-guarded external read API.
type Handler struct {
	registry *Registry
	datasets dataset.Provider
	audit    *audit.Recorder
	logger   *zap.SugaredLogger
}

func NewHandler(registry *Registry, datasets dataset.Provider, rec *audit.Recorder, logger *zap.SugaredLogger) *Handler {
	return &Handler{registry: registry, datasets: datasets, audit: rec, logger: logger}
}

// RequireKey guards the external API. Missing, unknown and revoked keys all
// get the same generic 403; no hint distinguishes them.
func (h *Handler) RequireKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.registry.Validate(r.Context(), r.Header.Get(HeaderName)) {
			h.writeJSON(w, http.StatusForbidden, map[string]string{"error": "could not validate credentials"})
			return
		}
		next(w, r)
	}
}

// Dataset serves one read-only dataset to a machine caller.
func (h *Handler) Dataset(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	records, ok := h.datasets.Records(name)
	if !ok {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "data not found"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"count": len(records), "data": records})
}

// GenerateRequest names the external system the key is for.
type GenerateRequest struct {
	Label string `json:"label"`
}

// GenerateResponse carries the raw key, shown exactly once.
type GenerateResponse struct {
	Key    string `json:"key"`
	Prefix string `json:"prefix"`
	Label  string `json:"label"`
}

func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Label == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "label required"})
		return
	}
	raw, k, err := h.registry.Generate(r.Context(), req.Label)
	if err != nil {
		h.logger.Errorw("key generation failed", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "generation failed"})
		return
	}
	h.audit.Record(r.Context(), session.Actor(r.Context()), "Create API Key", k.Prefix+" ("+k.Label+")")
	h.writeJSON(w, http.StatusCreated, GenerateResponse{Key: raw, Prefix: k.Prefix, Label: k.Label})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	keys, err := h.registry.List(r.Context())
	if err != nil {
		h.logger.Errorw("key listing failed", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list failed"})
		return
	}
	if keys == nil {
		keys = []Key{}
	}
	h.writeJSON(w, http.StatusOK, keys)
}

func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	prefix := r.PathValue("prefix")
	if err := h.registry.Revoke(r.Context(), prefix); err != nil {
		h.logger.Errorw("key revocation failed", "prefix", prefix, "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "revoke failed"})
		return
	}
	h.audit.Record(r.Context(), session.Actor(r.Context()), "Revoke API Key", prefix)
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
