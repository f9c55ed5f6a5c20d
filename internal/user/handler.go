package user

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/otep/portal-core/internal/audit"
	"github.com/otep/portal-core/internal/session"
	"github.com/otep/portal-core/internal/user/entity"
)

func actor(r *http.Request) string { return session.Actor(r.Context()) }

// Handler exposes the admin user-management endpoints. Role gating happens
// in the router; handlers trust the actor passed through the request
// context by that middleware.
type Handler struct {
	svc    *Service
	audit  *audit.Recorder
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, rec *audit.Recorder, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, audit: rec, logger: logger}
}

// UserView is the record shape returned to the admin UI. Password hashes
// never leave the service.
type UserView struct {
	Username     string   `json:"username"`
	DisplayName  string   `json:"display_name"`
	Role         string   `json:"role"`
	Email        string   `json:"email"`
	AllowedViews []string `json:"allowed_views"`
}

func toView(u *entity.User) UserView {
	return UserView{
		Username:     u.Username,
		DisplayName:  u.DisplayName,
		Role:         string(u.Role),
		Email:        u.Email,
		AllowedViews: u.AllowedViews,
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.List(r.Context())
	if err != nil {
		h.logger.Errorw("list users failed", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list failed"})
		return
	}
	out := make([]UserView, 0, len(users))
	for i := range users {
		out = append(out, toView(&users[i]))
	}
	h.writeJSON(w, http.StatusOK, out)
}

// CreateRequest is the add-user payload.
type CreateRequest struct {
	Username     string   `json:"username"`
	Password     string   `json:"password"`
	DisplayName  string   `json:"display_name"`
	Role         string   `json:"role"`
	Email        string   `json:"email"`
	AllowedViews []string `json:"allowed_views"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	role, err := entity.ParseRole(req.Role)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid role"})
		return
	}
	u, err := h.svc.Create(r.Context(), req.Username, req.Password, req.DisplayName, role, req.Email, req.AllowedViews)
	if err != nil {
		if errors.Is(err, ErrDuplicateUsername) {
			h.writeJSON(w, http.StatusConflict, map[string]string{"error": "username already exists"})
			return
		}
		h.logger.Warnw("create user failed", "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "create failed"})
		return
	}
	h.audit.Record(r.Context(), actor(r), "Create User", u.Username)
	h.writeJSON(w, http.StatusCreated, toView(u))
}

// UpdateRequest carries the mutable account fields; nil fields stay
// untouched.
type UpdateRequest struct {
	Password     *string   `json:"password"`
	Email        *string   `json:"email"`
	AllowedViews *[]string `json:"allowed_views"`
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	apply := func(err error, action, detail string) bool {
		if err == nil {
			h.audit.Record(r.Context(), actor(r), action, detail)
			return true
		}
		if errors.Is(err, ErrUserNotFound) {
			h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
		} else {
			h.logger.Warnw("update user failed", "username", username, "err", err)
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "update failed"})
		}
		return false
	}
	if req.Password != nil {
		if !apply(h.svc.UpdatePassword(r.Context(), username, *req.Password), "Update Password", username) {
			return
		}
	}
	if req.Email != nil {
		if !apply(h.svc.UpdateEmail(r.Context(), username, *req.Email), "Update Email", username) {
			return
		}
	}
	if req.AllowedViews != nil {
		if !apply(h.svc.UpdateAllowedViews(r.Context(), username, *req.AllowedViews), "Update Allowed Views", username) {
			return
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	if err := h.svc.Delete(r.Context(), username); err != nil {
		switch {
		case errors.Is(err, ErrProtectedAccount):
			h.writeJSON(w, http.StatusForbidden, map[string]string{"error": "cannot delete main Admin"})
		case errors.Is(err, ErrUserNotFound):
			h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
		default:
			h.logger.Warnw("delete user failed", "username", username, "err", err)
			h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "delete failed"})
		}
		return
	}
	h.audit.Record(r.Context(), actor(r), "Delete User", username)
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
