package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/otep/portal-core/internal/audit"
	"github.com/otep/portal-core/internal/otp"
	"github.com/otep/portal-core/internal/session"
	"github.com/otep/portal-core/internal/user"
)

// Handler drives the login state machine over HTTP:
// Anonymous --valid credentials--> AwaitingOTP --correct code--> Authenticated,
// with "back" returning to Anonymous and a valid remember-me cookie
// skipping the challenge entirely.
type Handler struct {
	users    *user.Service
	sessions *session.Manager
	otp      *otp.Issuer
	audit    *audit.Recorder
	logger   *zap.SugaredLogger
}

func NewHandler(users *user.Service, sessions *session.Manager, issuer *otp.Issuer, rec *audit.Recorder, logger *zap.SugaredLogger) *Handler {
	return &Handler{users: users, sessions: sessions, otp: issuer, audit: rec, logger: logger}
}

// LoginRequest is the credentials step payload.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse reports the next stage. TestCode is populated only in OTP
// test mode, when no SMTP relay is reachable.
type LoginResponse struct {
	Stage    string `json:"stage"`
	TestCode string `json:"test_code,omitempty"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	u, err := h.users.CheckCredentials(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, user.ErrInvalidCredentials) {
			h.audit.Record(r.Context(), req.Username, "Login Failed", "invalid credentials")
			h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
			return
		}
		h.logger.Errorw("credential check failed", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "login failed"})
		return
	}

	ch, err := h.otp.Issue(r.Context(), u)
	if err != nil {
		if errors.Is(err, otp.ErrMissingEmail) {
			h.audit.Record(r.Context(), u.Username, "Login Failed", "no email on record")
			h.writeJSON(w, http.StatusForbidden, map[string]string{"error": "no email on record; contact an administrator"})
			return
		}
		h.logger.Errorw("otp issue failed", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "login failed"})
		return
	}

	s := h.sessions.BeginOTP(u, ch.ID)
	h.setSessionCookie(w, s.ID)
	h.audit.Record(r.Context(), u.Username, "OTP Issued", "login challenge dispatched")

	resp := LoginResponse{Stage: string(session.StageAwaitingOTP)}
	if code, ok := h.otp.TestCode(ch.ID); ok {
		resp.TestCode = code
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// VerifyRequest is the OTP step payload. Remember opts into the 10-day
// cookie.
type VerifyRequest struct {
	Code     string `json:"code"`
	Remember bool   `json:"remember"`
}

func (h *Handler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessions.FromRequest(r)
	if !ok || s.Stage != session.StageAwaitingOTP {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "no pending login"})
		return
	}
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	if err := h.otp.Verify(s.ChallengeID, req.Code); err != nil {
		h.audit.Record(r.Context(), s.Username, "Login Failed", "otp mismatch")
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid code"})
		return
	}

	u, err := h.users.Get(r.Context(), s.Username)
	if err != nil {
		// the account disappeared between the two steps; fail closed
		h.sessions.Teardown(s.ID)
		h.clearSessionCookie(w)
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}
	promoted, ok := h.sessions.Promote(s.ID, u)
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "no pending login"})
		return
	}

	if req.Remember {
		token, expires, err := h.sessions.IssueRememberToken(u.Username)
		if err != nil {
			h.logger.Errorw("remember token issue failed", "err", err)
		} else {
			http.SetCookie(w, &http.Cookie{
				Name:     session.RememberCookie,
				Value:    token,
				Path:     "/",
				Expires:  expires,
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}
	}

	h.audit.Record(r.Context(), u.Username, "Login Success", "otp verified")
	h.writeJSON(w, http.StatusOK, sessionView(promoted))
}

// Back cancels the pending challenge and returns to the credentials step.
// The in-flight code must not stay valid after the user backs out.
func (h *Handler) Back(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessions.FromRequest(r)
	if ok && s.Stage == session.StageAwaitingOTP {
		h.otp.Cancel(s.ChallengeID)
		h.sessions.Teardown(s.ID)
		h.audit.Record(r.Context(), s.Username, "OTP Cancelled", "user returned to credentials")
	}
	h.clearSessionCookie(w)
	h.writeJSON(w, http.StatusOK, map[string]string{"stage": "credentials"})
}

// ResendOTP invalidates the pending code and dispatches a fresh one.
func (h *Handler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessions.FromRequest(r)
	if !ok || s.Stage != session.StageAwaitingOTP {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "no pending login"})
		return
	}
	u, err := h.users.Get(r.Context(), s.Username)
	if err != nil {
		h.sessions.Teardown(s.ID)
		h.clearSessionCookie(w)
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}
	ch, err := h.otp.Reissue(r.Context(), u, s.ChallengeID)
	if err != nil {
		h.logger.Errorw("otp reissue failed", "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "resend failed"})
		return
	}
	h.sessions.SetChallenge(s.ID, ch.ID)
	h.audit.Record(r.Context(), s.Username, "OTP Issued", "resend requested")

	resp := LoginResponse{Stage: string(session.StageAwaitingOTP)}
	if code, ok := h.otp.TestCode(ch.ID); ok {
		resp.TestCode = code
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Logout tears the session down and clears both cookies in one response.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if s, ok := h.sessions.FromRequest(r); ok {
		h.sessions.Teardown(s.ID)
		h.audit.Record(r.Context(), s.Username, "Logout", "user initiated")
	}
	h.clearSessionCookie(w)
	http.SetCookie(w, &http.Cookie{
		Name:     session.RememberCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	h.writeJSON(w, http.StatusOK, map[string]string{"stage": "credentials"})
}

// SessionView is what the UI needs to render the shell for a logged-in user.
type SessionView struct {
	Authenticated bool     `json:"authenticated"`
	Username      string   `json:"username,omitempty"`
	DisplayName   string   `json:"display_name,omitempty"`
	Role          string   `json:"role,omitempty"`
	AllowedViews  []string `json:"allowed_views,omitempty"`
}

func sessionView(s *session.Session) SessionView {
	return SessionView{
		Authenticated: true,
		Username:      s.Username,
		DisplayName:   s.DisplayName,
		Role:          string(s.Role),
		AllowedViews:  s.AllowedViews,
	}
}

// Session reports the current login state. An expired or unknown
// remember-me cookie is not an error: the response is simply anonymous.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	if s, ok := h.sessions.AuthenticatedFromRequest(r); ok {
		h.writeJSON(w, http.StatusOK, sessionView(s))
		return
	}
	if c, err := r.Cookie(session.RememberCookie); err == nil && c.Value != "" {
		if s, ok := h.sessions.RestoreFromToken(r.Context(), c.Value); ok {
			h.setSessionCookie(w, s.ID)
			h.audit.Record(r.Context(), s.Username, "Login Success", "restored from remember-me cookie")
			h.writeJSON(w, http.StatusOK, sessionView(s))
			return
		}
	}
	h.writeJSON(w, http.StatusOK, SessionView{Authenticated: false})
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     session.SessionCookie,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     session.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
