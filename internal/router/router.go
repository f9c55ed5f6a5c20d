package router

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/otep/portal-core/internal/apikey"
	"github.com/otep/portal-core/internal/auth"
	"github.com/otep/portal-core/internal/dashboard"
	"github.com/otep/portal-core/internal/session"
	"github.com/otep/portal-core/internal/user"
	"github.com/otep/portal-core/internal/user/entity"

	auditpkg "github.com/otep/portal-core/internal/audit"
)

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

// LoggingMiddleware logs requests at debug level using the provided sugared logger.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			dur := time.Since(start)
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			logger.Debugw("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", status,
				"duration_ms", float64(dur.Microseconds())/1000.0,
				"size", lrw.size,
			)
		})
	}
}

// SecurityHeadersMiddleware sets common HTTP security headers.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "no-referrer-when-downgrade")
			if w.Header().Get("Content-Security-Policy") == "" {
				w.Header().Set("Content-Security-Policy", "default-src 'self'; object-src 'none'; base-uri 'self';")
			}
			if r.TLS != nil {
				w.Header().Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Deps bundles everything RegisterRoutes mounts.
type Deps struct {
	Logger     *zap.SugaredLogger
	Sessions   *session.Manager
	Auth       *auth.Handler
	Users      *user.Handler
	Dashboards *dashboard.Handler
	Keys       *apikey.Handler
	Audit      *auditpkg.Handler
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// requireAuthenticated resolves the session cookie and stamps the actor on
// the request context.
func requireAuthenticated(sessions *session.Manager, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := sessions.AuthenticatedFromRequest(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "not logged in")
			return
		}
		next(w, r.WithContext(session.WithActor(r.Context(), s.Username)))
	}
}

// requireAdmin additionally checks the session role at the decision point.
func requireAdmin(sessions *session.Manager, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := sessions.AuthenticatedFromRequest(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "not logged in")
			return
		}
		if s.Role != entity.RoleAdmin {
			writeError(w, http.StatusForbidden, "admin role required")
			return
		}
		next(w, r.WithContext(session.WithActor(r.Context(), s.Username)))
	}
}

// RegisterRoutes mounts HTTP handlers using the standard library's http.ServeMux.
func RegisterRoutes(d Deps) http.Handler {
	mux := http.NewServeMux()

	// health
	mux.HandleFunc("GET /portal/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// login flow
	mux.HandleFunc("POST /portal/auth/login", d.Auth.Login)
	mux.HandleFunc("POST /portal/auth/otp/verify", d.Auth.VerifyOTP)
	mux.HandleFunc("POST /portal/auth/otp/resend", d.Auth.ResendOTP)
	mux.HandleFunc("POST /portal/auth/back", d.Auth.Back)
	mux.HandleFunc("POST /portal/auth/logout", d.Auth.Logout)
	mux.HandleFunc("GET /portal/auth/session", d.Auth.Session)

	// dashboards
	mux.HandleFunc("GET /portal/dashboards", d.Dashboards.List)
	mux.HandleFunc("GET /portal/dashboards/{id}", d.Dashboards.Get)
	mux.HandleFunc("GET /portal/announcement", d.Dashboards.Announcement)
	mux.HandleFunc("PUT /portal/announcement", requireAdmin(d.Sessions, d.Dashboards.SetAnnouncement))
	mux.HandleFunc("DELETE /portal/announcement", requireAdmin(d.Sessions, d.Dashboards.ClearAnnouncement))

	// admin: user management
	mux.HandleFunc("GET /portal/admin/users", requireAdmin(d.Sessions, d.Users.List))
	mux.HandleFunc("POST /portal/admin/users", requireAdmin(d.Sessions, d.Users.Create))
	mux.HandleFunc("PATCH /portal/admin/users/{username}", requireAdmin(d.Sessions, d.Users.Update))
	mux.HandleFunc("DELETE /portal/admin/users/{username}", requireAdmin(d.Sessions, d.Users.Delete))

	// admin: API keys
	mux.HandleFunc("GET /portal/admin/apikeys", requireAdmin(d.Sessions, d.Keys.List))
	mux.HandleFunc("POST /portal/admin/apikeys", requireAdmin(d.Sessions, d.Keys.Generate))
	mux.HandleFunc("DELETE /portal/admin/apikeys/{prefix}", requireAdmin(d.Sessions, d.Keys.Revoke))

	// admin: audit log
	mux.HandleFunc("GET /portal/admin/audit", requireAdmin(d.Sessions, d.Audit.List))
	mux.HandleFunc("DELETE /portal/admin/audit", requireAdmin(d.Sessions, d.Audit.Clear))

	// external read API, bearer-key gated, independent of the session system
	mux.HandleFunc("GET /api/v1/{name}", d.Keys.RequireKey(d.Keys.Dataset))

	handler := LoggingMiddleware(d.Logger)(SecurityHeadersMiddleware()(mux))
	return handler
}
