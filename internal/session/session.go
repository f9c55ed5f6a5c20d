package session

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/otep/portal-core/internal/user/entity"
	userrepo "github.com/otep/portal-core/internal/user/repo"
	"github.com/otep/portal-core/pkg/utilities"
)

// Stage is where a login attempt currently stands. Anonymous (no session)
// and Authenticated are the only stable rest states; AwaitingOTP is bounded
// by the challenge TTL.
type Stage string

const (
	StageAwaitingOTP   Stage = "awaiting_otp"
	StageAuthenticated Stage = "authenticated"
)

// SessionCookie carries the process-local session id.
const SessionCookie = "portal_sid"

// Session is the in-process login state. Role, display name and allowed
// views are a snapshot of the user record at the moment of login, not
// re-read on every request.
type Session struct {
	ID           string
	Username     string
	Role         entity.Role
	DisplayName  string
	AllowedViews []string
	Stage        Stage
	ChallengeID  string
	CreatedAt    time.Time
}

// Manager holds sessions in a mutex-guarded map. Sessions do not survive a
// process restart; remember-me tokens cover return visits.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	users    userrepo.Store
	remember *RememberTokens
}

func NewManager(users userrepo.Store, remember *RememberTokens) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		users:    users,
		remember: remember,
	}
}

// BeginOTP creates a transient session for a credential-verified user who
// still owes the second factor.
func (m *Manager) BeginOTP(u *entity.User, challengeID string) *Session {
	s := &Session{
		ID:          utilities.NewKSUID(),
		Username:    u.Username,
		Stage:       StageAwaitingOTP,
		ChallengeID: challengeID,
		CreatedAt:   time.Now(),
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return m.snapshot(s)
}

// SetChallenge swaps the pending challenge id after a resend.
func (m *Manager) SetChallenge(sessionID, challengeID string) {
	m.mu.Lock()
	if s, ok := m.sessions[sessionID]; ok && s.Stage == StageAwaitingOTP {
		s.ChallengeID = challengeID
	}
	m.mu.Unlock()
}

// Promote moves an AwaitingOTP session to Authenticated, populating it from
// the user record.
func (m *Manager) Promote(sessionID string, u *entity.User) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok || s.Stage != StageAwaitingOTP {
		return nil, false
	}
	s.Stage = StageAuthenticated
	s.ChallengeID = ""
	s.Role = u.Role
	s.DisplayName = u.DisplayName
	s.AllowedViews = append([]string(nil), u.AllowedViews...)
	return m.snapshot(s), true
}

// Establish creates an Authenticated session directly (cookie restore path,
// which bypasses the OTP challenge).
func (m *Manager) Establish(u *entity.User) *Session {
	s := &Session{
		ID:           utilities.NewKSUID(),
		Username:     u.Username,
		Role:         u.Role,
		DisplayName:  u.DisplayName,
		AllowedViews: append([]string(nil), u.AllowedViews...),
		Stage:        StageAuthenticated,
		CreatedAt:    time.Now(),
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return m.snapshot(s)
}

// Get returns a copy of the session, if any.
func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return m.snapshot(s), true
}

// Teardown removes the session. The single map delete under the lock makes
// logout atomic: a retrying client either sees the full session or none.
func (m *Manager) Teardown(sessionID string) {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
}

// RestoreFromToken turns a remember-me token into an Authenticated session.
// The username inside the token is re-resolved against the user store on
// every call; a bad signature, expired token or missing user record all
// fail closed to Anonymous.
func (m *Manager) RestoreFromToken(ctx context.Context, token string) (*Session, bool) {
	username, err := m.remember.Parse(token)
	if err != nil {
		return nil, false
	}
	u, err := m.users.Get(ctx, username)
	if err != nil {
		return nil, false
	}
	return m.Establish(u), true
}

// IssueRememberToken signs a long-lived token for the user. Set as a cookie
// only when the user opted in.
func (m *Manager) IssueRememberToken(username string) (string, time.Time, error) {
	return m.remember.Issue(username)
}

// FromRequest resolves the session referenced by the request cookie.
func (m *Manager) FromRequest(r *http.Request) (*Session, bool) {
	c, err := r.Cookie(SessionCookie)
	if err != nil || c.Value == "" {
		return nil, false
	}
	return m.Get(c.Value)
}

// AuthenticatedFromRequest is FromRequest restricted to fully logged-in
// sessions.
func (m *Manager) AuthenticatedFromRequest(r *http.Request) (*Session, bool) {
	s, ok := m.FromRequest(r)
	if !ok || s.Stage != StageAuthenticated {
		return nil, false
	}
	return s, true
}

func (m *Manager) snapshot(s *Session) *Session {
	cp := *s
	cp.AllowedViews = append([]string(nil), s.AllowedViews...)
	return &cp
}
