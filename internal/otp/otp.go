package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/otep/portal-core/internal/user/entity"
)

var (
	// ErrMissingEmail is a hard stop: no code is issued and the user has to
	// contact an administrator.
	ErrMissingEmail = errors.New("no email address on record")
	// ErrMismatch covers wrong code, expired challenge, exhausted attempts
	// and unknown challenge alike.
	ErrMismatch = errors.New("code mismatch")
)

// Challenge is one pending second-factor check. The code stays unexported;
// it leaves the process only through the mailer (or TestCode in test mode).
type Challenge struct {
	ID       string
	Username string
	IssuedAt time.Time

	code     string
	attempts int
}

type Config struct {
	TTL         time.Duration
	MaxAttempts int
	CodeLength  int
	TestMode    bool
}

// ConfigFromEnv reads OTP policy from env vars. Defaults: 5 minute TTL,
// 5 attempts, 6 digits.
func ConfigFromEnv() Config {
	cfg := Config{TTL: 5 * time.Minute, MaxAttempts: 5, CodeLength: 6}
	if v := os.Getenv("OTP_TTL_MINUTES"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			cfg.TTL = time.Duration(parsed) * time.Minute
		}
	}
	if v := os.Getenv("OTP_MAX_ATTEMPTS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			cfg.MaxAttempts = parsed
		}
	}
	cfg.TestMode = os.Getenv("OTP_TEST_MODE") == "1"
	return cfg
}

// Issuer generates, dispatches and verifies one-time codes. Pending
// challenges are process-local, like the sessions they gate.
type Issuer struct {
	mu      sync.Mutex
	pending map[string]*Challenge

	mailer Mailer
	cfg    Config
	logger *zap.SugaredLogger
	now    func() time.Time
}

func NewIssuer(mailer Mailer, cfg Config, logger *zap.SugaredLogger) *Issuer {
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = 6
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &Issuer{
		pending: make(map[string]*Challenge),
		mailer:  mailer,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

func randomDigits(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = '0' + b%10
	}
	return string(out), nil
}

// Issue creates a challenge for the user and dispatches the code by email.
// Dispatch runs in the background so the login request does not block on
// the mail transaction; a failed send is logged and the user can ask for a
// resend.
func (i *Issuer) Issue(ctx context.Context, u *entity.User) (*Challenge, error) {
	if u.Email == "" {
		return nil, ErrMissingEmail
	}
	code, err := randomDigits(i.cfg.CodeLength)
	if err != nil {
		return nil, err
	}
	ch := &Challenge{
		ID:       uuid.NewString(),
		Username: u.Username,
		IssuedAt: i.now(),
		code:     code,
	}
	i.mu.Lock()
	i.pending[ch.ID] = ch
	i.mu.Unlock()

	go i.dispatch(u.Email, u.Username, code)
	return ch, nil
}

func (i *Issuer) dispatch(email, username, code string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	body := fmt.Sprintf("Hello,\n\nYour One-Time Password (OTP) for login is:\n\n%s\n\nThis code expires in %d minutes.\n\nBest regards,\nOTEP System",
		code, int(i.cfg.TTL.Minutes()))
	if err := i.mailer.Send(ctx, email, "Your Login OTP Code", body); err != nil {
		i.logger.Warnw("otp dispatch failed", "username", username, "err", err)
		return
	}
	i.logger.Infow("otp dispatched", "username", username)
}

// Verify checks a submitted code against a pending challenge. Exact string
// match; expiry, attempt exhaustion and an unknown challenge id all look
// like a mismatch to the submitter. A correct submission consumes the
// challenge so it can never match again.
func (i *Issuer) Verify(challengeID, submitted string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	ch, ok := i.pending[challengeID]
	if !ok {
		return ErrMismatch
	}
	if i.now().Sub(ch.IssuedAt) > i.cfg.TTL {
		delete(i.pending, challengeID)
		return ErrMismatch
	}
	ch.attempts++
	if ch.attempts > i.cfg.MaxAttempts {
		delete(i.pending, challengeID)
		return ErrMismatch
	}
	if subtle.ConstantTimeCompare([]byte(ch.code), []byte(submitted)) != 1 {
		return ErrMismatch
	}
	delete(i.pending, challengeID)
	return nil
}

// Cancel invalidates a pending challenge (the "back" action). Idempotent.
func (i *Issuer) Cancel(challengeID string) {
	i.mu.Lock()
	delete(i.pending, challengeID)
	i.mu.Unlock()
}

// Reissue cancels the old challenge and issues a fresh one ("resend code").
func (i *Issuer) Reissue(ctx context.Context, u *entity.User, oldChallengeID string) (*Challenge, error) {
	i.Cancel(oldChallengeID)
	return i.Issue(ctx, u)
}

// TestCode exposes the pending code when test mode is enabled, for
// deployments without a reachable SMTP server. Never enabled in production.
func (i *Issuer) TestCode(challengeID string) (string, bool) {
	if !i.cfg.TestMode {
		return "", false
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	ch, ok := i.pending[challengeID]
	if !ok {
		return "", false
	}
	return ch.code, true
}
