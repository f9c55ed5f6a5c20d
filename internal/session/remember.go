package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RememberCookie is the long-lived "remember me" cookie. The legacy portal
// stored the plaintext username here; the value is now a signed token.
const RememberCookie = "user_session"

// DefaultRememberTTL matches the 10-day cookie expiry of the legacy portal.
const DefaultRememberTTL = 10 * 24 * time.Hour

// RememberTokens signs and parses remember-me tokens (HS256). The token
// only proves "this browser completed a full login as <username> recently";
// the user record is still re-checked on every restore.
type RememberTokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

type RememberConfig struct {
	Secret string
	TTL    time.Duration
}

// RememberConfigFromEnv reads SESSION_SECRET and REMEMBER_TTL_DAYS. An
// empty secret is replaced with a random one, which invalidates outstanding
// tokens on restart; set SESSION_SECRET to keep them across restarts.
func RememberConfigFromEnv() RememberConfig {
	cfg := RememberConfig{Secret: os.Getenv("SESSION_SECRET"), TTL: DefaultRememberTTL}
	if v := os.Getenv("REMEMBER_TTL_DAYS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			cfg.TTL = time.Duration(parsed) * 24 * time.Hour
		}
	}
	return cfg
}

func NewRememberTokens(cfg RememberConfig) (*RememberTokens, error) {
	secret := []byte(cfg.Secret)
	if len(secret) == 0 {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, err
		}
		secret = []byte(hex.EncodeToString(buf))
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultRememberTTL
	}
	return &RememberTokens{secret: secret, ttl: ttl, now: time.Now}, nil
}

// Issue signs a token for the username and returns it with its expiry time
// (used for the cookie Expires attribute).
func (t *RememberTokens) Issue(username string) (string, time.Time, error) {
	now := t.now()
	expires := now.Add(t.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// Parse verifies signature and expiry and returns the embedded username.
func (t *RememberTokens) Parse(tokenString string) (string, error) {
	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil {
		return "", err
	}
	if !token.Valid || claims.Subject == "" {
		return "", errors.New("invalid token")
	}
	return claims.Subject, nil
}
