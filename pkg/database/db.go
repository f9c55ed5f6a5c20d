package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

type Config struct {
	DSN      string
	MaxConns int
	Timeout  time.Duration
	TimeZone string
}

// ConfigFromEnv reads DB config from environment variables. An empty DSN
// means no database is configured; callers fall back to the in-memory
// stores in that case.
func ConfigFromEnv() Config {
	max := 5
	if v := os.Getenv("DATABASE_MAX_CONNS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			max = parsed
		}
	}
	return Config{
		DSN:      os.Getenv("DATABASE_URL"),
		MaxConns: max,
		Timeout:  5 * time.Second,
		TimeZone: os.Getenv("DATABASE_TIMEZONE"),
	}
}

// Connect opens a *sql.DB and verifies connectivity with a ping
func Connect(cfg Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MaxConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if cfg.TimeZone != "" {
		connCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		// SET does not accept parameter placeholders on the right-hand side
		if _, err := db.ExecContext(connCtx, "SET TIME ZONE "+quoteLiteral(cfg.TimeZone)); err != nil {
			db.Close()
			return nil, fmt.Errorf("set time zone: %w", err)
		}
	}
	return db, nil
}

// quoteLiteral escapes single quotes and wraps the value in single quotes.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
