package audit

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"go.uber.org/zap"
)

// Event is one audit record: who did what, when.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail"`
}

// Store persists audit events. Clearing the log is itself an audited action
// at the handler level.
type Store interface {
	Append(ctx context.Context, e Event) error
	Recent(ctx context.Context, limit int) ([]Event, error)
	Clear(ctx context.Context) error
}

type Config struct {
	Dir       string
	UTCOffset int
}

// ConfigFromEnv reads the audit sink config. The default zone offset is +7
// (ICT), matching the timestamps the legacy portal wrote.
func ConfigFromEnv() Config {
	dir := os.Getenv("AUDIT_LOG_DIR")
	if dir == "" {
		dir = "data"
	}
	offset := 7
	if v := os.Getenv("AUDIT_TZ_OFFSET_HOURS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	return Config{Dir: dir, UTCOffset: offset}
}

// Recorder fans every event out to the structured log, a rotating file and
// the store. Recording is best-effort: a sink failure is logged, never
// propagated into the flow that triggered the event.
type Recorder struct {
	mu     sync.Mutex
	store  Store
	file   io.Writer
	logger *zap.SugaredLogger
	node   *snowflake.Node
	loc    *time.Location
	now    func() time.Time
}

func NewRecorder(store Store, file io.Writer, logger *zap.SugaredLogger, node *snowflake.Node, utcOffset int) *Recorder {
	return &Recorder{
		store:  store,
		file:   file,
		logger: logger,
		node:   node,
		loc:    time.FixedZone("audit", utcOffset*3600),
		now:    time.Now,
	}
}

// NewFileSink opens a rotating audit log file under dir. Files rotate daily
// and are kept for 90 days.
func NewFileSink(dir string) (io.WriteCloser, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return rotatelogs.New(
		filepath.Join(dir, "audit.%Y%m%d.log"),
		rotatelogs.WithLinkName(filepath.Join(dir, "audit.log")),
		rotatelogs.WithRotationTime(24*time.Hour),
		rotatelogs.WithMaxAge(90*24*time.Hour),
	)
}

// Record writes one event. Fired for login success/failure, OTP issuance,
// logout, restores, user CRUD and API-key create/revoke.
func (r *Recorder) Record(ctx context.Context, actor, action, detail string) {
	e := Event{
		ID:        r.node.Generate().String(),
		Timestamp: r.now().In(r.loc),
		Actor:     actor,
		Action:    action,
		Detail:    detail,
	}
	r.logger.Infow("audit", "actor", e.Actor, "action", e.Action, "detail", e.Detail, "event_id", e.ID)
	if r.file != nil {
		line := fmt.Sprintf("%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Format("2006-01-02 15:04:05"), e.ID, e.Actor, e.Action, e.Detail)
		r.mu.Lock()
		_, err := io.WriteString(r.file, line)
		r.mu.Unlock()
		if err != nil {
			r.logger.Warnw("audit file write failed", "err", err)
		}
	}
	if r.store != nil {
		if err := r.store.Append(ctx, e); err != nil {
			r.logger.Warnw("audit store append failed", "err", err)
		}
	}
}

// Recent returns the newest events, newest first.
func (r *Recorder) Recent(ctx context.Context, limit int) ([]Event, error) {
	if r.store == nil {
		return nil, nil
	}
	return r.store.Recent(ctx, limit)
}

// Clear drops all stored events. The rotating file sink is left alone.
func (r *Recorder) Clear(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	return r.store.Clear(ctx)
}
