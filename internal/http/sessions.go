package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/target/lms-access/internal/domain/access"
)

// SessionReader yields the settled snapshot of a login session. It returns the unsettled
// snapshot together with the context error when ctx ends first.
type SessionReader interface {
	Snapshot(ctx context.Context, sessionID string) (access.Snapshot, error)
}

// SessionLoaderOptions configures a SessionLoader.
type SessionLoaderOptions struct {
	Reader        SessionReader // Required
	SettleTimeout time.Duration
	Logger        *slog.Logger
}

// SessionLoader reads the snapshot behind a request's session cookie.
type SessionLoader struct {
	reader SessionReader
	settle time.Duration
	logger *slog.Logger
}

// NewSessionLoader constructs a SessionLoader.
func NewSessionLoader(opts SessionLoaderOptions) *SessionLoader {
	if opts.Reader == nil {
		panic("SessionLoader requires a Reader")
	}
	settle := opts.SettleTimeout
	if settle <= 0 {
		settle = defaultSettleTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionLoader{reader: opts.Reader, settle: settle, logger: logger.With("component", "session_loader")}
}

// Load returns the snapshot for r. Requests without a session cookie are anonymous. A
// session that does not settle within the settle timeout comes back unsettled, which the
// guards answer with a loading response.
func (l *SessionLoader) Load(r *http.Request) access.Snapshot {
	if s, ok := SnapshotFromContext(r.Context()); ok {
		return s
	}
	sessionID := sessionIDFromRequest(r)
	if sessionID == "" {
		return access.AnonymousSnapshot()
	}

	ctx, cancel := context.WithTimeout(r.Context(), l.settle)
	defer cancel()
	snap, err := l.reader.Snapshot(ctx, sessionID)
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		l.logger.DebugContext(r.Context(), "session did not settle in time", "state", snap.State)
	default:
		l.logger.WarnContext(r.Context(), "load session failed", "error", err)
	}
	return snap
}

func sessionIDFromRequest(r *http.Request) string {
	c, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
