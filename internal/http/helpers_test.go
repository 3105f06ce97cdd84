package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/target/lms-access/internal/domain/access"
	domainauth "github.com/target/lms-access/internal/domain/auth"
	"github.com/target/lms-access/internal/testutil"
)

// staticSessions serves fixed snapshots keyed by session id. Unknown ids are anonymous.
type staticSessions map[string]access.Snapshot

func (s staticSessions) Snapshot(_ context.Context, id string) (access.Snapshot, error) {
	if snap, ok := s[id]; ok {
		return snap, nil
	}
	return access.AnonymousSnapshot(), nil
}

func signedIn(p domainauth.Profile) access.Snapshot {
	id := domainauth.Identity{ID: p.ID, Email: p.Email}
	return access.Snapshot{State: access.StateAuthenticated, Identity: &id, Profile: &p}
}

// testSessions covers every controller state under a session id of the same name.
func testSessions() staticSessions {
	u9 := testutil.Identity("u9")
	return staticSessions{
		"admin":          signedIn(testutil.Admin("u2")),
		"lecturer":       signedIn(testutil.Lecturer("u4")),
		"student":        signedIn(testutil.Student("u3")),
		"authenticating": {State: access.StateAuthenticating, Identity: &u9},
		"unknown":        access.UnknownSnapshot(),
		"profile-error":  {State: access.StateProfileError, Identity: &u9},
	}
}

func newTestLoader(reader SessionReader) *SessionLoader {
	return NewSessionLoader(SessionLoaderOptions{Reader: reader, SettleTimeout: 100 * time.Millisecond})
}

func newTestGuards() *Guards {
	return NewGuards(GuardsOptions{Sessions: newTestLoader(testSessions())})
}

// newRequest builds a request carrying the session cookie when sessionID is not empty.
func newRequest(method, target, sessionID string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	if sessionID != "" {
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: sessionID})
	}
	return req
}

// okHandler answers 200 and echoes the snapshot state it was handed.
var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { //nolint:gochecknoglobals // test fixture
	snap, _ := SnapshotFromContext(r.Context())
	w.Header().Set("X-State", snap.State.String())
	w.WriteHeader(http.StatusOK)
})
