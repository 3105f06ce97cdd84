package httpx

import (
	"net/http"

	"github.com/target/lms-access/internal/domain/access"
	domainauth "github.com/target/lms-access/internal/domain/auth"
	apperrors "github.com/target/lms-access/internal/errors"
	"github.com/target/lms-access/internal/observability/metrics"
)

// AccessHandlers expose the session snapshot and the access decisions to front ends.
type AccessHandlers struct {
	Sessions *SessionLoader
	Policy   *access.Policy
	Metrics  *metrics.Access
}

type sessionView struct {
	State    access.State         `json:"state"`
	Identity *domainauth.Identity `json:"identity"`
	Profile  *domainauth.Profile  `json:"profile"`
	Error    string               `json:"error,omitempty"`
}

func viewOf(s access.Snapshot) sessionView {
	v := sessionView{State: s.State, Identity: s.Identity, Profile: s.Profile}
	if s.State == access.StateProfileError {
		v.Error = string(access.ReasonProfileUnavailable)
	}
	return v
}

type decisionView struct {
	Kind     access.DecisionKind `json:"kind"`
	Location string              `json:"location,omitempty"`
	Reason   access.Reason       `json:"reason,omitempty"`
	State    access.State        `json:"state"`
}

// Session returns the caller's session snapshot.
// GET /api/session.
func (h *AccessHandlers) Session(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, viewOf(h.Sessions.Load(r)))
}

// Decide evaluates the route policy for a path.
// GET /api/access/decide?path=<path>.
func (h *AccessHandlers) Decide(w http.ResponseWriter, r *http.Request) {
	path, ok := requirePath(w, r)
	if !ok {
		return
	}
	snap := h.Sessions.Load(r)
	d := h.Policy.Decide(path, snap)
	h.Metrics.ObserveDecision(d.Kind.String(), string(d.Reason))
	WriteJSON(w, http.StatusOK, decisionView{Kind: d.Kind, Location: d.Location, Reason: d.Reason, State: snap.State})
}

// Guard evaluates a role guard for a path.
// GET /api/access/guard?roles=<r1,r2>&redirect_to=<path>&path=<path>.
func (h *AccessHandlers) Guard(w http.ResponseWriter, r *http.Request) {
	path, ok := requirePath(w, r)
	if !ok {
		return
	}
	roles, ok := parseRolesQuery(w, r)
	if !ok {
		return
	}
	redirectTo := r.URL.Query().Get("redirect_to")
	if redirectTo != "" {
		redirectTo = safeRedirectPath(redirectTo)
	}

	snap := h.Sessions.Load(r)
	d := access.NewGuard(redirectTo, roles...).Evaluate(path, snap)
	h.Metrics.ObserveDecision(d.Kind.String(), string(d.Reason))
	WriteJSON(w, http.StatusOK, decisionView{Kind: d.Kind, Location: d.Location, Reason: d.Reason, State: snap.State})
}

type authorizationView struct {
	Authorized bool         `json:"authorized"`
	State      access.State `json:"state"`
}

// Require reports whether the caller holds one of the roles.
// GET /api/access/require?roles=<r1,r2>.
func (h *AccessHandlers) Require(w http.ResponseWriter, r *http.Request) {
	roles, ok := parseRolesQuery(w, r)
	if !ok {
		return
	}
	a := access.RequireRole(h.Sessions.Load(r), roles...)
	WriteJSON(w, http.StatusOK, authorizationView{Authorized: a.Authorized, State: a.State})
}

func requirePath(w http.ResponseWriter, r *http.Request) (string, bool) {
	path := r.URL.Query().Get("path")
	if path == "" || path[0] != '/' {
		WriteAppError(w, apperrors.ValidationField("path", "path must be an absolute route path"))
		return "", false
	}
	return path, true
}

func parseRolesQuery(w http.ResponseWriter, r *http.Request) ([]domainauth.Role, bool) {
	roles, err := domainauth.ParseRoles(r.URL.Query().Get("roles"))
	if err != nil {
		WriteAppError(w, apperrors.ValidationField("roles", err.Error()))
		return nil, false
	}
	if len(roles) == 0 {
		WriteAppError(w, apperrors.ValidationField("roles", "at least one role is required"))
		return nil, false
	}
	return roles, true
}
