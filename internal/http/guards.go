package httpx

import (
	"errors"
	"net/http"

	"github.com/target/lms-access/internal/domain/access"
	domainauth "github.com/target/lms-access/internal/domain/auth"
	"github.com/target/lms-access/internal/observability/metrics"
)

// GuardsOptions configures Guards.
type GuardsOptions struct {
	Sessions *SessionLoader // Required
	Policy   *access.Policy // nil selects the default route table
	Metrics  *metrics.Access
}

// Guards builds the access middlewares. Every middleware stores the snapshot it
// evaluated in the request context for the wrapped handler.
type Guards struct {
	sessions *SessionLoader
	policy   *access.Policy
	metrics  *metrics.Access
}

// NewGuards constructs Guards.
func NewGuards(opts GuardsOptions) *Guards {
	if opts.Sessions == nil {
		panic("Guards requires a SessionLoader")
	}
	policy := opts.Policy
	if policy == nil {
		policy = access.NewPolicy(nil)
	}
	return &Guards{sessions: opts.Sessions, policy: policy, metrics: opts.Metrics}
}

// Policy returns the route policy in use.
func (g *Guards) Policy() *access.Policy { return g.policy }

// RouteGuard applies the route table to browser navigation.
func (g *Guards) RouteGuard() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap := g.sessions.Load(r)
			g.serveDecision(w, r, next, snap, g.policy.Decide(r.URL.RequestURI(), snap))
		})
	}
}

// RoleGuard narrows a browser subtree to the allowed roles. Foreign roles are sent to
// redirectTo, or the dashboard when it is empty.
func (g *Guards) RoleGuard(redirectTo string, allowed ...domainauth.Role) func(http.Handler) http.Handler {
	guard := access.NewGuard(redirectTo, allowed...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap := g.sessions.Load(r)
			g.serveDecision(w, r, next, snap, guard.Evaluate(r.URL.RequestURI(), snap))
		})
	}
}

func (g *Guards) serveDecision(
	w http.ResponseWriter,
	r *http.Request,
	next http.Handler,
	snap access.Snapshot,
	d access.Decision,
) {
	g.metrics.ObserveDecision(d.Kind.String(), string(d.Reason))
	if d.Kind == access.DecisionRender {
		next.ServeHTTP(w, r.WithContext(SetSnapshotInContext(r.Context(), snap)))
		return
	}
	writeDecision(w, r, d)
}

func writeDecision(w http.ResponseWriter, r *http.Request, d access.Decision) {
	if d.Reason != access.ReasonNone {
		w.Header().Set(accessReasonHeader, string(d.Reason))
	}
	switch d.Kind {
	case access.DecisionRedirect:
		http.Redirect(w, r, d.Location, http.StatusSeeOther)
	case access.DecisionLoading:
		writeLoading(w, r)
	default:
		if IsBrowserRequest(r) {
			http.Error(w, "Access Denied: You don't have permission to access this resource", http.StatusForbidden)
			return
		}
		WriteError(w, ErrorParams{
			Code:    http.StatusForbidden,
			ErrCode: "unauthorized",
			Err:     errors.New("insufficient permissions"),
		})
	}
}

func writeLoading(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Retry-After", loadingRetryAfterSecs)
	if IsBrowserRequest(r) {
		http.Error(w, "Your session is still loading. Please retry.", http.StatusServiceUnavailable)
		return
	}
	WriteError(w, ErrorParams{
		Code:    http.StatusServiceUnavailable,
		ErrCode: "session_loading",
		Err:     errors.New("session has not settled"),
	})
}

// RequireRoles guards an API handler. Unsettled sessions get 503 with Retry-After,
// anonymous callers 401, and callers whose profile is unavailable or whose role is not
// allowed 403.
func (g *Guards) RequireRoles(allowed ...domainauth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap := g.sessions.Load(r)
			authz := access.RequireRole(snap, allowed...)
			if authz.Authorized {
				next.ServeHTTP(w, r.WithContext(SetSnapshotInContext(r.Context(), snap)))
				return
			}
			writeUnauthorized(w, r, authz.State)
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request, state access.State) {
	switch state {
	case access.StateUnknown, access.StateAuthenticating:
		writeLoading(w, r)
	case access.StateAnonymous:
		WriteError(w, ErrorParams{
			Code:    http.StatusUnauthorized,
			ErrCode: "authentication_required",
			Err:     errors.New("authentication required"),
		})
	case access.StateProfileError:
		WriteError(w, ErrorParams{
			Code:    http.StatusForbidden,
			ErrCode: string(access.ReasonProfileUnavailable),
			Err:     errors.New("your profile could not be loaded; contact an administrator"),
		})
	default:
		WriteError(w, ErrorParams{
			Code:    http.StatusForbidden,
			ErrCode: "unauthorized",
			Err:     errors.New("insufficient permissions"),
		})
	}
}
