package access

import (
	"net/url"
	"strings"

	domainauth "github.com/target/lms-access/internal/domain/auth"
)

// Well-known application routes.
const (
	LoginPath          = "/login"
	AdminLoginPath     = "/admin-login"
	RegisterPath       = "/register"
	DashboardPath      = "/dashboard"
	AdminDashboardPath = "/admin/dashboard"
)

// DecisionKind is the outcome of a policy or guard evaluation.
type DecisionKind int

const (
	// DecisionRender lets the request through.
	DecisionRender DecisionKind = iota
	// DecisionRedirect sends the client to Decision.Location.
	DecisionRedirect
	// DecisionLoading means the session has not settled; nothing may be rendered or redirected yet.
	DecisionLoading
	// DecisionDeny refuses the request without a redirect. Used only when the redirect
	// target would be the requested route itself.
	DecisionDeny
)

var decisionNames = map[DecisionKind]string{
	DecisionRender:   "render",
	DecisionRedirect: "redirect",
	DecisionLoading:  "loading",
	DecisionDeny:     "deny",
}

func (k DecisionKind) String() string {
	if name, ok := decisionNames[k]; ok {
		return name
	}
	return "invalid"
}

// MarshalText implements encoding.TextMarshaler.
func (k DecisionKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Reason explains why a decision was not a plain render.
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonPending            Reason = "pending"
	ReasonUnauthenticated    Reason = "unauthenticated"
	ReasonProfileUnavailable Reason = "profile_unavailable"
	ReasonRoleNotAllowed     Reason = "role_not_allowed"
	ReasonAlreadySignedIn    Reason = "already_signed_in"
)

// Decision is the result of evaluating a route against a session snapshot.
type Decision struct {
	Kind     DecisionKind
	Location string
	Reason   Reason
}

func render() Decision { return Decision{Kind: DecisionRender} }

func loading() Decision { return Decision{Kind: DecisionLoading, Reason: ReasonPending} }

func redirect(location string, reason Reason) Decision {
	return Decision{Kind: DecisionRedirect, Location: location, Reason: reason}
}

// LandingRoute returns the default route for a role.
func LandingRoute(role domainauth.Role) string {
	if role == domainauth.RoleAdmin {
		return AdminDashboardPath
	}
	return DashboardPath
}

// LoginRedirect builds the sign-in URL carrying returnTo as the redirect target.
func LoginRedirect(returnTo string) string {
	if returnTo == "" {
		return LoginPath
	}
	return LoginPath + "?redirect=" + url.QueryEscape(returnTo)
}

// ProfileUnavailableRedirect is LoginRedirect tagged with the profile-unavailable reason,
// so the sign-in page can tell the user to contact an administrator instead of prompting
// for credentials again.
func ProfileUnavailableRedirect(returnTo string) string {
	sep := "?"
	if returnTo != "" {
		sep = "&"
	}
	return LoginRedirect(returnTo) + sep + "reason=" + string(ReasonProfileUnavailable)
}

// IsSignInRoute reports whether a path is one of the sign-in forms.
func IsSignInRoute(requestPath string) bool {
	switch "/" + strings.Join(splitPath(requestPath), "/") {
	case LoginPath, AdminLoginPath, RegisterPath:
		return true
	default:
		return false
	}
}

// Policy decides, for a request path and a session snapshot, whether to render, redirect,
// or wait. It is a pure function of its inputs.
type Policy struct {
	routes *RouteTable
}

// NewPolicy builds a policy over a route table; nil selects the default table.
func NewPolicy(routes *RouteTable) *Policy {
	if routes == nil {
		routes = DefaultRouteTable()
	}
	return &Policy{routes: routes}
}

// Classify exposes the route table classification.
func (p *Policy) Classify(requestPath string) RouteClass {
	return p.routes.Classify(requestPath)
}

// Decide evaluates requestPath (path plus optional query) against the snapshot.
//
// Public routes render in every state, with one exception: a sign-in route seen by an
// authenticated session redirects to the role's landing route. Restricted routes wait
// while the session is unsettled, send anonymous and profile-error sessions to sign-in,
// and send authenticated sessions with a foreign role to their landing route.
func (p *Policy) Decide(requestPath string, s Snapshot) Decision {
	if IsSignInRoute(requestPath) {
		switch {
		case !s.State.Settled():
			return loading()
		case s.State == StateAuthenticated:
			role, _ := s.Role()
			return redirect(LandingRoute(role), ReasonAlreadySignedIn)
		default:
			return render()
		}
	}

	class := p.routes.Classify(requestPath)
	if class.Public {
		return render()
	}
	return evaluateRestricted(class, requestPath, s, "")
}

// evaluateRestricted is shared by the route policy and role guards so both apply the
// same membership rule to the same snapshot.
func evaluateRestricted(class RouteClass, requestPath string, s Snapshot, forbiddenTarget string) Decision {
	switch s.State {
	case StateUnknown, StateAuthenticating:
		return loading()
	case StateAnonymous:
		return redirect(LoginRedirect(requestPath), ReasonUnauthenticated)
	case StateProfileError:
		return redirect(ProfileUnavailableRedirect(requestPath), ReasonProfileUnavailable)
	case StateAuthenticated:
		role, ok := s.Role()
		if ok && class.Allows(role) {
			return render()
		}
		target := forbiddenTarget
		if target == "" {
			target = LandingRoute(role)
		}
		if samePath(target, requestPath) {
			return Decision{Kind: DecisionDeny, Reason: ReasonRoleNotAllowed}
		}
		return redirect(target, ReasonRoleNotAllowed)
	default:
		return loading()
	}
}

func samePath(a, b string) bool {
	return strings.Join(splitPath(a), "/") == strings.Join(splitPath(b), "/")
}
