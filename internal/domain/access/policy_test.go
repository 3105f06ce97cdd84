package access

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/lms-access/internal/domain/auth"
)

func authenticated(role domainauth.Role) Snapshot {
	id := domainauth.Identity{ID: "u-" + string(role), Email: string(role) + "@example.com"}
	p := domainauth.NewProfile(id, role, time.Unix(0, 0))
	return Snapshot{State: StateAuthenticated, Identity: &id, Profile: &p}
}

func allSnapshots() []Snapshot {
	id := domainauth.Identity{ID: "u1"}
	return []Snapshot{
		UnknownSnapshot(),
		AnonymousSnapshot(),
		{State: StateAuthenticating, Identity: &id},
		{State: StateProfileError, Identity: &id, Err: errors.New("denied")},
		authenticated(domainauth.RoleStudent),
		authenticated(domainauth.RoleLecturer),
		authenticated(domainauth.RoleAdmin),
	}
}

func TestPolicy_Scenarios(t *testing.T) {
	p := NewPolicy(nil)
	id := domainauth.Identity{ID: "u1"}

	tests := []struct {
		name string
		path string
		snap Snapshot
		want Decision
	}{
		{
			name: "student on admin route goes to dashboard",
			path: "/admin/users",
			snap: authenticated(domainauth.RoleStudent),
			want: Decision{Kind: DecisionRedirect, Location: "/dashboard", Reason: ReasonRoleNotAllowed},
		},
		{
			name: "admin on login goes to admin dashboard",
			path: "/login",
			snap: authenticated(domainauth.RoleAdmin),
			want: Decision{Kind: DecisionRedirect, Location: "/admin/dashboard", Reason: ReasonAlreadySignedIn},
		},
		{
			name: "lecturer on login goes to dashboard",
			path: "/login",
			snap: authenticated(domainauth.RoleLecturer),
			want: Decision{Kind: DecisionRedirect, Location: "/dashboard", Reason: ReasonAlreadySignedIn},
		},
		{
			name: "anonymous on dashboard goes to login with return target",
			path: "/dashboard",
			snap: AnonymousSnapshot(),
			want: Decision{Kind: DecisionRedirect, Location: "/login?redirect=%2Fdashboard", Reason: ReasonUnauthenticated},
		},
		{
			name: "profile error goes to sign-in tagged with the reason",
			path: "/dashboard",
			snap: Snapshot{State: StateProfileError, Identity: &id},
			want: Decision{
				Kind:     DecisionRedirect,
				Location: "/login?redirect=%2Fdashboard&reason=profile_unavailable",
				Reason:   ReasonProfileUnavailable,
			},
		},
		{
			name: "authenticating waits",
			path: "/dashboard",
			snap: Snapshot{State: StateAuthenticating, Identity: &id},
			want: Decision{Kind: DecisionLoading, Reason: ReasonPending},
		},
		{
			name: "unknown waits on login",
			path: "/login",
			snap: UnknownSnapshot(),
			want: Decision{Kind: DecisionLoading, Reason: ReasonPending},
		},
		{
			name: "anonymous sees login form",
			path: "/login",
			snap: AnonymousSnapshot(),
			want: Decision{Kind: DecisionRender},
		},
		{
			name: "lecturer allowed on lecturer area",
			path: "/lecturer/students",
			snap: authenticated(domainauth.RoleLecturer),
			want: Decision{Kind: DecisionRender},
		},
		{
			name: "admin allowed on lecturer area",
			path: "/lecturer",
			snap: authenticated(domainauth.RoleAdmin),
			want: Decision{Kind: DecisionRender},
		},
		{
			name: "student denied lecturer area",
			path: "/lecturer",
			snap: authenticated(domainauth.RoleStudent),
			want: Decision{Kind: DecisionRedirect, Location: "/dashboard", Reason: ReasonRoleNotAllowed},
		},
		{
			name: "return target keeps the query string",
			path: "/student/courses?page=2",
			snap: AnonymousSnapshot(),
			want: Decision{
				Kind:     DecisionRedirect,
				Location: "/login?redirect=%2Fstudent%2Fcourses%3Fpage%3D2",
				Reason:   ReasonUnauthenticated,
			},
		},
		{
			name: "unclassified route fails closed",
			path: "/reports/grades",
			snap: AnonymousSnapshot(),
			want: Decision{Kind: DecisionRedirect, Location: "/login?redirect=%2Freports%2Fgrades", Reason: ReasonUnauthenticated},
		},
		{
			name: "lesson pages need a session",
			path: "/courses/c1/lessons/l1",
			snap: AnonymousSnapshot(),
			want: Decision{
				Kind:     DecisionRedirect,
				Location: "/login?redirect=%2Fcourses%2Fc1%2Flessons%2Fl1",
				Reason:   ReasonUnauthenticated,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Decide(tt.path, tt.snap))
		})
	}
}

func TestPolicy_PublicRoutesNeverRedirect(t *testing.T) {
	p := NewPolicy(nil)
	for _, path := range []string{"/", "/courses", "/courses/c1", "/forgot-password", "/logout"} {
		for _, snap := range allSnapshots() {
			d := p.Decide(path, snap)
			assert.Equal(t, DecisionRender, d.Kind, "path %s state %s", path, snap.State)
		}
	}
}

func TestPolicy_RestrictedNeverRendersForForeignRole(t *testing.T) {
	p := NewPolicy(nil)
	paths := []string{"/admin", "/admin/users", "/admin/dashboard", "/lecturer", "/lecturer/uploads", "/dashboard", "/x/y"}
	for _, path := range paths {
		class := p.Classify(path)
		require.False(t, class.Public)
		for _, snap := range allSnapshots() {
			role, ok := snap.Role()
			if ok && class.Allows(role) {
				continue
			}
			d := p.Decide(path, snap)
			assert.NotEqual(t, DecisionRender, d.Kind, "path %s state %s", path, snap.State)
			if snap.State.Settled() {
				assert.Contains(t, []DecisionKind{DecisionRedirect, DecisionDeny}, d.Kind)
			} else {
				assert.Equal(t, DecisionLoading, d.Kind)
			}
		}
	}
}

func TestPolicy_Idempotent(t *testing.T) {
	p := NewPolicy(nil)
	for _, path := range []string{"/", "/login", "/dashboard", "/admin/users", "/lecturer"} {
		for _, snap := range allSnapshots() {
			assert.Equal(t, p.Decide(path, snap), p.Decide(path, snap))
		}
	}
}

func TestPolicy_DeniesInsteadOfLooping(t *testing.T) {
	table, err := NewRouteTable([]RouteRule{
		{Pattern: "/", Public: true},
		{Pattern: "/dashboard", Roles: []domainauth.Role{domainauth.RoleAdmin}},
	})
	require.NoError(t, err)

	d := NewPolicy(table).Decide("/dashboard", authenticated(domainauth.RoleStudent))
	assert.Equal(t, DecisionDeny, d.Kind)
	assert.Equal(t, ReasonRoleNotAllowed, d.Reason)
}

func TestLandingRoute(t *testing.T) {
	assert.Equal(t, "/admin/dashboard", LandingRoute(domainauth.RoleAdmin))
	assert.Equal(t, "/dashboard", LandingRoute(domainauth.RoleLecturer))
	assert.Equal(t, "/dashboard", LandingRoute(domainauth.RoleStudent))
}

func TestProfileUnavailableRedirect(t *testing.T) {
	assert.Equal(t, "/login?redirect=%2Fcourses%2Fc1%3Ftab%3D2&reason=profile_unavailable",
		ProfileUnavailableRedirect("/courses/c1?tab=2"))
	assert.Equal(t, "/login?reason=profile_unavailable", ProfileUnavailableRedirect(""))
	assert.NotEqual(t, LoginRedirect("/dashboard"), ProfileUnavailableRedirect("/dashboard"))
}

func TestIsSignInRoute(t *testing.T) {
	assert.True(t, IsSignInRoute("/login"))
	assert.True(t, IsSignInRoute("/login/"))
	assert.True(t, IsSignInRoute("/admin-login?x=1"))
	assert.False(t, IsSignInRoute("/logout"))
}
