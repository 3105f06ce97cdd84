package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
	domainauth "github.com/target/lms-access/internal/domain/auth"
)

func TestGuard_Evaluate(t *testing.T) {
	adminOnly := NewGuard("", domainauth.RoleAdmin)
	id := domainauth.Identity{ID: "u1"}

	tests := []struct {
		name  string
		guard Guard
		path  string
		snap  Snapshot
		want  Decision
	}{
		{
			name:  "loading while unknown",
			guard: adminOnly,
			path:  "/settings",
			snap:  UnknownSnapshot(),
			want:  Decision{Kind: DecisionLoading, Reason: ReasonPending},
		},
		{
			name:  "anonymous redirected to login with path",
			guard: adminOnly,
			path:  "/settings",
			snap:  AnonymousSnapshot(),
			want:  Decision{Kind: DecisionRedirect, Location: "/login?redirect=%2Fsettings", Reason: ReasonUnauthenticated},
		},
		{
			name:  "profile error redirected to login",
			guard: adminOnly,
			path:  "/settings",
			snap:  Snapshot{State: StateProfileError, Identity: &id},
			want:  Decision{Kind: DecisionRedirect, Location: "/login?redirect=%2Fsettings&reason=profile_unavailable", Reason: ReasonProfileUnavailable},
		},
		{
			name:  "foreign role goes to default dashboard",
			guard: adminOnly,
			path:  "/settings",
			snap:  authenticated(domainauth.RoleLecturer),
			want:  Decision{Kind: DecisionRedirect, Location: "/dashboard", Reason: ReasonRoleNotAllowed},
		},
		{
			name:  "foreign role goes to custom target",
			guard: NewGuard("/student", domainauth.RoleLecturer),
			path:  "/lecturer/uploads",
			snap:  authenticated(domainauth.RoleStudent),
			want:  Decision{Kind: DecisionRedirect, Location: "/student", Reason: ReasonRoleNotAllowed},
		},
		{
			name:  "allowed role renders",
			guard: adminOnly,
			path:  "/settings",
			snap:  authenticated(domainauth.RoleAdmin),
			want:  Decision{Kind: DecisionRender},
		},
		{
			name:  "redirect target equal to current path is denied",
			guard: adminOnly,
			path:  "/dashboard",
			snap:  authenticated(domainauth.RoleStudent),
			want:  Decision{Kind: DecisionDeny, Reason: ReasonRoleNotAllowed},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.guard.Evaluate(tt.path, tt.snap))
		})
	}
}

func TestGuard_AgreesWithPolicyMembership(t *testing.T) {
	p := NewPolicy(nil)
	g := NewGuard("", domainauth.RoleAdmin)
	for _, snap := range allSnapshots() {
		route := p.Decide("/admin/users", snap)
		guard := g.Evaluate("/admin/users", snap)
		assert.Equal(t, route.Kind == DecisionRender, guard.Kind == DecisionRender, "state %s", snap.State)
	}
}

func TestRequireRole(t *testing.T) {
	got := RequireRole(authenticated(domainauth.RoleLecturer), domainauth.RoleAdmin, domainauth.RoleLecturer)
	assert.Equal(t, Authorization{Authorized: true, State: StateAuthenticated}, got)

	got = RequireRole(authenticated(domainauth.RoleStudent), domainauth.RoleAdmin)
	assert.False(t, got.Authorized)

	got = RequireRole(Snapshot{State: StateAuthenticating}, domainauth.RoleAdmin)
	assert.Equal(t, Authorization{Authorized: false, State: StateAuthenticating}, got)
}
