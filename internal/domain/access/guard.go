package access

import domainauth "github.com/target/lms-access/internal/domain/auth"

// Guard narrows access for a subtree to an explicit allow-list, independent of the route
// table. RedirectTo defaults to the generic dashboard.
type Guard struct {
	Allowed    []domainauth.Role
	RedirectTo string
}

// NewGuard builds a guard for the given roles.
func NewGuard(redirectTo string, allowed ...domainauth.Role) Guard {
	return Guard{Allowed: append([]domainauth.Role(nil), allowed...), RedirectTo: redirectTo}
}

// Evaluate decides what the guarded subtree at currentPath may do for the snapshot.
func (g Guard) Evaluate(currentPath string, s Snapshot) Decision {
	target := g.RedirectTo
	if target == "" {
		target = DashboardPath
	}
	return evaluateRestricted(RestrictedRoute(g.Allowed...), currentPath, s, target)
}

// Authorization is the imperative form of a guard check.
type Authorization struct {
	Authorized bool
	State      State
}

// RequireRole reports whether the snapshot is settled, authenticated and holds one of the
// allowed roles. Callers use it to gate a data fetch before issuing it.
func RequireRole(s Snapshot, allowed ...domainauth.Role) Authorization {
	role, ok := s.Role()
	return Authorization{
		Authorized: ok && RestrictedRoute(allowed...).Allows(role),
		State:      s.State,
	}
}
