package access

import (
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"

	domainauth "github.com/target/lms-access/internal/domain/auth"
)

// RouteClass is the classification of a route: public, or restricted to an allow-list.
type RouteClass struct {
	Public  bool
	Allowed []domainauth.Role
}

// PublicRoute returns a public classification.
func PublicRoute() RouteClass {
	return RouteClass{Public: true}
}

// RestrictedRoute returns a classification restricted to the given roles. An empty list
// admits nobody.
func RestrictedRoute(roles ...domainauth.Role) RouteClass {
	return RouteClass{Allowed: append([]domainauth.Role(nil), roles...)}
}

// Allows reports whether a principal with the given role may see the route.
// This is the only role membership check in the codebase.
func (c RouteClass) Allows(role domainauth.Role) bool {
	if c.Public {
		return true
	}
	return slices.Contains(c.Allowed, role)
}

// RouteRule is one entry of a route table, as written in configuration files.
//
// Pattern segments are literal or "*". A "*" in the middle matches exactly one segment;
// a trailing "*" matches the prefix itself and anything below it. Restricted rules without
// roles admit every signed-in role.
type RouteRule struct {
	Pattern string            `yaml:"pattern"`
	Public  bool              `yaml:"public"`
	Roles   []domainauth.Role `yaml:"roles"`
}

type compiledRule struct {
	segments []string
	subtree  bool
	literals int
	class    RouteClass
}

// RouteTable classifies request paths. Unmatched paths are restricted to all roles.
type RouteTable struct {
	rules []compiledRule
}

// NewRouteTable compiles and validates a set of rules.
func NewRouteTable(rules []RouteRule) (*RouteTable, error) {
	if len(rules) == 0 {
		return nil, errors.New("route table requires at least one rule")
	}
	t := &RouteTable{rules: make([]compiledRule, 0, len(rules))}
	seen := make(map[string]bool, len(rules))
	for i, r := range rules {
		cr, err := compileRule(r)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%q): %w", i, r.Pattern, err)
		}
		key := strings.Join(cr.segments, "/") + fmt.Sprint(cr.subtree)
		if seen[key] {
			return nil, fmt.Errorf("rule %d (%q): duplicate pattern", i, r.Pattern)
		}
		seen[key] = true
		t.rules = append(t.rules, cr)
	}
	return t, nil
}

func compileRule(r RouteRule) (compiledRule, error) {
	p := strings.TrimSpace(r.Pattern)
	if !strings.HasPrefix(p, "/") {
		return compiledRule{}, errors.New("pattern must start with /")
	}
	segs := splitPath(p)
	cr := compiledRule{}
	if n := len(segs); n > 0 && segs[n-1] == "*" {
		cr.subtree = true
		segs = segs[:n-1]
	}
	for _, s := range segs {
		if s != "*" {
			cr.literals++
		}
	}
	cr.segments = segs

	switch {
	case r.Public && len(r.Roles) > 0:
		return compiledRule{}, errors.New("public rules cannot list roles")
	case r.Public:
		cr.class = PublicRoute()
	case len(r.Roles) == 0:
		cr.class = RestrictedRoute(domainauth.AllRoles()...)
	default:
		for _, role := range r.Roles {
			if !role.Valid() {
				return compiledRule{}, fmt.Errorf("invalid role %q", role)
			}
		}
		cr.class = RestrictedRoute(r.Roles...)
	}
	return cr, nil
}

// Classify returns the classification of a request path. Query strings are ignored.
func (t *RouteTable) Classify(requestPath string) RouteClass {
	segs := splitPath(requestPath)
	best := -1
	for i := range t.rules {
		if !t.rules[i].matches(segs) {
			continue
		}
		if best < 0 || t.rules[i].moreSpecificThan(t.rules[best]) {
			best = i
		}
	}
	if best < 0 {
		return RestrictedRoute(domainauth.AllRoles()...)
	}
	return t.rules[best].class
}

func (r compiledRule) matches(segs []string) bool {
	if len(segs) < len(r.segments) || (!r.subtree && len(segs) != len(r.segments)) {
		return false
	}
	for i, want := range r.segments {
		if want != "*" && want != segs[i] {
			return false
		}
	}
	return true
}

func (r compiledRule) moreSpecificThan(o compiledRule) bool {
	if len(r.segments) != len(o.segments) {
		return len(r.segments) > len(o.segments)
	}
	if r.literals != o.literals {
		return r.literals > o.literals
	}
	return !r.subtree && o.subtree
}

// splitPath cleans a request path and splits it into segments. The root path has none.
func splitPath(p string) []string {
	p, _, _ = strings.Cut(p, "?")
	p = path.Clean("/" + p)
	if p == "/" {
		return nil
	}
	return strings.Split(strings.TrimPrefix(p, "/"), "/")
}

// DefaultRouteRules returns the application's built-in route table.
func DefaultRouteRules() []RouteRule {
	all := domainauth.AllRoles()
	return []RouteRule{
		{Pattern: "/", Public: true},
		{Pattern: LoginPath, Public: true},
		{Pattern: AdminLoginPath, Public: true},
		{Pattern: RegisterPath, Public: true},
		{Pattern: "/forgot-password", Public: true},
		{Pattern: "/logout", Public: true},
		{Pattern: "/courses/*", Public: true},
		{Pattern: "/courses/*/lessons/*", Roles: all},
		{Pattern: DashboardPath, Roles: all},
		{Pattern: "/profile", Roles: all},
		{Pattern: "/settings", Roles: all},
		{Pattern: "/assignments/*", Roles: all},
		{Pattern: "/quizzes/*", Roles: all},
		{Pattern: "/student/*", Roles: all},
		{Pattern: "/lecturer/*", Roles: []domainauth.Role{domainauth.RoleLecturer, domainauth.RoleAdmin}},
		{Pattern: "/admin/*", Roles: []domainauth.Role{domainauth.RoleAdmin}},
	}
}

// DefaultRouteTable compiles DefaultRouteRules.
func DefaultRouteTable() *RouteTable {
	t, err := NewRouteTable(DefaultRouteRules())
	if err != nil {
		panic(fmt.Sprintf("default route table: %v", err))
	}
	return t
}
