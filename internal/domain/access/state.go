// Package access holds the pure session-routing model: controller states, session
// snapshots, route classification, the route policy and role guards.
package access

import (
	domainauth "github.com/target/lms-access/internal/domain/auth"
)

// State is the session controller state.
type State int

const (
	// StateUnknown is the initial state before the identity feed reported anything.
	StateUnknown State = iota
	// StateAnonymous means no principal is signed in.
	StateAnonymous
	// StateAuthenticating means a principal is present and its profile is being resolved.
	StateAuthenticating
	// StateAuthenticated means the profile was resolved.
	StateAuthenticated
	// StateProfileError means profile resolution failed; routed like anonymous.
	StateProfileError
)

var stateNames = map[State]string{
	StateUnknown:        "unknown",
	StateAnonymous:      "anonymous",
	StateAuthenticating: "authenticating",
	StateAuthenticated:  "authenticated",
	StateProfileError:   "profile_error",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "invalid"
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Settled reports whether redirect decisions may be made in this state.
func (s State) Settled() bool {
	return s == StateAnonymous || s == StateAuthenticated || s == StateProfileError
}

// Snapshot is an immutable view of one client session. Readers always observe a whole
// snapshot; the controller replaces it atomically.
type Snapshot struct {
	State      State
	Identity   *domainauth.Identity
	Profile    *domainauth.Profile
	Err        error
	Generation uint64
}

// UnknownSnapshot is the initial snapshot of every controller.
func UnknownSnapshot() Snapshot {
	return Snapshot{State: StateUnknown}
}

// AnonymousSnapshot describes a client with no principal.
func AnonymousSnapshot() Snapshot {
	return Snapshot{State: StateAnonymous}
}

// Role returns the resolved role, if any.
func (s Snapshot) Role() (domainauth.Role, bool) {
	if s.State != StateAuthenticated || s.Profile == nil {
		return "", false
	}
	return s.Profile.Role, true
}

// IsAdmin reports whether the snapshot belongs to an authenticated admin.
func (s Snapshot) IsAdmin() bool {
	role, ok := s.Role()
	return ok && role == domainauth.RoleAdmin
}
