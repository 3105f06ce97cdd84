package auth

// Package auth contains domain-level types for identities, login sessions, and profiles.
// It is pure and free of framework/adapter concerns.

import (
	"fmt"
	"strings"
	"time"
)

// Role is the closed set of authorization roles. It is the single source of truth for
// every access decision.
type Role string

const (
	RoleStudent  Role = "student"
	RoleLecturer Role = "lecturer"
	RoleAdmin    Role = "admin"
)

// AllRoles lists every valid role in ascending order of privilege.
func AllRoles() []Role {
	return []Role{RoleStudent, RoleLecturer, RoleAdmin}
}

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleLecturer, RoleAdmin:
		return true
	default:
		return false
	}
}

func (r Role) String() string { return string(r) }

// ParseRole converts a user-supplied string into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("invalid role: %q (valid options: student, lecturer, admin)", s)
	}
	return r, nil
}

// ParseRoles parses a comma separated list of roles, ignoring empty items.
func ParseRoles(s string) ([]Role, error) {
	var out []Role
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		r, err := ParseRole(part)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// UnmarshalText implements encoding.TextUnmarshaler so roles can be decoded from JSON,
// YAML and env configuration with validation.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r), nil
}

// Identity is the authenticated principal owned by the identity provider.
// Email and DisplayName are optional.
type Identity struct {
	ID          string `json:"id"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// Session is the server-side login session persisted for a signed-in identity.
// ID is an opaque identifier carried by the session cookie.
type Session struct {
	ID          string    `json:"id"`
	IdentityID  string    `json:"identity_id"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Identity returns the principal the session was created for.
func (s Session) Identity() Identity {
	return Identity{ID: s.IdentityID, Email: s.Email, DisplayName: s.DisplayName}
}

// Expired reports whether the session is past its expiry at the given instant.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
