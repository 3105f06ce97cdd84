package testutil

import (
	"time"

	domainauth "github.com/target/lms-access/internal/domain/auth"
)

// ProfileBuilder provides a fluent interface for building profiles for tests.
type ProfileBuilder struct {
	p domainauth.Profile
}

// NewProfile creates a ProfileBuilder for a student with the given id, stamped at TestTime.
func NewProfile(id string) *ProfileBuilder {
	return &ProfileBuilder{
		p: domainauth.NewProfile(domainauth.Identity{ID: id, Email: id + "@example.com"}, domainauth.RoleStudent, TestTime()),
	}
}

// WithRole sets the role and resets the extensions to the role defaults.
func (b *ProfileBuilder) WithRole(role domainauth.Role) *ProfileBuilder {
	b.p.Role = role
	b.p.Extensions = domainauth.DefaultExtensions(role)
	return b
}

// WithDisplayName sets the display name.
func (b *ProfileBuilder) WithDisplayName(name string) *ProfileBuilder {
	b.p.DisplayName = name
	return b
}

// WithLastLogin sets the last login time.
func (b *ProfileBuilder) WithLastLogin(t time.Time) *ProfileBuilder {
	b.p.LastLogin = t
	return b
}

// Build returns the constructed profile.
func (b *ProfileBuilder) Build() domainauth.Profile {
	return b.p
}

// Identity returns an identity whose id and email match NewProfile(id).
func Identity(id string) domainauth.Identity {
	return domainauth.Identity{ID: id, Email: id + "@example.com"}
}

// Admin builds an admin profile.
func Admin(id string) domainauth.Profile {
	return NewProfile(id).WithRole(domainauth.RoleAdmin).Build()
}

// Lecturer builds a lecturer profile.
func Lecturer(id string) domainauth.Profile {
	return NewProfile(id).WithRole(domainauth.RoleLecturer).Build()
}

// Student builds a student profile.
func Student(id string) domainauth.Profile {
	return NewProfile(id).Build()
}
