package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/lms-access/internal/domain/access"
	domainauth "github.com/target/lms-access/internal/domain/auth"
	apperrors "github.com/target/lms-access/internal/errors"
	"github.com/target/lms-access/internal/observability/metrics"
	"github.com/target/lms-access/internal/ports"
)

// ProfileBackends are the stores ProfileService writes to.
type ProfileBackends struct {
	Store      ports.ProfileStore     // Required
	Feed       ports.ProfileFeed      // Optional: announces role changes to open sessions
	Identities ports.IdentityProvider // Optional: required for CreateUser
}

// ProfileServiceOptions groups dependencies for ProfileService.
type ProfileServiceOptions struct {
	Backends ProfileBackends
	Observer Observer
}

// ProfileService implements the admin-only profile mutations and reads.
// Every method authorizes the caller from its settled session snapshot.
type ProfileService struct {
	store      ports.ProfileStore
	feed       ports.ProfileFeed
	identities ports.IdentityProvider
	logger     *slog.Logger
	metrics    *metrics.Access
	now        func() time.Time
}

// NewProfileService constructs a ProfileService.
func NewProfileService(opts ProfileServiceOptions) *ProfileService {
	if opts.Backends.Store == nil {
		panic("ProfileService requires a Store")
	}
	logger := opts.Observer.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileService{
		store:      opts.Backends.Store,
		feed:       opts.Backends.Feed,
		identities: opts.Backends.Identities,
		logger:     logger.With("component", "profile_service"),
		metrics:    opts.Observer.Metrics,
		now:        time.Now,
	}
}

func requireAdmin(caller access.Snapshot, op string) error {
	if caller.IsAdmin() {
		return nil
	}
	return apperrors.Unauthorizedf("%s requires the admin role", op)
}

// SetRole changes the role of target. Only admins may call it; on any failure the
// profile is left unchanged.
func (s *ProfileService) SetRole(
	ctx context.Context,
	caller access.Snapshot,
	targetID string,
	role domainauth.Role,
) (domainauth.Profile, error) {
	p, err := s.setRole(ctx, caller, targetID, role)
	s.metrics.ObserveRoleChange(err)
	return p, err
}

func (s *ProfileService) setRole(
	ctx context.Context,
	caller access.Snapshot,
	targetID string,
	role domainauth.Role,
) (domainauth.Profile, error) {
	if err := requireAdmin(caller, "setRole"); err != nil {
		return domainauth.Profile{}, err
	}
	if targetID == "" {
		return domainauth.Profile{}, apperrors.ValidationField("id", "target id is required")
	}
	if !role.Valid() {
		return domainauth.Profile{}, apperrors.ValidationField("role", fmt.Sprintf("invalid role %q", role))
	}

	p, err := s.store.UpdateRole(ctx, targetID, role)
	if err != nil {
		return domainauth.Profile{}, fmt.Errorf("update role: %w", err)
	}
	s.logger.InfoContext(ctx, "role changed",
		"profile_id", targetID, "role", role, "by", callerID(caller))
	s.announce(ctx, targetID)
	return p, nil
}

func (s *ProfileService) announce(ctx context.Context, profileID string) {
	if s.feed == nil {
		return
	}
	if err := s.feed.PublishProfileChanged(ctx, profileID); err != nil {
		s.logger.WarnContext(ctx, "publish profile change failed", "profile_id", profileID, "error", err)
	}
}

func callerID(s access.Snapshot) string {
	if s.Identity == nil {
		return ""
	}
	return s.Identity.ID
}

// CreateUserInput describes a user created by an admin.
type CreateUserInput struct {
	Email       string
	Password    string
	DisplayName string
	Role        domainauth.Role
}

// CreateUser creates an identity and its profile with the requested role. Admin only.
func (s *ProfileService) CreateUser(
	ctx context.Context,
	caller access.Snapshot,
	in CreateUserInput,
) (domainauth.Profile, error) {
	if err := requireAdmin(caller, "createUser"); err != nil {
		return domainauth.Profile{}, err
	}
	return s.BootstrapUser(ctx, in)
}

// BootstrapUser creates a user without an authorization check. It backs the admin CLI,
// which runs before any admin session exists.
func (s *ProfileService) BootstrapUser(ctx context.Context, in CreateUserInput) (domainauth.Profile, error) {
	if s.identities == nil {
		return domainauth.Profile{}, errPasswordAuthDisabled
	}
	if in.Role == "" {
		in.Role = domainauth.RoleStudent
	}
	if !in.Role.Valid() {
		return domainauth.Profile{}, apperrors.ValidationField("role", fmt.Sprintf("invalid role %q", in.Role))
	}

	id, err := s.identities.CreateIdentity(ctx, ports.CreateIdentityInput{
		Email:       in.Email,
		Password:    in.Password,
		DisplayName: in.DisplayName,
	})
	if err != nil {
		return domainauth.Profile{}, err
	}

	p := domainauth.NewProfile(id, in.Role, s.now())
	if err := s.store.Create(ctx, p); err != nil {
		err = fmt.Errorf("create profile: %w", err)
		s.disableOrphan(ctx, id.ID, err)
		return domainauth.Profile{}, err
	}
	s.logger.InfoContext(ctx, "user created", "profile_id", id.ID, "role", in.Role)

	created, err := s.store.Get(ctx, id.ID)
	if err != nil {
		// The profile is written; report what was stored rather than fail a finished create.
		s.logger.WarnContext(ctx, "reload created profile failed", "profile_id", id.ID, "error", err)
		return p, nil
	}
	return created, nil
}

// disableOrphan blocks sign-in for an identity whose profile could not be written, so
// it cannot sign in as a lazily created student.
func (s *ProfileService) disableOrphan(ctx context.Context, identityID string, cause error) {
	if err := s.identities.SetDisabled(ctx, identityID, true); err != nil {
		s.logger.ErrorContext(ctx, "identity left without a profile",
			"identity_id", identityID, "cause", cause, "error", err)
		return
	}
	s.logger.WarnContext(ctx, "identity disabled after profile create failed",
		"identity_id", identityID, "cause", cause)
}

// Get returns a profile. Admins may read any profile, everyone else only their own.
func (s *ProfileService) Get(ctx context.Context, caller access.Snapshot, id string) (domainauth.Profile, error) {
	if !caller.IsAdmin() {
		if _, ok := caller.Role(); !ok || caller.Profile.ID != id {
			return domainauth.Profile{}, apperrors.Unauthorized("reading another user's profile requires the admin role")
		}
	}
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return domainauth.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// List returns profiles ordered by creation time. Admin only.
func (s *ProfileService) List(
	ctx context.Context,
	caller access.Snapshot,
	opts ports.ProfileListOptions,
) ([]domainauth.Profile, error) {
	if err := requireAdmin(caller, "listUsers"); err != nil {
		return nil, err
	}
	if opts.Role != nil && !opts.Role.Valid() {
		return nil, apperrors.ValidationField("role", fmt.Sprintf("invalid role %q", *opts.Role))
	}
	out, err := s.store.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return out, nil
}

// ListAll lists profiles without an authorization check, for the admin CLI.
func (s *ProfileService) ListAll(ctx context.Context, opts ports.ProfileListOptions) ([]domainauth.Profile, error) {
	out, err := s.store.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return out, nil
}
