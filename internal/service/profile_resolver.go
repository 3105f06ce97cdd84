package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	domainauth "github.com/target/lms-access/internal/domain/auth"
	apperrors "github.com/target/lms-access/internal/errors"
	"github.com/target/lms-access/internal/observability/metrics"
	"github.com/target/lms-access/internal/ports"
)

// Resolver turns an identity into its profile.
type Resolver interface {
	// Resolve handles a fresh sign-in and records it as the profile's lastLogin.
	Resolve(ctx context.Context, id domainauth.Identity) (domainauth.Profile, error)
	// Resume handles a session that signed in at signedInAt and is being reopened.
	Resume(ctx context.Context, id domainauth.Identity, signedInAt time.Time) (domainauth.Profile, error)
	Reload(ctx context.Context, profileID string) (domainauth.Profile, error)
}

// ProfileResolverOptions groups dependencies for ProfileResolver.
type ProfileResolverOptions struct {
	Store   ports.ProfileStore // Required
	Logger  *slog.Logger       // Optional
	Metrics *metrics.Access    // Optional
}

// ProfileResolver fetches or lazily creates the profile of a signed-in identity.
type ProfileResolver struct {
	store   ports.ProfileStore
	logger  *slog.Logger
	metrics *metrics.Access
	now     func() time.Time
}

var _ Resolver = (*ProfileResolver)(nil)

// NewProfileResolver constructs a ProfileResolver.
func NewProfileResolver(opts ProfileResolverOptions) *ProfileResolver {
	if opts.Store == nil {
		panic("ProfileResolver requires a Store")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileResolver{
		store:   opts.Store,
		logger:  logger.With("component", "profile_resolver"),
		metrics: opts.Metrics,
		now:     time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (r *ProfileResolver) WithClock(now func() time.Time) *ProfileResolver {
	r.now = now
	return r
}

// Resolve returns the profile for id. An existing profile gets a best-effort lastLogin
// refresh; a missing one is created as a student profile and re-read. Every failure is
// reported as ProfileUnavailable.
func (r *ProfileResolver) Resolve(ctx context.Context, id domainauth.Identity) (domainauth.Profile, error) {
	return r.run(ctx, id, time.Time{})
}

// Resume is Resolve for a session reopened from the session store. lastLogin is only
// moved when the stored value predates signedInAt, so rebuilding a controller does not
// count as a sign-in.
func (r *ProfileResolver) Resume(
	ctx context.Context,
	id domainauth.Identity,
	signedInAt time.Time,
) (domainauth.Profile, error) {
	return r.run(ctx, id, signedInAt)
}

func (r *ProfileResolver) run(
	ctx context.Context,
	id domainauth.Identity,
	signedInAt time.Time,
) (domainauth.Profile, error) {
	start := r.now()
	p, result, err := r.resolve(ctx, id, start, signedInAt)
	if err != nil {
		result = metrics.ResultError
	}
	r.metrics.ObserveResolution(result, r.now().Sub(start), err)
	return p, err
}

func (r *ProfileResolver) resolve(
	ctx context.Context,
	id domainauth.Identity,
	now time.Time,
	signedInAt time.Time,
) (domainauth.Profile, string, error) {
	if id.ID == "" {
		return domainauth.Profile{}, "", apperrors.ProfileUnavailable(apperrors.Validation("identity id is required"))
	}

	p, err := r.store.Get(ctx, id.ID)
	switch {
	case err == nil:
		if signedInAt.IsZero() || p.LastLogin.Before(signedInAt) {
			r.touch(ctx, &p, now)
		}
		return p, metrics.ResultFound, nil
	case !apperrors.IsNotFound(err):
		return domainauth.Profile{}, "", apperrors.ProfileUnavailable(fmt.Errorf("get profile: %w", err))
	}

	fresh := domainauth.NewProfile(id, domainauth.RoleStudent, now)
	if createErr := r.store.Create(ctx, fresh); createErr != nil && !apperrors.IsConflict(createErr) {
		return domainauth.Profile{}, "", apperrors.ProfileUnavailable(fmt.Errorf("create profile: %w", createErr))
	}

	// Re-read so a concurrent creator's record wins.
	p, err = r.store.Get(ctx, id.ID)
	if err != nil {
		return domainauth.Profile{}, "", apperrors.ProfileUnavailable(fmt.Errorf("reload profile: %w", err))
	}
	r.logger.InfoContext(ctx, "profile created", "profile_id", p.ID, "role", p.Role)
	return p, metrics.ResultCreated, nil
}

func (r *ProfileResolver) touch(ctx context.Context, p *domainauth.Profile, now time.Time) {
	if err := r.store.TouchLastLogin(ctx, p.ID, now); err != nil {
		r.logger.WarnContext(ctx, "lastLogin update failed", "profile_id", p.ID, "error", err)
		return
	}
	p.LastLogin = now
}

// Reload re-reads a profile without touching lastLogin. Used for profile change events.
func (r *ProfileResolver) Reload(ctx context.Context, profileID string) (domainauth.Profile, error) {
	p, err := r.store.Get(ctx, profileID)
	if err != nil {
		return domainauth.Profile{}, apperrors.ProfileUnavailable(fmt.Errorf("reload profile: %w", err))
	}
	return p, nil
}
