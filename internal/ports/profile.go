package ports

import (
	"context"
	"time"

	domainauth "github.com/target/lms-access/internal/domain/auth"
)

// ProfileListOptions pages through profiles.
type ProfileListOptions struct {
	Role   *domainauth.Role
	Limit  int
	Offset int
}

// ProfileStore persists application profiles keyed by identity id.
// Get returns an error satisfying errors.IsNotFound when no profile exists; Create returns
// one satisfying errors.IsConflict when the id is already taken.
type ProfileStore interface {
	Get(ctx context.Context, id string) (domainauth.Profile, error)
	Create(ctx context.Context, p domainauth.Profile) error
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
	UpdateRole(ctx context.Context, id string, role domainauth.Role) (domainauth.Profile, error)
	List(ctx context.Context, opts ProfileListOptions) ([]domainauth.Profile, error)
}

// ProfileFeed notifies open sessions that a profile changed.
type ProfileFeed interface {
	PublishProfileChanged(ctx context.Context, profileID string) error
	SubscribeProfile(ctx context.Context, profileID string, fn func()) (Subscription, error)
}
