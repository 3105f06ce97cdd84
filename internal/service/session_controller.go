package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/target/lms-access/internal/domain/access"
	domainauth "github.com/target/lms-access/internal/domain/auth"
	apperrors "github.com/target/lms-access/internal/errors"
	"github.com/target/lms-access/internal/observability/metrics"
	"github.com/target/lms-access/internal/ports"
)

// ErrControllerClosed is returned by Await once the controller has been closed.
var ErrControllerClosed = errors.New("session controller closed")

// SnapshotStore holds the current snapshot of one client session. Reads never block and
// always observe a whole snapshot; only the owning controller writes.
type SnapshotStore struct {
	v atomic.Pointer[access.Snapshot]
}

func newSnapshotStore() *SnapshotStore {
	s := &SnapshotStore{}
	initial := access.UnknownSnapshot()
	s.v.Store(&initial)
	return s
}

// Load returns the current snapshot.
func (s *SnapshotStore) Load() access.Snapshot {
	return *s.v.Load()
}

func (s *SnapshotStore) swap(next access.Snapshot) {
	s.v.Store(&next)
}

// SessionControllerOptions groups dependencies for SessionController.
type SessionControllerOptions struct {
	Resolver Resolver          // Required
	Profiles ports.ProfileFeed // Optional: enables live role updates
	Observer Observer
}

// Observer carries the optional logger and metrics of a component.
type Observer struct {
	Logger  *slog.Logger
	Metrics *metrics.Access
}

// SessionController owns the state machine of one login session. It is the single
// writer of its SnapshotStore.
//
// Every identity event and every profile refresh bumps the generation. An asynchronous
// resolution commits only while its generation is still current, so a sign-out can never
// be overwritten by a resolution that started before it.
type SessionController struct {
	resolver Resolver
	profiles ports.ProfileFeed
	logger   *slog.Logger
	metrics  *metrics.Access
	store    *SnapshotStore

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	generation uint64
	changed    chan struct{}
	closed     bool
	subs       []ports.Subscription
	profileSub ports.Subscription
	profileID  string
}

// NewSessionController creates a controller in the Unknown state.
func NewSessionController(opts SessionControllerOptions) *SessionController {
	if opts.Resolver == nil {
		panic("SessionController requires a Resolver")
	}
	logger := opts.Observer.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &SessionController{
		resolver: opts.Resolver,
		profiles: opts.Profiles,
		logger:   logger.With("component", "session_controller"),
		metrics:  opts.Observer.Metrics,
		store:    newSnapshotStore(),
		ctx:      ctx,
		cancel:   cancel,
		changed:  make(chan struct{}),
	}
}

// Snapshot returns the current session snapshot.
func (c *SessionController) Snapshot() access.Snapshot {
	return c.store.Load()
}

// Store exposes the read side of the controller's snapshot store.
func (c *SessionController) Store() *SnapshotStore {
	return c.store
}

// Attach hands a feed subscription to the controller; Close releases it.
func (c *SessionController) Attach(sub ports.Subscription) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = sub.Close()
		return
	}
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
}

// commit swaps in next and wakes Await callers. c.mu must be held.
func (c *SessionController) commit(next access.Snapshot) {
	next.Generation = c.generation
	c.store.swap(next)
	close(c.changed)
	c.changed = make(chan struct{})
}

// HandleIdentity applies an identity feed event. A nil identity is a sign-out and
// takes effect before HandleIdentity returns.
func (c *SessionController) HandleIdentity(id *domainauth.Identity) {
	c.apply(id, false, time.Time{})
}

// seed applies the initial identity read from the session store, which signed in at
// signedInAt. It is ignored once any feed event has moved the controller out of Unknown.
func (c *SessionController) seed(id *domainauth.Identity, signedInAt time.Time) {
	c.apply(id, true, signedInAt)
}

func (c *SessionController) apply(id *domainauth.Identity, onlyIfUnknown bool, signedInAt time.Time) {
	var release ports.Subscription
	defer func() {
		if release != nil {
			_ = release.Close()
		}
	}()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	current := c.store.Load()
	if onlyIfUnknown && current.State != access.StateUnknown {
		return
	}
	if id == nil {
		c.generation++
		release = c.dropProfileSubLocked()
		c.commit(access.AnonymousSnapshot())
		return
	}
	if current.Identity != nil && current.Identity.ID == id.ID {
		// Same principal re-announced. ProfileError is not retried.
		return
	}

	c.generation++
	if c.profileID != id.ID {
		release = c.dropProfileSubLocked()
	}
	identity := *id
	c.commit(access.Snapshot{State: access.StateAuthenticating, Identity: &identity})
	c.spawnLocked(func(ctx context.Context, gen uint64) {
		var (
			p   domainauth.Profile
			err error
		)
		if signedInAt.IsZero() {
			p, err = c.resolver.Resolve(ctx, identity)
		} else {
			p, err = c.resolver.Resume(ctx, identity, signedInAt)
		}
		_ = c.finishResolution(gen, identity, p, err)
	})
}

// SignOut moves the controller to Anonymous synchronously.
func (c *SessionController) SignOut() {
	c.HandleIdentity(nil)
}

// spawnLocked runs fn on its own goroutine with the current generation. c.mu must be held.
func (c *SessionController) spawnLocked(fn func(ctx context.Context, gen uint64)) {
	gen := c.generation
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn(c.ctx, gen)
	}()
}

// finishResolution commits a resolution result unless it is stale. It returns the
// StaleResolution error for a discarded result.
func (c *SessionController) finishResolution(
	gen uint64,
	identity domainauth.Identity,
	p domainauth.Profile,
	err error,
) error {
	var sub ports.Subscription
	if err == nil && c.profiles != nil && c.wantsProfileSub(identity.ID) {
		var subErr error
		sub, subErr = c.profiles.SubscribeProfile(c.ctx, p.ID, func() { c.refreshProfile(p.ID) })
		if subErr != nil {
			c.logger.Warn("profile feed subscription failed", "profile_id", p.ID, "error", subErr)
			sub = nil
		}
	}

	c.mu.Lock()
	if c.closed || gen != c.generation {
		current := c.generation
		closed := c.closed
		c.mu.Unlock()
		if sub != nil {
			_ = sub.Close()
		}
		if closed {
			return ErrControllerClosed
		}
		c.metrics.IncStaleResolution()
		c.logger.Debug("stale profile resolution discarded",
			"identity_id", identity.ID, "generation", gen, "current", current)
		return apperrors.StaleResolution(gen, current)
	}

	var replaced ports.Subscription
	if sub != nil {
		replaced = c.profileSub
		c.profileSub = sub
		c.profileID = p.ID
	}
	if err != nil {
		c.logger.Warn("profile resolution failed", "identity_id", identity.ID, "error", err)
		c.commit(access.Snapshot{State: access.StateProfileError, Identity: &identity, Err: err})
	} else {
		profile := p
		c.commit(access.Snapshot{State: access.StateAuthenticated, Identity: &identity, Profile: &profile})
	}
	c.mu.Unlock()
	if replaced != nil {
		_ = replaced.Close()
	}
	return nil
}

func (c *SessionController) wantsProfileSub(profileID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && (c.profileSub == nil || c.profileID != profileID)
}

// dropProfileSubLocked detaches the profile subscription. The caller closes the returned
// subscription after releasing c.mu. c.mu must be held.
func (c *SessionController) dropProfileSubLocked() ports.Subscription {
	sub := c.profileSub
	c.profileSub = nil
	c.profileID = ""
	return sub
}

// refreshProfile re-reads the profile after a profile change event.
func (c *SessionController) refreshProfile(profileID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	current := c.store.Load()
	if c.closed || current.State != access.StateAuthenticated || current.Profile == nil ||
		current.Profile.ID != profileID {
		return
	}
	c.generation++
	identity := *current.Identity
	c.spawnLocked(func(ctx context.Context, gen uint64) {
		p, err := c.resolver.Reload(ctx, profileID)
		_ = c.finishResolution(gen, identity, p, err)
	})
}

// Await blocks until the session is settled, the context ends, or the controller closes.
// It always returns the latest snapshot.
func (c *SessionController) Await(ctx context.Context) (access.Snapshot, error) {
	for {
		c.mu.Lock()
		snap := c.store.Load()
		ch := c.changed
		closed := c.closed
		c.mu.Unlock()

		if snap.State.Settled() {
			return snap, nil
		}
		if closed {
			return snap, ErrControllerClosed
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return c.store.Load(), ctx.Err()
		}
	}
}

// Close releases every subscription, cancels in-flight resolutions and waits for them.
// No state changes after Close returns. It must not be called from a feed callback.
func (c *SessionController) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	subs := c.subs
	c.subs = nil
	if ps := c.dropProfileSubLocked(); ps != nil {
		subs = append(subs, ps)
	}
	close(c.changed)
	c.changed = make(chan struct{})
	c.mu.Unlock()

	c.cancel()
	var errs []error
	for _, sub := range subs {
		if err := sub.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.wg.Wait()
	return errors.Join(errs...)
}
