package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/target/lms-access/internal/domain/access"
	apperrors "github.com/target/lms-access/internal/errors"
	"github.com/target/lms-access/internal/ports"
	"golang.org/x/sync/singleflight"
)

const (
	defaultRegistrySize     = 10000
	defaultRegistryLifetime = 12 * time.Hour
	defaultRecheckInterval  = 30 * time.Second
	registryOpenTimeout     = 5 * time.Second
)

// RegistrySources are the stores a registry reads login sessions from.
type RegistrySources struct {
	Sessions   ports.SessionStore // Required
	Identities ports.IdentityFeed // Required
}

// RegistryCacheConfig bounds the number and lifetime of cached controllers.
type RegistryCacheConfig struct {
	Size int
	// Lifetime is counted from when a controller is opened; use does not extend it.
	Lifetime time.Duration
	// RecheckInterval is how often a cached controller re-reads its login session, so a
	// session deleted from the store without a feed event stops being honored.
	RecheckInterval time.Duration
}

// SessionRegistryOptions groups dependencies for SessionRegistry.
type SessionRegistryOptions struct {
	Sources    RegistrySources
	Controller SessionControllerOptions
	Cache      RegistryCacheConfig
	Clock      func() time.Time // Optional, defaults to time.Now
}

// registryEntry is a cached controller plus what the registry knows about its login
// session. Both timestamps are unix nanoseconds; a zero expiry means no session backs it.
type registryEntry struct {
	ctrl      *SessionController
	expiresAt atomic.Int64
	checkedAt atomic.Int64
}

func (e *registryEntry) setExpiry(t time.Time) {
	if t.IsZero() {
		e.expiresAt.Store(0)
		return
	}
	e.expiresAt.Store(t.UnixNano())
}

func (e *registryEntry) expired(now time.Time) bool {
	exp := e.expiresAt.Load()
	return exp != 0 && now.UnixNano() > exp
}

// SessionRegistry keeps one SessionController per login session on this replica.
// Controllers are created on first use and closed when evicted. A controller whose login
// session has expired, or has vanished from the store, is signed out and rebuilt.
type SessionRegistry struct {
	sessions   ports.SessionStore
	identities ports.IdentityFeed
	ctrlOpts   SessionControllerOptions
	logger     *slog.Logger
	now        func() time.Time
	recheck    time.Duration

	cache *expirable.LRU[string, *registryEntry]
	group singleflight.Group
	live  atomic.Int64
}

// NewSessionRegistry constructs a SessionRegistry.
func NewSessionRegistry(opts SessionRegistryOptions) *SessionRegistry {
	if opts.Sources.Sessions == nil || opts.Sources.Identities == nil {
		panic("SessionRegistry requires Sessions and Identities")
	}
	if opts.Controller.Resolver == nil {
		panic("SessionRegistry requires a Controller.Resolver")
	}
	size := opts.Cache.Size
	if size <= 0 {
		size = defaultRegistrySize
	}
	lifetime := opts.Cache.Lifetime
	if lifetime <= 0 {
		lifetime = defaultRegistryLifetime
	}
	recheck := opts.Cache.RecheckInterval
	if recheck <= 0 {
		recheck = defaultRecheckInterval
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	logger := opts.Controller.Observer.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &SessionRegistry{
		sessions:   opts.Sources.Sessions,
		identities: opts.Sources.Identities,
		ctrlOpts:   opts.Controller,
		logger:     logger.With("component", "session_registry"),
		now:        now,
		recheck:    recheck,
	}
	r.cache = expirable.NewLRU[string, *registryEntry](size, r.onEvict, lifetime)
	return r
}

func (r *SessionRegistry) onEvict(sessionID string, e *registryEntry) {
	if err := e.ctrl.Close(); err != nil {
		r.logger.Warn("closing evicted session controller", "session_id", sessionID, "error", err)
	}
	r.ctrlOpts.Observer.Metrics.SetControllers(int(r.live.Add(-1)))
}

// Controller returns the controller for a login session, creating it on first use.
// A new controller subscribes to the identity feed first and then seeds itself from the
// session store, so no transition between the two steps is lost. An empty sessionID
// yields a standalone Anonymous controller that is not cached.
func (r *SessionRegistry) Controller(ctx context.Context, sessionID string) (*SessionController, error) {
	if sessionID == "" {
		c := NewSessionController(r.ctrlOpts)
		c.HandleIdentity(nil)
		return c, nil
	}
	var stale *registryEntry
	if e, ok := r.cache.Get(sessionID); ok {
		if r.current(ctx, sessionID, e) {
			return e.ctrl, nil
		}
		stale = e
	}

	v, err, _ := r.group.Do(sessionID, func() (any, error) {
		if e, ok := r.cache.Get(sessionID); ok && e != stale {
			return e, nil
		}
		if stale != nil {
			// Requests still holding the old controller observe the sign-out.
			stale.ctrl.SignOut()
			r.logger.Debug("session no longer valid, rebuilding controller", "session_id", sessionID)
		}
		openCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), registryOpenTimeout)
		defer cancel()
		e, err := r.open(openCtx, sessionID)
		if err != nil {
			if stale != nil {
				r.cache.Remove(sessionID)
			}
			return nil, err
		}
		// A stale or expired entry may still be present; evicting it closes its controller.
		r.cache.Remove(sessionID)
		r.cache.Add(sessionID, e)
		r.ctrlOpts.Observer.Metrics.SetControllers(int(r.live.Add(1)))
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*registryEntry).ctrl, nil
}

// current reports whether a cached entry may still be served. Past its session expiry it
// may not. Otherwise one caller per recheck interval re-reads the session; a store error
// keeps the entry.
func (r *SessionRegistry) current(ctx context.Context, sessionID string, e *registryEntry) bool {
	now := r.now()
	if e.expired(now) {
		return false
	}
	last := e.checkedAt.Load()
	if now.UnixNano()-last < int64(r.recheck) || !e.checkedAt.CompareAndSwap(last, now.UnixNano()) {
		return true
	}

	sess, err := r.sessions.Get(ctx, sessionID)
	switch {
	case err == nil:
		if sess.Expired(now) {
			return false
		}
		e.setExpiry(sess.ExpiresAt)
		return true
	case apperrors.IsNotFound(err):
		return e.ctrl.Snapshot().State == access.StateAnonymous
	default:
		r.logger.WarnContext(ctx, "session recheck failed", "session_id", sessionID, "error", err)
		return true
	}
}

func (r *SessionRegistry) open(ctx context.Context, sessionID string) (*registryEntry, error) {
	c := NewSessionController(r.ctrlOpts)
	sub, err := r.identities.SubscribeIdentity(ctx, sessionID, c.HandleIdentity)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("subscribe identity feed: %w", err)
	}
	c.Attach(sub)

	e := &registryEntry{ctrl: c}
	now := r.now()
	e.checkedAt.Store(now.UnixNano())

	// Seeding is skipped if the feed already delivered a newer transition.
	sess, err := r.sessions.Get(ctx, sessionID)
	switch {
	case err == nil && !sess.Expired(now):
		id := sess.Identity()
		e.setExpiry(sess.ExpiresAt)
		c.seed(&id, sess.CreatedAt)
	case err == nil:
		if delErr := r.sessions.Delete(ctx, sessionID); delErr != nil {
			r.logger.WarnContext(ctx, "deleting expired session failed", "session_id", sessionID, "error", delErr)
		}
		c.seed(nil, time.Time{})
	case apperrors.IsNotFound(err):
		c.seed(nil, time.Time{})
	default:
		_ = c.Close()
		return nil, fmt.Errorf("load session: %w", err)
	}
	return e, nil
}

// Snapshot returns the settled snapshot of a login session, waiting at most until ctx
// ends. If ctx ends first the unsettled snapshot is returned with the context error.
func (r *SessionRegistry) Snapshot(ctx context.Context, sessionID string) (access.Snapshot, error) {
	c, err := r.Controller(ctx, sessionID)
	if err != nil {
		return access.UnknownSnapshot(), err
	}
	return c.Await(ctx)
}

// Peek returns the cached controller for a session without creating one.
func (r *SessionRegistry) Peek(sessionID string) (*SessionController, bool) {
	e, ok := r.cache.Peek(sessionID)
	if !ok {
		return nil, false
	}
	return e.ctrl, true
}

// Forget closes and drops the controller of a session.
func (r *SessionRegistry) Forget(sessionID string) {
	r.cache.Remove(sessionID)
}

// Len reports the number of cached controllers.
func (r *SessionRegistry) Len() int {
	return r.cache.Len()
}

// Close closes every cached controller.
func (r *SessionRegistry) Close() {
	r.cache.Purge()
}
