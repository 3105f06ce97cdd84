package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/lms-access/internal/domain/access"
	domainauth "github.com/target/lms-access/internal/domain/auth"
	apperrors "github.com/target/lms-access/internal/errors"
	mockauth "github.com/target/lms-access/internal/mocks/auth"
	"github.com/target/lms-access/internal/ports"
	"github.com/target/lms-access/internal/testutil"
)

type registryFixture struct {
	clock    *testutil.Clock
	sessions *mockauth.MemorySessionStore
	feed     *mockauth.MemoryFeed
	profiles *mockauth.MemoryProfileStore
	registry *SessionRegistry
}

func newRegistryFixture(t *testing.T, cache RegistryCacheConfig, seed ...domainauth.Profile) *registryFixture {
	t.Helper()
	f := &registryFixture{
		clock:    testutil.NewClock(testutil.TestTime()),
		sessions: mockauth.NewMemorySessionStore(),
		feed:     mockauth.NewMemoryFeed(),
		profiles: mockauth.NewMemoryProfileStore(seed...),
	}
	f.registry = NewSessionRegistry(SessionRegistryOptions{
		Sources: RegistrySources{Sessions: f.sessions, Identities: f.feed},
		Controller: SessionControllerOptions{
			Resolver: newTestResolver(f.profiles, testutil.TestTime()),
			Profiles: f.feed,
		},
		Cache: cache,
		Clock: f.clock.Now,
	})
	t.Cleanup(f.registry.Close)
	return f
}

func (f *registryFixture) saveSession(t *testing.T, id, identityID string) {
	t.Helper()
	require.NoError(t, f.sessions.Save(context.Background(), domainauth.Session{
		ID:         id,
		IdentityID: identityID,
		CreatedAt:  f.clock.Now(),
		ExpiresAt:  f.clock.Now().Add(time.Hour),
	}))
}

func snapshotOf(t *testing.T, r *SessionRegistry, sessionID string) access.Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap, err := r.Snapshot(ctx, sessionID)
	require.NoError(t, err)
	return snap
}

func TestSessionRegistry_SeedsFromStore(t *testing.T) {
	f := newRegistryFixture(t, RegistryCacheConfig{}, testutil.Admin("u2"))
	f.saveSession(t, "s-admin", "u2")

	snap := snapshotOf(t, f.registry, "s-admin")
	require.Equal(t, access.StateAuthenticated, snap.State)
	assert.True(t, snap.IsAdmin())

	d := access.NewPolicy(access.DefaultRouteTable()).Decide("/login", snap)
	assert.Equal(t, access.DecisionRedirect, d.Kind)
	assert.Equal(t, "/admin/dashboard", d.Location)
}

func TestSessionRegistry_UnknownSessionIsAnonymous(t *testing.T) {
	f := newRegistryFixture(t, RegistryCacheConfig{})

	snap := snapshotOf(t, f.registry, "missing")
	assert.Equal(t, access.StateAnonymous, snap.State)

	d := access.NewPolicy(access.DefaultRouteTable()).Decide("/dashboard", snap)
	assert.Equal(t, access.DecisionRedirect, d.Kind)
	assert.Equal(t, "/login?redirect=%2Fdashboard", d.Location)

	snap = snapshotOf(t, f.registry, "")
	assert.Equal(t, access.StateAnonymous, snap.State)
	assert.Equal(t, 1, f.registry.Len(), "an empty session id is never cached")
}

func TestSessionRegistry_ReusesControllers(t *testing.T) {
	f := newRegistryFixture(t, RegistryCacheConfig{})
	f.saveSession(t, "s1", "u1")

	var wg sync.WaitGroup
	ctrls := make([]*SessionController, 8)
	for i := range ctrls {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := f.registry.Controller(context.Background(), "s1")
			assert.NoError(t, err)
			ctrls[i] = c
		}(i)
	}
	wg.Wait()
	for _, c := range ctrls[1:] {
		assert.Same(t, ctrls[0], c)
	}
	assert.Equal(t, 1, f.feed.IdentitySubscribers("s1"))
	awaitSettled(t, ctrls[0])
	assert.Equal(t, 1, f.profiles.Creates())
}

func TestSessionRegistry_FeedDrivesController(t *testing.T) {
	f := newRegistryFixture(t, RegistryCacheConfig{})
	ctx := context.Background()

	snap := snapshotOf(t, f.registry, "s1")
	require.Equal(t, access.StateAnonymous, snap.State)

	f.saveSession(t, "s1", "u1")
	require.NoError(t, f.feed.PublishIdentity(ctx, "s1", &domainauth.Identity{ID: "u1"}))
	snap = snapshotOf(t, f.registry, "s1")
	require.Equal(t, access.StateAuthenticated, snap.State)

	require.NoError(t, f.feed.PublishIdentity(ctx, "s1", nil))
	c, ok := f.registry.Peek("s1")
	require.True(t, ok)
	assert.Equal(t, access.StateAnonymous, c.Snapshot().State)
}

func TestSessionRegistry_EvictionClosesController(t *testing.T) {
	f := newRegistryFixture(t, RegistryCacheConfig{Size: 1})
	f.saveSession(t, "s1", "u1")
	f.saveSession(t, "s2", "u2")

	snapshotOf(t, f.registry, "s1")
	require.Equal(t, 1, f.feed.IdentitySubscribers("s1"))

	snapshotOf(t, f.registry, "s2")
	assert.Equal(t, 0, f.feed.IdentitySubscribers("s1"), "evicted controller released its feed")
	assert.Equal(t, 0, f.feed.ProfileSubscribers("u1"))
	assert.Equal(t, 1, f.registry.Len())

	f.registry.Forget("s2")
	assert.Equal(t, 0, f.feed.IdentitySubscribers("s2"))
}

type failingSessionStore struct{ ports.SessionStore }

func (failingSessionStore) Get(context.Context, string) (domainauth.Session, error) {
	return domainauth.Session{}, errors.New("redis down")
}

func TestSessionRegistry_StoreFailure(t *testing.T) {
	feed := mockauth.NewMemoryFeed()
	r := NewSessionRegistry(SessionRegistryOptions{
		Sources: RegistrySources{Sessions: failingSessionStore{}, Identities: feed},
		Controller: SessionControllerOptions{
			Resolver: newTestResolver(mockauth.NewMemoryProfileStore(), testutil.TestTime()),
		},
	})
	defer r.Close()

	snap, err := r.Snapshot(context.Background(), "s1")
	require.Error(t, err)
	assert.Equal(t, access.StateUnknown, snap.State)
	assert.Equal(t, 0, feed.IdentitySubscribers("s1"))
	assert.Equal(t, 0, r.Len())
}

func TestSessionRegistry_ExpiredSessionGoesAnonymous(t *testing.T) {
	f := newRegistryFixture(t, RegistryCacheConfig{}, testutil.Admin("u2"))
	f.saveSession(t, "s1", "u2")

	require.True(t, snapshotOf(t, f.registry, "s1").IsAdmin())
	old, ok := f.registry.Peek("s1")
	require.True(t, ok)

	f.clock.Advance(time.Hour + time.Second)
	snap := snapshotOf(t, f.registry, "s1")
	assert.Equal(t, access.StateAnonymous, snap.State)
	assert.Equal(t, access.StateAnonymous, old.Snapshot().State, "holders of the old controller see the sign-out")

	cur, ok := f.registry.Peek("s1")
	require.True(t, ok)
	assert.NotSame(t, old, cur)
	assert.Equal(t, 1, f.feed.IdentitySubscribers("s1"))
	assert.Equal(t, 1, f.registry.Len())

	_, err := f.sessions.Get(context.Background(), "s1")
	assert.True(t, apperrors.IsNotFound(err), "expired session is removed from the store")
}

func TestSessionRegistry_DeletedSessionGoesAnonymous(t *testing.T) {
	f := newRegistryFixture(t, RegistryCacheConfig{RecheckInterval: time.Minute}, testutil.Admin("u2"))
	f.saveSession(t, "s1", "u2")
	require.True(t, snapshotOf(t, f.registry, "s1").IsAdmin())

	require.NoError(t, f.sessions.Delete(context.Background(), "s1"))
	assert.True(t, snapshotOf(t, f.registry, "s1").IsAdmin(), "served from cache until the next recheck")

	f.clock.Advance(time.Minute)
	snap := snapshotOf(t, f.registry, "s1")
	require.Equal(t, access.StateAnonymous, snap.State)

	d := access.NewPolicy(access.DefaultRouteTable()).Decide("/admin/dashboard", snap)
	assert.Equal(t, access.DecisionRedirect, d.Kind)
	assert.Equal(t, "/login?redirect=%2Fadmin%2Fdashboard", d.Location)
}

type flakySessionStore struct {
	*mockauth.MemorySessionStore
	down atomic.Bool
}

func (s *flakySessionStore) Get(ctx context.Context, id string) (domainauth.Session, error) {
	if s.down.Load() {
		return domainauth.Session{}, errors.New("redis down")
	}
	return s.MemorySessionStore.Get(ctx, id)
}

func TestSessionRegistry_RecheckFailureKeepsController(t *testing.T) {
	clock := testutil.NewClock(testutil.TestTime())
	store := &flakySessionStore{MemorySessionStore: mockauth.NewMemorySessionStore()}
	r := NewSessionRegistry(SessionRegistryOptions{
		Sources: RegistrySources{Sessions: store, Identities: mockauth.NewMemoryFeed()},
		Controller: SessionControllerOptions{
			Resolver: newTestResolver(mockauth.NewMemoryProfileStore(testutil.Lecturer("u3")), testutil.TestTime()),
		},
		Cache: RegistryCacheConfig{RecheckInterval: time.Second},
		Clock: clock.Now,
	})
	defer r.Close()

	require.NoError(t, store.Save(context.Background(), domainauth.Session{
		ID: "s1", IdentityID: "u3", CreatedAt: clock.Now(), ExpiresAt: clock.Now().Add(time.Hour),
	}))
	first, err := r.Controller(context.Background(), "s1")
	require.NoError(t, err)
	awaitSettled(t, first)

	store.down.Store(true)
	clock.Advance(time.Minute)
	again, err := r.Controller(context.Background(), "s1")
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.Equal(t, access.StateAuthenticated, again.Snapshot().State)
}

func TestSessionRegistry_ReopenDoesNotCountAsSignIn(t *testing.T) {
	signedIn := testutil.TestTime().Add(-time.Hour)
	f := newRegistryFixture(t, RegistryCacheConfig{}, testutil.NewProfile("u4").WithLastLogin(signedIn).Build())
	require.NoError(t, f.sessions.Save(context.Background(), domainauth.Session{
		ID:         "s1",
		IdentityID: "u4",
		CreatedAt:  signedIn,
		ExpiresAt:  f.clock.Now().Add(time.Hour),
	}))

	for range 2 {
		snap := snapshotOf(t, f.registry, "s1")
		require.Equal(t, access.StateAuthenticated, snap.State)
		assert.True(t, snap.Profile.LastLogin.Equal(signedIn))
		f.registry.Forget("s1")
	}

	p, err := f.profiles.Get(context.Background(), "u4")
	require.NoError(t, err)
	assert.True(t, p.LastLogin.Equal(signedIn), "lastLogin still records the original sign-in")
}
