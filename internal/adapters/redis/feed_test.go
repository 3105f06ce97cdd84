package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/lms-access/internal/domain/auth"
)

type identityRecorder struct {
	mu     sync.Mutex
	events []*domainauth.Identity
}

func (r *identityRecorder) record(id *domainauth.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, id)
}

func (r *identityRecorder) snapshot() []*domainauth.Identity {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domainauth.Identity(nil), r.events...)
}

func TestFeed_IdentityRoundTrip(t *testing.T) {
	_, client := setupMiniredis(t)
	feed := NewFeed(FeedOptions{Client: client})
	ctx := context.Background()

	rec := &identityRecorder{}
	sub, err := feed.SubscribeIdentity(ctx, "s1", rec.record)
	require.NoError(t, err)
	defer sub.Close()

	id := &domainauth.Identity{ID: "u1", Email: "u1@example.com"}
	require.NoError(t, feed.PublishIdentity(ctx, "s1", id))
	require.NoError(t, feed.PublishIdentity(ctx, "s1", nil))
	require.NoError(t, feed.PublishIdentity(ctx, "other", id))

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 2 }, 2*time.Second, 10*time.Millisecond)
	events := rec.snapshot()
	require.NotNil(t, events[0])
	assert.Equal(t, "u1", events[0].ID)
	assert.Nil(t, events[1], "sign-out is delivered as nil")
}

func TestFeed_ProfileChanged(t *testing.T) {
	_, client := setupMiniredis(t)
	feed := NewFeed(FeedOptions{Client: client})
	ctx := context.Background()

	var mu sync.Mutex
	calls := 0
	sub, err := feed.SubscribeProfile(ctx, "u3", func() {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, feed.PublishProfileChanged(ctx, "u3"))
	require.NoError(t, feed.PublishProfileChanged(ctx, "u4"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFeed_NoDeliveryAfterClose(t *testing.T) {
	_, client := setupMiniredis(t)
	feed := NewFeed(FeedOptions{Client: client})
	ctx := context.Background()

	rec := &identityRecorder{}
	sub, err := feed.SubscribeIdentity(ctx, "s1", rec.record)
	require.NoError(t, err)
	require.NoError(t, sub.Close())
	assert.NoError(t, sub.Close(), "close is idempotent")

	require.NoError(t, feed.PublishIdentity(ctx, "s1", &domainauth.Identity{ID: "u1"}))
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, rec.snapshot())
}
