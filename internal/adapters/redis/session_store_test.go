package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/lms-access/internal/domain/auth"
	apperrors "github.com/target/lms-access/internal/errors"
	"github.com/target/lms-access/internal/testutil"
)

// setupMiniredis starts an in-process Redis and returns a client for it.
func setupMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestSessionStore_SaveAndGet(t *testing.T) {
	mr, client := setupMiniredis(t)
	store := NewSessionStore(client)
	ctx := context.Background()

	session := domainauth.Session{
		ID:          "test-session-1",
		IdentityID:  "user-123",
		Email:       "user@example.com",
		DisplayName: "User",
		CreatedAt:   time.Now(),
		ExpiresAt:   time.Now().Add(30 * time.Minute),
	}
	require.NoError(t, store.Save(ctx, session))

	retrieved, err := store.Get(ctx, "test-session-1")
	require.NoError(t, err)
	assert.Equal(t, session.ID, retrieved.ID)
	assert.Equal(t, session.IdentityID, retrieved.IdentityID)
	assert.Equal(t, session.Email, retrieved.Email)
	assert.WithinDuration(t, session.ExpiresAt, retrieved.ExpiresAt, time.Second)

	ttl := mr.TTL("lms:session:test-session-1")
	assert.InDelta(t, (30 * time.Minute).Seconds(), ttl.Seconds(), 5)
}

func TestSessionStore_GetNonExistent(t *testing.T) {
	_, client := setupMiniredis(t)
	store := NewSessionStore(client)

	_, err := store.Get(context.Background(), "non-existent")
	assert.Equal(t, ErrNotFound, err)
	assert.True(t, apperrors.IsNotFound(err))

	_, err = store.Get(context.Background(), "")
	assert.Equal(t, ErrNotFound, err)
}

func TestSessionStore_Delete(t *testing.T) {
	mr, client := setupMiniredis(t)
	store := NewSessionStore(client)
	ctx := context.Background()

	session := domainauth.Session{ID: "test-session-delete", IdentityID: "user-123", ExpiresAt: time.Now().Add(time.Minute)}
	require.NoError(t, store.Save(ctx, session))
	require.NoError(t, store.Delete(ctx, session.ID))
	assert.False(t, mr.Exists("lms:session:test-session-delete"))

	_, err := store.Get(ctx, session.ID)
	assert.Equal(t, ErrNotFound, err)
	assert.NoError(t, store.Delete(ctx, ""))
}

func TestSessionStore_RejectsExpiredAndEmpty(t *testing.T) {
	_, client := setupMiniredis(t)
	store := NewSessionStore(client)
	ctx := context.Background()

	err := store.Save(ctx, domainauth.Session{ID: "old", ExpiresAt: time.Now().Add(-time.Minute)})
	assert.Error(t, err)

	err = store.Save(ctx, domainauth.Session{ExpiresAt: time.Now().Add(time.Minute)})
	assert.Error(t, err)
}

func TestSessionStore_ExpiredOnRead(t *testing.T) {
	mr, client := setupMiniredis(t)
	now := time.Now()
	clock := now
	store := NewSessionStore(client, WithSessionClock(func() time.Time { return clock }))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, domainauth.Session{ID: "s1", IdentityID: "u1", ExpiresAt: now.Add(time.Minute)}))

	// The key still exists in Redis but the clock has moved past expiry.
	clock = now.Add(2 * time.Minute)
	_, err := store.Get(ctx, "s1")
	assert.Equal(t, ErrNotFound, err)
	assert.False(t, mr.Exists("lms:session:s1"))
}

func TestSessionStore_TTLExpiry(t *testing.T) {
	mr, client := setupMiniredis(t)
	store := NewSessionStore(client, WithSessionPrefix("test:"))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, domainauth.Session{ID: "s1", IdentityID: "u1", ExpiresAt: time.Now().Add(time.Minute)}))
	assert.True(t, mr.Exists("test:s1"))

	mr.FastForward(2 * time.Minute)
	_, err := store.Get(ctx, "s1")
	assert.Equal(t, ErrNotFound, err)
}

func TestSessionStore_RealRedis(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	store := NewSessionStore(client, WithSessionPrefix("test:session:"))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, domainauth.Session{ID: "s1", IdentityID: "u1", ExpiresAt: time.Now().Add(time.Minute)}))
	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.IdentityID)
}
