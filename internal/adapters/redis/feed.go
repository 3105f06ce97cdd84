package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
	domainauth "github.com/target/lms-access/internal/domain/auth"
	"github.com/target/lms-access/internal/ports"
)

var (
	_ ports.IdentityFeed = (*Feed)(nil)
	_ ports.ProfileFeed  = (*Feed)(nil)
)

// Feed publishes identity and profile change notifications over Redis pub/sub so every
// replica holding a controller for the same login session or profile observes them.
//
// Identity messages carry the identity as JSON, or "null" for sign-out. Profile messages
// carry only the profile id; subscribers re-read the profile.
type Feed struct {
	client redis.UniversalClient
	prefix string
	logger *slog.Logger
}

// FeedOptions configures a Feed.
type FeedOptions struct {
	Client redis.UniversalClient
	Prefix string
	Logger *slog.Logger
}

// NewFeed creates a pub/sub feed.
func NewFeed(opts FeedOptions) *Feed {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{client: opts.Client, prefix: prefix, logger: logger.With("component", "feed")}
}

func (f *Feed) identityChannel(sessionID string) string { return f.prefix + "identity:" + sessionID }

func (f *Feed) profileChannel(profileID string) string { return f.prefix + "profile:" + profileID }

// PublishIdentity announces a sign-in (id != nil) or sign-out (id == nil) for a login session.
func (f *Feed) PublishIdentity(ctx context.Context, sessionID string, id *domainauth.Identity) error {
	payload, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("marshal identity: %w", err)
	}
	if err := f.client.Publish(ctx, f.identityChannel(sessionID), payload).Err(); err != nil {
		return fmt.Errorf("publish identity: %w", err)
	}
	return nil
}

// SubscribeIdentity registers fn for identity changes of one login session.
func (f *Feed) SubscribeIdentity(
	ctx context.Context,
	sessionID string,
	fn func(*domainauth.Identity),
) (ports.Subscription, error) {
	return f.subscribe(ctx, f.identityChannel(sessionID), func(payload string) {
		var id *domainauth.Identity
		if err := json.Unmarshal([]byte(payload), &id); err != nil {
			f.logger.Warn("dropping malformed identity message", "session_id", sessionID, "error", err)
			return
		}
		fn(id)
	})
}

// PublishProfileChanged announces that a profile was modified.
func (f *Feed) PublishProfileChanged(ctx context.Context, profileID string) error {
	if err := f.client.Publish(ctx, f.profileChannel(profileID), profileID).Err(); err != nil {
		return fmt.Errorf("publish profile change: %w", err)
	}
	return nil
}

// SubscribeProfile registers fn for changes of one profile.
func (f *Feed) SubscribeProfile(ctx context.Context, profileID string, fn func()) (ports.Subscription, error) {
	return f.subscribe(ctx, f.profileChannel(profileID), func(string) { fn() })
}

func (f *Feed) subscribe(ctx context.Context, channel string, deliver func(payload string)) (ports.Subscription, error) {
	ps := f.client.Subscribe(ctx, channel)
	// Wait for the subscription confirmation so no publish after return is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	sub := &subscription{ps: ps}
	go sub.run(deliver)
	return sub, nil
}

type subscription struct {
	ps *redis.PubSub

	mu     sync.Mutex
	closed bool
	once   sync.Once
}

func (s *subscription) run(deliver func(string)) {
	for msg := range s.ps.Channel() {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		deliver(msg.Payload)
		s.mu.Unlock()
	}
}

// Close stops delivery and waits for an in-flight callback to return. It must not be
// called from the subscription's own callback.
func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		err = s.ps.Close()
	})
	return err
}
