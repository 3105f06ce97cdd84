package passwordauth

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// attemptLimiter is a token bucket per email. Idle buckets are pruned on access.
type attemptLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*attemptBucket
	limit    rate.Limit
	burst    int
	idle     time.Duration
	now      func() time.Time
	lastScan time.Time
}

type attemptBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newAttemptLimiter(attempts int, window time.Duration, now func() time.Time) *attemptLimiter {
	return &attemptLimiter{
		buckets: make(map[string]*attemptBucket),
		limit:   rate.Every(window / time.Duration(attempts)),
		burst:   attempts,
		idle:    window,
		now:     now,
	}
}

// Allow consumes one attempt for key.
func (l *attemptLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	b, ok := l.buckets[key]
	if !ok {
		b = &attemptBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// Reset forgets the attempts recorded for key.
func (l *attemptLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

func (l *attemptLimiter) prune(now time.Time) {
	if now.Sub(l.lastScan) < l.idle {
		return
	}
	l.lastScan = now
	for k, b := range l.buckets {
		if now.Sub(b.lastSeen) >= l.idle {
			delete(l.buckets, k)
		}
	}
}
