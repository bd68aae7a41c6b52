// Package limiter throttles turns per conversation with a token bucket.
package limiter

import (
	"sync"
	"time"

	"github.com/sweetpotato0/crashguide/middleware"
	"golang.org/x/time/rate"
)

// ErrRateLimitExceeded indicates a conversation sent turns faster than allowed.
var ErrRateLimitExceeded = middleware.ErrRateLimitExceeded

// idleAfter is how long a conversation's bucket is kept without traffic.
const idleAfter = 10 * time.Minute

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter allows perSecond turns per conversation with the given burst.
type RateLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	buckets   map[string]*bucket
	now       func() time.Time
	lastSweep time.Time
}

// NewRateLimiter creates a rate limiting middleware.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Name returns the middleware name
func (m *RateLimiter) Name() string {
	return "RateLimiter"
}

// Execute checks the conversation's bucket.
func (m *RateLimiter) Execute(ctx *middleware.Context, next middleware.Handler) error {
	if !m.allow(ctx.ConversationID) {
		return ErrRateLimitExceeded
	}
	return next(ctx)
}

func (m *RateLimiter) allow(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if now.Sub(m.lastSweep) > idleAfter {
		for k, b := range m.buckets {
			if now.Sub(b.lastSeen) > idleAfter {
				delete(m.buckets, k)
			}
		}
		m.lastSweep = now
	}

	b, ok := m.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(m.limit, m.burst)}
		m.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// Len returns the number of tracked conversations.
func (m *RateLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}
