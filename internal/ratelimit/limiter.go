// Package ratelimit implements the shared sliding-window request
// limiter every inbound request passes through. The authoritative
// counter lives in the shared store so all instances agree; an
// in-process token bucket in front absorbs instantaneous floods before
// they hit the store.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"venuelink.org/internal/kv"
	"venuelink.org/internal/obs"
)

// Config tunes one limiter.
type Config struct {
	// Limit is the sustained per-key threshold per Window.
	Limit int
	// Window is the counting window length.
	Window time.Duration
	// Burst is the instantaneous ceiling enforced by the local bucket.
	// Values below Limit are raised to Limit.
	Burst int
	// FailOpen selects degraded-mode behavior when the shared store is
	// unreachable: admit (favor availability) or reject (protect
	// capacity). The zero value fails closed.
	FailOpen bool
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed bool
	// RetryAfter is how long the caller should wait before retrying.
	// Zero when Allowed.
	RetryAfter time.Duration
}

// Limiter admits or rejects requests per identifying key (client IP or
// authenticated subject).
type Limiter struct {
	store kv.Store
	cfg   Config
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

const bucketTTL = 5 * time.Minute

// New builds a Limiter over the shared store.
func New(store kv.Store, cfg Config) *Limiter {
	if cfg.Limit <= 0 {
		cfg.Limit = 60
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Burst < cfg.Limit {
		cfg.Burst = cfg.Limit
	}
	return &Limiter{
		store:   store,
		cfg:     cfg,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// Admit checks the key against the local burst bucket and then
// atomically increments the shared window counter. The increment and
// the threshold comparison are one store operation, so concurrent
// callers on the same key can never over-admit.
func (l *Limiter) Admit(ctx context.Context, key string) Decision {
	if key == "" {
		key = "unknown"
	}

	if !l.takeBurstToken(key) {
		obs.IncRateLimited()
		return Decision{Allowed: false, RetryAfter: l.cfg.Window}
	}

	count, reset, err := l.store.IncrWindow(ctx, "ratelimit:"+key, l.cfg.Window)
	if err != nil {
		obs.IncStoreFailure()
		if l.cfg.FailOpen {
			return Decision{Allowed: true}
		}
		return Decision{Allowed: false, RetryAfter: l.cfg.Window}
	}
	if count > int64(l.cfg.Limit) {
		obs.IncRateLimited()
		retry := reset.Sub(l.now())
		if retry < 0 {
			retry = 0
		}
		return Decision{Allowed: false, RetryAfter: retry}
	}
	return Decision{Allowed: true}
}

// takeBurstToken consumes from the per-key local bucket, creating it on
// first sight and evicting buckets idle past bucketTTL.
func (l *Limiter) takeBurstToken(key string) bool {
	refill := rate.Limit(float64(l.cfg.Limit) / l.cfg.Window.Seconds())

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(refill, l.cfg.Burst)}
		l.buckets[key] = b
		if len(l.buckets)%1024 == 0 {
			l.evictIdle(now)
		}
	}
	b.seen = now
	return b.lim.Allow()
}

// evictIdle drops buckets not seen within bucketTTL. Caller holds l.mu.
func (l *Limiter) evictIdle(now time.Time) {
	for k, b := range l.buckets {
		if now.Sub(b.seen) > bucketTTL {
			delete(l.buckets, k)
		}
	}
}
