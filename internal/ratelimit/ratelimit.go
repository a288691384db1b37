package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/subwatch/subwatch/internal/model"
)

// PortalRateLimiter enforces a minimum delay between consecutive requests to
// the same portal endpoint, keyed by job kind. The portal throttles
// aggressive pollers; staying under its radar is cheaper than handling 429s.
type PortalRateLimiter struct {
	mu       sync.Mutex
	lastCall map[model.JobKind]time.Time
	minDelay time.Duration
}

// NewPortalRateLimiter creates a rate limiter that enforces minDelay between
// consecutive requests to the same endpoint.
func NewPortalRateLimiter(minDelay time.Duration) *PortalRateLimiter {
	return &PortalRateLimiter{
		lastCall: make(map[model.JobKind]time.Time),
		minDelay: minDelay,
	}
}

// Wait blocks until enough time has passed since the last request for kind.
// Returns an error if the context is cancelled while waiting.
func (r *PortalRateLimiter) Wait(ctx context.Context, kind model.JobKind) error {
	r.mu.Lock()
	last, ok := r.lastCall[kind]
	now := time.Now()

	if !ok {
		// First request for this endpoint — no wait needed.
		r.lastCall[kind] = now
		r.mu.Unlock()
		return nil
	}

	elapsed := now.Sub(last)
	if elapsed >= r.minDelay {
		// Enough time has passed — proceed immediately.
		r.lastCall[kind] = now
		r.mu.Unlock()
		return nil
	}

	// Need to wait for the remainder.
	remaining := r.minDelay - elapsed
	r.mu.Unlock()

	select {
	case <-ctx.Done():
		return fmt.Errorf("rate limiter wait for %s: %w", kind, ctx.Err())
	case <-time.After(remaining):
	}

	// Record the actual time after waiting.
	r.mu.Lock()
	r.lastCall[kind] = time.Now()
	r.mu.Unlock()

	return nil
}

// RateLimitedSource is a decorator that enforces the portal rate limit
// before delegating to the wrapped JobSource.
type RateLimitedSource struct {
	inner   model.JobSource
	limiter *PortalRateLimiter
}

// NewRateLimitedSource wraps a JobSource with portal-level rate limiting.
// All sources hitting the same portal should share one limiter instance.
func NewRateLimitedSource(inner model.JobSource, limiter *PortalRateLimiter) *RateLimitedSource {
	return &RateLimitedSource{
		inner:   inner,
		limiter: limiter,
	}
}

// Fetch waits for the rate limiter to allow a request, then delegates to the
// wrapped source.
func (s *RateLimitedSource) Fetch(ctx context.Context, kind model.JobKind, bundle *model.SessionBundle) (json.RawMessage, error) {
	if err := s.limiter.Wait(ctx, kind); err != nil {
		return nil, err
	}
	return s.inner.Fetch(ctx, kind, bundle)
}
