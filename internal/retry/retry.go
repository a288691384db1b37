package retry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/subwatch/subwatch/internal/model"
)

// RetrySource is a decorator that retries transient failures with exponential
// backoff and jitter before delegating to the wrapped JobSource.
// Auth expiry (401/403) is deliberately not retried here: the cycle owns the
// invalidate-refresh-retry-once sequence, and compounding the two policies
// would multiply login attempts.
type RetrySource struct {
	inner      model.JobSource
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger
}

// NewRetrySource wraps a JobSource with retry logic.
// maxRetries is the number of additional attempts after the first failure (default: 2).
// baseDelay is the delay before the first retry (default: 5s), doubled on each subsequent retry.
func NewRetrySource(inner model.JobSource, maxRetries int, baseDelay time.Duration, logger *slog.Logger) *RetrySource {
	return &RetrySource{
		inner:      inner,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		logger:     logger,
	}
}

// Fetch attempts the fetch, retrying on transient errors.
func (s *RetrySource) Fetch(ctx context.Context, kind model.JobKind, bundle *model.SessionBundle) (json.RawMessage, error) {
	payload, err := s.inner.Fetch(ctx, kind, bundle)
	if err == nil {
		return payload, nil
	}

	if !isRetryable(err) {
		return nil, err
	}

	var lastErr error = err
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		delay := s.backoffDelay(attempt, lastErr)

		s.logger.Warn("retrying after transient error",
			"kind", kind,
			"attempt", attempt,
			"max_retries", s.maxRetries,
			"delay", delay,
			"error", lastErr,
		)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(delay):
		}

		payload, err = s.inner.Fetch(ctx, kind, bundle)
		if err == nil {
			return payload, nil
		}

		if !isRetryable(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, lastErr
}

// backoffDelay computes the delay for a given attempt with ±30% jitter.
// If the error includes a Retry-After duration (HTTP 429), that takes precedence.
func (s *RetrySource) backoffDelay(attempt int, err error) time.Duration {
	var portalErr *model.PortalError
	if errors.As(err, &portalErr) && portalErr.RetryAfter > 0 {
		return portalErr.RetryAfter
	}

	// Exponential: baseDelay * 2^(attempt-1)
	delay := s.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
	}

	// Apply ±30% jitter
	jitter := float64(delay) * 0.3
	delay = time.Duration(float64(delay) + (rand.Float64()*2-1)*jitter)

	return delay
}

// isRetryable returns true if the error represents a transient failure worth retrying.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Context cancellation — never retry.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var portalErr *model.PortalError
	if errors.As(err, &portalErr) {
		// 429 Too Many Requests — retryable.
		if portalErr.StatusCode == http.StatusTooManyRequests {
			return true
		}
		// 5xx — retryable.
		if portalErr.StatusCode >= 500 {
			return true
		}
		// 4xx (incl. auth expiry) — not retryable here.
		return false
	}

	// Non-HTTP errors (network, DNS, etc.) — retryable.
	return true
}
