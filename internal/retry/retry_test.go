package retry

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/subwatch/subwatch/internal/model"
)

// FlakySource fails the first failCount calls with err, then succeeds.
type FlakySource struct {
	calls     atomic.Int32
	failCount int32
	err       error
}

func (s *FlakySource) Fetch(_ context.Context, _ model.JobKind, _ *model.SessionBundle) (json.RawMessage, error) {
	n := s.calls.Add(1)
	if n <= s.failCount {
		return nil, s.err
	}
	return json.RawMessage(`[]`), nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRetriesTransientThenSucceeds(t *testing.T) {
	src := &FlakySource{failCount: 2, err: &model.PortalError{StatusCode: 503}}
	r := NewRetrySource(src, 2, time.Millisecond, discardLogger())

	payload, err := r.Fetch(context.Background(), model.KindAvailable, nil)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if string(payload) != `[]` {
		t.Errorf("payload = %s, want []", payload)
	}
	if got := src.calls.Load(); got != 3 {
		t.Errorf("inner calls = %d, want 3", got)
	}
}

func TestExhaustsRetries(t *testing.T) {
	src := &FlakySource{failCount: 10, err: &model.PortalError{StatusCode: 500}}
	r := NewRetrySource(src, 2, time.Millisecond, discardLogger())

	_, err := r.Fetch(context.Background(), model.KindAvailable, nil)
	if err == nil {
		t.Fatal("Fetch() error = nil, want exhausted retries")
	}
	if got := src.calls.Load(); got != 3 {
		t.Errorf("inner calls = %d, want 3 (1 + 2 retries)", got)
	}
}

func TestDoesNotRetryAuthExpiry(t *testing.T) {
	for _, status := range []int{401, 403, 404} {
		src := &FlakySource{failCount: 10, err: &model.PortalError{StatusCode: status}}
		r := NewRetrySource(src, 2, time.Millisecond, discardLogger())

		_, err := r.Fetch(context.Background(), model.KindScheduled, nil)
		if err == nil {
			t.Fatalf("status %d: Fetch() error = nil, want error", status)
		}
		if got := src.calls.Load(); got != 1 {
			t.Errorf("status %d: inner calls = %d, want 1 (4xx never retried)", status, got)
		}
	}
}

func TestRetriesRateLimit(t *testing.T) {
	src := &FlakySource{failCount: 1, err: &model.PortalError{StatusCode: 429, RetryAfter: time.Millisecond}}
	r := NewRetrySource(src, 2, time.Second, discardLogger())

	start := time.Now()
	if _, err := r.Fetch(context.Background(), model.KindAvailable, nil); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	// Retry-After takes precedence over the (much longer) base delay.
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("elapsed = %v, want Retry-After (1ms) to override base delay", elapsed)
	}
}

func TestRetriesTransportErrors(t *testing.T) {
	src := &FlakySource{failCount: 1, err: errors.New("connection reset")}
	r := NewRetrySource(src, 2, time.Millisecond, discardLogger())

	if _, err := r.Fetch(context.Background(), model.KindAvailable, nil); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if got := src.calls.Load(); got != 2 {
		t.Errorf("inner calls = %d, want 2", got)
	}
}

func TestCancelledContextAbortsRetry(t *testing.T) {
	src := &FlakySource{failCount: 10, err: &model.PortalError{StatusCode: 500}}
	r := NewRetrySource(src, 5, time.Hour, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := r.Fetch(ctx, model.KindAvailable, nil)
	if err == nil || !errors.Is(err, context.Canceled) {
		t.Errorf("Fetch() error = %v, want context.Canceled", err)
	}
}
