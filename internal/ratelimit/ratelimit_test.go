package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/subwatch/subwatch/internal/model"
)

func TestFirstCallDoesNotWait(t *testing.T) {
	r := NewPortalRateLimiter(time.Second)

	start := time.Now()
	if err := r.Wait(context.Background(), model.KindAvailable); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("first Wait() took %v, want immediate", elapsed)
	}
}

func TestSecondCallWaits(t *testing.T) {
	r := NewPortalRateLimiter(100 * time.Millisecond)

	if err := r.Wait(context.Background(), model.KindAvailable); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	start := time.Now()
	if err := r.Wait(context.Background(), model.KindAvailable); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("second Wait() took %v, want at least the remaining delay", elapsed)
	}
}

func TestKindsAreIndependent(t *testing.T) {
	r := NewPortalRateLimiter(time.Second)

	if err := r.Wait(context.Background(), model.KindScheduled); err != nil {
		t.Fatalf("Wait(scheduled) error = %v", err)
	}
	start := time.Now()
	if err := r.Wait(context.Background(), model.KindAvailable); err != nil {
		t.Fatalf("Wait(available) error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Wait() for a different kind took %v, want immediate", elapsed)
	}
}

func TestCancelledContextAbortsWait(t *testing.T) {
	r := NewPortalRateLimiter(time.Hour)

	if err := r.Wait(context.Background(), model.KindAvailable); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	if err := r.Wait(ctx, model.KindAvailable); err == nil {
		t.Error("Wait() error = nil, want cancellation error")
	}
}
