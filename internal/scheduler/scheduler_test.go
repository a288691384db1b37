package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/subwatch/subwatch/internal/cycle"
	"github.com/subwatch/subwatch/internal/model"
)

// --- Mock implementations ---

type CountingRunner struct {
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (r *CountingRunner) Run(_ context.Context) (*cycle.Outcome, error) {
	r.calls.Add(1)
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	if r.err != nil {
		return nil, r.err
	}
	return &cycle.Outcome{}, nil
}

type RecordingNotifier struct {
	authAlerts atomic.Int32
}

func (n *RecordingNotifier) NotifyOpportunities(_ []model.JobRecord) error { return nil }
func (n *RecordingNotifier) NotifyOutcomes(_ []model.ApplyOutcome) error   { return nil }
func (n *RecordingNotifier) NotifyAuthFailure(_ error) error {
	n.authAlerts.Add(1)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Tests ---

func TestRunsImmediateCycle(t *testing.T) {
	runner := &CountingRunner{}
	s := NewScheduler(runner, &RecordingNotifier{}, time.Hour, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	// The first cycle runs without waiting for a tick.
	deadline := time.After(2 * time.Second)
	for runner.calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("no immediate cycle within 2s")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done
}

func TestTicksRunCycles(t *testing.T) {
	runner := &CountingRunner{}
	s := NewScheduler(runner, &RecordingNotifier{}, 20*time.Millisecond, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// 1 immediate + several ticked cycles.
	if got := runner.calls.Load(); got < 3 {
		t.Errorf("cycles = %d, want at least 3 over ~150ms at 20ms interval", got)
	}
}

func TestSlowCycleDropsTicks(t *testing.T) {
	// Each cycle spans several tick intervals; pending ticks must be
	// dropped, not queued, so the cycle count stays close to
	// elapsed / cycleDuration rather than elapsed / interval.
	runner := &CountingRunner{delay: 60 * time.Millisecond}
	s := NewScheduler(runner, &RecordingNotifier{}, 10*time.Millisecond, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := runner.calls.Load(); got > 6 {
		t.Errorf("cycles = %d, want <= 6 (ticks during a cycle are dropped)", got)
	}
}

func TestGracefulShutdown(t *testing.T) {
	runner := &CountingRunner{}
	s := NewScheduler(runner, &RecordingNotifier{}, time.Hour, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run() error = %v, want nil on cancellation", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancellation")
	}
}

func TestPersistentAuthFailureAlertsOnce(t *testing.T) {
	runner := &CountingRunner{err: &model.AuthError{Err: context.DeadlineExceeded}}
	notifier := &RecordingNotifier{}
	s := NewScheduler(runner, notifier, time.Hour, discardLogger())

	for i := 0; i < consecutiveAuthFailureAlert+2; i++ {
		s.runCycle(context.Background())
	}

	if got := notifier.authAlerts.Load(); got != 1 {
		t.Errorf("auth alerts = %d, want exactly 1 at the threshold", got)
	}
}

func TestAuthFailureCounterResetsOnSuccess(t *testing.T) {
	runner := &CountingRunner{err: &model.AuthError{Err: context.DeadlineExceeded}}
	notifier := &RecordingNotifier{}
	s := NewScheduler(runner, notifier, time.Hour, discardLogger())

	s.runCycle(context.Background())
	s.runCycle(context.Background())

	runner.err = nil
	s.runCycle(context.Background())

	runner.err = &model.AuthError{Err: context.DeadlineExceeded}
	s.runCycle(context.Background())
	s.runCycle(context.Background())

	if got := notifier.authAlerts.Load(); got != 0 {
		t.Errorf("auth alerts = %d, want 0 (streak never reached threshold)", got)
	}
}
