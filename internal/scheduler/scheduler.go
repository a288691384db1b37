package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/subwatch/subwatch/internal/cycle"
	"github.com/subwatch/subwatch/internal/model"
)

// consecutiveAuthFailureAlert is how many back-to-back auth failures it takes
// before the operator is notified. Polling continues regardless.
const consecutiveAuthFailureAlert = 3

// Runner is the one-cycle entry point the scheduler drives.
type Runner interface {
	Run(ctx context.Context) (*cycle.Outcome, error)
}

// Scheduler owns the main loop: runs one immediate cycle, then ticks on an
// interval. Cycles never overlap — a tick that arrives while a cycle is in
// flight is dropped, not buffered.
type Scheduler struct {
	runner   Runner
	notifier model.Notifier
	interval time.Duration
	logger   *slog.Logger

	authFailures int
}

// NewScheduler creates a scheduler that polls at the given interval.
func NewScheduler(runner Runner, notifier model.Notifier, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		runner:   runner,
		notifier: notifier,
		interval: interval,
		logger:   logger,
	}
}

// Run starts the polling loop. It runs one immediate cycle, then ticks on
// the configured interval. It returns nil when ctx is cancelled (graceful
// shutdown).
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("starting scheduler", "interval", s.interval.String())

	// Run one immediate cycle.
	s.runCycle(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("shutting down scheduler")
			return nil
		case <-ticker.C:
			s.runCycle(ctx)

			// A tick that fired while the cycle ran would make the next
			// iteration start immediately; drop it instead.
			select {
			case <-ticker.C:
				s.logger.Debug("dropped tick that arrived mid-cycle")
			default:
			}
		}
	}
}

// runCycle runs one cycle and tracks consecutive authentication failures so
// a persistently broken login surfaces to the operator without killing the
// process.
func (s *Scheduler) runCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	_, err := s.runner.Run(ctx)
	if err == nil {
		s.authFailures = 0
		return
	}

	s.logger.Error("cycle failed", "error", err)

	var authErr *model.AuthError
	if !errors.As(err, &authErr) {
		return
	}
	s.authFailures++
	if s.authFailures == consecutiveAuthFailureAlert {
		if nerr := s.notifier.NotifyAuthFailure(err); nerr != nil {
			s.logger.Warn("auth failure notification failed", "error", nerr)
		}
	}
}
