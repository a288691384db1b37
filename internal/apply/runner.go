// Package apply dispatches acceptance requests for the cycle's opportunity
// set and aggregates the per-job outcomes.
package apply

import (
	"context"
	"log/slog"

	"github.com/subwatch/subwatch/internal/model"
)

// Totals aggregates outcome counts for one batch.
type Totals struct {
	Success int
	Failed  int
	Skipped int
}

// Runner submits one application per opportunity. Each request is
// independent: a failure is recorded and the batch continues; nothing is
// rolled back.
type Runner struct {
	applier     model.Applier
	dryRun      bool
	maxPerCycle int // 0 = unlimited
	logger      *slog.Logger
}

// NewRunner creates a runner. In dry-run mode the applier reports intended
// outcomes without live calls.
func NewRunner(applier model.Applier, dryRun bool, maxPerCycle int, logger *slog.Logger) *Runner {
	return &Runner{
		applier:     applier,
		dryRun:      dryRun,
		maxPerCycle: maxPerCycle,
		logger:      logger,
	}
}

// Run dispatches applications for jobs in order, stopping early only on
// context cancellation or when the per-cycle cap is reached. Jobs beyond the
// cap are reported as skipped.
func (r *Runner) Run(ctx context.Context, jobs []model.JobRecord, bundle *model.SessionBundle) ([]model.ApplyOutcome, Totals) {
	outcomes := make([]model.ApplyOutcome, 0, len(jobs))
	var totals Totals

	submitted := 0
	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}

		if r.maxPerCycle > 0 && submitted >= r.maxPerCycle {
			outcomes = append(outcomes, model.ApplyOutcome{
				Job:     job,
				Status:  model.ApplySkipped,
				Message: "per-cycle application cap reached",
			})
			totals.Skipped++
			continue
		}

		outcome, err := r.applier.Apply(ctx, job, bundle, r.dryRun)
		if err != nil {
			r.logger.Warn("application failed",
				"job", job.ID,
				"title", job.Title,
				"error", err,
			)
		}
		// Dry-run dispatches count against the cap too, so a preview
		// reports exactly what a live run would submit.
		submitted++

		outcomes = append(outcomes, outcome)
		switch outcome.Status {
		case model.ApplySuccess:
			totals.Success++
		case model.ApplyFailed:
			totals.Failed++
		default:
			totals.Skipped++
		}
	}

	r.logger.Info("application batch complete",
		"dry_run", r.dryRun,
		"success", totals.Success,
		"failed", totals.Failed,
		"skipped", totals.Skipped,
	)
	return outcomes, totals
}
