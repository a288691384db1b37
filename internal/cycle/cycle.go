// Package cycle runs one poll iteration end to end: ensure a valid session,
// fetch both job collections, filter the available set, compare against the
// schedule, and optionally dispatch applications for the opportunities.
package cycle

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/subwatch/subwatch/internal/apply"
	"github.com/subwatch/subwatch/internal/compare"
	"github.com/subwatch/subwatch/internal/fetcher"
	"github.com/subwatch/subwatch/internal/filter"
	"github.com/subwatch/subwatch/internal/model"
	"github.com/subwatch/subwatch/internal/session"
)

// Sessions is the slice of the session manager the cycle needs.
type Sessions interface {
	Ensure(ctx context.Context, force bool) (*model.SessionBundle, error)
	Invalidate()
}

// Fetches is the slice of the fetcher the cycle needs.
type Fetches interface {
	Fetch(ctx context.Context, kind model.JobKind, bundle *model.SessionBundle) (model.FetchResult, error)
}

var (
	_ Sessions = (*session.Manager)(nil)
	_ Fetches  = (*fetcher.Fetcher)(nil)
)

// Outcome is everything one cycle produced.
type Outcome struct {
	Scheduled    model.FetchResult
	Available    model.FetchResult
	Rejections   []filter.Rejection
	Comparison   compare.Result
	Applications []model.ApplyOutcome
}

// Cycle wires the pipeline for one poll iteration. Runner may be nil when
// application dispatch is disabled: the cycle then stops at comparison.
type Cycle struct {
	sessions Sessions
	fetches  Fetches
	filter   *filter.Filter
	runner   *apply.Runner
	notifier model.Notifier
	timeout  time.Duration
	logger   *slog.Logger
}

// New creates a cycle with all its dependencies.
func New(
	sessions Sessions,
	fetches Fetches,
	jobFilter *filter.Filter,
	runner *apply.Runner,
	notifier model.Notifier,
	timeout time.Duration,
	logger *slog.Logger,
) *Cycle {
	return &Cycle{
		sessions: sessions,
		fetches:  fetches,
		filter:   jobFilter,
		runner:   runner,
		notifier: notifier,
		timeout:  timeout,
		logger:   logger,
	}
}

// Run executes one cycle under the configured deadline. Only authentication
// failure and deadline exhaustion abort the cycle; a fetch failure on one
// kind degrades that kind to an empty list and the cycle continues.
func (c *Cycle) Run(ctx context.Context) (*Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	logger := c.logger.With("cycle", uuid.NewString()[:8])
	started := time.Now()

	// The refresh, if one is needed, completes before either fetch begins.
	bundle, err := c.sessions.Ensure(ctx, false)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{}

	// The two kinds touch disjoint cache keys, so they may run concurrently.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := c.fetchKind(gctx, model.KindScheduled, bundle, logger)
		outcome.Scheduled = res
		return err
	})
	g.Go(func() error {
		res, err := c.fetchKind(gctx, model.KindAvailable, bundle, logger)
		outcome.Available = res
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	passed, rejected := c.filter.EvaluateAll(outcome.Available.Records)
	outcome.Rejections = rejected
	outcome.Comparison = compare.Compare(outcome.Scheduled.Records, passed)

	logger.Info("cycle complete",
		"duration", time.Since(started).Round(time.Millisecond).String(),
		"scheduled", len(outcome.Scheduled.Records),
		"available", len(outcome.Available.Records),
		"filtered_out", len(rejected),
		"opportunities", len(outcome.Comparison.Opportunities),
		"conflicts", len(outcome.Comparison.Conflicts),
		"scheduled_cached", outcome.Scheduled.FromCache,
		"available_cached", outcome.Available.FromCache,
	)

	opportunities := outcome.Comparison.Opportunities
	if len(opportunities) == 0 {
		return outcome, nil
	}

	if err := c.notifier.NotifyOpportunities(opportunities); err != nil {
		logger.Warn("opportunity notification failed", "error", err)
	}

	if c.runner != nil {
		outcomes, _ := c.runner.Run(ctx, opportunities, bundle)
		outcome.Applications = outcomes
		if err := c.notifier.NotifyOutcomes(outcomes); err != nil {
			logger.Warn("outcome notification failed", "error", err)
		}
	}

	return outcome, nil
}

// fetchKind fetches one collection, handling the out-of-band auth-expiry
// transition: on a 401-class failure the session is discarded, refreshed,
// and the fetch retried exactly once with the fresh bundle. A second failure
// is fatal for the cycle. Non-auth fetch errors degrade to an empty list so
// one failing kind never blocks the other.
func (c *Cycle) fetchKind(ctx context.Context, kind model.JobKind, bundle *model.SessionBundle, logger *slog.Logger) (model.FetchResult, error) {
	res, err := c.fetches.Fetch(ctx, kind, bundle)
	if err == nil {
		return res, nil
	}

	if model.IsAuthExpired(err) {
		logger.Warn("session rejected downstream, refreshing", "kind", kind, "error", err)
		c.sessions.Invalidate()

		fresh, authErr := c.sessions.Ensure(ctx, false)
		if authErr != nil {
			return model.FetchResult{Kind: kind}, authErr
		}

		res, err = c.fetches.Fetch(ctx, kind, fresh)
		if err == nil {
			return res, nil
		}
		if model.IsAuthExpired(err) {
			// Retried once with a fresh bundle and still rejected.
			return model.FetchResult{Kind: kind}, &model.AuthError{Err: err}
		}
	}

	// Deadline exhaustion aborts the cycle; retry belongs to the next tick.
	if ctx.Err() != nil {
		return model.FetchResult{Kind: kind}, ctx.Err()
	}

	logger.Warn("fetch degraded to empty list", "kind", kind, "error", err)
	return model.FetchResult{Kind: kind}, nil
}
