package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/subwatch/subwatch/internal/cycle"
	"github.com/subwatch/subwatch/internal/store"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one cycle, print results, exit",
	Long:  "One-shot cycle: logs in, fetches both job lists, filters and compares, prints the result. Never accepts a job and never touches the persisted session.",
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// In-memory store so the daemon's persisted session is left alone.
	comps, err := buildComponents(cfg, store.NewMemoryStore(), newHTTPClient(), logger)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Runner deliberately nil: check never applies.
	c := cycle.New(comps.sessions, comps.fetches, comps.filter, nil, comps.notifier, cfg.CycleTimeout, logger)
	outcome, err := c.Run(ctx)
	if err != nil {
		logger.Error("cycle failed", "error", err)
		os.Exit(1)
	}

	printOutcome(outcome)
	return nil
}

func printOutcome(o *cycle.Outcome) {
	s := o.Comparison.Summary
	fmt.Printf("scheduled: %d  available: %d  opportunities: %d  conflicts: %d  dropped: %d\n\n",
		s.Scheduled, s.Available, s.Opportunities, s.Conflicts, s.Dropped)

	if len(o.Comparison.Opportunities) > 0 {
		fmt.Println("Opportunities:")
		for _, j := range o.Comparison.Opportunities {
			fmt.Printf("  %s — %s (%s to %s, %d day(s))\n",
				j.Title, j.LocationName,
				j.StartDate.Format("2006-01-02"), j.EndDate.Format("2006-01-02"),
				j.DurationDays())
		}
		fmt.Println()
	}

	if len(o.Comparison.Conflicts) > 0 {
		fmt.Println("Conflicts:")
		for _, c := range o.Comparison.Conflicts {
			fmt.Printf("  %s overlaps %s: %s\n", c.Available.Title, c.Scheduled.Title, c.Reason)
		}
		fmt.Println()
	}

	if len(o.Rejections) > 0 {
		fmt.Println("Filtered out:")
		for _, r := range o.Rejections {
			fmt.Printf("  %s — %s\n", r.Job.Title, r.Reason)
		}
		fmt.Println()
	}

	for _, rec := range o.Comparison.Recommendations {
		fmt.Printf("tip: %s\n", rec)
	}
}
