package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/subwatch/subwatch/internal/apply"
	"github.com/subwatch/subwatch/internal/cycle"
	"github.com/subwatch/subwatch/internal/review"
	"github.com/subwatch/subwatch/internal/store"
)

var (
	applyPick bool
	applyLive bool
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Run one cycle and accept matching opportunities",
	Long:  "Runs one cycle, then accepts the resulting opportunities. Defaults to dry-run; pass --live to actually submit acceptances. With --pick, an interactive list lets you choose which opportunities to accept.",
	RunE:  runApply,
}

func init() {
	applyCmd.Flags().BoolVar(&applyPick, "pick", false, "choose opportunities interactively before accepting")
	applyCmd.Flags().BoolVar(&applyLive, "live", false, "actually submit acceptances (default is dry-run)")
	rootCmd.AddCommand(applyCmd)
}

func runApply(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	sqlStore, err := store.NewSQLiteStore(cfg.StatePath)
	if err != nil {
		logger.Error("failed to open session store", "error", err)
		os.Exit(1)
	}
	defer sqlStore.Close()

	comps, err := buildComponents(cfg, sqlStore, newHTTPClient(), logger)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// First run the pipeline without the runner so we can interpose the picker.
	c := cycle.New(comps.sessions, comps.fetches, comps.filter, nil, comps.notifier, cfg.CycleTimeout, logger)
	outcome, err := c.Run(ctx)
	if err != nil {
		logger.Error("cycle failed", "error", err)
		os.Exit(1)
	}

	jobs := outcome.Comparison.Opportunities
	if len(jobs) == 0 {
		fmt.Println("no opportunities this cycle")
		return nil
	}

	if applyPick {
		picked, err := review.RunOpportunityPicker(jobs)
		if err != nil {
			logger.Error("picker failed", "error", err)
			os.Exit(1)
		}
		if len(picked) == 0 {
			fmt.Println("nothing selected")
			return nil
		}
		jobs = picked
	}

	bundle, err := comps.sessions.Ensure(ctx, false)
	if err != nil {
		logger.Error("session refresh failed", "error", err)
		os.Exit(1)
	}

	if !applyLive {
		logger.Info("dry run, pass --live to submit acceptances")
	}
	runner := apply.NewRunner(comps.applier, !applyLive, cfg.Application.MaxPerCycle, logger)
	outcomes, totals := runner.Run(ctx, jobs, bundle)

	for _, o := range outcomes {
		fmt.Printf("%s — %s: %s\n", o.Job.Title, o.Status, o.Message)
	}
	fmt.Printf("\n%d accepted, %d failed, %d skipped\n", totals.Success, totals.Failed, totals.Skipped)
	return nil
}
