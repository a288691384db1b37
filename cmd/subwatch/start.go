package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/subwatch/subwatch/internal/scheduler"
	"github.com/subwatch/subwatch/internal/store"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the polling daemon",
	Long:  "Start the polling daemon; blocks until SIGINT/SIGTERM.",
	RunE:  runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("config loaded",
		"portal", cfg.Portal.BaseURL,
		"interval", cfg.PollingInterval.String(),
		"session_ttl", cfg.SessionTTL.String(),
		"scheduled_ttl", cfg.Cache.ScheduledTTL.String(),
		"available_ttl", cfg.Cache.AvailableTTL.String(),
	)

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

	c := buildCycle(cfg, comps, logger)
	sched := scheduler.NewScheduler(c, comps.notifier, cfg.PollingInterval, logger)
	if err := sched.Run(ctx); err != nil {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}

	logger.Info("goodbye")
	return nil
}
