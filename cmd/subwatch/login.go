package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/subwatch/subwatch/internal/store"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Verify portal credentials",
	Long:  "Forces a fresh login against the portal and persists the resulting session, so the daemon starts warm.",
	RunE:  runLogin,
}

func init() {
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
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

	bundle, err := comps.sessions.Ensure(ctx, true)
	if err != nil {
		logger.Error("login failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("logged in as %s, session valid for %s\n", bundle.Identity, bundle.TTL)
	return nil
}
