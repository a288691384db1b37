package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/subwatch/subwatch/internal/apply"
	"github.com/subwatch/subwatch/internal/config"
	"github.com/subwatch/subwatch/internal/cycle"
	"github.com/subwatch/subwatch/internal/fetcher"
	"github.com/subwatch/subwatch/internal/filter"
	"github.com/subwatch/subwatch/internal/model"
	"github.com/subwatch/subwatch/internal/notifier"
	"github.com/subwatch/subwatch/internal/portal"
	"github.com/subwatch/subwatch/internal/ratelimit"
	"github.com/subwatch/subwatch/internal/retry"
	"github.com/subwatch/subwatch/internal/session"
)

var (
	cfgPath string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "subwatch",
	Short: "Substitute job watcher — never miss an open assignment",
	Long:  "Subwatch polls your district's substitute portal, matches open jobs against your preferences and schedule, and alerts you (or applies) the moment something fits.",
	// Default to `start` so that `subwatch` with no args runs the daemon.
	// This keeps systemd unit files that invoke the binary directly working.
	RunE: runStart,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default: SUBWATCH_CONFIG env var or ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// loadConfig resolves the config path and parses it.
// Priority: explicit path arg > SUBWATCH_CONFIG env var > "./config.yaml"
func loadConfig(path string) (*config.Config, error) {
	// Credentials usually live in a local .env; missing file is fine.
	_ = godotenv.Load()

	if path == "" {
		if env := os.Getenv("SUBWATCH_CONFIG"); env != "" {
			path = env
		} else {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func setupLogger(dbg bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if dbg {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

func setupNotifier(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) model.Notifier {
	switch cfg.Notification.Type {
	case "slack":
		logger.Info("using slack notifier")
		return notifier.NewSlackNotifier(cfg.Notification.WebhookURL, httpClient, logger)
	default:
		return notifier.NewLogNotifier(logger)
	}
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// components holds the wired pipeline shared by the daemon and one-shot commands.
type components struct {
	sessions *session.Manager
	fetches  *fetcher.Fetcher
	filter   *filter.Filter
	notifier model.Notifier
	applier  model.Applier
}

// buildComponents wires the portal client, session manager, fetcher and
// filter against the given session store.
func buildComponents(cfg *config.Config, sessionStore model.SessionStore, httpClient *http.Client, logger *slog.Logger) (*components, error) {
	client := portal.NewClient(cfg.Portal.BaseURL, httpClient)
	exchanger := portal.NewExchanger(client, cfg.Portal.Username, cfg.Portal.Password, cfg.SessionTTL)
	sessions := session.NewManager(exchanger, sessionStore, logger)

	// Rate limiting sits inside retry so every attempt honors the gap.
	var source model.JobSource = portal.NewSource(client)
	source = ratelimit.NewRateLimitedSource(source, ratelimit.NewPortalRateLimiter(cfg.Application.MinDelay))
	source = retry.NewRetrySource(source, cfg.Application.MaxAttempts-1, cfg.Application.BaseDelay, logger)

	fetches := fetcher.NewFetcher(source, cfg.Cache.ScheduledTTL, cfg.Cache.AvailableTTL, logger)

	jobFilter, err := filter.New(cfg.Preferences)
	if err != nil {
		return nil, fmt.Errorf("build filter: %w", err)
	}

	return &components{
		sessions: sessions,
		fetches:  fetches,
		filter:   jobFilter,
		notifier: setupNotifier(cfg, httpClient, logger),
		applier:  portal.NewDispatcher(client),
	}, nil
}

// buildCycle assembles a cycle from the components. The runner is attached
// only when automatic application is enabled in config.
func buildCycle(cfg *config.Config, c *components, logger *slog.Logger) *cycle.Cycle {
	var runner *apply.Runner
	if cfg.Application.Enabled {
		runner = apply.NewRunner(c.applier, cfg.Application.DryRun, cfg.Application.MaxPerCycle, logger)
		logger.Info("automatic application enabled",
			"dry_run", cfg.Application.DryRun,
			"max_per_cycle", cfg.Application.MaxPerCycle,
		)
	}
	return cycle.New(c.sessions, c.fetches, c.filter, runner, c.notifier, cfg.CycleTimeout, logger)
}
