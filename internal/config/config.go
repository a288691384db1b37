package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/subwatch/subwatch/internal/filter"
)

// Config is the root configuration for the subwatch daemon.
type Config struct {
	Portal          PortalConfig
	PollingInterval time.Duration
	CycleTimeout    time.Duration
	SessionTTL      time.Duration
	Cache           CacheConfig
	Preferences     filter.Rules
	Application     ApplicationConfig
	Notification    NotificationConfig
	StatePath       string // SQLite file for the persisted session
}

// PortalConfig holds the portal endpoint and credentials.
type PortalConfig struct {
	BaseURL  string
	Username string // expanded from env vars by Load
	Password string
}

// CacheConfig holds per-kind TTLs for fetched job lists.
type CacheConfig struct {
	ScheduledTTL time.Duration
	AvailableTTL time.Duration
}

// ApplicationConfig controls automatic acceptance of matched opportunities.
type ApplicationConfig struct {
	Enabled     bool
	DryRun      bool
	MaxPerCycle int
	MinDelay    time.Duration // minimum gap between portal requests per job kind
	MaxAttempts int           // retry attempts per portal fetch
	BaseDelay   time.Duration // starting backoff delay between retries
}

// NotificationConfig controls which notifier is used and its settings.
type NotificationConfig struct {
	Type       string `yaml:"type"`        // "log" or "slack"
	WebhookURL string `yaml:"webhook_url"` // required if type is "slack"
}

// rawConfig is used for YAML unmarshaling (snake_case fields and durations as strings).
type rawConfig struct {
	Portal          rawPortalConfig       `yaml:"portal"`
	PollingInterval string                `yaml:"polling_interval"`
	CycleTimeout    string                `yaml:"cycle_timeout"`
	SessionTTL      string                `yaml:"session_ttl"`
	Cache           rawCacheConfig        `yaml:"cache"`
	Preferences     rawPreferences        `yaml:"preferences"`
	Application     rawApplicationConfig  `yaml:"application"`
	Notification    NotificationConfig    `yaml:"notification"`
	StatePath       string                `yaml:"state_path"`
}

type rawPortalConfig struct {
	BaseURL  string `yaml:"base_url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type rawCacheConfig struct {
	ScheduledTTL string `yaml:"scheduled_ttl"`
	AvailableTTL string `yaml:"available_ttl"`
}

type rawPreferences struct {
	ExcludeTitles        []string `yaml:"exclude_titles"`
	ExcludeLocationNames []string `yaml:"exclude_location_names"`
	ExcludeLocationIDs   []string `yaml:"exclude_location_ids"`
	AllowLongTerm        *bool    `yaml:"allow_long_term"`  // default true
	AllowShortTerm       *bool    `yaml:"allow_short_term"` // default true
	IncludeTitles        []string `yaml:"include_titles"`
	IncludeLocationNames []string `yaml:"include_location_names"`
	IncludeLocationIDs   []string `yaml:"include_location_ids"`
	IncludeScheduleKinds []string `yaml:"include_schedule_kinds"`
	MultiDayOnly         bool     `yaml:"multi_day_only"`
	MinDays              int      `yaml:"min_days"`
	MaxDays              int      `yaml:"max_days"`
}

type rawApplicationConfig struct {
	Enabled     bool   `yaml:"enabled"`
	DryRun      bool   `yaml:"dry_run"`
	MaxPerCycle int    `yaml:"max_per_cycle"`
	MinDelay    string `yaml:"min_delay"`
	MaxAttempts int    `yaml:"max_attempts"`
	BaseDelay   string `yaml:"base_delay"`
}

// Defaults applied when the corresponding key is absent.
const (
	defaultPollingInterval = 5 * time.Minute
	defaultCycleTimeout    = 2 * time.Minute
	defaultSessionTTL      = 30 * time.Minute
	defaultScheduledTTL    = 10 * time.Minute
	defaultAvailableTTL    = 2 * time.Minute
	defaultMinDelay        = 2 * time.Second
	defaultBaseDelay       = 1 * time.Second
	defaultMaxAttempts     = 3
	defaultStatePath       = "subwatch.db"
)

// Load reads and parses the YAML config file at path, validates it, and returns Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables so credentials stay out of the file.
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	interval, err := durationOr(raw.PollingInterval, defaultPollingInterval, "polling_interval")
	if err != nil {
		return nil, err
	}
	cycleTimeout, err := durationOr(raw.CycleTimeout, defaultCycleTimeout, "cycle_timeout")
	if err != nil {
		return nil, err
	}
	sessionTTL, err := durationOr(raw.SessionTTL, defaultSessionTTL, "session_ttl")
	if err != nil {
		return nil, err
	}
	scheduledTTL, err := durationOr(raw.Cache.ScheduledTTL, defaultScheduledTTL, "cache.scheduled_ttl")
	if err != nil {
		return nil, err
	}
	availableTTL, err := durationOr(raw.Cache.AvailableTTL, defaultAvailableTTL, "cache.available_ttl")
	if err != nil {
		return nil, err
	}
	minDelay, err := durationOr(raw.Application.MinDelay, defaultMinDelay, "application.min_delay")
	if err != nil {
		return nil, err
	}
	baseDelay, err := durationOr(raw.Application.BaseDelay, defaultBaseDelay, "application.base_delay")
	if err != nil {
		return nil, err
	}

	maxAttempts := raw.Application.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = defaultMaxAttempts
	}

	statePath := raw.StatePath
	if statePath == "" {
		statePath = defaultStatePath
	}

	cfg := &Config{
		Portal: PortalConfig{
			BaseURL:  strings.TrimRight(raw.Portal.BaseURL, "/"),
			Username: raw.Portal.Username,
			Password: raw.Portal.Password,
		},
		PollingInterval: interval,
		CycleTimeout:    cycleTimeout,
		SessionTTL:      sessionTTL,
		Cache: CacheConfig{
			ScheduledTTL: scheduledTTL,
			AvailableTTL: availableTTL,
		},
		Preferences: filter.Rules{
			ExcludeTitles:        raw.Preferences.ExcludeTitles,
			ExcludeLocationNames: raw.Preferences.ExcludeLocationNames,
			ExcludeLocationIDs:   raw.Preferences.ExcludeLocationIDs,
			AllowLongTerm:        boolOr(raw.Preferences.AllowLongTerm, true),
			AllowShortTerm:       boolOr(raw.Preferences.AllowShortTerm, true),
			IncludeTitles:        raw.Preferences.IncludeTitles,
			IncludeLocationNames: raw.Preferences.IncludeLocationNames,
			IncludeLocationIDs:   raw.Preferences.IncludeLocationIDs,
			IncludeScheduleKinds: raw.Preferences.IncludeScheduleKinds,
			MultiDayOnly:         raw.Preferences.MultiDayOnly,
			MinDays:              raw.Preferences.MinDays,
			MaxDays:              raw.Preferences.MaxDays,
		},
		Application: ApplicationConfig{
			Enabled:     raw.Application.Enabled,
			DryRun:      raw.Application.DryRun,
			MaxPerCycle: raw.Application.MaxPerCycle,
			MinDelay:    minDelay,
			MaxAttempts: maxAttempts,
			BaseDelay:   baseDelay,
		},
		Notification: raw.Notification,
		StatePath:    statePath,
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func durationOr(s string, fallback time.Duration, field string) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", field, s, err)
	}
	return d, nil
}

func boolOr(b *bool, fallback bool) bool {
	if b == nil {
		return fallback
	}
	return *b
}

func validate(cfg *Config) error {
	if cfg.Portal.BaseURL == "" {
		return fmt.Errorf("portal.base_url is required")
	}
	if cfg.Portal.Username == "" || cfg.Portal.Password == "" {
		return fmt.Errorf("portal.username and portal.password are required (env vars are expanded)")
	}
	if cfg.PollingInterval <= 0 {
		return fmt.Errorf("polling_interval must be positive, got %v", cfg.PollingInterval)
	}
	if cfg.CycleTimeout <= 0 {
		return fmt.Errorf("cycle_timeout must be positive, got %v", cfg.CycleTimeout)
	}
	if cfg.SessionTTL <= 0 {
		return fmt.Errorf("session_ttl must be positive, got %v", cfg.SessionTTL)
	}
	if cfg.Cache.ScheduledTTL <= 0 || cfg.Cache.AvailableTTL <= 0 {
		return fmt.Errorf("cache TTLs must be positive")
	}
	if cfg.Application.MaxPerCycle < 0 {
		return fmt.Errorf("application.max_per_cycle must not be negative, got %d", cfg.Application.MaxPerCycle)
	}
	if cfg.Application.MaxAttempts < 1 {
		return fmt.Errorf("application.max_attempts must be at least 1, got %d", cfg.Application.MaxAttempts)
	}

	// Fail at load so a bad rule set can never surface mid-cycle.
	if err := cfg.Preferences.Validate(); err != nil {
		return fmt.Errorf("preferences: %w", err)
	}

	switch cfg.Notification.Type {
	case "", "log":
	case "slack":
		if cfg.Notification.WebhookURL == "" {
			return fmt.Errorf("notification.webhook_url is required when type is \"slack\"")
		}
		if !strings.HasPrefix(cfg.Notification.WebhookURL, "https://hooks.slack.com/") {
			return fmt.Errorf("notification.webhook_url must start with https://hooks.slack.com/")
		}
	default:
		return fmt.Errorf("notification.type must be \"log\" or \"slack\", got %q", cfg.Notification.Type)
	}

	return nil
}
