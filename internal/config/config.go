// Package config holds the mediaferry configuration: service accounts, browser
// settings, workflow timing, and storage paths. Configuration is loaded from a
// YAML file with environment-variable overrides for credentials.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all mediaferry configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Apple is the source service (media library being transferred out).
	Apple AppleConfig `yaml:"apple"`

	// Google is the destination service (where media lands).
	Google GoogleConfig `yaml:"google"`

	// Session controls persisted browser-session reuse.
	Session SessionConfig `yaml:"session"`

	// Browser configures the automation driver.
	Browser BrowserConfig `yaml:"browser"`

	// Transfer configures workflow timing and content selection.
	Transfer TransferConfig `yaml:"transfer"`

	// Storage configures the local bookkeeping database.
	Storage StorageConfig `yaml:"storage"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`
}

// AppleConfig identifies the source account and its entry-point URLs.
type AppleConfig struct {
	ID       string `yaml:"id"`
	Password string `yaml:"password"`

	LoginURL    string `yaml:"login_url"`
	DataURL     string `yaml:"data_url"`
	TransferURL string `yaml:"transfer_url"`
}

// GoogleConfig identifies the destination account and where to read storage usage.
type GoogleConfig struct {
	Account string `yaml:"account"`

	LoginURL   string `yaml:"login_url"`
	StorageURL string `yaml:"storage_url"`
}

// SessionConfig controls the session store.
type SessionConfig struct {
	Dir           string `yaml:"dir"`
	FreshnessDays int    `yaml:"freshness_days"`
}

// BrowserConfig configures the rod driver.
type BrowserConfig struct {
	Headless            bool   `yaml:"headless"`
	Bin                 string `yaml:"bin"`
	ViewportWidth       int    `yaml:"viewport_width"`
	ViewportHeight      int    `yaml:"viewport_height"`
	NavigationTimeoutMs int    `yaml:"navigation_timeout_ms"`
	NetworkIdleMs       int    `yaml:"network_idle_ms"`
}

// TransferConfig configures the initiation workflow. The wait ceilings encode
// observed vendor UI timing and are expected to need tuning over time, so they
// live here rather than in control-flow code.
type TransferConfig struct {
	// IncludeVideos selects photo+video transfer instead of photos only.
	// This is a product choice, not a technical constraint.
	IncludeVideos bool `yaml:"include_videos"`

	// VisibilityDelayDays is how many days the destination is known to sit on
	// transferred content before it shows up in storage usage.
	VisibilityDelayDays int `yaml:"visibility_delay_days"`

	ContinueEnableAttempts   int `yaml:"continue_enable_attempts"`
	PopupWaitSeconds         int `yaml:"popup_wait_seconds"`
	ConsentLoopMaxIterations int `yaml:"consent_loop_max_iterations"`
	PopupCloseWaitSeconds    int `yaml:"popup_close_wait_seconds"`
	ConfirmEnableWaitSeconds int `yaml:"confirm_enable_wait_seconds"`

	OneTimeCodeCeilingSeconds  int `yaml:"one_time_code_ceiling_seconds"`
	OneTimeCodePollSeconds     int `yaml:"one_time_code_poll_seconds"`
	PushApprovalCeilingSeconds int `yaml:"push_approval_ceiling_seconds"`
	PushApprovalPollSeconds    int `yaml:"push_approval_poll_seconds"`
}

// StorageConfig configures the SQLite bookkeeping database.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
	File   string `yaml:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "mediaferry",
		Version: "1.0.0",

		Apple: AppleConfig{
			LoginURL:    "https://privacy.apple.com",
			DataURL:     "https://privacy.apple.com/account",
			TransferURL: "https://privacy.apple.com/transfer",
		},

		Google: GoogleConfig{
			LoginURL:   "https://accounts.google.com",
			StorageURL: "https://one.google.com/storage",
		},

		Session: SessionConfig{
			Dir:           "data/sessions",
			FreshnessDays: 7,
		},

		Browser: BrowserConfig{
			Headless:            false,
			ViewportWidth:       1920,
			ViewportHeight:      1080,
			NavigationTimeoutMs: 30000,
			NetworkIdleMs:       2000,
		},

		Transfer: TransferConfig{
			IncludeVideos:       false,
			VisibilityDelayDays: 4,

			ContinueEnableAttempts:   10,
			PopupWaitSeconds:         5,
			ConsentLoopMaxIterations: 3,
			PopupCloseWaitSeconds:    15,
			ConfirmEnableWaitSeconds: 25,

			OneTimeCodeCeilingSeconds:  180,
			OneTimeCodePollSeconds:     5,
			PushApprovalCeilingSeconds: 120,
			PushApprovalPollSeconds:    2,
		},

		Storage: StorageConfig{
			DatabasePath: "data/mediaferry.db",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   "",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides. Credentials are
// never expected to live in the YAML file in real deployments.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("MEDIAFERRY_APPLE_ID"); v != "" {
		c.Apple.ID = v
	}
	if v := os.Getenv("MEDIAFERRY_APPLE_PASSWORD"); v != "" {
		c.Apple.Password = v
	}
	if v := os.Getenv("MEDIAFERRY_GOOGLE_ACCOUNT"); v != "" {
		c.Google.Account = v
	}
	if v := os.Getenv("MEDIAFERRY_DB"); v != "" {
		c.Storage.DatabasePath = v
	}
	if v := os.Getenv("MEDIAFERRY_SESSION_DIR"); v != "" {
		c.Session.Dir = v
	}
}

// SessionFreshness returns the maximum age of a reusable session.
func (c *Config) SessionFreshness() time.Duration {
	days := c.Session.FreshnessDays
	if days <= 0 {
		days = 7
	}
	return time.Duration(days) * 24 * time.Hour
}

// NavigationTimeout returns the page navigation timeout.
func (c *Config) NavigationTimeout() time.Duration {
	if c.Browser.NavigationTimeoutMs == 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Browser.NavigationTimeoutMs) * time.Millisecond
}

// NetworkIdle returns how long the network must be quiet before a page is
// considered stable.
func (c *Config) NetworkIdle() time.Duration {
	if c.Browser.NetworkIdleMs == 0 {
		return 2 * time.Second
	}
	return time.Duration(c.Browser.NetworkIdleMs) * time.Millisecond
}
