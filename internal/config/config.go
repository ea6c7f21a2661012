// Package config loads and validates engine configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Session provider names accepted by session_provider.
const (
	SessionChromedp = "chromedp"
	SessionHTTP     = "http"
)

// Config captures all engine configuration knobs loaded via Viper.
type Config struct {
	// Seller is the marketplace store handle whose listings are tracked.
	Seller string `mapstructure:"seller"`
	// BaseURL is the marketplace origin every fetch URL is built from.
	BaseURL string `mapstructure:"base_url"`
	// DataDir is the root for CSV/YAML persistence and log files.
	DataDir string `mapstructure:"data_dir"`

	ScrapeInterval        time.Duration `mapstructure:"scrape_interval"`
	RefreshSchedule       string        `mapstructure:"refresh_schedule"`
	MaxConcurrentRequests int           `mapstructure:"max_concurrent_requests"`
	RequestTimeout        time.Duration `mapstructure:"request_timeout"`
	RetryAttempts         int           `mapstructure:"retry_attempts"`
	BackoffBase           time.Duration `mapstructure:"backoff_base"`
	BackoffMax            time.Duration `mapstructure:"backoff_max"`
	FetchRatePerSec       float64       `mapstructure:"fetch_rate_per_sec"`
	SessionProvider       string        `mapstructure:"session_provider"`

	EndedGraceRefreshes int `mapstructure:"ended_grace_refreshes"`

	HealthWindow        int           `mapstructure:"health_window"`
	HealthDegradedRatio float64       `mapstructure:"health_degraded_ratio"`
	HealthPoorRatio     float64       `mapstructure:"health_poor_ratio"`
	ActivityHold        time.Duration `mapstructure:"activity_hold"`

	PersistInterval time.Duration `mapstructure:"persist_interval"`

	UIRefreshRate time.Duration `mapstructure:"ui_refresh_rate"`
	TablePageSize int           `mapstructure:"table_page_size"`

	LogRetentionDays int  `mapstructure:"log_retention_days"`
	LogDevelopment   bool `mapstructure:"log_development"`

	// DebugListen enables the debug/status HTTP server when non-empty,
	// e.g. "127.0.0.1:8642".
	DebugListen string `mapstructure:"debug_listen"`
}

// Load builds a Config from disk/environment. An empty path skips the
// config file and relies on defaults plus MARKETGLASS_* variables.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MARKETGLASS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("base_url", "https://www.ebay.com")
	v.SetDefault("data_dir", "data")
	v.SetDefault("scrape_interval", 5*time.Minute)
	v.SetDefault("refresh_schedule", "")
	v.SetDefault("max_concurrent_requests", 3)
	v.SetDefault("request_timeout", 30*time.Second)
	v.SetDefault("retry_attempts", 3)
	v.SetDefault("backoff_base", 2*time.Second)
	v.SetDefault("backoff_max", time.Minute)
	v.SetDefault("fetch_rate_per_sec", 0.5)
	v.SetDefault("session_provider", SessionChromedp)
	v.SetDefault("ended_grace_refreshes", 3)
	v.SetDefault("health_window", 20)
	v.SetDefault("health_degraded_ratio", 0.25)
	v.SetDefault("health_poor_ratio", 0.5)
	v.SetDefault("activity_hold", 2*time.Second)
	v.SetDefault("persist_interval", 30*time.Second)
	v.SetDefault("ui_refresh_rate", 100*time.Millisecond)
	v.SetDefault("table_page_size", 50)
	v.SetDefault("log_retention_days", 30)
	v.SetDefault("log_development", false)
	v.SetDefault("debug_listen", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Seller == "" {
		return fmt.Errorf("seller must be set")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("base_url must be set")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must be set")
	}
	if c.MaxConcurrentRequests <= 0 {
		return fmt.Errorf("max_concurrent_requests must be > 0")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be > 0")
	}
	if c.RetryAttempts <= 0 {
		return fmt.Errorf("retry_attempts must be > 0")
	}
	if c.ScrapeInterval < 0 {
		return fmt.Errorf("scrape_interval must be >= 0")
	}
	if c.BackoffBase <= 0 || c.BackoffMax < c.BackoffBase {
		return fmt.Errorf("backoff_base must be > 0 and <= backoff_max")
	}
	if c.FetchRatePerSec <= 0 {
		return fmt.Errorf("fetch_rate_per_sec must be > 0")
	}
	switch c.SessionProvider {
	case SessionChromedp, SessionHTTP:
	default:
		return fmt.Errorf("session_provider must be %q or %q", SessionChromedp, SessionHTTP)
	}
	if c.EndedGraceRefreshes <= 0 {
		return fmt.Errorf("ended_grace_refreshes must be > 0")
	}
	if c.HealthWindow <= 0 {
		return fmt.Errorf("health_window must be > 0")
	}
	if c.HealthDegradedRatio <= 0 || c.HealthDegradedRatio > 1 {
		return fmt.Errorf("health_degraded_ratio must be in (0, 1]")
	}
	if c.HealthPoorRatio < c.HealthDegradedRatio || c.HealthPoorRatio > 1 {
		return fmt.Errorf("health_poor_ratio must be in [health_degraded_ratio, 1]")
	}
	if c.PersistInterval <= 0 {
		return fmt.Errorf("persist_interval must be > 0")
	}
	if c.UIRefreshRate <= 0 {
		return fmt.Errorf("ui_refresh_rate must be > 0")
	}
	if c.TablePageSize <= 0 {
		return fmt.Errorf("table_page_size must be > 0")
	}
	if c.LogRetentionDays < 0 {
		return fmt.Errorf("log_retention_days must be >= 0")
	}
	if c.RefreshSchedule != "" {
		if _, err := cron.ParseStandard(c.RefreshSchedule); err != nil {
			return fmt.Errorf("refresh_schedule: %w", err)
		}
	}
	return nil
}
