// Package config loads and validates archiver configuration via Viper.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Crawl    CrawlConfig    `mapstructure:"crawl"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Output   OutputConfig   `mapstructure:"output"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Targets  TargetsConfig  `mapstructure:"targets"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
}

// CrawlConfig governs scheduling and pacing behavior.
type CrawlConfig struct {
	Concurrency int     `mapstructure:"concurrency"`
	DelayMinSec float64 `mapstructure:"delay_min_seconds"`
	DelayMaxSec float64 `mapstructure:"delay_max_seconds"`
	TaskTimeout int     `mapstructure:"task_timeout_seconds"`
	MaxItems    int     `mapstructure:"max_items"`
}

// FetchConfig configures per-page fetch behavior.
type FetchConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	BlockResources bool   `mapstructure:"block_resources"`
	UserAgent      string `mapstructure:"user_agent"`
	IndexTimeout   int    `mapstructure:"index_timeout_seconds"`
}

// BrowserConfig configures the headless rendering subsystem.
type BrowserConfig struct {
	Headless      bool   `mapstructure:"headless"`
	Path          string `mapstructure:"path"`
	NavTimeoutSec int    `mapstructure:"nav_timeout_seconds"`
}

// AuthConfig holds the optional platform credentials. Values come from
// SUBSTACK_EMAIL / SUBSTACK_PASSWORD, typically via a .env file.
type AuthConfig struct {
	Login    bool   `mapstructure:"login"`
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
}

// OutputConfig sets where post files, assets and state live.
type OutputConfig struct {
	Directory string `mapstructure:"directory"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// TargetsConfig lists crawl targets and their shared exclusion filters.
type TargetsConfig struct {
	URLs     []string `mapstructure:"urls"`
	URLsFile string   `mapstructure:"urls_file"`
	Keywords []string `mapstructure:"keywords"`
}

// ScheduleConfig controls continuous operation.
type ScheduleConfig struct {
	Continuous      bool `mapstructure:"continuous"`
	IntervalMinutes int  `mapstructure:"interval_minutes"`
}

// DefaultKeywords are the URL patterns excluded from discovery unless
// the configuration overrides them.
var DefaultKeywords = []string{"about", "archive", "podcast"}

// Load builds a Config from disk/environment. Credentials from a .env
// file in the working directory are merged into the process
// environment first, without overriding values already set.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("ARCHIVER")
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

	if cfg.Auth.Email == "" {
		cfg.Auth.Email = os.Getenv("SUBSTACK_EMAIL")
	}
	if cfg.Auth.Password == "" {
		cfg.Auth.Password = os.Getenv("SUBSTACK_PASSWORD")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawl.concurrency", 3)
	v.SetDefault("crawl.delay_min_seconds", 1.0)
	v.SetDefault("crawl.delay_max_seconds", 3.0)
	v.SetDefault("crawl.task_timeout_seconds", 90)
	v.SetDefault("crawl.max_items", 0)
	v.SetDefault("fetch.timeout_seconds", 60)
	v.SetDefault("fetch.block_resources", true)
	v.SetDefault("fetch.index_timeout_seconds", 15)
	v.SetDefault("fetch.user_agent", "substack-archiver/1.0 (+https://github.com/jfmartin/substack-archiver)")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.nav_timeout_seconds", 45)
	v.SetDefault("auth.login", false)
	v.SetDefault("output.directory", "output")
	v.SetDefault("logging.development", true)
	v.SetDefault("targets.keywords", DefaultKeywords)
	v.SetDefault("schedule.continuous", false)
	v.SetDefault("schedule.interval_minutes", 60)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawl.Concurrency <= 0 {
		return fmt.Errorf("crawl.concurrency must be > 0")
	}
	if c.Crawl.DelayMinSec < 0 || c.Crawl.DelayMaxSec < c.Crawl.DelayMinSec {
		return fmt.Errorf("crawl delay range invalid: min=%v max=%v", c.Crawl.DelayMinSec, c.Crawl.DelayMaxSec)
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Output.Directory == "" {
		return fmt.Errorf("output.directory must be set")
	}
	if c.Auth.Login && (c.Auth.Email == "" || c.Auth.Password == "") {
		return fmt.Errorf("auth.login requires SUBSTACK_EMAIL and SUBSTACK_PASSWORD")
	}
	if c.Schedule.Continuous && c.Schedule.IntervalMinutes <= 0 {
		return fmt.Errorf("schedule.interval_minutes must be > 0 in continuous mode")
	}
	return nil
}

// DelayMin returns the minimum inter-request delay.
func (c Config) DelayMin() time.Duration {
	return time.Duration(c.Crawl.DelayMinSec * float64(time.Second))
}

// DelayMax returns the maximum inter-request delay.
func (c Config) DelayMax() time.Duration {
	return time.Duration(c.Crawl.DelayMaxSec * float64(time.Second))
}

// FetchTimeout returns the per-page fetch budget.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// TaskTimeout returns the per-task budget covering fetch, transform and
// persistence.
func (c Config) TaskTimeout() time.Duration {
	return time.Duration(c.Crawl.TaskTimeout) * time.Second
}

// Interval returns the continuous-mode pass interval.
func (c Config) Interval() time.Duration {
	return time.Duration(c.Schedule.IntervalMinutes) * time.Minute
}
