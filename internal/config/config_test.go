package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
crawl:
  concurrency: 5
  delay_min_seconds: 0.5
  delay_max_seconds: 2.5
  task_timeout_seconds: 120
  max_items: 25
fetch:
  timeout_seconds: 30
  block_resources: false
  user_agent: archiver-test
browser:
  headless: false
  path: /usr/bin/chromium
  nav_timeout_seconds: 20
output:
  directory: /tmp/archives
logging:
  development: false
targets:
  urls: ["https://example.substack.com"]
  keywords: ["about", "open-thread"]
schedule:
  continuous: true
  interval_minutes: 15
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Crawl.Concurrency != 5 || cfg.Crawl.MaxItems != 25 {
		t.Fatalf("expected crawl overrides to apply: %+v", cfg.Crawl)
	}
	if cfg.Fetch.BlockResources || cfg.Fetch.UserAgent != "archiver-test" {
		t.Fatalf("expected fetch overrides to apply: %+v", cfg.Fetch)
	}
	if cfg.Browser.Headless || cfg.Browser.Path != "/usr/bin/chromium" {
		t.Fatalf("expected browser overrides to apply: %+v", cfg.Browser)
	}
	if len(cfg.Targets.URLs) != 1 || cfg.Targets.Keywords[1] != "open-thread" {
		t.Fatalf("expected target overrides to apply: %+v", cfg.Targets)
	}
	if got := cfg.DelayMin(); got != 500*time.Millisecond {
		t.Fatalf("expected delay min 500ms, got %v", got)
	}
	if got := cfg.DelayMax(); got != 2500*time.Millisecond {
		t.Fatalf("expected delay max 2.5s, got %v", got)
	}
	if got := cfg.FetchTimeout(); got != 30*time.Second {
		t.Fatalf("expected fetch timeout 30s, got %v", got)
	}
	if got := cfg.Interval(); got != 15*time.Minute {
		t.Fatalf("expected interval 15m, got %v", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Crawl.Concurrency != 3 {
		t.Fatalf("expected default concurrency 3, got %d", cfg.Crawl.Concurrency)
	}
	if !cfg.Fetch.BlockResources {
		t.Fatal("expected resource blocking on by default")
	}
	if len(cfg.Targets.Keywords) != len(DefaultKeywords) {
		t.Fatalf("expected default keywords, got %v", cfg.Targets.Keywords)
	}
	if got := cfg.TaskTimeout(); got != 90*time.Second {
		t.Fatalf("expected default task timeout 90s, got %v", got)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	base := Config{
		Crawl:  CrawlConfig{Concurrency: 1, DelayMaxSec: 1},
		Fetch:  FetchConfig{TimeoutSeconds: 10},
		Output: OutputConfig{Directory: "output"},
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid concurrency",
			cfg: func() Config {
				c := base
				c.Crawl.Concurrency = 0
				return c
			}(),
			want: "crawl.concurrency",
		},
		{
			name: "inverted delay range",
			cfg: func() Config {
				c := base
				c.Crawl.DelayMinSec = 3
				c.Crawl.DelayMaxSec = 1
				return c
			}(),
			want: "delay range",
		},
		{
			name: "invalid fetch timeout",
			cfg: func() Config {
				c := base
				c.Fetch.TimeoutSeconds = 0
				return c
			}(),
			want: "fetch.timeout_seconds",
		},
		{
			name: "missing output directory",
			cfg: func() Config {
				c := base
				c.Output.Directory = ""
				return c
			}(),
			want: "output.directory",
		},
		{
			name: "login without credentials",
			cfg: func() Config {
				c := base
				c.Auth.Login = true
				return c
			}(),
			want: "auth.login",
		},
		{
			name: "continuous without interval",
			cfg: func() Config {
				c := base
				c.Schedule.Continuous = true
				return c
			}(),
			want: "schedule.interval_minutes",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
