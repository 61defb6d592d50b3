package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jfmartin/substack-archiver/internal/archive"
	"github.com/jfmartin/substack-archiver/internal/clock/system"
	"github.com/jfmartin/substack-archiver/internal/config"
	"github.com/jfmartin/substack-archiver/internal/discovery"
	"github.com/jfmartin/substack-archiver/internal/driver"
	"github.com/jfmartin/substack-archiver/internal/fetcher/headless"
	"github.com/jfmartin/substack-archiver/internal/logging"
	"github.com/jfmartin/substack-archiver/internal/pipeline"
	"github.com/jfmartin/substack-archiver/internal/scheduler"
	"github.com/jfmartin/substack-archiver/internal/state"
	"github.com/jfmartin/substack-archiver/internal/transform"
	"github.com/jfmartin/substack-archiver/internal/webfetch"
)

// crawlFlags holds the flag values for the crawl command.
type crawlFlags struct {
	maxItems    int
	login       bool
	concurrency int
	delayMin    float64
	delayMax    float64
	continuous  bool
	interval    int
	directory   string
	headless    bool
	browserPath string
	userAgent   string
	urlsFile    string
	keywords    []string
}

// newCrawlCmd creates and configures the 'crawl' subcommand.
func newCrawlCmd() *cobra.Command {
	var flags crawlFlags

	cmd := &cobra.Command{
		Use:   "crawl [url...]",
		Short: "Archive new posts from one or more newsletter sites",
		Long: `Discovers each site's posts via sitemap.xml (falling back to
feed.xml), fetches the ones missing from the local archive, and writes
them as numbered Markdown files with per-site crawl state.

Sites come from positional arguments, --urls-file, the configured
target list, or stdin, in that order of precedence.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawlCommand(cmd, args, flags)
		},
	}

	cmd.Flags().IntVarP(&flags.maxItems, "num-posts", "n", 0, "maximum new posts to fetch per site (0 = unlimited)")
	cmd.Flags().BoolVarP(&flags.login, "login", "l", false, "log in with SUBSTACK_EMAIL/SUBSTACK_PASSWORD before fetching")
	cmd.Flags().IntVar(&flags.concurrency, "concurrency", 0, "maximum posts fetched in parallel per site")
	cmd.Flags().Float64Var(&flags.delayMin, "delay-min", 0, "minimum seconds between request starts")
	cmd.Flags().Float64Var(&flags.delayMax, "delay-max", 0, "maximum seconds between request starts")
	cmd.Flags().BoolVar(&flags.continuous, "continuous", false, "keep running, re-checking all sites on an interval")
	cmd.Flags().IntVar(&flags.interval, "interval", 0, "minutes between passes in continuous mode")
	cmd.Flags().StringVarP(&flags.directory, "directory", "d", "", "root output directory")
	cmd.Flags().BoolVar(&flags.headless, "headless", true, "run the browser headless")
	cmd.Flags().StringVar(&flags.browserPath, "browser-path", "", "path to the Chrome/Chromium binary")
	cmd.Flags().StringVar(&flags.userAgent, "user-agent", "", "user agent for index and asset requests")
	cmd.Flags().StringVar(&flags.urlsFile, "urls-file", "", "file with one site URL per line")
	cmd.Flags().StringSliceVar(&flags.keywords, "keywords", nil, "exclude discovered URLs containing any of these keywords")

	return cmd
}

func runCrawlCommand(cmd *cobra.Command, args []string, flags crawlFlags) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	applyFlagOverrides(cmd, &cfg, flags)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush

	urls, err := collectURLs(args, cfg, os.Stdin)
	if err != nil {
		return err
	}
	targets, err := buildTargets(urls, cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, closeFetcher, err := buildDriver(cfg, logger)
	if err != nil {
		return err
	}
	defer closeFetcher()

	result, err := d.Run(ctx, targets)
	if err != nil {
		var cfgErr *archive.ConfigError
		if errors.As(err, &cfgErr) {
			return fmt.Errorf("crawl state unusable, no fetching attempted: %w", err)
		}
		if errors.Is(err, context.Canceled) {
			logger.Info("crawl interrupted")
			return nil
		}
		return err
	}

	if result.Failed() {
		reportFailures(os.Stderr, result)
		return driver.ErrRunFailed
	}

	logger.Info("crawl finished", zap.String("run_id", result.RunID))
	return nil
}

// applyFlagOverrides folds explicitly set flags into the loaded config.
// Unset flags leave config/env values untouched.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config, flags crawlFlags) {
	set := cmd.Flags().Changed
	if set("num-posts") {
		cfg.Crawl.MaxItems = flags.maxItems
	}
	if set("login") {
		cfg.Auth.Login = flags.login
	}
	if set("concurrency") {
		cfg.Crawl.Concurrency = flags.concurrency
	}
	if set("delay-min") {
		cfg.Crawl.DelayMinSec = flags.delayMin
	}
	if set("delay-max") {
		cfg.Crawl.DelayMaxSec = flags.delayMax
	}
	if set("continuous") {
		cfg.Schedule.Continuous = flags.continuous
	}
	if set("interval") {
		cfg.Schedule.IntervalMinutes = flags.interval
	}
	if set("directory") {
		cfg.Output.Directory = flags.directory
	}
	if set("headless") {
		cfg.Browser.Headless = flags.headless
	}
	if set("browser-path") {
		cfg.Browser.Path = flags.browserPath
	}
	if set("user-agent") {
		cfg.Fetch.UserAgent = flags.userAgent
	}
	if set("urls-file") {
		cfg.Targets.URLsFile = flags.urlsFile
	}
	if set("keywords") {
		cfg.Targets.Keywords = flags.keywords
	}
}

// collectURLs resolves the site list: positional args win, then the
// urls file, then configured URLs, then piped stdin.
func collectURLs(args []string, cfg config.Config, stdin *os.File) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	if cfg.Targets.URLsFile != "" {
		f, err := os.Open(cfg.Targets.URLsFile)
		if err != nil {
			return nil, fmt.Errorf("open urls file: %w", err)
		}
		defer f.Close()
		return readURLLines(f)
	}
	if len(cfg.Targets.URLs) > 0 {
		return cfg.Targets.URLs, nil
	}
	if info, err := stdin.Stat(); err == nil && info.Mode()&os.ModeCharDevice == 0 {
		urls, err := readURLLines(stdin)
		if err != nil {
			return nil, err
		}
		if len(urls) > 0 {
			return urls, nil
		}
	}
	return nil, errors.New("no site URLs given: pass them as arguments, via --urls-file, config, or stdin")
}

// readURLLines parses one URL per line, skipping blanks and # comments.
func readURLLines(r io.Reader) ([]string, error) {
	var urls []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read urls: %w", err)
	}
	return urls, nil
}

// buildTargets turns raw site URLs into crawl targets with normalized
// base URLs and per-site output directories.
func buildTargets(urls []string, cfg config.Config) ([]archive.Target, error) {
	seen := make(map[string]struct{}, len(urls))
	targets := make([]archive.Target, 0, len(urls))
	for _, raw := range urls {
		base, err := archive.NormalizeBaseURL(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid site url %q: %w", raw, err)
		}
		if _, dup := seen[base]; dup {
			continue
		}
		seen[base] = struct{}{}

		writer := archive.WriterName(base)
		targets = append(targets, archive.Target{
			BaseURL:   base,
			Writer:    writer,
			OutputDir: filepath.Join(cfg.Output.Directory, writer),
			Keywords:  cfg.Targets.Keywords,
			MaxItems:  cfg.Crawl.MaxItems,
		})
	}
	return targets, nil
}

// buildDriver wires the full crawl stack from configuration. The
// returned func shuts the browser down.
func buildDriver(cfg config.Config, logger *zap.Logger) (*driver.Driver, func(), error) {
	indexClient := webfetch.New(webfetch.Config{
		UserAgent: cfg.Fetch.UserAgent,
		Timeout:   time.Duration(cfg.Fetch.IndexTimeout) * time.Second,
	})
	discoverer := discovery.New(indexClient, logger)

	fetcher, err := headless.NewChromedp(headless.Config{
		MaxParallel:       cfg.Crawl.Concurrency,
		UserAgent:         cfg.Fetch.UserAgent,
		Headless:          cfg.Browser.Headless,
		BrowserPath:       cfg.Browser.Path,
		NavigationTimeout: time.Duration(cfg.Browser.NavTimeoutSec) * time.Second,
		Email:             cfg.Auth.Email,
		Password:          cfg.Auth.Password,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init browser fetcher: %w", err)
	}

	assets := pipeline.NewAssetDownloader(indexClient, logger)
	pipe := pipeline.New(
		fetcher,
		transform.NewMarkdown(),
		assets,
		system.New(),
		pipeline.Config{
			BlockResources: cfg.Fetch.BlockResources,
			FetchTimeout:   cfg.FetchTimeout(),
		},
		logger,
	)

	sched := scheduler.New(scheduler.Config{
		Concurrency: cfg.Crawl.Concurrency,
		DelayMin:    cfg.DelayMin(),
		DelayMax:    cfg.DelayMax(),
		TaskTimeout: cfg.TaskTimeout(),
	}, logger)

	d := driver.New(
		state.New(logger),
		discoverer,
		sched,
		pipe,
		fetcher,
		system.New(),
		driver.Config{
			Login:      cfg.Auth.Login,
			Continuous: cfg.Schedule.Continuous,
			Interval:   cfg.Interval(),
		},
		logger,
	)
	return d, fetcher.Close, nil
}

// reportFailures prints a human-readable per-target failure summary.
func reportFailures(w io.Writer, result archive.BatchResult) {
	for _, tr := range result.Targets {
		if tr.DiscoveryErr != nil {
			fmt.Fprintf(w, "%s: discovery failed: %v\n", tr.Target.Writer, tr.DiscoveryErr)
			continue
		}
		for _, f := range tr.Failed {
			fmt.Fprintf(w, "%s: %s: %v\n", tr.Target.Writer, f.URL, f.Err)
		}
	}
}
