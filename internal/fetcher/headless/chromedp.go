// Package headless implements the fetch collaborator using chromedp
// and headless Chrome: page rendering, session login, and post
// extraction.
package headless

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/jfmartin/substack-archiver/internal/archive"
)

// defaultLoginURL is the platform sign-in page used when credentials
// are configured.
const defaultLoginURL = "https://substack.com/sign-in"

// blockedResourcePatterns suppresses heavyweight resource loads when a
// fetch asks for BlockResources. Images are downloaded separately by
// the pipeline, so blocking them in the browser loses nothing.
var blockedResourcePatterns = []string{
	"*.jpg", "*.jpeg", "*.png", "*.gif", "*.webp",
	"*.woff", "*.woff2", "*.ttf",
	"*.mp4", "*.webm", "*.mp3",
}

// Config controls the behavior of the headless fetcher.
type Config struct {
	// MaxParallel sizes the browser tab pool; each fetch holds one
	// slot for its duration. 0 disables the limit.
	MaxParallel       int
	UserAgent         string
	Headless          bool
	BrowserPath       string
	NavigationTimeout time.Duration

	// Email and Password enable the once-per-session login. Login is a
	// no-op when either is empty.
	Email    string
	Password string
	LoginURL string
}

// Fetcher implements archive.Fetcher using chromedp and headless Chrome.
type Fetcher struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc

	mu        sync.Mutex
	loginDone bool
	loginErr  error
	loggedIn  bool
}

// NewChromedp creates a headless fetcher backed by chromedp.
func NewChromedp(cfg Config) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if cfg.LoginURL == "" {
		cfg.LoginURL = defaultLoginURL
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-notifications", true),
	)
	if cfg.BrowserPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.BrowserPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Fetcher{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close cancels the allocator context, shutting down the browser.
func (f *Fetcher) Close() {
	f.allocCancel()
}

// Login signs the browser session in with the configured credentials.
// Idempotent: the flow runs at most once per session and later calls
// return the first result.
func (f *Fetcher) Login(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.loginDone {
		return f.loginErr
	}
	f.loginDone = true

	if f.cfg.Email == "" || f.cfg.Password == "" {
		return nil
	}

	f.loginErr = f.performLogin(ctx)
	f.loggedIn = f.loginErr == nil
	return f.loginErr
}

func (f *Fetcher) performLogin(ctx context.Context) error {
	taskCtx, taskCancel := chromedp.NewContext(f.allocator)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, f.navTimeout())
	defer cancel()
	stop := propagateCancel(ctx, cancel)
	defer stop()

	var currentURL string
	actions := []chromedp.Action{
		chromedp.Navigate(f.cfg.LoginURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		// The password field hides behind the "Sign in with password"
		// link on the default form.
		clickIfPresent(`a.login-option`),
		chromedp.WaitVisible(`input[type="email"]`, chromedp.ByQuery),
		chromedp.SendKeys(`input[type="email"]`, f.cfg.Email, chromedp.ByQuery),
		chromedp.SendKeys(`input[type="password"]`, f.cfg.Password, chromedp.ByQuery),
		chromedp.Click(`button[type="submit"]`, chromedp.ByQuery),
		chromedp.Sleep(3 * time.Second),
		chromedp.Location(&currentURL),
	}
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return fmt.Errorf("login flow: %w", err)
	}
	if strings.Contains(currentURL, "sign-in") {
		return fmt.Errorf("credentials rejected, still on %s", currentURL)
	}
	return nil
}

// Fetch renders url in a browser tab and extracts the post content and
// metadata. Errors carry a failure class for the retry policy.
func (f *Fetcher) Fetch(
	ctx context.Context,
	url string,
	opts archive.FetchOptions,
) (archive.FetchResult, error) {
	if err := f.acquire(ctx); err != nil {
		return archive.FetchResult{}, archive.NewFetchError(url, archive.FailureTransient, err)
	}
	defer f.release()

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = f.navTimeout()
	}

	taskCtx, taskCancel := chromedp.NewContext(f.allocator)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, timeout)
	defer cancel()
	stop := propagateCancel(ctx, cancel)
	defer stop()

	html, err := f.renderPage(taskCtx, url, opts)
	if err != nil {
		return archive.FetchResult{}, archive.NewFetchError(url, classifyNavError(err), err)
	}

	return extractPost(html, url, f.isLoggedIn())
}

func (f *Fetcher) renderPage(ctx context.Context, url string, opts archive.FetchOptions) (string, error) {
	var html string
	actions := []chromedp.Action{
		f.networkSetupAction(opts),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(time.Second),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, nil
}

func (f *Fetcher) networkSetupAction(opts archive.FetchOptions) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if opts.BlockResources {
			if err := network.SetBlockedURLs(blockedResourcePatterns).Do(ctx); err != nil {
				return fmt.Errorf("set blocked urls: %w", err)
			}
		}
		return nil
	})
}

func (f *Fetcher) isLoggedIn() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loggedIn
}

func (f *Fetcher) acquire(ctx context.Context) error {
	if f.limiter == nil {
		return nil
	}
	select {
	case f.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("browser slot wait canceled: %w", ctx.Err())
	}
}

func (f *Fetcher) release() {
	if f.limiter == nil {
		return
	}
	select {
	case <-f.limiter:
	default:
	}
}

func (f *Fetcher) navTimeout() time.Duration {
	if f.cfg.NavigationTimeout > 0 {
		return f.cfg.NavigationTimeout
	}
	return 45 * time.Second
}

// classifyNavError treats navigation timeouts and connection loss as
// transient so the scheduler's retry applies; everything else is
// permanent.
func classifyNavError(err error) archive.FailureClass {
	if errors.Is(err, context.Canceled) {
		return archive.FailurePermanent
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return archive.FailureTransient
	}
	msg := err.Error()
	if strings.Contains(msg, "net::") || strings.Contains(msg, "connection") {
		return archive.FailureTransient
	}
	return archive.FailurePermanent
}

// clickIfPresent clicks the selector when it exists and is a no-op
// otherwise.
func clickIfPresent(selector string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		clickCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		_ = chromedp.Click(selector, chromedp.ByQuery).Do(clickCtx)
		return nil
	})
}

// propagateCancel forwards the caller's cancellation into the chromedp
// task context, which is rooted in the allocator rather than in ctx.
// The returned stop func releases the watcher goroutine.
func propagateCancel(ctx context.Context, cancel context.CancelFunc) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
