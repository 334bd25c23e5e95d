// Package browser fetches pages with a headless Chrome driven by chromedp.
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"golang.org/x/time/rate"

	"property-scraper/scraper"
	"property-scraper/utils"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Options configures the browser fetcher.
type Options struct {
	ChromeBin  string
	Headless   bool
	UserAgent  string
	MinDelay   time.Duration
	Settle     time.Duration
	MaxRetries int
}

// Fetcher renders pages in one shared browser. Fetches are serialised and
// spaced at least MinDelay apart.
type Fetcher struct {
	opts    Options
	logger  *utils.Logger
	retry   *utils.RetryConfig
	limiter *rate.Limiter

	mu          sync.Mutex
	browserCtx  context.Context
	cancelAlloc context.CancelFunc
	cancelTab   context.CancelFunc
}

// New starts a browser allocator. Close releases it.
func New(opts Options, logger *utils.Logger) (*Fetcher, error) {
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}

	chromeBin := findChromeBinary(opts.ChromeBin)
	logger.Info("[browser] Using browser binary: %s", displayBinary(chromeBin))

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("enable-automation", false),
		chromedp.UserAgent(opts.UserAgent),
	)
	if chromeBin != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), allocOpts...)

	// Suppress chromedp log noise
	browserCtx, cancelTab := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	if err := chromedp.Run(browserCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("browser: start: %w", err)
	}

	limit := rate.Inf
	if opts.MinDelay > 0 {
		limit = rate.Every(opts.MinDelay)
	}

	return &Fetcher{
		opts:   opts,
		logger: logger,
		retry: &utils.RetryConfig{
			MaxAttempts: opts.MaxRetries,
			BaseDelay:   2 * time.Second,
			Logger:      logger,
		},
		limiter:     rate.NewLimiter(limit, 1),
		browserCtx:  browserCtx,
		cancelAlloc: cancelAlloc,
		cancelTab:   cancelTab,
	}, nil
}

// Fetch navigates to url and returns the rendered document.
func (f *Fetcher) Fetch(ctx context.Context, url string, opts scraper.FetchOptions) (*scraper.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var html string
	err := f.retry.Do(ctx, "fetch "+url, func() error {
		if err := f.limiter.Wait(ctx); err != nil {
			return err
		}
		var err error
		html, err = f.render(ctx, url, opts)
		return err
	})
	if err != nil {
		return nil, &scraper.FetchError{URL: url, Err: err}
	}

	page, err := scraper.NewPage(url, strings.NewReader(html))
	if err != nil {
		return nil, &scraper.FetchError{URL: url, Err: err}
	}
	return page, nil
}

func (f *Fetcher) render(ctx context.Context, url string, opts scraper.FetchOptions) (string, error) {
	tabCtx, cancel := chromedp.NewContext(f.browserCtx)
	defer cancel()

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, timeout)
	defer cancelTimeout()

	// Stop the tab when the caller gives up.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	actions := []chromedp.Action{chromedp.Navigate(url)}
	if opts.Wait == scraper.WaitReady && opts.WaitSelector != "" {
		actions = append(actions, chromedp.WaitReady(opts.WaitSelector, chromedp.ByQuery))
	}
	if f.opts.Settle > 0 {
		actions = append(actions, chromedp.Sleep(f.opts.Settle))
	}

	var html string
	actions = append(actions, chromedp.OuterHTML("html", &html, chromedp.ByQuery))

	if err := chromedp.Run(tabCtx, actions...); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("navigation timed out after %v: %w", timeout, err)
		}
		return "", fmt.Errorf("chromedp: %w", err)
	}
	return html, nil
}

// Close shuts the browser down.
func (f *Fetcher) Close() error {
	f.cancelTab()
	f.cancelAlloc()
	return nil
}

// findChromeBinary locates Chrome/Chromium binary.
func findChromeBinary(configured string) string {
	if configured != "" {
		return configured
	}
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}

func displayBinary(bin string) string {
	if bin == "" {
		return "chromedp default lookup"
	}
	return bin
}
