package scraper

import (
	"context"
	"fmt"
	"time"
)

// WaitMode controls when a navigation counts as finished.
type WaitMode int

const (
	// WaitLoad returns once the page load event fired.
	WaitLoad WaitMode = iota
	// WaitReady additionally waits for FetchOptions.WaitSelector to appear.
	WaitReady
)

// FetchOptions are passed through to the Fetcher on every request.
type FetchOptions struct {
	Wait         WaitMode
	WaitSelector string
	Timeout      time.Duration
}

// Fetcher returns the rendered content of a URL. Implementations allow at
// most one fetch in flight; the crawl never issues concurrent requests.
type Fetcher interface {
	Fetch(ctx context.Context, url string, opts FetchOptions) (*Page, error)
}

// FetchError reports a transport failure or timeout for one URL.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
