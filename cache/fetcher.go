package cache

import (
	"context"
	"strings"

	"property-scraper/scraper"
	"property-scraper/utils"
)

// PageStore is the storage a caching Fetcher reads through.
type PageStore interface {
	Get(ctx context.Context, pageURL string) (string, bool, error)
	Set(ctx context.Context, pageURL, html string) error
}

// Fetcher serves pages from a PageStore and falls back to the wrapped
// Fetcher on a miss. Store errors are logged and never fail a fetch.
type Fetcher struct {
	next   scraper.Fetcher
	store  PageStore
	logger *utils.Logger
}

// NewFetcher wraps next with store.
func NewFetcher(next scraper.Fetcher, store PageStore, logger *utils.Logger) *Fetcher {
	return &Fetcher{next: next, store: store, logger: logger}
}

// Fetch implements scraper.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, url string, opts scraper.FetchOptions) (*scraper.Page, error) {
	html, ok, err := f.store.Get(ctx, url)
	if err != nil {
		f.logger.Warn("[cache] %v", err)
	}
	if ok {
		page, err := scraper.NewPage(url, strings.NewReader(html))
		if err == nil {
			f.logger.Debug("[cache] Hit %s", url)
			return page, nil
		}
		f.logger.Warn("[cache] Discarding unreadable entry for %s: %v", url, err)
	}

	page, err := f.next.Fetch(ctx, url, opts)
	if err != nil {
		return nil, err
	}

	if html, err := page.HTML(); err == nil {
		if err := f.store.Set(ctx, url, html); err != nil {
			f.logger.Warn("[cache] %v", err)
		}
	}
	return page, nil
}
