package scraper

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"property-scraper/utils"
)

var errNotFound = errors.New("404 not found")

// fakeFetcher serves canned HTML by URL and records every request.
type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	fail  map[string]error
	calls []string
}

func newFakeFetcher(pages map[string]string) *fakeFetcher {
	return &fakeFetcher{pages: pages, fail: map[string]error{}}
}

func (f *fakeFetcher) Fetch(_ context.Context, url string, _ FetchOptions) (*Page, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	html, ok := f.pages[url]
	failure := f.fail[url]
	f.mu.Unlock()

	if failure != nil {
		return nil, &FetchError{URL: url, Err: failure}
	}
	if !ok {
		return nil, &FetchError{URL: url, Err: errNotFound}
	}
	return NewPage(url, strings.NewReader(html))
}

func (f *fakeFetcher) fetched(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == url {
			return true
		}
	}
	return false
}

func mustPage(t *testing.T, url, html string) *Page {
	t.Helper()
	page, err := NewPage(url, strings.NewReader(html))
	if err != nil {
		t.Fatalf("NewPage: %v", err)
	}
	return page
}

func captureLogger() (*utils.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return utils.NewLoggerTo(&buf), &buf
}

func quietLogger() *utils.Logger {
	return utils.NewLoggerTo(io.Discard)
}
