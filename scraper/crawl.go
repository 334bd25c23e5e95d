package scraper

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"

	"property-scraper/config"
	"property-scraper/utils"
)

// maxResultFailures is the number of consecutive result pages that may fail
// in increment mode before pagination stops.
const maxResultFailures = 3

// State is a Crawl State Machine state.
type State int

const (
	// SeekingStart walks forward to the configured start page, discarding
	// listing links on the way.
	SeekingStart State = iota
	// Scraping emits listing links of every page inside the window.
	Scraping
	// Done is terminal.
	Done
)

func (s State) String() string {
	switch s {
	case SeekingStart:
		return "SEEKING_START"
	case Scraping:
		return "SCRAPING"
	case Done:
		return "DONE"
	}
	return "UNKNOWN"
}

// Decision tells the crawl loop what to do with the page just visited.
type Decision struct {
	// Emit is set when the page's listing links must be emitted.
	Emit bool
	// Follow is set when the next-page link must be fetched.
	Follow bool
	// Degraded is set when the start page could not be reached and
	// scraping begins at the current page instead.
	Degraded bool
}

// Machine tracks the (state, page) pair of one crawl. It performs no I/O.
type Machine struct {
	start int
	end   int
	state State
	page  int
}

// NewMachine creates a machine for the window [start, end]. end <= 0 means
// unbounded.
func NewMachine(start, end int) *Machine {
	if start < 1 {
		start = 1
	}
	return &Machine{start: start, end: end, state: SeekingStart, page: 1}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Page returns the number of the page being visited, or of the page the
// last Follow decision points to.
func (m *Machine) Page() int { return m.page }

// Stop moves the machine to Done.
func (m *Machine) Stop() { m.state = Done }

// Visit consumes one result page. urlPage is the page number read from the
// page URL, or 0 when the URL carries none, in which case the tracked
// counter is used. hasNext reports whether the page links to a next page.
func (m *Machine) Visit(urlPage int, hasNext bool) Decision {
	var d Decision
	if m.state == Done {
		return d
	}

	if urlPage > 0 {
		m.page = urlPage
	}
	cur := m.page

	if m.state == SeekingStart {
		if cur < m.start {
			if hasNext {
				m.page = cur + 1
				d.Follow = true
				return d
			}
			d.Degraded = true
		}
		m.state = Scraping
	}

	d.Emit = true
	if m.end > 0 && cur >= m.end {
		m.state = Done
		return d
	}
	if hasNext {
		m.page = cur + 1
		d.Follow = true
		return d
	}
	m.state = Done
	return d
}

// Skip consumes a result page that could not be fetched but whose successor
// is still known, as in increment mode. Nothing is emitted; the page counts
// towards the window so the end page still bounds the crawl.
func (m *Machine) Skip(urlPage int) Decision {
	var d Decision
	if m.state == Done {
		return d
	}

	if urlPage > 0 {
		m.page = urlPage
	}
	cur := m.page

	if m.state == SeekingStart && cur >= m.start {
		m.state = Scraping
	}
	if m.state == Scraping && m.end > 0 && cur >= m.end {
		m.state = Done
		return d
	}
	m.page = cur + 1
	d.Follow = true
	return d
}

// CrawlParams are supplied by the caller for one run.
type CrawlParams struct {
	StartURL  string
	StartPage int
	EndPage   int
}

// Crawler drives a Machine over live result pages.
type Crawler struct {
	fetcher Fetcher
	profile *config.SourceProfile
	opts    FetchOptions
	logger  *utils.Logger
}

// NewCrawler creates a Crawler for profile. Result pages are fetched with opts.
func NewCrawler(fetcher Fetcher, profile *config.SourceProfile, opts FetchOptions, logger *utils.Logger) *Crawler {
	if profile.WaitFor != "" && opts.WaitSelector == "" {
		opts.Wait = WaitReady
		opts.WaitSelector = profile.WaitFor
	}
	return &Crawler{fetcher: fetcher, profile: profile, opts: opts, logger: logger}
}

// Run walks the result pages from params.StartURL and calls emit for every
// listing-detail URL inside the page window, in page order. It returns when
// the machine reaches Done, when pagination cannot continue past a failed
// result page, or with ctx.Err() once ctx is cancelled between pages.
func (c *Crawler) Run(ctx context.Context, params CrawlParams, emit func(listingURL string)) error {
	m := NewMachine(params.StartPage, params.EndPage)
	visited := utils.NewURLSet()
	current := params.StartURL
	visited.Add(current)
	failures := 0

	c.logger.Info("[crawl] %s: navigating to page %d, scraping until %s",
		c.profile.Name, params.StartPage, endLabel(params.EndPage))

	for m.State() != Done {
		if err := ctx.Err(); err != nil {
			m.Stop()
			return err
		}

		page, err := c.fetcher.Fetch(ctx, current, c.opts)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				m.Stop()
				return ctxErr
			}
			failures++
			next, ok := c.skipFailedPage(m, current, failures, err)
			if !ok {
				m.Stop()
				break
			}
			if next == "" {
				break
			}
			if !visited.Add(next) {
				c.logger.Warn("[crawl] Next page %s was already visited; stopping pagination", next)
				m.Stop()
				break
			}
			current = next
			continue
		}
		failures = 0

		urlPage, _ := page.PageNumber(c.profile.PageParam)
		pageNum := m.Page()
		if urlPage > 0 {
			pageNum = urlPage
		}

		links := c.listingLinks(page)
		next := c.nextPageURL(page, pageNum, len(links))
		state := m.State()

		d := m.Visit(urlPage, next != "")
		if d.Degraded {
			c.logger.Warn("[crawl] No next page on page %d while seeking start page %d; scraping from here",
				pageNum, params.StartPage)
		}

		if d.Emit {
			c.logger.Info("[crawl] Page %d: %d listing links", pageNum, len(links))
			for _, link := range links {
				emit(link)
			}
		} else {
			c.logger.Debug("[crawl] %s page %d: skipping %d links", state, pageNum, len(links))
		}

		if !d.Follow {
			break
		}
		if !visited.Add(next) {
			c.logger.Warn("[crawl] Next page %s was already visited; stopping pagination", next)
			m.Stop()
			break
		}
		current = next
	}

	c.logger.Info("[crawl] %s: pagination finished at page %d after requesting %d result pages",
		c.profile.Name, m.Page(), visited.Size())
	return nil
}

// skipFailedPage decides how pagination continues after the result page at
// current failed. In link mode the next URL lives on the failed page, so the
// crawl ends. In increment mode the page is skipped until maxResultFailures
// pages in a row have failed. next is empty when the machine has reached the
// end page.
func (c *Crawler) skipFailedPage(m *Machine, current string, failures int, err error) (next string, ok bool) {
	if c.profile.NextPageMode != config.NextPageIncrement {
		c.logger.Error("[crawl] Result page %s failed: %v; stopping pagination", current, err)
		return "", false
	}
	if failures >= maxResultFailures {
		c.logger.Error("[crawl] Result page %s failed: %v; %d pages in a row failed, stopping pagination",
			current, err, failures)
		return "", false
	}

	urlPage := 0
	if u, perr := url.Parse(current); perr == nil {
		urlPage, _ = pageNumber(u, c.profile.PageParam)
	}
	d := m.Skip(urlPage)
	if !d.Follow {
		c.logger.Warn("[crawl] Result page %s failed: %v; it was the last page of the window", current, err)
		return "", true
	}

	next, nerr := withPageNumber(current, c.profile.PageParam, m.Page())
	if nerr != nil {
		c.logger.Error("[crawl] Result page %s failed and the next page URL cannot be built: %v", current, nerr)
		return "", false
	}
	c.logger.Warn("[crawl] Result page %s failed: %v; skipping to page %d", current, err, m.Page())
	return next, true
}

// listingLinks returns the absolute listing-detail URLs of a result page,
// without links to excluded content types.
func (c *Crawler) listingLinks(page *Page) []string {
	var out []string
	for _, link := range page.Links(c.profile.ListingLinks) {
		if c.profile.ExcludeMarker != "" && strings.Contains(link, c.profile.ExcludeMarker) {
			continue
		}
		out = append(out, link)
	}
	return out
}

// nextPageURL returns the absolute URL of the next result page, or "" when
// there is none.
func (c *Crawler) nextPageURL(page *Page, pageNum, listingCount int) string {
	if c.profile.NextPageMode == config.NextPageIncrement {
		if listingCount == 0 {
			return ""
		}
		next, err := withPageNumber(page.URL, c.profile.PageParam, pageNum+1)
		if err != nil {
			return ""
		}
		return next
	}

	href, ok := page.Attr(c.profile.NextPage, "href")
	if !ok {
		return ""
	}
	next, ok := page.Resolve(href)
	if !ok {
		return ""
	}
	return next
}

func endLabel(end int) string {
	if end <= 0 {
		return "the last page"
	}
	return "page " + strconv.Itoa(end)
}
