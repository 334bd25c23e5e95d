package scraper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"property-scraper/config"
	"property-scraper/models"
	"property-scraper/utils"
)

// Sink receives finished records. Write is called once per record and must
// be safe for concurrent use in snapshot mode.
type Sink interface {
	Write(rec *models.ListingRecord) error
}

// Stats summarises one run.
type Stats struct {
	ListingLinks  int
	Records       int
	FetchFailures int
	BuildFailures int
	WriteFailures int
	Duration      time.Duration
}

// Pipeline crawls result pages, builds a record for every listing link and
// hands it to the sink.
type Pipeline struct {
	crawler *Crawler
	fetcher Fetcher
	builder *Builder
	sink    Sink
	logger  *utils.Logger
	detail  FetchOptions

	mu    sync.Mutex
	stats Stats
}

// NewPipeline wires the crawl, extraction and sink for one source profile.
func NewPipeline(fetcher Fetcher, profile *config.SourceProfile, sink Sink, timeout time.Duration, logger *utils.Logger) (*Pipeline, error) {
	builder, err := NewBuilder(profile, logger)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	opts := FetchOptions{Wait: WaitLoad, Timeout: timeout}
	return &Pipeline{
		crawler: NewCrawler(fetcher, profile, opts, logger),
		fetcher: fetcher,
		builder: builder,
		sink:    sink,
		logger:  logger,
		detail:  opts,
	}, nil
}

// Run crawls from params.StartURL. Failed listings are logged and skipped;
// the returned error is only ever a context error.
func (p *Pipeline) Run(ctx context.Context, params CrawlParams) (Stats, error) {
	start := time.Now()

	err := p.crawler.Run(ctx, params, func(link string) {
		if ctx.Err() != nil {
			return
		}
		p.count(func(s *Stats) { s.ListingLinks++ })

		page, err := p.fetcher.Fetch(ctx, link, p.detail)
		if err != nil {
			p.logger.Warn("[pipeline] Skipping %s: %v", link, err)
			p.count(func(s *Stats) { s.FetchFailures++ })
			return
		}
		p.process(page)
	})

	stats := p.Stats()
	stats.Duration = time.Since(start)
	return stats, err
}

// Stats returns the counters collected so far.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// process builds and writes the record for one detail page.
func (p *Pipeline) process(page *Page) {
	rec, err := p.build(page)
	if err != nil {
		p.logger.Error("[pipeline] Extraction failed for %s: %v", page.URL, err)
		p.count(func(s *Stats) { s.BuildFailures++ })
		return
	}
	p.store(rec)
}

// store hands one record to the sink.
func (p *Pipeline) store(rec *models.ListingRecord) {
	if err := p.sink.Write(rec); err != nil {
		p.logger.Error("[pipeline] Write failed for %s: %v", rec.URL, err)
		p.count(func(s *Stats) { s.WriteFailures++ })
		return
	}
	p.logger.Debug("[pipeline] Stored %s (id %s)", rec.URL, rec.ID)
	p.count(func(s *Stats) { s.Records++ })
}

// build runs the builder and turns a panic into an error so one bad page
// cannot end the run.
func (p *Pipeline) build(page *Page) (rec *models.ListingRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.builder.Build(page), nil
}

func (p *Pipeline) buildCards(page *Page) (recs []*models.ListingRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.builder.BuildCards(page), nil
}

func (p *Pipeline) count(fn func(s *Stats)) {
	p.mu.Lock()
	fn(&p.stats)
	p.mu.Unlock()
}
