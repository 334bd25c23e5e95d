package scraper

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"property-scraper/utils"
)

// BuildSnapshots builds records from listing-detail pages saved as HTML
// files in dir, using up to workers goroutines. Files that cannot be read
// are logged and skipped.
func (p *Pipeline) BuildSnapshots(ctx context.Context, dir string, workers int) (Stats, error) {
	return p.runSnapshots(ctx, dir, workers, func(page *Page) {
		p.count(func(s *Stats) { s.ListingLinks++ })
		p.process(page)
	})
}

// BuildCardSnapshots builds one record per listing card from results pages
// saved as HTML files in dir. The profile must describe its cards.
func (p *Pipeline) BuildCardSnapshots(ctx context.Context, dir string, workers int) (Stats, error) {
	if len(p.builder.profile.Cards.Selectors) == 0 {
		return Stats{}, fmt.Errorf("snapshot: profile %q has no card selectors", p.builder.profile.Name)
	}
	return p.runSnapshots(ctx, dir, workers, func(page *Page) {
		records, err := p.buildCards(page)
		if err != nil {
			p.logger.Error("[snapshot] Card extraction failed for %s: %v", page.URL, err)
			p.count(func(s *Stats) { s.BuildFailures++ })
			return
		}
		p.logger.Info("[snapshot] %s: %d listing cards", page.URL, len(records))
		for _, rec := range records {
			p.count(func(s *Stats) { s.ListingLinks++ })
			p.store(rec)
		}
	})
}

func (p *Pipeline) runSnapshots(ctx context.Context, dir string, workers int, handle func(page *Page)) (Stats, error) {
	start := time.Now()

	files, err := snapshotFiles(dir)
	if err != nil {
		return Stats{}, err
	}
	p.logger.Info("[snapshot] Building records from %d files in %s", len(files), dir)

	pool := utils.NewWorkerPool(workers, 0)
	for _, path := range files {
		if !pool.Submit(ctx, func() {
			page, err := loadSnapshot(path)
			if err != nil {
				p.logger.Warn("[snapshot] Skipping %s: %v", path, err)
				p.count(func(s *Stats) { s.FetchFailures++ })
				return
			}
			handle(page)
		}) {
			break
		}
	}
	pool.Wait()

	stats := p.Stats()
	stats.Duration = time.Since(start)
	return stats, ctx.Err()
}

func snapshotFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("snapshot: read dir %q: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".html", ".htm":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// loadSnapshot parses a saved page. Its URL is taken from the canonical
// link, then og:url, then the file path.
func loadSnapshot(path string) (*Page, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	pageURL := snapshotURL(doc)
	if pageURL == "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		pageURL = "file://" + filepath.ToSlash(abs)
	}
	return NewPageFromDocument(pageURL, doc)
}

func snapshotURL(doc *goquery.Document) string {
	if href, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href"); ok && strings.TrimSpace(href) != "" {
		return strings.TrimSpace(href)
	}
	if content, ok := doc.Find(`meta[property="og:url"]`).First().Attr("content"); ok && strings.TrimSpace(content) != "" {
		return strings.TrimSpace(content)
	}
	return ""
}
