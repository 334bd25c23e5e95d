package scraper

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"property-scraper/config"
	"property-scraper/models"
)

type memorySink struct {
	mu      sync.Mutex
	records []*models.ListingRecord
	failFor string
}

func (m *memorySink) Write(rec *models.ListingRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == m.failFor {
		return errors.New("disk full")
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *memorySink) byID() map[string]*models.ListingRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]*models.ListingRecord, len(m.records))
	for _, r := range m.records {
		out[r.ID] = r
	}
	return out
}

const platformAResults = `<html><body>
<div class="property-card"><a title="Broken" href="/property/broken">1</a></div>
<div class="property-card featured"><a title="Good" href="/property/rumah-melati">2</a></div>
<div class="property-card"><a title="Gone" href="/property/gone">3</a></div>
</body></html>`

func platformAPages() map[string]string {
	return map[string]string{
		"https://a.example/sale?page=1":           platformAResults,
		"https://a.example/sale?page=2":           "<html><body></body></html>",
		"https://a.example/property/broken":       malformedDetailHTML,
		"https://a.example/property/rumah-melati": structuredDetailHTML,
	}
}

func TestPipelineSkipsFailedListings(t *testing.T) {
	f := newFakeFetcher(platformAPages())
	sink := &memorySink{}
	p, err := NewPipeline(f, config.DefaultProfiles()["platform_a"], sink, time.Second, quietLogger())
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	stats, err := p.Run(context.Background(), CrawlParams{StartURL: "https://a.example/sale?page=1", StartPage: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if stats.ListingLinks != 3 || stats.Records != 2 || stats.FetchFailures != 1 {
		t.Errorf("stats: %+v", stats)
	}

	got := sink.byID()
	broken, ok := got["broken"]
	if !ok {
		t.Fatal("a malformed payload must still produce a record")
	}
	if broken.Price != nil {
		t.Errorf("broken record price: got %d, want nil", *broken.Price)
	}
	good, ok := got["rumah-melati"]
	if !ok || good.Price == nil || *good.Price != 1_500_000_000 {
		t.Errorf("listing after the malformed one was not built correctly: %+v", good)
	}
}

func TestPipelineCountsWriteFailures(t *testing.T) {
	f := newFakeFetcher(platformAPages())
	sink := &memorySink{failFor: "broken"}
	p, err := NewPipeline(f, config.DefaultProfiles()["platform_a"], sink, time.Second, quietLogger())
	if err != nil {
		t.Fatal(err)
	}

	stats, err := p.Run(context.Background(), CrawlParams{StartURL: "https://a.example/sale?page=1", StartPage: 1})
	if err != nil {
		t.Fatal(err)
	}
	if stats.WriteFailures != 1 || stats.Records != 1 {
		t.Errorf("stats: %+v", stats)
	}
}

func TestNewPipelineRejectsUnknownPriceFormat(t *testing.T) {
	profile := *config.DefaultProfiles()["platform_b"]
	profile.PriceFormat = "roman"
	if _, err := NewPipeline(nil, &profile, &memorySink{}, time.Second, quietLogger()); err == nil {
		t.Error("expected an error for an unknown price format")
	}
}

func TestBuildSnapshots(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"01-canonical.html": `<html><head><link rel="canonical" href="https://b.example/property/bandung/hos777"></head>` +
			`<body><div class="price-tag"><strong>Rp 900.000.000</strong></div></body></html>`,
		"02-og.htm": `<html><head><meta property="og:url" content="https://b.example/property/hos888/"></head>` +
			`<body><div class="listing-overview"><div><span>2</span><span>Kamar Tidur</span></div></div></body></html>`,
		"03-bare.html": `<html><body><p>saved without metadata</p></body></html>`,
		"notes.txt":    "not a page",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "nested.html"), 0755); err != nil {
		t.Fatal(err)
	}

	sink := &memorySink{}
	p, err := NewPipeline(nil, config.DefaultProfiles()["platform_b"], sink, time.Second, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	stats, err := p.BuildSnapshots(context.Background(), dir, 2)
	if err != nil {
		t.Fatalf("BuildSnapshots: %v", err)
	}
	if stats.Records != 3 || stats.ListingLinks != 3 {
		t.Errorf("stats: %+v", stats)
	}

	got := sink.byID()
	var ids []string
	for id := range got {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	want := []string{"03-bare.html", "hos777", "hos888"}
	if len(ids) != len(want) {
		t.Fatalf("ids: got %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids: got %v, want %v", ids, want)
			break
		}
	}

	if r := got["hos777"]; r.Price == nil || *r.Price != 900_000_000 {
		t.Errorf("hos777 price: %v", r.Price)
	}
	if r := got["hos888"]; r.Bedrooms == nil || *r.Bedrooms != "2" {
		t.Errorf("hos888 bedrooms: %v", r.Bedrooms)
	}
}

func TestBuildSnapshotsMissingDir(t *testing.T) {
	p, err := NewPipeline(nil, config.DefaultProfiles()["platform_b"], &memorySink{}, time.Second, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.BuildSnapshots(context.Background(), filepath.Join(t.TempDir(), "absent"), 2); err == nil {
		t.Error("expected an error for a missing directory")
	}
}

func TestBuildCardSnapshots(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "results-1.html"), []byte(savedResultsHTML), 0644); err != nil {
		t.Fatal(err)
	}
	page2 := `<html><body><div class="listing-card-container">
<a href="/properti/cimahi/rumah-cimahi-77"><h2>Rumah Cimahi</h2></a>
<div class="price-label"><strong>Rp 2 Miliar</strong></div>
</div></body></html>`
	if err := os.WriteFile(filepath.Join(dir, "results-2.html"), []byte(page2), 0644); err != nil {
		t.Fatal(err)
	}

	sink := &memorySink{}
	p, err := NewPipeline(nil, config.DefaultProfiles()["platform_b"], sink, time.Second, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	stats, err := p.BuildCardSnapshots(context.Background(), dir, 2)
	if err != nil {
		t.Fatalf("BuildCardSnapshots: %v", err)
	}
	if stats.ListingLinks != 3 || stats.Records != 3 {
		t.Errorf("stats: %+v", stats)
	}

	got := sink.byID()
	for _, id := range []string{"rumah-dago-1a2b", "rumah-margonda-9z", "rumah-cimahi-77"} {
		if got[id] == nil {
			t.Errorf("missing record %s", id)
		}
	}
	if r := got["rumah-cimahi-77"]; r != nil && (r.Price == nil || *r.Price != 2_000_000_000) {
		t.Errorf("rumah-cimahi-77 price: %v", r.Price)
	}
}

func TestBuildCardSnapshotsNeedsCardSelectors(t *testing.T) {
	p, err := NewPipeline(nil, config.DefaultProfiles()["platform_a"], &memorySink{}, time.Second, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.BuildCardSnapshots(context.Background(), t.TempDir(), 1); err == nil {
		t.Error("expected an error for a profile without card selectors")
	}
}
