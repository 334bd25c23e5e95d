package scraper

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"property-scraper/config"
	"property-scraper/models"
	"property-scraper/services"
	"property-scraper/utils"
)

// Builder assembles ListingRecords for one source profile. It holds no
// per-page state, so a single Builder can serve concurrent pages.
type Builder struct {
	profile    *config.SourceProfile
	parsePrice func(string) *int64
	cardPrice  func(string) *int64
	logger     *utils.Logger
	now        func() time.Time
}

// NewBuilder creates a Builder for profile.
func NewBuilder(profile *config.SourceProfile, logger *utils.Logger) (*Builder, error) {
	parsePrice, err := services.PriceParserFor(profile.PriceFormat)
	if err != nil {
		return nil, fmt.Errorf("builder: %w", err)
	}
	cardPrice, err := services.PriceParserFor(profile.Cards.PriceFormat)
	if err != nil {
		return nil, fmt.Errorf("builder: cards: %w", err)
	}
	return &Builder{
		profile:    profile,
		parsePrice: parsePrice,
		cardPrice:  cardPrice,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// Build extracts a record from a listing-detail page. A page with a
// structured-data payload is read from that payload; otherwise each field is
// located in the markup. Specs and the fields derived from them always come
// from the markup. Build never fails: missing or malformed data leaves the
// affected fields nil.
func (b *Builder) Build(page *Page) *models.ListingRecord {
	rec := &models.ListingRecord{
		ID:        ListingID(page.URL),
		Source:    b.profile.Name,
		URL:       page.URL,
		ScrapedAt: b.now(),
	}

	if payload, ok := findStructuredPayload(page, b.profile.StructuredData); ok {
		b.applyStructured(rec, payload)
	} else {
		b.applyMarkup(rec, page)
	}

	rec.Specs = ExtractSpecs(page, b.profile.SpecStrategies)
	applySpecFields(rec, rec.Specs, b.profile.Labels)
	return rec
}

func (b *Builder) applyStructured(rec *models.ListingRecord, payload string) {
	data, err := parseStructuredPayload(payload)
	if err != nil {
		b.logger.Warn("[builder] %s: %v", rec.URL, err)
		return
	}

	rec.Price = data.Price
	rec.Address = data.Address
	rec.AddressLocality = data.Locality
	rec.Latitude = data.Latitude
	rec.Longitude = data.Longitude
	if data.Description != nil {
		rec.Description = strings.TrimSpace(*data.Description)
	}
}

func (b *Builder) applyMarkup(rec *models.ListingRecord, page *Page) {
	f := b.profile.Fields

	if text, ok := page.FirstText(f.Price); ok {
		rec.Price = b.parsePrice(text)
	}
	rec.Address = normalisedText(page, f.Address)
	rec.AddressLocality = normalisedText(page, f.Locality)
	rec.Description = strings.Join(page.TextFragments(f.Description), "\n")
}

// BuildCards builds one record per listing card of a results page. Card
// links are resolved against the profile's card base URL, or the page URL
// when none is set. Cards without a link are skipped.
func (b *Builder) BuildCards(page *Page) []*models.ListingRecord {
	cfg := b.profile.Cards

	base, err := url.Parse(page.URL)
	if cfg.BaseURL != "" {
		base, err = url.Parse(cfg.BaseURL)
	}
	if err != nil {
		b.logger.Warn("[builder] %s: card base URL: %v", page.URL, err)
		return nil
	}

	var cards *goquery.Selection
	for _, sel := range cfg.Selectors {
		cards = page.Doc.Find(sel)
		if cards.Length() > 0 {
			break
		}
	}
	if cards == nil || cards.Length() == 0 {
		return nil
	}

	var records []*models.ListingRecord
	cards.Each(func(_ int, card *goquery.Selection) {
		href, ok := card.Find(cfg.Link).First().Attr("href")
		href = strings.TrimSpace(href)
		if !ok || href == "" {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			b.logger.Warn("[builder] %s: card link %q: %v", page.URL, href, err)
			return
		}
		records = append(records, b.buildCard(card, base.ResolveReference(ref).String()))
	})
	return records
}

func (b *Builder) buildCard(card *goquery.Selection, listingURL string) *models.ListingRecord {
	f := b.profile.Cards.Fields
	rec := &models.ListingRecord{
		ID:        ListingID(listingURL),
		Source:    b.profile.Name,
		URL:       listingURL,
		ScrapedAt: b.now(),
	}

	if text, ok := firstText(card, f.Price); ok {
		rec.Price = b.cardPrice(text)
	}
	if text, ok := firstText(card, f.Address); ok {
		text = services.NormaliseText(text)
		rec.Address = &text
	}
	if text, ok := firstText(card, f.Locality); ok {
		text = services.NormaliseText(text)
		rec.AddressLocality = &text
	}
	rec.Description = strings.Join(textFragments(card, f.Description), "\n")

	rec.Specs = extractSpecs(card, b.profile.Cards.SpecStrategies)
	applySpecFields(rec, rec.Specs, b.profile.Labels)
	return rec
}

// applySpecFields fills the dedicated fields from the spec entries whose
// labels match exactly, so each one can be re-derived from Specs.
func applySpecFields(rec *models.ListingRecord, specs models.SpecMap, labels config.SpecLabels) {
	if v, ok := lookupSpec(specs, labels.Bedrooms); ok {
		rec.Bedrooms = services.ParseCount(v)
	}
	if v, ok := lookupSpec(specs, labels.Bathrooms); ok {
		rec.Bathrooms = services.ParseCount(v)
	}
	if v, ok := lookupSpec(specs, labels.LandSize); ok {
		rec.LandSizeSqm = services.ParseSizeSqm(v)
	}
	if v, ok := lookupSpec(specs, labels.BuildingSize); ok {
		rec.BuildingSizeSqm = services.ParseSizeSqm(v)
	}
}

func normalisedText(page *Page, selectors []string) *string {
	text, ok := page.FirstText(selectors)
	if !ok {
		return nil
	}
	text = services.NormaliseText(text)
	return &text
}

// ListingID is the last segment of the URL path, after trailing slashes are
// removed.
func ListingID(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.EscapedPath()
	}
	p = strings.TrimRight(p, "/")
	if i := strings.LastIndex(p, "/"); i >= 0 {
		p = p[i+1:]
	}
	return p
}
