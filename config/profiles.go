package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"property-scraper/services"
)

// Spec strategy kinds.
const (
	// StrategyPairs reads one label and one value element per row.
	StrategyPairs = "pairs"
	// StrategyParts reads the non-empty text fragments of a row and keeps
	// rows that have exactly two.
	StrategyParts = "parts"
	// StrategyTable zips every label cell of a row with its value cell.
	StrategyTable = "table"
	// StrategyAttr labels each row by one of its attributes and uses the
	// row's whole text as the value.
	StrategyAttr = "attr"
)

// Next-page modes.
const (
	NextPageLink      = "link"
	NextPageIncrement = "increment"
)

// SpecStrategy describes one structural pattern for spec rows.
type SpecStrategy struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`

	// Rows selects row elements across the page. With Anchor set, rows are
	// instead the children of the anchored block that match Rows.
	Rows      string `yaml:"rows"`
	Anchor    string `yaml:"anchor"`
	AnchorTag string `yaml:"anchor_tag"`

	Label string `yaml:"label"`
	Value string `yaml:"value"`

	Parts    string `yaml:"parts"`
	Reversed bool   `yaml:"reversed"`

	LabelAttr string `yaml:"label_attr"`
}

// StructuredDataConfig locates an embedded structured-data payload.
type StructuredDataConfig struct {
	Selector string `yaml:"selector"`
	Contains string `yaml:"contains"`
}

// FieldSelectors lists candidate selectors per field, tried in order.
type FieldSelectors struct {
	Price       []string `yaml:"price"`
	Address     []string `yaml:"address"`
	Locality    []string `yaml:"locality"`
	Description []string `yaml:"description"`
}

// SpecLabels lists the spec labels promoted to dedicated record fields.
type SpecLabels struct {
	Bedrooms     []string `yaml:"bedrooms"`
	Bathrooms    []string `yaml:"bathrooms"`
	LandSize     []string `yaml:"land_size"`
	BuildingSize []string `yaml:"building_size"`
}

// CardConfig describes the listing cards of a saved results page, for
// building records without visiting each detail page.
type CardConfig struct {
	// Selectors are tried in order; the first that matches any card wins.
	Selectors      []string       `yaml:"selectors"`
	Link           string         `yaml:"link"`
	BaseURL        string         `yaml:"base_url"`
	Fields         FieldSelectors `yaml:"fields"`
	PriceFormat    string         `yaml:"price_format"`
	SpecStrategies []SpecStrategy `yaml:"spec_strategies"`
}

// SourceProfile is the static selector configuration for one source site.
type SourceProfile struct {
	Name          string `yaml:"name"`
	StartURL      string `yaml:"start_url"`
	ListingLinks  string `yaml:"listing_links"`
	ExcludeMarker string `yaml:"exclude_marker"`
	NextPage      string `yaml:"next_page"`
	NextPageMode  string `yaml:"next_page_mode"`
	PageParam     string `yaml:"page_param"`
	WaitFor       string `yaml:"wait_for"`

	StructuredData StructuredDataConfig `yaml:"structured_data"`
	Fields         FieldSelectors       `yaml:"fields"`
	PriceFormat    string               `yaml:"price_format"`
	SpecStrategies []SpecStrategy       `yaml:"spec_strategies"`
	Labels         SpecLabels           `yaml:"labels"`

	Cards CardConfig `yaml:"cards"`
}

type profilesFile struct {
	Profiles []*SourceProfile `yaml:"profiles"`
}

// Validate checks the profile for settings the extractor cannot work without
// and fills in defaults.
func (p *SourceProfile) Validate() error {
	var errs []error

	if p.Name == "" {
		errs = append(errs, errors.New("name is empty"))
	}
	if p.ListingLinks == "" {
		errs = append(errs, errors.New("listing_links is empty"))
	}
	if p.PageParam == "" {
		p.PageParam = "page"
	}
	if p.NextPageMode == "" {
		p.NextPageMode = NextPageLink
	}
	switch p.NextPageMode {
	case NextPageLink:
		if p.NextPage == "" {
			errs = append(errs, errors.New("next_page is required in link mode"))
		}
	case NextPageIncrement:
	default:
		errs = append(errs, fmt.Errorf("unknown next_page_mode %q", p.NextPageMode))
	}
	if _, err := services.PriceParserFor(p.PriceFormat); err != nil {
		errs = append(errs, err)
	}

	errs = append(errs, validateStrategies("spec strategy", p.SpecStrategies)...)

	if len(p.Cards.Selectors) > 0 {
		if p.Cards.Link == "" {
			errs = append(errs, errors.New("cards: link is empty"))
		}
		if _, err := services.PriceParserFor(p.Cards.PriceFormat); err != nil {
			errs = append(errs, fmt.Errorf("cards: %w", err))
		}
		errs = append(errs, validateStrategies("cards: spec strategy", p.Cards.SpecStrategies)...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("profile %q: %w", p.Name, errors.Join(errs...))
	}
	return nil
}

func validateStrategies(prefix string, strategies []SpecStrategy) []error {
	var errs []error
	for i := range strategies {
		s := &strategies[i]
		if s.Rows == "" {
			errs = append(errs, fmt.Errorf("%s %d: rows is empty", prefix, i))
		}
		if s.Anchor != "" && s.AnchorTag == "" {
			s.AnchorTag = "p"
		}
		switch s.Kind {
		case StrategyPairs, StrategyTable:
			if s.Label == "" || s.Value == "" {
				errs = append(errs, fmt.Errorf("%s %d: %s needs label and value", prefix, i, s.Kind))
			}
		case StrategyAttr:
			if s.LabelAttr == "" {
				errs = append(errs, fmt.Errorf("%s %d: attr needs label_attr", prefix, i))
			}
		case StrategyParts:
		default:
			errs = append(errs, fmt.Errorf("%s %d: unknown kind %q", prefix, i, s.Kind))
		}
	}
	return errs
}

// LoadProfiles returns the built-in profiles overlaid with those defined in
// the YAML file at path. An empty path yields the built-in profiles only.
func LoadProfiles(path string) (map[string]*SourceProfile, error) {
	profiles := DefaultProfiles()
	if path == "" {
		return profiles, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read profiles %q: %w", path, err)
	}

	var file profilesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("config: decode profiles %q: %w", path, err)
	}

	for _, p := range file.Profiles {
		if p == nil {
			continue
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		profiles[p.Name] = p
	}
	return profiles, nil
}

// DefaultProfiles returns the built-in profiles for the two supported
// marketplaces.
func DefaultProfiles() map[string]*SourceProfile {
	a := &SourceProfile{
		Name:         "platform_a",
		StartURL:     "https://www.platform-a.com/sale/houses/?page=1",
		ListingLinks: `div[class*="property-card"] a[title]`,
		NextPageMode: NextPageIncrement,
		PageParam:    "page",
		StructuredData: StructuredDataConfig{
			Selector: `script[type="application/ld+json"]`,
			Contains: "Product",
		},
		Fields: FieldSelectors{
			Price:       []string{"p.price-label", "p.sticky-bar-price"},
			Address:     []string{"p.property-address"},
			Description: []string{"div.property-description-text"},
		},
		PriceFormat: services.PriceFormatMultiplier,
		SpecStrategies: []SpecStrategy{
			{
				Name:      "spec-block",
				Kind:      StrategyPairs,
				Anchor:    "Kamar Tidur",
				AnchorTag: "p",
				Rows:      "div",
				Label:     "p:nth-child(1)",
				Value:     "p:nth-child(2)",
			},
			{
				Name:  "spec-item",
				Kind:  StrategyParts,
				Rows:  `div[class*="spec-item"]`,
				Parts: "span",
			},
		},
		Labels: indonesianLabels(),
	}

	b := &SourceProfile{
		Name:          "platform_b",
		StartURL:      "https://www.platform-b.com/sale/houses/bandung",
		ListingLinks:  "a:has(h2)",
		ExcludeMarker: "/projects/",
		NextPage:      "a.pagination-next",
		NextPageMode:  NextPageLink,
		PageParam:     "page",
		WaitFor:       "a h2",
		Fields: FieldSelectors{
			Price:       []string{"div.price-tag strong"},
			Address:     []string{"address.location-address"},
			Description: []string{"div.listing-description"},
		},
		PriceFormat: services.PriceFormatDigits,
		SpecStrategies: []SpecStrategy{
			{
				Name:     "overview",
				Kind:     StrategyParts,
				Rows:     "div.listing-overview > div",
				Reversed: true,
			},
			{
				Name:  "detail-table",
				Kind:  StrategyTable,
				Rows:  "div.listing-details table tr",
				Label: "td.table-header p",
				Value: "td.table-value p",
			},
		},
		Labels: indonesianLabels(),
		Cards: CardConfig{
			Selectors: []string{"div.listing-card-container", "div.cardSecondary"},
			Link:      `a[href*="/properti/"]`,
			BaseURL:   "https://www.platform-b.com",
			Fields: FieldSelectors{
				Price:       []string{".price-label strong", ".price__tag strong"},
				Address:     []string{"address"},
				Description: []string{"div.card-details > p"},
			},
			PriceFormat: services.PriceFormatMultiplier,
			SpecStrategies: []SpecStrategy{
				{
					Name:      "card-attributes",
					Kind:      StrategyAttr,
					Rows:      ".attribute-list > div > div",
					LabelAttr: "title",
				},
			},
		},
	}

	return map[string]*SourceProfile{a.Name: a, b.Name: b}
}

func indonesianLabels() SpecLabels {
	return SpecLabels{
		Bedrooms:     []string{"Kamar Tidur"},
		Bathrooms:    []string{"Kamar Mandi"},
		LandSize:     []string{"Luas Tanah"},
		BuildingSize: []string{"Luas Bangunan"},
	}
}
