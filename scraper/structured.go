package scraper

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"property-scraper/config"
)

// ErrMalformedPayload marks a structured-data payload that is present but
// not in the expected shape.
var ErrMalformedPayload = errors.New("malformed structured-data payload")

// structuredListing holds the fields read from a structured-data graph.
type structuredListing struct {
	Price       *int64
	Address     *string
	Locality    *string
	Latitude    *float64
	Longitude   *float64
	Description *string
}

// The payload is a schema.org graph: the first node describes the product,
// the second the place.
type ldDocument struct {
	Graph []json.RawMessage `json:"@graph"`
}

type ldProduct struct {
	Description *string `json:"description"`
	Offers      *struct {
		Price ldNumber `json:"price"`
	} `json:"offers"`
}

type ldPlace struct {
	Address *struct {
		StreetAddress   *string `json:"streetAddress"`
		AddressLocality *string `json:"addressLocality"`
	} `json:"address"`
	Geo *struct {
		Latitude  ldNumber `json:"latitude"`
		Longitude ldNumber `json:"longitude"`
	} `json:"geo"`
}

// ldNumber accepts a JSON number, a numeric string or null.
type ldNumber struct {
	value *float64
}

func (n *ldNumber) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}

	var f float64
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("number %q: %w", s, err)
		}
		f = v
	} else if err := json.Unmarshal(b, &f); err != nil {
		return err
	}

	n.value = &f
	return nil
}

// findStructuredPayload returns the text of the first element matched by
// cfg.Selector that contains cfg.Contains. ok is false when the profile has
// no structured-data source or the page embeds none.
func findStructuredPayload(page *Page, cfg config.StructuredDataConfig) (payload string, ok bool) {
	if cfg.Selector == "" {
		return "", false
	}
	page.Doc.Find(cfg.Selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.TrimSpace(s.Text())
		if text != "" && strings.Contains(text, cfg.Contains) {
			payload, ok = text, true
			return false
		}
		return true
	})
	return payload, ok
}

// parseStructuredPayload reads the listing fields from a structured-data
// payload. Any shape mismatch yields an error wrapping ErrMalformedPayload.
func parseStructuredPayload(raw string) (structuredListing, error) {
	var out structuredListing

	var doc ldDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return out, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if len(doc.Graph) < 2 {
		return out, fmt.Errorf("%w: @graph has %d nodes, want at least 2", ErrMalformedPayload, len(doc.Graph))
	}

	var product ldProduct
	if err := json.Unmarshal(doc.Graph[0], &product); err != nil {
		return out, fmt.Errorf("%w: product node: %v", ErrMalformedPayload, err)
	}
	var place ldPlace
	if err := json.Unmarshal(doc.Graph[1], &place); err != nil {
		return out, fmt.Errorf("%w: place node: %v", ErrMalformedPayload, err)
	}

	if product.Offers != nil && product.Offers.Price.value != nil {
		v := math.Trunc(*product.Offers.Price.value)
		if math.IsNaN(v) || v >= math.MaxInt64 || v < math.MinInt64 {
			return out, fmt.Errorf("%w: price %g out of range", ErrMalformedPayload, *product.Offers.Price.value)
		}
		p := int64(v)
		out.Price = &p
	}
	out.Description = product.Description
	if place.Address != nil {
		out.Address = place.Address.StreetAddress
		out.Locality = place.Address.AddressLocality
	}
	if place.Geo != nil {
		out.Latitude = place.Geo.Latitude.value
		out.Longitude = place.Geo.Longitude.value
	}
	return out, nil
}
