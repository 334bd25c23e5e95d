package models

import "time"

// SpecMap maps a free-text spec label (e.g. "Kamar Tidur") to its raw value.
// It is built fresh for every listing and never merged across listings.
type SpecMap map[string]string

// ListingRecord is the canonical output unit: one per listing-detail page.
// Nullable fields are pointers; nil means the value was missing or
// unparseable. A record is not modified after the builder returns it.
type ListingRecord struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	URL       string    `json:"url"`
	ScrapedAt time.Time `json:"scraped_at"`

	Price           *int64   `json:"price"`
	Address         *string  `json:"address"`
	AddressLocality *string  `json:"address_locality"`
	Latitude        *float64 `json:"latitude"`
	Longitude       *float64 `json:"longitude"`
	Description     string   `json:"description"`

	// Dedicated spec fields are a normalized view over Specs.
	Bedrooms        *string `json:"bedrooms"`
	Bathrooms       *string `json:"bathrooms"`
	LandSizeSqm     *int64  `json:"land_size_sqm"`
	BuildingSizeSqm *int64  `json:"building_size_sqm"`

	Specs SpecMap `json:"specs"`
}

// InsightReport holds analytics computed over the emitted records.
type InsightReport struct {
	TotalListings      int
	ListingsBySource   map[string]int
	PricedListings     int
	AveragePrice       float64
	MinPrice           int64
	MaxPrice           int64
	MostExpensive      *ListingRecord
	AvgPricePerSqm     float64
	ListingsByLocality map[string]int
}
