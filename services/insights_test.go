package services

import (
	"bytes"
	"strings"
	"testing"

	"property-scraper/models"
	"property-scraper/utils"
)

func i64(v int64) *int64 { return &v }
func str(v string) *string { return &v }

func sampleRecords() []*models.ListingRecord {
	return []*models.ListingRecord{
		{Source: "platform_a", URL: "https://a.example/1", Price: i64(2_000_000_000), AddressLocality: str("Bandung"), LandSizeSqm: i64(200)},
		{Source: "platform_a", URL: "https://a.example/2", Price: i64(500_000_000), AddressLocality: str("Bandung"), LandSizeSqm: i64(100)},
		{Source: "platform_b", URL: "https://b.example/3", Price: i64(1_500_000_000), AddressLocality: str("Depok")},
		{Source: "platform_b", URL: "https://b.example/4", AddressLocality: str("Depok"), LandSizeSqm: i64(90)},
		{Source: "platform_b", URL: "https://b.example/5", Price: i64(0)},
	}
}

func TestInsightCounts(t *testing.T) {
	svc := NewInsightService(utils.NewLogger())
	r := svc.Generate(sampleRecords())
	if r.TotalListings != 5 {
		t.Errorf("TotalListings: got %d, want 5", r.TotalListings)
	}
	if r.ListingsBySource["platform_a"] != 2 || r.ListingsBySource["platform_b"] != 3 {
		t.Errorf("ListingsBySource: got %v", r.ListingsBySource)
	}
	if r.PricedListings != 3 {
		t.Errorf("PricedListings: got %d, want 3", r.PricedListings)
	}
}

func TestInsightPrices(t *testing.T) {
	svc := NewInsightService(utils.NewLogger())
	r := svc.Generate(sampleRecords())
	wantAvg := float64(4_000_000_000) / 3
	if diff := r.AveragePrice - wantAvg; diff > 0.01 || diff < -0.01 {
		t.Errorf("AveragePrice: got %.2f, want %.2f", r.AveragePrice, wantAvg)
	}
	if r.MinPrice != 500_000_000 {
		t.Errorf("MinPrice: got %d, want 500000000", r.MinPrice)
	}
	if r.MaxPrice != 2_000_000_000 {
		t.Errorf("MaxPrice: got %d, want 2000000000", r.MaxPrice)
	}
}

func TestInsightPricePerSqm(t *testing.T) {
	svc := NewInsightService(utils.NewLogger())
	r := svc.Generate(sampleRecords())
	// (10_000_000 + 5_000_000) / 2; listings without a price or land size are ignored.
	if r.AvgPricePerSqm != 7_500_000 {
		t.Errorf("AvgPricePerSqm: got %.2f, want 7500000", r.AvgPricePerSqm)
	}
}

func TestInsightMostExpensive(t *testing.T) {
	svc := NewInsightService(utils.NewLogger())
	r := svc.Generate(sampleRecords())
	if r.MostExpensive == nil {
		t.Fatal("MostExpensive should not be nil")
	}
	if r.MostExpensive.URL != "https://a.example/1" {
		t.Errorf("MostExpensive: got %q", r.MostExpensive.URL)
	}
}

func TestInsightLocalityGrouping(t *testing.T) {
	svc := NewInsightService(utils.NewLogger())
	r := svc.Generate(sampleRecords())
	if r.ListingsByLocality["Bandung"] != 2 {
		t.Errorf("Bandung count: got %d, want 2", r.ListingsByLocality["Bandung"])
	}
	if r.ListingsByLocality["Depok"] != 2 {
		t.Errorf("Depok count: got %d, want 2", r.ListingsByLocality["Depok"])
	}
}

func TestInsightEmptyInput(t *testing.T) {
	svc := NewInsightService(utils.NewLogger())
	r := svc.Generate(nil)
	if r.TotalListings != 0 || r.MostExpensive != nil {
		t.Errorf("expected empty report for empty input")
	}
}

func TestInsightCollector(t *testing.T) {
	c := NewInsightCollector(utils.NewLogger())
	for _, rec := range sampleRecords() {
		if err := c.Write(rec); err != nil {
			t.Fatal(err)
		}
	}
	if got := len(c.Records()); got != 5 {
		t.Errorf("Records: got %d, want 5", got)
	}
	if r := c.Report(); r.TotalListings != 5 {
		t.Errorf("Report.TotalListings: got %d, want 5", r.TotalListings)
	}
}

func TestInsightPrint(t *testing.T) {
	var buf bytes.Buffer
	svc := NewInsightService(utils.NewLogger())
	svc.out = &buf
	svc.Print(svc.Generate(sampleRecords()))

	out := buf.String()
	for _, want := range []string{"Rp 2.000.000.000", "Bandung", "platform_b"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q", want)
		}
	}
}

func TestGroupThousands(t *testing.T) {
	cases := map[int64]string{
		0:          "0",
		999:        "999",
		1000:       "1.000",
		1500000000: "1.500.000.000",
		-850000:    "-850.000",
	}
	for in, want := range cases {
		if got := groupThousands(in); got != want {
			t.Errorf("groupThousands(%d): got %q, want %q", in, got, want)
		}
	}
}
