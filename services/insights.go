package services

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"property-scraper/models"
	"property-scraper/utils"
)

type InsightService struct {
	logger *utils.Logger
	out    io.Writer
}

func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger, out: os.Stdout}
}

func (s *InsightService) Generate(records []*models.ListingRecord) *models.InsightReport {
	report := &models.InsightReport{
		ListingsBySource:   make(map[string]int),
		ListingsByLocality: make(map[string]int),
	}

	if len(records) == 0 {
		return report
	}

	report.TotalListings = len(records)

	var total float64
	var perSqmTotal float64
	var perSqmCount int

	for _, r := range records {
		report.ListingsBySource[r.Source]++
		if r.AddressLocality != nil && *r.AddressLocality != "" {
			report.ListingsByLocality[*r.AddressLocality]++
		}

		if r.Price == nil || *r.Price <= 0 {
			continue
		}
		price := *r.Price
		if report.PricedListings == 0 || price < report.MinPrice {
			report.MinPrice = price
		}
		if report.PricedListings == 0 || price > report.MaxPrice {
			report.MaxPrice = price
			report.MostExpensive = r
		}
		report.PricedListings++
		total += float64(price)

		if r.LandSizeSqm != nil && *r.LandSizeSqm > 0 {
			perSqmTotal += float64(price) / float64(*r.LandSizeSqm)
			perSqmCount++
		}
	}

	if report.PricedListings > 0 {
		report.AveragePrice = round2(total / float64(report.PricedListings))
	}
	if perSqmCount > 0 {
		report.AvgPricePerSqm = round2(perSqmTotal / float64(perSqmCount))
	}

	return report
}

func (s *InsightService) Print(r *models.InsightReport) {
	w := s.out
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  📊 PROPERTY SCRAPE INSIGHTS\033[0m\n")
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	// Overview
	fmt.Fprintf(w, "\033[1;33m  Overview\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Total listings scraped : \033[1m%d\033[0m\n", r.TotalListings)
	for _, src := range sortedKeys(r.ListingsBySource) {
		fmt.Fprintf(w, "  %-22s : \033[1m%d\033[0m\n", src, r.ListingsBySource[src])
	}
	fmt.Fprintln(w)

	// Price Stats
	fmt.Fprintf(w, "\033[1;33m  Price Statistics\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if r.PricedListings > 0 {
		fmt.Fprintf(w, "  Priced listings : \033[1m%d\033[0m\n", r.PricedListings)
		fmt.Fprintf(w, "  Average price   : \033[1;32mRp %s\033[0m\n", groupThousands(int64(r.AveragePrice)))
		fmt.Fprintf(w, "  Minimum price   : \033[1;32mRp %s\033[0m\n", groupThousands(r.MinPrice))
		fmt.Fprintf(w, "  Maximum price   : \033[1;32mRp %s\033[0m\n", groupThousands(r.MaxPrice))
		if r.AvgPricePerSqm > 0 {
			fmt.Fprintf(w, "  Avg price / m² land : \033[1;32mRp %s\033[0m\n", groupThousands(int64(r.AvgPricePerSqm)))
		}
	} else {
		fmt.Fprintf(w, "  No price data available\n")
	}
	fmt.Fprintln(w)

	// Most Expensive
	if r.MostExpensive != nil {
		fmt.Fprintf(w, "\033[1;33m  Most Expensive Listing\033[0m\n")
		fmt.Fprintf(w, "  %s\n", thin)
		fmt.Fprintf(w, "  %s\n", truncate(r.MostExpensive.URL, 50))
		if r.MostExpensive.Address != nil {
			fmt.Fprintf(w, "  Address : %s\n", truncate(*r.MostExpensive.Address, 40))
		}
		fmt.Fprintf(w, "  Price   : \033[1;31mRp %s\033[0m\n", groupThousands(*r.MostExpensive.Price))
		fmt.Fprintln(w)
	}

	// Listings by Locality
	fmt.Fprintf(w, "\033[1;33m  Listings by Locality\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.ListingsByLocality) == 0 {
		fmt.Fprintf(w, "  No locality data\n")
	} else {
		type locCount struct {
			loc   string
			count int
		}
		var locs []locCount
		for loc, cnt := range r.ListingsByLocality {
			locs = append(locs, locCount{loc, cnt})
		}
		sort.Slice(locs, func(i, j int) bool {
			if locs[i].count != locs[j].count {
				return locs[i].count > locs[j].count
			}
			return locs[i].loc < locs[j].loc
		})
		for _, lc := range locs {
			bar := strings.Repeat("█", lc.count)
			fmt.Fprintf(w, "  %-30s %s (%d)\n", truncate(lc.loc, 28), bar, lc.count)
		}
	}

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
}

// InsightCollector is a sink that keeps every record it is given so a
// report can be generated once the run ends.
type InsightCollector struct {
	mu      sync.Mutex
	records []*models.ListingRecord
	svc     *InsightService
}

func NewInsightCollector(logger *utils.Logger) *InsightCollector {
	return &InsightCollector{svc: NewInsightService(logger)}
}

func (c *InsightCollector) Write(rec *models.ListingRecord) error {
	c.mu.Lock()
	c.records = append(c.records, rec)
	c.mu.Unlock()
	return nil
}

func (c *InsightCollector) Close() error { return nil }

// Records returns a copy of the collected records.
func (c *InsightCollector) Records() []*models.ListingRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*models.ListingRecord(nil), c.records...)
}

func (c *InsightCollector) Report() *models.InsightReport {
	return c.svc.Generate(c.Records())
}

func round2(f float64) float64 {
	return float64(int64(f*100+0.5)) / 100
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// groupThousands renders 1500000000 as 1.500.000.000.
func groupThousands(n int64) string {
	s := fmt.Sprintf("%d", n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(c)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
