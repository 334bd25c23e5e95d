package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"property-scraper/models"
)

var csvHeader = []string{
	"id", "source", "url", "scraped_at", "price", "address", "address_locality",
	"latitude", "longitude", "bedrooms", "bathrooms", "land_size_sqm",
	"building_size_sqm", "description", "specs",
}

// CSVWriter writes records as flat rows. Missing values become empty
// cells and the spec map is stored as a JSON object in the last column.
// It is safe for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSVWriter opens the CSV file at the given path in append mode. The
// header row is written only when the file is new or empty. Intermediate
// directories are created automatically.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("csv: open file %q: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: stat %q: %w", path, err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(csvHeader); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("csv: write header: %w", err)
		}
		w.Flush()
	}

	return &CSVWriter{file: f, writer: w}, nil
}

// Write appends one row and flushes it.
func (c *CSVWriter) Write(rec *models.ListingRecord) error {
	specs, err := json.Marshal(rec.Specs)
	if err != nil {
		return fmt.Errorf("csv: encode specs: %w", err)
	}

	row := []string{
		rec.ID,
		rec.Source,
		rec.URL,
		rec.ScrapedAt.Format(time.RFC3339),
		formatInt(rec.Price),
		formatString(rec.Address),
		formatString(rec.AddressLocality),
		formatFloat(rec.Latitude),
		formatFloat(rec.Longitude),
		formatString(rec.Bedrooms),
		formatString(rec.Bathrooms),
		formatInt(rec.LandSizeSqm),
		formatInt(rec.BuildingSizeSqm),
		rec.Description,
		string(specs),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.writer.Write(row); err != nil {
		return fmt.Errorf("csv: write row: %w", err)
	}
	c.writer.Flush()
	return c.writer.Error()
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writer.Flush()
	return c.file.Close()
}

func formatInt(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
