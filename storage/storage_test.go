package storage

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"property-scraper/models"
)

func int64Ptr(v int64) *int64 { return &v }
func strPtr(v string) *string { return &v }

func sampleRecord(id string) *models.ListingRecord {
	return &models.ListingRecord{
		ID:          id,
		Source:      "platform_b",
		URL:         "https://example.com/property/" + id,
		ScrapedAt:   time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Price:       int64Ptr(1500000000),
		Address:     strPtr("Jl. Melati 5, Bandung"),
		Description: "Rumah asri\ndekat sekolah",
		Bedrooms:    strPtr("3"),
		LandSizeSqm: int64Ptr(120),
		Specs:       models.SpecMap{"Kamar Tidur": "3", "Luas Tanah": "120 m²"},
	}
}

func TestJSONLWriterAppendsAcrossRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "listings.jsonl")

	for _, id := range []string{"a1", "b2"} {
		w, err := NewJSONLWriter(path)
		if err != nil {
			t.Fatalf("NewJSONLWriter: %v", err)
		}
		if err := w.Write(sampleRecord(id)); err != nil {
			t.Fatalf("Write: %v", err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var ids []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec models.ListingRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("line is not a JSON object: %v", err)
		}
		ids = append(ids, rec.ID)
	}
	if len(ids) != 2 || ids[0] != "a1" || ids[1] != "b2" {
		t.Errorf("ids: got %v, want [a1 b2]", ids)
	}
}

func TestJSONLWriterEncodesMissingAsNull(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listings.jsonl")
	w, err := NewJSONLWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Write(&models.ListingRecord{ID: "x", Specs: models.SpecMap{}}); err != nil {
		t.Fatal(err)
	}
	w.Close()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"price", "address", "latitude", "bedrooms", "land_size_sqm"} {
		v, present := obj[key]
		if !present || v != nil {
			t.Errorf("%s: got %v (present=%v), want null", key, v, present)
		}
	}
}

func TestCSVWriterHeaderOnlyOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listings.csv")

	for _, id := range []string{"a1", "b2"} {
		w, err := NewCSVWriter(path)
		if err != nil {
			t.Fatalf("NewCSVWriter: %v", err)
		}
		if err := w.Write(sampleRecord(id)); err != nil {
			t.Fatalf("Write: %v", err)
		}
		w.Close()
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}

	if len(rows) != 3 {
		t.Fatalf("rows: got %d, want 3 (header + 2)", len(rows))
	}
	if rows[0][0] != "id" || len(rows[0]) != len(csvHeader) {
		t.Errorf("unexpected header: %v", rows[0])
	}
	row := rows[1]
	if row[0] != "a1" || row[4] != "1500000000" || row[11] != "120" {
		t.Errorf("unexpected row: %v", row)
	}
	if row[7] != "" || row[12] != "" {
		t.Errorf("missing values should be empty cells: %v", row)
	}
	if row[13] != "Rumah asri\ndekat sekolah" {
		t.Errorf("description: got %q", row[13])
	}
	var specs map[string]string
	if err := json.Unmarshal([]byte(row[14]), &specs); err != nil || specs["Kamar Tidur"] != "3" {
		t.Errorf("specs column: %q (%v)", row[14], err)
	}
}

type recordingWriter struct {
	got    []string
	err    error
	closed bool
}

func (r *recordingWriter) Write(rec *models.ListingRecord) error {
	r.got = append(r.got, rec.ID)
	return r.err
}

func (r *recordingWriter) Close() error {
	r.closed = true
	return nil
}

func TestMultiWriterContinuesPastFailure(t *testing.T) {
	boom := errors.New("boom")
	failing := &recordingWriter{err: boom}
	ok := &recordingWriter{}
	m := NewMultiWriter(failing, nil, ok)

	err := m.Write(sampleRecord("a1"))
	if !errors.Is(err, boom) {
		t.Errorf("expected joined error to wrap boom, got %v", err)
	}
	if len(ok.got) != 1 {
		t.Error("second writer should still receive the record")
	}

	if err := m.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if !failing.closed || !ok.closed {
		t.Error("all writers should be closed")
	}
}

// TestPostgresWriterRoundTrip needs a reachable database; set
// PROPSCRAPE_TEST_DSN to run it.
func TestPostgresWriterRoundTrip(t *testing.T) {
	dsn := os.Getenv("PROPSCRAPE_TEST_DSN")
	if dsn == "" {
		t.Skip("PROPSCRAPE_TEST_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pw, err := NewPostgresWriter(ctx, dsn)
	if err != nil {
		t.Fatalf("NewPostgresWriter: %v", err)
	}
	defer pw.Close()

	rec := sampleRecord("pg-" + time.Now().Format("150405.000000"))
	rec.Source = "test_" + rec.ID
	if err := pw.Write(rec); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := pw.FetchSince(ctx, rec.Source, rec.ScrapedAt)
	if err != nil {
		t.Fatalf("FetchSince: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("rows: got %d, want 1", len(got))
	}
	if got[0].Latitude != nil || *got[0].Price != *rec.Price || got[0].Specs["Luas Tanah"] != "120 m²" {
		t.Errorf("round trip mismatch: %+v", got[0])
	}
}
