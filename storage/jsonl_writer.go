package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"property-scraper/models"
)

// JSONLWriter appends one JSON object per line. Existing content is never
// truncated, so successive runs accumulate in the same file.
type JSONLWriter struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// NewJSONLWriter opens (or creates) the file at path in append mode.
// Intermediate directories are created automatically.
func NewJSONLWriter(path string) (*JSONLWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("jsonl: create output dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("jsonl: open file %q: %w", path, err)
	}
	return &JSONLWriter{path: path, file: f}, nil
}

// Write serialises rec as a single line.
func (j *JSONLWriter) Write(rec *models.ListingRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("jsonl: encode %s: %w", rec.URL, err)
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := j.file.Write(line); err != nil {
		return fmt.Errorf("jsonl: write %q: %w", j.path, err)
	}
	return nil
}

func (j *JSONLWriter) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}
