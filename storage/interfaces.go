package storage

import (
	"errors"

	"property-scraper/models"
)

// RecordWriter is the interface any storage backend must satisfy.
// Write is called once per record and must be safe for concurrent use.
type RecordWriter interface {
	Write(rec *models.ListingRecord) error
	Close() error
}

// MultiWriter fans each record out to every writer. A failing writer does
// not stop the others; their errors are joined.
type MultiWriter struct {
	writers []RecordWriter
}

// NewMultiWriter returns a MultiWriter over the given writers. Nil entries
// are skipped.
func NewMultiWriter(writers ...RecordWriter) *MultiWriter {
	m := &MultiWriter{}
	for _, w := range writers {
		if w != nil {
			m.writers = append(m.writers, w)
		}
	}
	return m
}

func (m *MultiWriter) Write(rec *models.ListingRecord) error {
	var errs []error
	for _, w := range m.writers {
		if err := w.Write(rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiWriter) Close() error {
	var errs []error
	for _, w := range m.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
