package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"property-scraper/models"
)

// PostgresWriter appends records to the property_listings table. Rows are
// never updated or deleted; every run adds its own snapshot.
type PostgresWriter struct {
	db *sql.DB
}

// NewPostgresWriter opens a connection to PostgreSQL, runs schema migrations,
// and returns a ready-to-use PostgresWriter.
func NewPostgresWriter(ctx context.Context, dsn string) (*PostgresWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.PingContext(ctx); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, fmt.Errorf("postgres: ping: %w", ctx.Err())
		case <-time.After(2 * time.Second):
		}
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	pw := &PostgresWriter{db: db}
	if err := pw.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return pw, nil
}

func (pw *PostgresWriter) migrate(ctx context.Context) error {
	_, err := pw.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS property_listings (
			row_id            BIGSERIAL    PRIMARY KEY,
			listing_id        TEXT         NOT NULL,
			source            VARCHAR(50)  NOT NULL,
			url               TEXT         NOT NULL,
			scraped_at        TIMESTAMPTZ  NOT NULL,
			price             BIGINT,
			address           TEXT,
			address_locality  TEXT,
			latitude          DOUBLE PRECISION,
			longitude         DOUBLE PRECISION,
			description       TEXT         NOT NULL DEFAULT '',
			bedrooms          TEXT,
			bathrooms         TEXT,
			land_size_sqm     BIGINT,
			building_size_sqm BIGINT,
			specs             JSONB        NOT NULL DEFAULT '{}'::jsonb
		);

		CREATE INDEX IF NOT EXISTS idx_property_listings_listing ON property_listings(listing_id);
		CREATE INDEX IF NOT EXISTS idx_property_listings_source  ON property_listings(source);
		CREATE INDEX IF NOT EXISTS idx_property_listings_price   ON property_listings(price);
	`)
	return err
}

// Write inserts one row. Nil fields are stored as NULL.
func (pw *PostgresWriter) Write(rec *models.ListingRecord) error {
	specs, err := json.Marshal(rec.Specs)
	if err != nil {
		return fmt.Errorf("postgres: encode specs: %w", err)
	}
	if rec.Specs == nil {
		specs = []byte("{}")
	}

	_, err = pw.db.Exec(`
		INSERT INTO property_listings (
			listing_id, source, url, scraped_at, price, address, address_locality,
			latitude, longitude, description, bedrooms, bathrooms,
			land_size_sqm, building_size_sqm, specs
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15::jsonb)
	`,
		rec.ID, rec.Source, rec.URL, rec.ScrapedAt, rec.Price, rec.Address, rec.AddressLocality,
		rec.Latitude, rec.Longitude, rec.Description, rec.Bedrooms, rec.Bathrooms,
		rec.LandSizeSqm, rec.BuildingSizeSqm, string(specs),
	)
	if err != nil {
		return fmt.Errorf("postgres: insert %s: %w", rec.URL, err)
	}
	return nil
}

func (pw *PostgresWriter) Close() error {
	return pw.db.Close()
}

// FetchSince retrieves the rows of one source scraped at or after since.
// It is used by the insight service to report on what a run stored.
func (pw *PostgresWriter) FetchSince(ctx context.Context, source string, since time.Time) ([]*models.ListingRecord, error) {
	rows, err := pw.db.QueryContext(ctx, `
		SELECT listing_id, source, url, scraped_at, price, address, address_locality,
		       latitude, longitude, description, bedrooms, bathrooms,
		       land_size_sqm, building_size_sqm, specs
		FROM property_listings
		WHERE source = $1 AND scraped_at >= $2
		ORDER BY row_id
	`, source, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch: %w", err)
	}
	defer rows.Close()

	var records []*models.ListingRecord
	for rows.Next() {
		r := &models.ListingRecord{}
		var specs []byte
		if err := rows.Scan(
			&r.ID, &r.Source, &r.URL, &r.ScrapedAt, &r.Price, &r.Address, &r.AddressLocality,
			&r.Latitude, &r.Longitude, &r.Description, &r.Bedrooms, &r.Bathrooms,
			&r.LandSizeSqm, &r.BuildingSizeSqm, &specs,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan row: %w", err)
		}
		if err := json.Unmarshal(specs, &r.Specs); err != nil {
			return nil, fmt.Errorf("postgres: decode specs for %s: %w", r.URL, err)
		}
		r.ScrapedAt = r.ScrapedAt.UTC()
		records = append(records, r)
	}
	return records, rows.Err()
}
