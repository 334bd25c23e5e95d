package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"property-scraper/cache"
	"property-scraper/config"
	"property-scraper/scraper"
	"property-scraper/scraper/browser"
	"property-scraper/services"
	"property-scraper/storage"
	"property-scraper/utils"
)

func main() {
	logger := utils.NewLogger()
	cfg := config.Load()

	source := flag.String("source", cfg.Source, "source profile name")
	startURL := flag.String("start-url", cfg.StartURL, "first results page (defaults to the profile's start URL)")
	startPage := flag.Int("start-page", cfg.StartPage, "first results page to emit listings from")
	endPage := flag.Int("end-page", cfg.EndPage, "last results page to emit listings from (0 = no limit)")
	snapshots := flag.String("snapshots", "", "build records from saved pages in this directory instead of crawling")
	cards := flag.Bool("cards", false, "with -snapshots: the saved pages are results pages; build one record per listing card")
	flag.Parse()

	cfg.Source, cfg.StartURL = *source, *startURL
	cfg.StartPage, cfg.EndPage = *startPage, *endPage
	logger.SetDebug(cfg.Debug)

	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration: %v", err)
		os.Exit(2)
	}

	profiles, err := config.LoadProfiles(cfg.ProfilesPath)
	if err != nil {
		logger.Error("Failed to load source profiles: %v", err)
		os.Exit(2)
	}
	profile, ok := profiles[cfg.Source]
	if !ok {
		logger.Error("Unknown source profile %q", cfg.Source)
		os.Exit(2)
	}
	if cfg.StartURL == "" {
		cfg.StartURL = profile.StartURL
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("=== Property Scraping System starting ===")
	logger.Info("Config: source %s | pages %d-%s | rate %dms | output %s",
		profile.Name, cfg.StartPage, pageLabel(cfg.EndPage), cfg.RateLimitMs, cfg.OutputPath)

	runStarted := time.Now().UTC()

	sink, pgWriter, collector, err := openSinks(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to open output: %v", err)
		os.Exit(1)
	}
	defer sink.Close()

	var stats scraper.Stats
	if *snapshots != "" {
		pipeline, err := scraper.NewPipeline(nil, profile, sink, cfg.NavTimeout, logger)
		if err != nil {
			logger.Error("Failed to build pipeline: %v", err)
			os.Exit(1)
		}
		if *cards {
			stats, err = pipeline.BuildCardSnapshots(ctx, *snapshots, cfg.SnapshotWorkers)
		} else {
			stats, err = pipeline.BuildSnapshots(ctx, *snapshots, cfg.SnapshotWorkers)
		}
		if err != nil {
			logger.Error("Snapshot run failed: %v", err)
		}
	} else {
		fetcher, closeFetcher, err := openFetcher(cfg, logger)
		if err != nil {
			logger.Error("Failed to start browser: %v", err)
			os.Exit(1)
		}
		defer closeFetcher()

		pipeline, err := scraper.NewPipeline(fetcher, profile, sink, cfg.NavTimeout, logger)
		if err != nil {
			logger.Error("Failed to build pipeline: %v", err)
			os.Exit(1)
		}
		stats, err = pipeline.Run(ctx, scraper.CrawlParams{
			StartURL:  cfg.StartURL,
			StartPage: cfg.StartPage,
			EndPage:   cfg.EndPage,
		})
		if err != nil {
			logger.Warn("Crawl interrupted: %v", err)
		}
	}

	logger.Info("Run finished in %s: %d links, %d records, %d fetch failures, %d build failures, %d write failures",
		stats.Duration.Round(time.Second), stats.ListingLinks, stats.Records,
		stats.FetchFailures, stats.BuildFailures, stats.WriteFailures)

	insightSvc := services.NewInsightService(logger)
	report := collector.Report()
	if pgWriter != nil {
		dbRecords, err := pgWriter.FetchSince(context.Background(), profile.Name, runStarted)
		if err != nil {
			logger.Error("Failed to fetch records from DB for insights: %v", err)
		} else {
			report = insightSvc.Generate(dbRecords)
		}
	}
	insightSvc.Print(report)

	fmt.Printf("  Done. Records → %s\n\n", cfg.OutputPath)
}

// openSinks builds the JSON-lines writer plus the optional CSV and
// PostgreSQL writers, all fanned out through one MultiWriter.
func openSinks(ctx context.Context, cfg *config.Config, logger *utils.Logger) (*storage.MultiWriter, *storage.PostgresWriter, *services.InsightCollector, error) {
	jsonl, err := storage.NewJSONLWriter(cfg.OutputPath)
	if err != nil {
		return nil, nil, nil, err
	}
	writers := []storage.RecordWriter{jsonl}

	if cfg.CSVOutputPath != "" {
		csvWriter, err := storage.NewCSVWriter(cfg.CSVOutputPath)
		if err != nil {
			_ = jsonl.Close()
			return nil, nil, nil, err
		}
		writers = append(writers, csvWriter)
		logger.Info("CSV output enabled: %s", cfg.CSVOutputPath)
	}

	var pgWriter *storage.PostgresWriter
	if cfg.PostgresEnabled {
		pgWriter, err = storage.NewPostgresWriter(ctx, cfg.DSN())
		if err != nil {
			_ = storage.NewMultiWriter(writers...).Close()
			logger.Error("Make sure Docker is running: docker compose up -d")
			return nil, nil, nil, err
		}
		writers = append(writers, pgWriter)
		logger.Info("PostgreSQL output enabled (table: property_listings)")
	}

	collector := services.NewInsightCollector(logger)
	writers = append(writers, collector)

	return storage.NewMultiWriter(writers...), pgWriter, collector, nil
}

// openFetcher starts the browser and, when REDIS_URL is set, puts the page
// cache in front of it. A cache that cannot be reached is skipped.
func openFetcher(cfg *config.Config, logger *utils.Logger) (scraper.Fetcher, func(), error) {
	b, err := browser.New(browser.Options{
		ChromeBin:  cfg.ChromeBin,
		Headless:   cfg.Headless,
		UserAgent:  cfg.UserAgent,
		MinDelay:   time.Duration(cfg.RateLimitMs) * time.Millisecond,
		Settle:     cfg.Settle,
		MaxRetries: cfg.MaxRetries,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	if cfg.RedisURL == "" {
		return b, func() { _ = b.Close() }, nil
	}

	pageCache, err := cache.New(cfg.RedisURL, cfg.CacheTTL)
	if err != nil {
		logger.Warn("Page cache disabled: %v", err)
		return b, func() { _ = b.Close() }, nil
	}
	logger.Info("Page cache enabled (ttl %s)", cfg.CacheTTL)
	return cache.NewFetcher(b, pageCache, logger), func() {
		_ = pageCache.Close()
		_ = b.Close()
	}, nil
}

func pageLabel(end int) string {
	if end <= 0 {
		return "end"
	}
	return fmt.Sprintf("%d", end)
}
