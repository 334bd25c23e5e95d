package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Source       string
	StartURL     string
	StartPage    int
	EndPage      int
	ProfilesPath string

	OutputPath    string
	CSVOutputPath string

	PostgresEnabled  bool
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	RedisURL string
	CacheTTL time.Duration

	RateLimitMs     int
	MaxRetries      int
	NavTimeout      time.Duration
	Settle          time.Duration
	ChromeBin       string
	Headless        bool
	UserAgent       string
	SnapshotWorkers int

	Debug bool
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		Source:       getEnv("SOURCE", "platform_b"),
		StartURL:     getEnv("START_URL", ""),
		StartPage:    getEnvInt("START_PAGE", 1),
		EndPage:      getEnvInt("END_PAGE", 0),
		ProfilesPath: getEnv("PROFILES_PATH", ""),

		OutputPath:    getEnv("OUTPUT_PATH", "./output/listings.jsonl"),
		CSVOutputPath: getEnv("CSV_OUTPUT_PATH", ""),

		PostgresEnabled:  getEnvBool("POSTGRES_ENABLED", false),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "scraper"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "scraper123"),
		PostgresDB:       getEnv("POSTGRES_DB", "property_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisURL: getEnv("REDIS_URL", ""),
		CacheTTL: time.Duration(getEnvInt("CACHE_TTL_MINUTES", 720)) * time.Minute,

		RateLimitMs:     getEnvInt("RATE_LIMIT_MS", 3000),
		MaxRetries:      getEnvInt("MAX_RETRIES", 5),
		NavTimeout:      time.Duration(getEnvInt("NAV_TIMEOUT_MS", 60000)) * time.Millisecond,
		Settle:          time.Duration(getEnvInt("SETTLE_MS", 1500)) * time.Millisecond,
		ChromeBin:       getEnv("CHROME_BIN", ""),
		Headless:        getEnvBool("HEADLESS", true),
		UserAgent:       getEnv("USER_AGENT", ""),
		SnapshotWorkers: getEnvInt("SNAPSHOT_WORKERS", 4),

		Debug: getEnvBool("LOG_DEBUG", false),
	}
}

// Validate checks the crawl parameters before any page is fetched.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Source) == "" {
		errs = append(errs, errors.New("SOURCE is empty"))
	}
	if c.StartURL != "" {
		u, err := url.Parse(c.StartURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("START_URL %q is not an absolute URL", c.StartURL))
		}
	}
	if c.StartPage < 1 {
		errs = append(errs, fmt.Errorf("START_PAGE must be >= 1, got %d", c.StartPage))
	}
	if c.EndPage != 0 && c.EndPage < c.StartPage {
		errs = append(errs, fmt.Errorf("END_PAGE %d is before START_PAGE %d", c.EndPage, c.StartPage))
	}
	if c.OutputPath == "" {
		errs = append(errs, errors.New("OUTPUT_PATH is empty"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}
