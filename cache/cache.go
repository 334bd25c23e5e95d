// Package cache keeps rendered pages in Redis so repeated runs over the same
// result window do not re-render every page.
package cache

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache provides Redis-backed storage for rendered page HTML.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to Redis at the given URL and returns a Cache.
// URL format: redis://localhost:6379/0
func New(redisURL string, ttl time.Duration) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("cache: invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: redis ping failed: %w", err)
	}

	return &Cache{client: client, ttl: ttl}, nil
}

// Get returns the cached HTML for pageURL, if present.
func (c *Cache) Get(ctx context.Context, pageURL string) (string, bool, error) {
	html, err := c.client.Get(ctx, buildKey(pageURL)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cache: get: %w", err)
	}
	return html, true, nil
}

// Set stores the HTML for pageURL with the configured TTL.
func (c *Cache) Set(ctx context.Context, pageURL, html string) error {
	if err := c.client.Set(ctx, buildKey(pageURL), html, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache: set: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

func buildKey(pageURL string) string {
	hash := sha256.Sum256([]byte(strings.TrimSpace(pageURL)))
	return fmt.Sprintf("propscrape:page:%x", hash[:12])
}
