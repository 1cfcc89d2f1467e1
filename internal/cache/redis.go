// Package cache stores classification verdicts in Redis, keyed by a digest
// of the URL. Every failure is reported as ErrUnavailable so callers can treat
// it as a miss.
package cache

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/phishguard/gateway/internal/classify"
)

const (
	keyPrefix = "classify:v1:"
	healthKey = "__health_check__"
)

// ErrUnavailable wraps every transport or decoding failure.
var ErrUnavailable = errors.New("cache unavailable")

// Cache is a Redis-backed result cache. It has no opinion on lifetimes; the
// caller supplies them.
type Cache struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// New parses a redis:// URL and returns a Cache. No connection is made until
// the first command.
func New(redisURL string, logger *slog.Logger) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewWithClient(redis.NewClient(opts), logger), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(rdb *redis.Client, logger *slog.Logger) *Cache {
	return &Cache{rdb: rdb, logger: logger}
}

// Key returns the cache key for url. It depends on the URL only.
func Key(url string) string {
	sum := sha256.Sum256([]byte(url))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// Get returns the cached verdict for url, or (nil, nil) on a miss.
func (c *Cache) Get(ctx context.Context, url string) (*classify.Result, error) {
	raw, err := c.rdb.Get(ctx, Key(url)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get: %v", ErrUnavailable, err)
	}

	r, err := classify.DecodeResult(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: decode entry: %v", ErrUnavailable, err)
	}
	c.logger.Debug("cache hit", "url", url)
	return r, nil
}

// Set stores result under url's key for ttl.
func (c *Cache) Set(ctx context.Context, url string, result *classify.Result, ttl time.Duration) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("%w: encode entry: %v", ErrUnavailable, err)
	}
	if err := c.rdb.Set(ctx, Key(url), raw, ttl).Err(); err != nil {
		return fmt.Errorf("%w: set: %v", ErrUnavailable, err)
	}
	c.logger.Debug("cached result", "url", url, "ttl", ttl)
	return nil
}

// Health performs a single GET round-trip. A missing key is healthy.
func (c *Cache) Health(ctx context.Context) error {
	if err := c.rdb.Get(ctx, healthKey).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Stats is the server-side hit/miss accounting reported by Redis.
type Stats struct {
	Hits   int64
	Misses int64
}

// Stats reads keyspace hit and miss counters from INFO stats.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	info, err := c.rdb.Info(ctx, "stats").Result()
	if err != nil {
		return Stats{}, fmt.Errorf("%w: info: %v", ErrUnavailable, err)
	}
	return parseInfoStats(info), nil
}

// Close releases the connection pool.
func (c *Cache) Close() error {
	return c.rdb.Close()
}

func parseInfoStats(info string) Stats {
	var s Stats
	sc := bufio.NewScanner(strings.NewReader(info))
	for sc.Scan() {
		k, v, ok := strings.Cut(strings.TrimSpace(sc.Text()), ":")
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		switch k {
		case "keyspace_hits":
			s.Hits = n
		case "keyspace_misses":
			s.Misses = n
		}
	}
	return s
}
