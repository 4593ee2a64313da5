// Package cache provides an optional Redis-backed cache for assembled usage
// reports. Reports are deterministic reads over a convergent store, so a
// short TTL bounds staleness the same way the ingestion window already does.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReportCache caches marshalled report payloads keyed by business and period.
// A nil *ReportCache is a valid no-op cache, so callers never branch on
// whether caching is configured.
type ReportCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New creates a ReportCache over the given client with the given TTL.
func New(rdb *redis.Client, ttl time.Duration) *ReportCache {
	return &ReportCache{rdb: rdb, ttl: ttl}
}

func key(businessID int64, period string) string {
	return fmt.Sprintf("report:%d:%s", businessID, period)
}

// Get returns the cached payload for the key, if present.
func (c *ReportCache) Get(ctx context.Context, businessID int64, period string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	payload, err := c.rdb.Get(ctx, key(businessID, period)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		// Cache trouble must never fail a report request.
		slog.Warn("report cache read failed", "error", err)
		return nil, false
	}
	return payload, true
}

// Set stores the payload for the key with the configured TTL.
func (c *ReportCache) Set(ctx context.Context, businessID int64, period string, payload []byte) {
	if c == nil {
		return
	}
	if err := c.rdb.Set(ctx, key(businessID, period), payload, c.ttl).Err(); err != nil {
		slog.Warn("report cache write failed", "error", err)
	}
}
