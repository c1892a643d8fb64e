// Package redis caches ingest cursors and publishes the paper-trade
// leaderboard over pub/sub, wrapped by the circuit breaker already in this
// package. SQLite remains the system of record; Redis only accelerates
// cursor lookups and fans out read-only snapshots — its failure never
// blocks a write path, which is why every call here goes through the
// breaker rather than being awaited directly by ingest/paper-runner logic.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

// Cache wraps a redis client with a circuit breaker, grounded on the
// teacher's pattern of never letting a non-essential cache dependency stall
// the primary write path.
type Cache struct {
	client *redis.Client
	cb     *CircuitBreaker
}

// New dials a redis client at addr, optionally authenticating with password.
func New(addr, password string) *Cache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
	return &Cache{
		client: client,
		cb:     NewCircuitBreaker(5, 10*time.Second),
	}
}

// Close releases the underlying connection pool.
func (c *Cache) Close() error { return c.client.Close() }

func cursorKey(symbol string, tfMin int) string {
	return fmt.Sprintf("cursor:%s:%d", symbol, tfMin)
}

// SetCursor records the last-processed candle timestamp for (symbol, tf) as
// a fast-path hint for the ingest continuous loop; SQLite's MAX(ts) query
// remains authoritative if this is unavailable.
func (c *Cache) SetCursor(ctx context.Context, symbol string, tfMin int, ts time.Time) error {
	return c.cb.Execute(func() error {
		return c.client.Set(ctx, cursorKey(symbol, tfMin), ts.Unix(), 0).Err()
	})
}

// GetCursor returns the cached cursor, or ok=false on a cache miss or when
// the breaker is open.
func (c *Cache) GetCursor(ctx context.Context, symbol string, tfMin int) (time.Time, bool) {
	var unix int64
	err := c.cb.Execute(func() error {
		v, err := c.client.Get(ctx, cursorKey(symbol, tfMin)).Int64()
		if err != nil {
			return err
		}
		unix = v
		return nil
	})
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(unix, 0).UTC(), true
}

// LeaderboardEntry is one row of the paper-trade leaderboard snapshot.
type LeaderboardEntry struct {
	ConfigID string  `json:"config_id"`
	Rank     int     `json:"rank"`
	Equity   float64 `json:"equity"`
	DDPct    float64 `json:"dd_pct"`
}

const leaderboardChannel = "paper:leaderboard"

// PublishLeaderboard fans out the top-5-by-equity snapshot the paper runner
// logs once per minute, for any external subscriber (e.g. the dashboard).
// Failures are logged and swallowed — a missed publish never blocks the
// poll loop.
func (c *Cache) PublishLeaderboard(ctx context.Context, entries []LeaderboardEntry) {
	err := c.cb.Execute(func() error {
		data, err := json.Marshal(entries)
		if err != nil {
			return err
		}
		return c.client.Publish(ctx, leaderboardChannel, data).Err()
	})
	if err != nil {
		log.Printf("[redis] leaderboard publish failed: %v", err)
	}
}
