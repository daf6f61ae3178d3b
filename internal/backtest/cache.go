package backtest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/jsj9346/spock-backtest/pkg/types"
)

// snapshotCacheTTL bounds how long a point-in-time Snapshot lookup stays in
// Redis. Runs replaying the same (region, date range) repeatedly -- a
// parameter sweep over strategy params against one dataset -- hit cache
// instead of re-reading the column store each time.
const snapshotCacheTTL = 15 * time.Minute

// CachingDataProvider decorates a DataProvider with a Redis read-through
// cache for Snapshot lookups, the call the engine makes most: once per open
// position per day, plus once per exit check. Everything else passes
// through uncached, since Universe/Fundamentals/TradingDays are called at
// most once per day and OHLCVBatch already amortizes across the run.
type CachingDataProvider struct {
	inner DataProvider
	rdb   *redis.Client
	log   *logrus.Entry
}

// NewCachingDataProvider wraps inner with a Redis client. A nil or
// unreachable rdb degrades to a pass-through: caching is an optimization,
// never a correctness dependency, so cache errors are logged and the
// request falls through to inner.
func NewCachingDataProvider(inner DataProvider, rdb *redis.Client, log *logrus.Entry) *CachingDataProvider {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &CachingDataProvider{inner: inner, rdb: rdb, log: log.WithField("component", "cache")}
}

func snapshotCacheKey(ticker string, region types.Region, asOf time.Time) string {
	return fmt.Sprintf("backtest:snapshot:%s:%s:%s", region, ticker, asOf.Format("2006-01-02"))
}

// Snapshot checks Redis before delegating to inner, and populates the cache
// on a miss. A nil result (ticker not yet listed) is cached as an empty
// sentinel payload so repeated NoSnapshot outcomes don't keep re-querying.
func (c *CachingDataProvider) Snapshot(ticker string, region types.Region, asOf time.Time) (*types.Snapshot, error) {
	ctx := context.Background()
	key := snapshotCacheKey(ticker, region, asOf)

	if cached, err := c.get(ctx, key); err == nil && cached != nil {
		if len(cached) == 0 {
			return nil, nil
		}
		var snap types.Snapshot
		if err := json.Unmarshal(cached, &snap); err == nil {
			return &snap, nil
		}
	}

	snap, err := c.inner.Snapshot(ticker, region, asOf)
	if err != nil {
		return nil, err
	}

	payload := []byte{}
	if snap != nil {
		if encoded, err := json.Marshal(snap); err == nil {
			payload = encoded
		}
	}
	c.set(ctx, key, payload)

	return snap, nil
}

func (c *CachingDataProvider) get(ctx context.Context, key string) ([]byte, error) {
	if c.rdb == nil {
		return nil, redis.Nil
	}
	val, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (c *CachingDataProvider) set(ctx context.Context, key string, payload []byte) {
	if c.rdb == nil {
		return
	}
	if err := c.rdb.Set(ctx, key, payload, snapshotCacheTTL).Err(); err != nil {
		c.log.WithError(err).Debug("cache set failed, continuing uncached")
	}
}

func (c *CachingDataProvider) OHLCV(ticker string, region types.Region, start, end time.Time) ([]types.OHLCV, error) {
	return c.inner.OHLCV(ticker, region, start, end)
}

func (c *CachingDataProvider) OHLCVBatch(tickers []string, region types.Region, start, end time.Time) (map[string][]types.OHLCV, error) {
	return c.inner.OHLCVBatch(tickers, region, start, end)
}

func (c *CachingDataProvider) Universe(region types.Region, asOf time.Time, filters map[string]string) (map[string]bool, error) {
	return c.inner.Universe(region, asOf, filters)
}

func (c *CachingDataProvider) Sector(ticker string, region types.Region, asOf time.Time) (string, error) {
	return c.inner.Sector(ticker, region, asOf)
}

func (c *CachingDataProvider) Fundamentals(ticker string, region types.Region, asOf time.Time, fields []string) (types.Fundamentals, error) {
	return c.inner.Fundamentals(ticker, region, asOf, fields)
}

func (c *CachingDataProvider) TradingDays(region types.Region, start, end time.Time) ([]time.Time, error) {
	return c.inner.TradingDays(region, start, end)
}
