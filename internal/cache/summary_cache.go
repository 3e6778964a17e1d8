// Package cache keeps the last successfully computed earnings summary per
// affiliate so the dashboard can still render when the database is down.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/affiliate-dashboard/internal/model"
)

// ErrMiss is returned when no summary is cached for a code.
var ErrMiss = errors.New("summary not cached")

// SummaryCache stores EarningsSummary values in Redis.  A nil client turns
// every call into a no-op miss.
type SummaryCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

// NewSummaryCache returns a cache writing keys "<prefix>:summary:<code>".
func NewSummaryCache(rdb *redis.Client, prefix string, ttl time.Duration) *SummaryCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SummaryCache{rdb: rdb, ttl: ttl, prefix: prefix}
}

func (c *SummaryCache) key(code string) string {
	return c.prefix + ":summary:" + model.NormalizeCoupon(code)
}

// Put stores s under its code.
func (c *SummaryCache) Put(ctx context.Context, s model.EarningsSummary) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.key(s.Code), b, c.ttl).Err()
}

// Get returns the cached summary for code or ErrMiss.
func (c *SummaryCache) Get(ctx context.Context, code string) (model.EarningsSummary, error) {
	if c == nil || c.rdb == nil {
		return model.EarningsSummary{}, ErrMiss
	}
	b, err := c.rdb.Get(ctx, c.key(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.EarningsSummary{}, ErrMiss
	}
	if err != nil {
		return model.EarningsSummary{}, err
	}
	var s model.EarningsSummary
	if err := json.Unmarshal(b, &s); err != nil {
		return model.EarningsSummary{}, err
	}
	return s, nil
}

// Invalidate drops the cached summary for code.
func (c *SummaryCache) Invalidate(ctx context.Context, code string) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Del(ctx, c.key(code)).Err()
}
