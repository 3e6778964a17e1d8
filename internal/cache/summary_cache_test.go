package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/affiliate-dashboard/internal/model"
)

func TestWithoutRedisEverythingMisses(t *testing.T) {
	ctx := context.Background()
	c := NewSummaryCache(nil, "aff", time.Minute)

	assert.NoError(t, c.Put(ctx, model.EarningsSummary{Code: "GLOW10"}))
	_, err := c.Get(ctx, "GLOW10")
	assert.ErrorIs(t, err, ErrMiss)
	assert.NoError(t, c.Invalidate(ctx, "GLOW10"))

	var unset *SummaryCache
	_, err = unset.Get(ctx, "GLOW10")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestKeysAreNormalized(t *testing.T) {
	c := NewSummaryCache(nil, "aff", 0)
	assert.Equal(t, "aff:summary:GLOW10", c.key(" glow10 "))
	assert.Equal(t, 24*time.Hour, c.ttl)
}

func TestSummaryRoundTripThroughRedis(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	c := NewSummaryCache(rdb, "aff", time.Hour)

	generated := time.Date(2024, 5, 14, 9, 30, 0, 0, time.UTC)
	in := model.EarningsSummary{
		Code:            "GLOW10",
		TotalEarnings:   decimal.RequireFromString("42.50"),
		PendingEarnings: decimal.RequireFromString("12.50"),
		PaidEarnings:    decimal.NewFromInt(30),
		UsageCount:      4,
		TotalQuantity:   6,
		Monthly:         []model.MonthlyEarnings{{Month: "2024-05", Earnings: decimal.RequireFromString("42.50"), Quantity: 6, Orders: 4}},
		GeneratedAt:     generated,
	}
	require.NoError(t, c.Put(ctx, in))
	assert.True(t, mr.Exists("aff:summary:GLOW10"))
	assert.Equal(t, time.Hour, mr.TTL("aff:summary:GLOW10"))

	out, err := c.Get(ctx, "glow10")
	require.NoError(t, err)
	assert.Equal(t, "GLOW10", out.Code)
	assert.True(t, out.TotalEarnings.Equal(in.TotalEarnings))
	assert.True(t, out.PendingEarnings.Equal(in.PendingEarnings))
	assert.True(t, out.PaidEarnings.Equal(in.PaidEarnings))
	assert.Equal(t, int64(4), out.UsageCount)
	assert.Equal(t, int64(6), out.TotalQuantity)
	require.Len(t, out.Monthly, 1)
	assert.True(t, out.Monthly[0].Earnings.Equal(in.Monthly[0].Earnings))
	assert.True(t, generated.Equal(out.GeneratedAt))

	require.NoError(t, c.Invalidate(ctx, "GLOW10"))
	_, err = c.Get(ctx, "GLOW10")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestSummaryExpires(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	c := NewSummaryCache(rdb, "aff", time.Minute)

	require.NoError(t, c.Put(ctx, model.EarningsSummary{Code: "SUN20"}))
	mr.FastForward(2 * time.Minute)
	_, err := c.Get(ctx, "SUN20")
	assert.ErrorIs(t, err, ErrMiss)
}
