package mockdata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/affiliate-dashboard/internal/model"
)

var anchor = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func TestGeneratorIsDeterministic(t *testing.T) {
	a := New(42, anchor).Usage("glow10", 25, 90)
	b := New(42, anchor).Usage("glow10", 25, 90)
	assert.Equal(t, a, b)

	c := New(43, anchor).Usage("glow10", 25, 90)
	assert.NotEqual(t, a, c)
}

func TestAffiliatesHaveUniqueValidCodes(t *testing.T) {
	items := New(7, anchor).Affiliates(30)
	require.Len(t, items, 30)
	seen := map[string]bool{}
	for _, a := range items {
		assert.True(t, model.CouponPattern.MatchString(a.CouponCode), a.CouponCode)
		assert.False(t, seen[a.CouponCode], "duplicate %s", a.CouponCode)
		seen[a.CouponCode] = true
		assert.Equal(t, model.RoleAffiliate, a.Role)
	}
}

func TestUsageRowsAreConsistent(t *testing.T) {
	rows := New(1, anchor).Usage("glow10", 200, 120)
	require.Len(t, rows, 200)
	earliest := anchor.AddDate(0, 0, -120)
	for _, u := range rows {
		assert.Equal(t, "GLOW10", u.Code)
		assert.True(t, u.Earnings.IsPositive())
		assert.True(t, u.Earnings.Equal(u.Earnings.Round(2)), "earnings rounded to cents")
		assert.False(t, u.UsedAt.After(anchor))
		assert.True(t, u.UsedAt.After(earliest))
		assert.Contains(t, model.OrderStatuses, u.OrderStatus)
		if u.PayoutDate != nil {
			assert.Equal(t, model.StatusCompleted, u.OrderStatus)
			assert.Equal(t, 1, u.PayoutDate.Day())
			assert.True(t, u.PayoutDate.After(u.UsedAt))
		}
	}
}

func TestAffiliatesCappedAtDistinctCodes(t *testing.T) {
	items := New(3, anchor).Affiliates(10_000)
	assert.Len(t, items, len(prefixes)*90)
}
