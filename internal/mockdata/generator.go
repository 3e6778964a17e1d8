// Package mockdata produces deterministic demo affiliates and coupon usage for
// development databases and tests.
package mockdata

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/affiliate-dashboard/internal/model"
)

var products = []struct {
	name  string
	price decimal.Decimal
}{
	{"Hydrating Serum", decimal.RequireFromString("34.00")},
	{"Vitamin C Cream", decimal.RequireFromString("28.50")},
	{"Night Repair Oil", decimal.RequireFromString("45.00")},
	{"Gentle Cleanser", decimal.RequireFromString("16.90")},
	{"SPF 50 Sunscreen", decimal.RequireFromString("22.00")},
	{"Starter Bundle", decimal.RequireFromString("79.00")},
}

var prefixes = []string{"GLOW", "SUN", "VIBE", "LUXE", "FRESH", "PURE", "BLOOM", "AURA"}

// Generator is a seeded source of demo data.  The same seed always yields the
// same rows.
type Generator struct {
	rng        *rand.Rand
	Commission decimal.Decimal // share of the sale price credited to the affiliate
	Now        time.Time
}

// New returns a generator with a 10% commission anchored at now.
func New(seed uint64, now time.Time) *Generator {
	return &Generator{
		rng:        rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		Commission: decimal.RequireFromString("0.10"),
		Now:        now.UTC(),
	}
}

// Affiliates returns n affiliates with unique coupon codes.  n is capped at
// the number of distinct codes the generator can form.
func (g *Generator) Affiliates(n int) []model.Affiliate {
	if limit := len(prefixes) * 90; n > limit {
		n = limit
	}
	out := make([]model.Affiliate, 0, n)
	seen := map[string]bool{}
	for len(out) < n {
		code := fmt.Sprintf("%s%02d", prefixes[g.rng.IntN(len(prefixes))], 10+g.rng.IntN(90))
		if seen[code] {
			continue
		}
		seen[code] = true
		method := model.PaymentMethods[g.rng.IntN(len(model.PaymentMethods))]
		out = append(out, model.Affiliate{
			CouponCode:     code,
			Email:          strings.ToLower(code) + "@example.com",
			Role:           model.RoleAffiliate,
			PaymentMethod:  method,
			PaymentDetails: fmt.Sprintf("%s account for %s", method, code),
			NotifyEmail:    true,
			NotifyPayouts:  g.rng.IntN(4) != 0,
			IsActive:       true,
			CreatedAt:      g.Now.AddDate(0, -g.rng.IntN(12), 0),
		})
	}
	return out
}

// Usage returns n usage rows for code spread over the last days days.
// Completed rows older than 30 days are marked paid on the first of the
// following month.
func (g *Generator) Usage(code string, n, days int) []model.Usage {
	if days < 1 {
		days = 1
	}
	out := make([]model.Usage, 0, n)
	today := time.Date(g.Now.Year(), g.Now.Month(), g.Now.Day(), 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		p := products[g.rng.IntN(len(products))]
		qty := 1 + g.rng.IntN(3)
		usedAt := today.AddDate(0, 0, -g.rng.IntN(days))
		status := g.status()
		u := model.Usage{
			Code:        model.NormalizeCoupon(code),
			UsedAt:      usedAt,
			ProductName: p.name,
			Quantity:    qty,
			Earnings:    p.price.Mul(decimal.NewFromInt(int64(qty))).Mul(g.Commission).Round(2),
			OrderStatus: status,
		}
		if status == model.StatusCompleted && today.Sub(usedAt) > 30*24*time.Hour {
			payout := time.Date(usedAt.Year(), usedAt.Month()+1, 1, 0, 0, 0, 0, time.UTC)
			u.PayoutDate = &payout
		}
		out = append(out, u)
	}
	return out
}

// status draws an order status: mostly completed, some pending, few returns.
func (g *Generator) status() string {
	switch r := g.rng.IntN(100); {
	case r < 70:
		return model.StatusCompleted
	case r < 90:
		return model.StatusPending
	case r < 96:
		return model.StatusCancelled
	default:
		return model.StatusRefunded
	}
}
