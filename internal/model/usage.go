package model

import (
    "time"

    "github.com/shopspring/decimal"
)

// Order statuses for coupon usage rows.
const (
    StatusPending   = "pending"
    StatusCompleted = "completed"
    StatusCancelled = "cancelled"
    StatusRefunded  = "refunded"
)

// OrderStatuses lists every accepted order status.
var OrderStatuses = []string{StatusPending, StatusCompleted, StatusCancelled, StatusRefunded}

// DateLayout is the wire and export format for calendar dates.
const DateLayout = "2006-01-02"

// Usage is one row of `coupon_usage`: a single order on which an affiliate's
// coupon was applied.  PayoutDate is nil until the earnings are paid.
type Usage struct {
    ID          uint64          `json:"id"`
    Code        string          `json:"code"`
    UsedAt      time.Time       `json:"used_at"`
    ProductName string          `json:"product_name"`
    Quantity    int             `json:"quantity"`
    Earnings    decimal.Decimal `json:"earnings"`
    OrderStatus string          `json:"order_status"`
    PayoutDate  *time.Time      `json:"payout_date"`
    CreatedAt   time.Time       `json:"created_at"`
}

// Paid reports whether a payout date has been recorded.
func (u Usage) Paid() bool { return u.PayoutDate != nil }

// UsageFilter selects usage rows.  An empty Code means every affiliate and
// is only reachable from admin routes.  From and To are inclusive dates.
type UsageFilter struct {
    Code    string
    From    *time.Time
    To      *time.Time
    Status  string
    Product string
    Limit   int
    Offset  int
}

// MonthlyEarnings is one bucket of the dashboard earnings chart.
type MonthlyEarnings struct {
    Month    string          `json:"month"` // YYYY-MM
    Earnings decimal.Decimal `json:"earnings"`
    Quantity int64           `json:"quantity"`
    Orders   int64           `json:"orders"`
}

// EarningsSummary aggregates usage for the dashboard header cards.
type EarningsSummary struct {
    Code            string            `json:"code"`
    TotalEarnings   decimal.Decimal   `json:"total_earnings"`
    PendingEarnings decimal.Decimal   `json:"pending_earnings"`
    PaidEarnings    decimal.Decimal   `json:"paid_earnings"`
    UsageCount      int64             `json:"usage_count"`
    TotalQuantity   int64             `json:"total_quantity"`
    Monthly         []MonthlyEarnings `json:"monthly"`
    GeneratedAt     time.Time         `json:"generated_at"`
}
