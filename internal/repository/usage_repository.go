package repository

// This file covers coupon_usage: the paginated history shown on dashboards,
// admin bookkeeping (status changes, payouts) and the earnings aggregates.

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/affiliate-dashboard/internal/model"
)

const usageCols = "id, code, used_at, product_name, quantity, earnings, order_status, payout_date, created_at"

// Statuses that never count toward earnings totals.
const excludedStatuses = "('" + model.StatusCancelled + "','" + model.StatusRefunded + "')"

// UsageRepo encapsulates all queries against coupon_usage.
type UsageRepo struct {
	db *sql.DB
}

// NewUsageRepo constructs a UsageRepo with the provided DB handle.
func NewUsageRepo(db *sql.DB) *UsageRepo {
	return &UsageRepo{db: db}
}

// UsageUpdate carries admin changes to a single usage row.  ClearPayout
// resets payout_date to NULL and wins over PayoutDate.
type UsageUpdate struct {
	OrderStatus *string
	PayoutDate  *time.Time
	ClearPayout bool
}

func scanUsage(s rowScanner) (model.Usage, error) {
	var (
		u      model.Usage
		payout sql.NullTime
	)
	err := s.Scan(&u.ID, &u.Code, &u.UsedAt, &u.ProductName, &u.Quantity, &u.Earnings,
		&u.OrderStatus, &payout, &u.CreatedAt)
	if payout.Valid {
		t := payout.Time
		u.PayoutDate = &t
	}
	return u, err
}

func usageWhere(f model.UsageFilter) (string, []any) {
	where := []string{}
	args := []any{}
	if f.Code != "" {
		where = append(where, "code = ?")
		args = append(args, model.NormalizeCoupon(f.Code))
	}
	if f.From != nil {
		where = append(where, "used_at >= ?")
		args = append(args, f.From.Format(model.DateLayout))
	}
	if f.To != nil {
		where = append(where, "used_at <= ?")
		args = append(args, f.To.Format(model.DateLayout))
	}
	if f.Status != "" {
		where = append(where, "order_status = ?")
		args = append(args, strings.ToLower(f.Status))
	}
	if p := strings.TrimSpace(f.Product); p != "" {
		where = append(where, "LOWER(product_name) LIKE ?")
		args = append(args, "%"+strings.ToLower(p)+"%")
	}
	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}
	return cond, args
}

// List returns usage rows newest first plus the total count.  A zero Limit
// returns every matching row.
func (r *UsageRepo) List(ctx context.Context, f model.UsageFilter) ([]model.Usage, int64, error) {
	cond, args := usageWhere(f)

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM coupon_usage WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := "SELECT " + usageCols + " FROM coupon_usage WHERE " + cond + " ORDER BY used_at DESC, id DESC"
	if f.Limit > 0 {
		q += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []model.Usage{}
	for rows.Next() {
		u, err := scanUsage(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// GetByID fetches a single usage row.
func (r *UsageRepo) GetByID(ctx context.Context, id uint64) (model.Usage, error) {
	u, err := scanUsage(r.db.QueryRowContext(ctx, "SELECT "+usageCols+" FROM coupon_usage WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Usage{}, ErrUsageNotFound
	}
	return u, err
}

// Create inserts a usage row.  A code that does not reference an affiliate
// yields ErrAffiliateNotFound.
func (r *UsageRepo) Create(ctx context.Context, u *model.Usage) error {
	u.Code = model.NormalizeCoupon(u.Code)
	if u.OrderStatus == "" {
		u.OrderStatus = model.StatusPending
	}
	var payout any
	if u.PayoutDate != nil {
		payout = u.PayoutDate.Format(model.DateLayout)
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO coupon_usage (code, used_at, product_name, quantity, earnings, order_status, payout_date)
		 VALUES (?,?,?,?,?,?,?)`,
		u.Code, u.UsedAt.Format(model.DateLayout), u.ProductName, u.Quantity, u.Earnings.StringFixed(2),
		u.OrderStatus, payout)
	if err != nil {
		if isMySQLError(err, errNoReferenced) {
			return ErrAffiliateNotFound
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = uint64(id)
	return nil
}

// Update changes the status and/or payout date of one row.
func (r *UsageRepo) Update(ctx context.Context, id uint64, up UsageUpdate) error {
	sets := []string{}
	args := []any{}
	if up.OrderStatus != nil {
		sets = append(sets, "order_status = ?")
		args = append(args, strings.ToLower(*up.OrderStatus))
	}
	switch {
	case up.ClearPayout:
		sets = append(sets, "payout_date = NULL")
	case up.PayoutDate != nil:
		sets = append(sets, "payout_date = ?")
		args = append(args, up.PayoutDate.Format(model.DateLayout))
	}
	if len(sets) == 0 {
		_, err := r.GetByID(ctx, id)
		return err
	}
	args = append(args, id)
	res, err := r.db.ExecContext(ctx, "UPDATE coupon_usage SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// unchanged values also report zero rows
		_, err := r.GetByID(ctx, id)
		return err
	}
	return nil
}

// MarkPaid sets the payout date on every completed, unpaid row of code and
// returns how many rows were paid.
func (r *UsageRepo) MarkPaid(ctx context.Context, code string, payout time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE coupon_usage SET payout_date = ? WHERE code = ? AND order_status = ? AND payout_date IS NULL",
		payout.Format(model.DateLayout), model.NormalizeCoupon(code), model.StatusCompleted)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Summary aggregates the earnings of code.  Cancelled and refunded orders
// are excluded.  Monthly holds exactly months buckets starting at the month
// of since; months without usage are zero.
func (r *UsageRepo) Summary(ctx context.Context, code string, since time.Time, months int) (model.EarningsSummary, error) {
	code = model.NormalizeCoupon(code)
	s := model.EarningsSummary{Code: code, Monthly: []model.MonthlyEarnings{}}

	const totalsSQL = `SELECT COUNT(*),
		COALESCE(SUM(quantity), 0),
		COALESCE(SUM(earnings), 0),
		COALESCE(SUM(CASE WHEN payout_date IS NULL THEN earnings ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN payout_date IS NOT NULL THEN earnings ELSE 0 END), 0)
		FROM coupon_usage WHERE code = ? AND order_status NOT IN ` + excludedStatuses
	if err := r.db.QueryRowContext(ctx, totalsSQL, code).Scan(
		&s.UsageCount, &s.TotalQuantity, &s.TotalEarnings, &s.PendingEarnings, &s.PaidEarnings); err != nil {
		return model.EarningsSummary{}, err
	}

	const monthlySQL = `SELECT DATE_FORMAT(used_at, '%Y-%m') AS month,
		COALESCE(SUM(earnings), 0), COALESCE(SUM(quantity), 0), COUNT(*)
		FROM coupon_usage
		WHERE code = ? AND used_at >= ? AND order_status NOT IN ` + excludedStatuses + `
		GROUP BY month ORDER BY month`
	rows, err := r.db.QueryContext(ctx, monthlySQL, code, since.Format(model.DateLayout))
	if err != nil {
		return model.EarningsSummary{}, err
	}
	defer rows.Close()
	byMonth := make(map[string]model.MonthlyEarnings)
	for rows.Next() {
		var m model.MonthlyEarnings
		if err := rows.Scan(&m.Month, &m.Earnings, &m.Quantity, &m.Orders); err != nil {
			return model.EarningsSummary{}, err
		}
		byMonth[m.Month] = m
	}
	if err := rows.Err(); err != nil {
		return model.EarningsSummary{}, err
	}
	s.Monthly = fillMonths(since, months, byMonth)
	s.GeneratedAt = time.Now().UTC()
	return s, nil
}

// fillMonths lays out n consecutive "YYYY-MM" buckets from the month of
// since, taking totals from byMonth where present.
func fillMonths(since time.Time, n int, byMonth map[string]model.MonthlyEarnings) []model.MonthlyEarnings {
	if n < 0 {
		n = 0
	}
	out := make([]model.MonthlyEarnings, 0, n)
	first := time.Date(since.Year(), since.Month(), 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		label := first.AddDate(0, i, 0).Format("2006-01")
		m, ok := byMonth[label]
		if !ok {
			m = model.MonthlyEarnings{Month: label, Earnings: decimal.Zero}
		}
		out = append(out, m)
	}
	return out
}
