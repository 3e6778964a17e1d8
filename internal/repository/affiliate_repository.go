package repository

// This file covers the affiliate_users table: lookups for both login flows,
// admin CRUD and password changes with their history rows.

import (
	"context"      // context carries deadlines from handlers into queries
	"database/sql" // sql provides generic database operations
	"errors"
	"strings"

	"github.com/iliyamo/affiliate-dashboard/internal/model"
)

const affiliateCols = `id, coupon_code, password_hash, email, role, payment_method, payment_details,
	notify_email, notify_payouts, view_all_usage, is_active, created_at, updated_at`

// AffiliateRepo encapsulates all queries against affiliate_users.
type AffiliateRepo struct {
	db *sql.DB // db is the underlying connection pool
}

// NewAffiliateRepo constructs an AffiliateRepo with the provided DB handle.
func NewAffiliateRepo(db *sql.DB) *AffiliateRepo {
	return &AffiliateRepo{db: db}
}

// DB exposes the pool for readiness checks.
func (r *AffiliateRepo) DB() *sql.DB { return r.db }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAffiliate(s rowScanner) (model.Affiliate, error) {
	var a model.Affiliate
	err := s.Scan(&a.ID, &a.CouponCode, &a.PasswordHash, &a.Email, &a.Role, &a.PaymentMethod,
		&a.PaymentDetails, &a.NotifyEmail, &a.NotifyPayouts, &a.ViewAllUsage, &a.IsActive,
		&a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (r *AffiliateRepo) getOne(ctx context.Context, where string, arg any) (model.Affiliate, error) {
	a, err := scanAffiliate(r.db.QueryRowContext(ctx,
		"SELECT "+affiliateCols+" FROM affiliate_users WHERE "+where+" LIMIT 1", arg))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Affiliate{}, ErrAffiliateNotFound
	}
	return a, err
}

// GetByCode fetches an affiliate by normalized coupon code.
func (r *AffiliateRepo) GetByCode(ctx context.Context, code string) (model.Affiliate, error) {
	return r.getOne(ctx, "coupon_code = ?", model.NormalizeCoupon(code))
}

// GetByEmail fetches the administrator account registered under an email.
// Only ADMIN rows are considered since affiliates may share addresses.
func (r *AffiliateRepo) GetByEmail(ctx context.Context, email string) (model.Affiliate, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	a, err := scanAffiliate(r.db.QueryRowContext(ctx,
		"SELECT "+affiliateCols+" FROM affiliate_users WHERE email = ? AND role = ? LIMIT 1",
		email, model.RoleAdmin))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Affiliate{}, ErrAffiliateNotFound
	}
	return a, err
}

// GetByID fetches an affiliate by primary key.
func (r *AffiliateRepo) GetByID(ctx context.Context, id uint64) (model.Affiliate, error) {
	return r.getOne(ctx, "id = ?", id)
}

// Create inserts a new affiliate.  passwordHash must already be hashed.  On
// success a.ID is populated.
func (r *AffiliateRepo) Create(ctx context.Context, a *model.Affiliate, passwordHash string) error {
	a.CouponCode = model.NormalizeCoupon(a.CouponCode)
	a.Email = strings.ToLower(strings.TrimSpace(a.Email))
	if a.Role == "" {
		a.Role = model.RoleAffiliate
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO affiliate_users
		   (coupon_code, password_hash, email, role, payment_method, payment_details, notify_email, notify_payouts, is_active)
		 VALUES (?,?,?,?,?,?,?,?,?)`,
		a.CouponCode, passwordHash, a.Email, a.Role, a.PaymentMethod, a.PaymentDetails,
		a.NotifyEmail, a.NotifyPayouts, a.IsActive)
	if err != nil {
		if isMySQLError(err, errDupEntry) {
			return ErrCouponExists
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = uint64(id)
	a.PasswordHash = passwordHash
	return nil
}

func affiliateWhere(f model.AffiliateFilter) (string, []any) {
	where := []string{}
	args := []any{}
	if q := strings.TrimSpace(f.Query); q != "" {
		where = append(where, "(coupon_code LIKE ? OR LOWER(email) LIKE ?)")
		args = append(args, "%"+strings.ToUpper(q)+"%", "%"+strings.ToLower(q)+"%")
	}
	if f.Role != "" {
		where = append(where, "role = ?")
		args = append(args, strings.ToUpper(f.Role))
	}
	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}
	return cond, args
}

// List returns one page of affiliates ordered by code plus the total count.
// A zero Limit returns every matching row (used by exports).
func (r *AffiliateRepo) List(ctx context.Context, f model.AffiliateFilter) ([]model.Affiliate, int64, error) {
	cond, args := affiliateWhere(f)

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM affiliate_users WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := "SELECT " + affiliateCols + " FROM affiliate_users WHERE " + cond + " ORDER BY coupon_code"
	if f.Limit > 0 {
		q += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []model.Affiliate{}
	for rows.Next() {
		a, err := scanAffiliate(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Update applies the non-nil fields of u to the affiliate with code.  It
// returns ErrAffiliateNotFound when no row matches.
func (r *AffiliateRepo) Update(ctx context.Context, code string, u model.AdminUpdate) error {
	sets := []string{}
	args := []any{}
	if u.Email != nil {
		sets = append(sets, "email = ?")
		args = append(args, strings.ToLower(strings.TrimSpace(*u.Email)))
	}
	if u.PaymentMethod != nil {
		sets = append(sets, "payment_method = ?")
		args = append(args, *u.PaymentMethod)
	}
	if u.PaymentDetails != nil {
		sets = append(sets, "payment_details = ?")
		args = append(args, *u.PaymentDetails)
	}
	if u.NotifyEmail != nil {
		sets = append(sets, "notify_email = ?")
		args = append(args, *u.NotifyEmail)
	}
	if u.NotifyPayouts != nil {
		sets = append(sets, "notify_payouts = ?")
		args = append(args, *u.NotifyPayouts)
	}
	if u.Role != nil {
		sets = append(sets, "role = ?")
		args = append(args, strings.ToUpper(*u.Role))
	}
	if u.IsActive != nil {
		sets = append(sets, "is_active = ?")
		args = append(args, *u.IsActive)
	}
	if len(sets) == 0 {
		// nothing to change; still report a missing row
		_, err := r.GetByCode(ctx, code)
		return err
	}
	args = append(args, model.NormalizeCoupon(code))
	res, err := r.db.ExecContext(ctx,
		"UPDATE affiliate_users SET "+strings.Join(sets, ", ")+" WHERE coupon_code = ?", args...)
	if err != nil {
		return err
	}
	return r.requireRow(ctx, res, code)
}

// requireRow turns a zero-row update into ErrAffiliateNotFound.  MySQL
// reports zero affected rows when values are unchanged, so the row's
// existence is confirmed before failing.
func (r *AffiliateRepo) requireRow(ctx context.Context, res sql.Result, code string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	_, err = r.GetByCode(ctx, code)
	return err
}

// SetViewAllUsage stores an administrator's default usage scope.
func (r *AffiliateRepo) SetViewAllUsage(ctx context.Context, id uint64, viewAll bool) error {
	_, err := r.db.ExecContext(ctx, "UPDATE affiliate_users SET view_all_usage = ? WHERE id = ?", viewAll, id)
	return err
}

// UpgradePasswordHash replaces a legacy plaintext value after a successful
// login.  It does not write history since the password itself is unchanged.
func (r *AffiliateRepo) UpgradePasswordHash(ctx context.Context, id uint64, hash string) error {
	_, err := r.db.ExecContext(ctx, "UPDATE affiliate_users SET password_hash = ? WHERE id = ?", hash, id)
	return err
}

// ChangePassword stores a new hash and records who changed it in a single
// transaction.
func (r *AffiliateRepo) ChangePassword(ctx context.Context, code, hash, actor string) error {
	code = model.NormalizeCoupon(code)
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, "UPDATE affiliate_users SET password_hash = ? WHERE coupon_code = ?", hash, code)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrAffiliateNotFound
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO password_change_history (coupon_code, changed_by) VALUES (?, ?)", code, actor); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// Delete removes an affiliate.  When usage rows exist the call fails with
// ErrConflict unless force is set, in which case usage and password history
// are removed in the same transaction.  Refresh tokens cascade.
func (r *AffiliateRepo) Delete(ctx context.Context, code string, force bool) error {
	code = model.NormalizeCoupon(code)
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var usageCount int64
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM coupon_usage WHERE code = ?", code).Scan(&usageCount); err != nil {
		return err
	}
	if usageCount > 0 && !force {
		return ErrConflict
	}
	if usageCount > 0 {
		if _, err := tx.ExecContext(ctx, "DELETE FROM coupon_usage WHERE code = ?", code); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM password_change_history WHERE coupon_code = ?", code); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM affiliate_users WHERE coupon_code = ?", code)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrAffiliateNotFound
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
