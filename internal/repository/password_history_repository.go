package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/affiliate-dashboard/internal/model"
)

// PasswordHistoryRepo reads password_change_history.  Rows are written by
// AffiliateRepo.ChangePassword inside the same transaction as the change.
type PasswordHistoryRepo struct{ db *sql.DB }

func NewPasswordHistoryRepo(db *sql.DB) *PasswordHistoryRepo { return &PasswordHistoryRepo{db: db} }

// ListByCode returns the most recent changes for code, newest first.
func (r *PasswordHistoryRepo) ListByCode(ctx context.Context, code string, limit int) ([]model.PasswordChange, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, coupon_code, changed_by, changed_at FROM password_change_history
		 WHERE coupon_code = ? ORDER BY changed_at DESC, id DESC LIMIT ?`,
		model.NormalizeCoupon(code), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.PasswordChange{}
	for rows.Next() {
		var p model.PasswordChange
		if err := rows.Scan(&p.ID, &p.CouponCode, &p.ChangedBy, &p.ChangedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
