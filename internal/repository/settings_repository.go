package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/affiliate-dashboard/internal/model"
)

// SettingsRepo stores system settings as key/value rows.
type SettingsRepo struct{ db *sql.DB }

func NewSettingsRepo(db *sql.DB) *SettingsRepo { return &SettingsRepo{db: db} }

// Load returns the stored settings overlaid on the defaults.
func (r *SettingsRepo) Load(ctx context.Context) (model.Settings, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT setting_key, setting_value FROM system_settings")
	if err != nil {
		return model.DefaultSettings(), err
	}
	defer rows.Close()

	m := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return model.DefaultSettings(), err
		}
		m[k] = v
	}
	if err := rows.Err(); err != nil {
		return model.DefaultSettings(), err
	}
	return model.SettingsFromMap(m), nil
}

// Save upserts every setting in one transaction.
func (r *SettingsRepo) Save(ctx context.Context, s model.Settings) error {
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

	const upsert = `INSERT INTO system_settings (setting_key, setting_value) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE setting_value = VALUES(setting_value)`
	for _, k := range settingKeys {
		if _, err := tx.ExecContext(ctx, upsert, k, s.ToMap()[k]); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// settingKeys fixes the write order so statements are deterministic.
var settingKeys = []string{
	model.SettingRefreshSeconds,
	model.SettingDefaultPageSize,
	model.SettingMaxPageSize,
	model.SettingMinPasswordLen,
	model.SettingAffiliateExport,
	model.SettingSupportEmail,
}
