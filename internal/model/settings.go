package model

import (
    "strconv"

    validation "github.com/go-ozzo/ozzo-validation/v4"
    "github.com/go-ozzo/ozzo-validation/v4/is"
)

// Keys of the `system_settings` table.
const (
    SettingRefreshSeconds  = "dashboard_refresh_seconds"
    SettingDefaultPageSize = "default_page_size"
    SettingMaxPageSize     = "max_page_size"
    SettingMinPasswordLen  = "min_password_length"
    SettingAffiliateExport = "affiliate_export_enabled"
    SettingSupportEmail    = "support_email"
)

// Settings is the typed view of the key/value settings table.  Missing or
// unparsable rows fall back to DefaultSettings.
type Settings struct {
    DashboardRefreshSeconds int    `json:"dashboard_refresh_seconds"`
    DefaultPageSize         int    `json:"default_page_size"`
    MaxPageSize             int    `json:"max_page_size"`
    MinPasswordLength       int    `json:"min_password_length"`
    AffiliateExportEnabled  bool   `json:"affiliate_export_enabled"`
    SupportEmail            string `json:"support_email"`
}

// DefaultSettings returns the values used before an administrator changes
// anything.  Dashboards poll every 30 seconds.
func DefaultSettings() Settings {
    return Settings{
        DashboardRefreshSeconds: 30,
        DefaultPageSize:         20,
        MaxPageSize:             100,
        MinPasswordLength:       8,
        AffiliateExportEnabled:  true,
        SupportEmail:            "",
    }
}

// Validate enforces the ranges accepted from the admin settings form.
func (s Settings) Validate() error {
    return validation.ValidateStruct(&s,
        validation.Field(&s.DashboardRefreshSeconds, validation.Required, validation.Min(5), validation.Max(3600)),
        validation.Field(&s.DefaultPageSize, validation.Required, validation.Min(1), validation.Max(s.MaxPageSize)),
        validation.Field(&s.MaxPageSize, validation.Required, validation.Min(1), validation.Max(500)),
        validation.Field(&s.MinPasswordLength, validation.Required, validation.Min(6), validation.Max(128)),
        validation.Field(&s.SupportEmail, is.EmailFormat),
    )
}

// SettingsFromMap overlays stored rows on top of the defaults.
func SettingsFromMap(m map[string]string) Settings {
    s := DefaultSettings()
    if n, ok := intSetting(m, SettingRefreshSeconds); ok {
        s.DashboardRefreshSeconds = n
    }
    if n, ok := intSetting(m, SettingDefaultPageSize); ok {
        s.DefaultPageSize = n
    }
    if n, ok := intSetting(m, SettingMaxPageSize); ok {
        s.MaxPageSize = n
    }
    if n, ok := intSetting(m, SettingMinPasswordLen); ok {
        s.MinPasswordLength = n
    }
    if v, ok := m[SettingAffiliateExport]; ok {
        if b, err := strconv.ParseBool(v); err == nil {
            s.AffiliateExportEnabled = b
        }
    }
    if v, ok := m[SettingSupportEmail]; ok {
        s.SupportEmail = v
    }
    return s
}

// ToMap flattens the settings into table rows.
func (s Settings) ToMap() map[string]string {
    return map[string]string{
        SettingRefreshSeconds:  strconv.Itoa(s.DashboardRefreshSeconds),
        SettingDefaultPageSize: strconv.Itoa(s.DefaultPageSize),
        SettingMaxPageSize:     strconv.Itoa(s.MaxPageSize),
        SettingMinPasswordLen:  strconv.Itoa(s.MinPasswordLength),
        SettingAffiliateExport: strconv.FormatBool(s.AffiliateExportEnabled),
        SettingSupportEmail:    s.SupportEmail,
    }
}

func intSetting(m map[string]string, key string) (int, bool) {
    v, ok := m[key]
    if !ok {
        return 0, false
    }
    n, err := strconv.Atoi(v)
    if err != nil || n <= 0 {
        return 0, false
    }
    return n, true
}
