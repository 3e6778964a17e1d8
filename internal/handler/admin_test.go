package handler

import (
    "errors"
    "net/http"
    "testing"
    "time"

    "github.com/DATA-DOG/go-sqlmock"
    "github.com/go-sql-driver/mysql"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/affiliate-dashboard/internal/model"
)

func TestCreateAffiliate(t *testing.T) {
    t.Run("created with defaults", func(t *testing.T) {
        f := newFixture(t)
        f.expectSettings(nil)
        f.mock.ExpectExec(q("INSERT INTO affiliate_users")).
            WithArgs("NEWBIE", sqlmock.AnyArg(), "newbie@example.com", model.RoleAffiliate, "", "",
                true, true, true).
            WillReturnResult(sqlmock.NewResult(42, 1))
        f.expectGetByCode(account{id: 42, code: "NEWBIE", email: "newbie@example.com", role: model.RoleAffiliate})

        rec := call(t, f.admin.CreateAffiliate, http.MethodPost, "/v1/admin/affiliates",
            `{"coupon_code":"newbie","password":"welcome123","email":"Newbie@example.com"}`, adminCaller)
        require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
        assert.Contains(t, rec.Body.String(), `"coupon_code":"NEWBIE"`)
    })

    t.Run("duplicate code", func(t *testing.T) {
        f := newFixture(t)
        f.expectSettings(nil)
        f.mock.ExpectExec(q("INSERT INTO affiliate_users")).
            WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

        rec := call(t, f.admin.CreateAffiliate, http.MethodPost, "/v1/admin/affiliates",
            `{"coupon_code":"GLOW10","password":"welcome123","email":"glow@example.com"}`, adminCaller)
        assert.Equal(t, http.StatusConflict, rec.Code)
    })

    t.Run("invalid fields", func(t *testing.T) {
        f := newFixture(t)
        f.expectSettings(nil)
        rec := call(t, f.admin.CreateAffiliate, http.MethodPost, "/v1/admin/affiliates",
            `{"coupon_code":"x","password":"short","email":"nope","role":"owner"}`, adminCaller)
        require.Equal(t, http.StatusBadRequest, rec.Code)

        var body struct {
            Fields map[string]string `json:"fields"`
        }
        decode(t, rec, &body)
        for _, field := range []string{"coupon_code", "password", "email", "role"} {
            assert.Contains(t, body.Fields, field)
        }
    })
}

func TestUpdateAffiliateGuardsOwnAccount(t *testing.T) {
    f := newFixture(t)
    for _, body := range []string{`{"role":"affiliate"}`, `{"is_active":false}`} {
        rec := call(t, f.admin.UpdateAffiliate, http.MethodPatch, "/", body, adminCaller, "code", "admin")
        assert.Equal(t, http.StatusForbidden, rec.Code, body)
    }
}

func TestDeactivationRevokesSessions(t *testing.T) {
    f := newFixture(t)
    f.mock.ExpectExec(q("UPDATE affiliate_users SET is_active = ? WHERE coupon_code = ?")).
        WithArgs(false, "GLOW10").WillReturnResult(sqlmock.NewResult(0, 1))
    f.expectGetByCode(account{id: 7, code: "GLOW10", role: model.RoleAffiliate, inactive: true})
    f.expectRevokeAll(7)

    rec := call(t, f.admin.UpdateAffiliate, http.MethodPatch, "/", `{"is_active":false}`, adminCaller, "code", "glow10")
    require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
    assert.Contains(t, rec.Body.String(), `"is_active":false`)
}

func TestDeleteAffiliate(t *testing.T) {
    t.Run("own account", func(t *testing.T) {
        f := newFixture(t)
        rec := call(t, f.admin.DeleteAffiliate, http.MethodDelete, "/", "", adminCaller, "code", "ADMIN")
        assert.Equal(t, http.StatusForbidden, rec.Code)
    })

    t.Run("usage without force", func(t *testing.T) {
        f := newFixture(t)
        f.mock.ExpectBegin()
        f.mock.ExpectQuery(q("SELECT COUNT(*) FROM coupon_usage WHERE code = ?")).
            WithArgs("GLOW10").WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(4))
        f.mock.ExpectRollback()

        rec := call(t, f.admin.DeleteAffiliate, http.MethodDelete, "/", "", adminCaller, "code", "glow10")
        assert.Equal(t, http.StatusConflict, rec.Code)
        assert.Contains(t, rec.Body.String(), "force=true")
    })

    t.Run("forced delete drops cached summary", func(t *testing.T) {
        f := newFixture(t)
        f.summaries.byCode["GLOW10"] = model.EarningsSummary{Code: "GLOW10"}
        f.mock.ExpectBegin()
        f.mock.ExpectQuery(q("SELECT COUNT(*) FROM coupon_usage WHERE code = ?")).
            WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(4))
        f.mock.ExpectExec(q("DELETE FROM coupon_usage WHERE code = ?")).WillReturnResult(sqlmock.NewResult(0, 4))
        f.mock.ExpectExec(q("DELETE FROM password_change_history WHERE coupon_code = ?")).WillReturnResult(sqlmock.NewResult(0, 1))
        f.mock.ExpectExec(q("DELETE FROM affiliate_users WHERE coupon_code = ?")).WillReturnResult(sqlmock.NewResult(0, 1))
        f.mock.ExpectCommit()

        rec := call(t, f.admin.DeleteAffiliate, http.MethodDelete, "/?force=true", "", adminCaller, "code", "GLOW10")
        assert.Equal(t, http.StatusNoContent, rec.Code)
        assert.NotContains(t, f.summaries.byCode, "GLOW10")
    })
}

func TestResetPassword(t *testing.T) {
    t.Run("generated password is returned and queued", func(t *testing.T) {
        f := newFixture(t)
        f.expectSettings(map[string]string{model.SettingSupportEmail: "help@example.com"})
        f.expectGetByCode(account{id: 7, code: "GLOW10", email: "glow@example.com", role: model.RoleAffiliate})
        f.expectPasswordChange("GLOW10", "ADMIN")
        f.expectRevokeAll(7)

        rec := call(t, f.admin.ResetPassword, http.MethodPost, "/", "", adminCaller, "code", "glow10")
        require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

        var resp resetPasswordResp
        decode(t, rec, &resp)
        assert.Len(t, resp.TemporaryPassword, tempPasswordLen)
        assert.True(t, resp.NotificationQueued)

        require.Len(t, f.publisher.events, 1)
        ev := f.publisher.events[0]
        assert.Equal(t, "glow@example.com", ev.Email)
        assert.Equal(t, "ADMIN", ev.ResetBy)
        assert.Equal(t, resp.TemporaryPassword, ev.TempPassword)
        assert.Equal(t, "help@example.com", ev.SupportEmail)
    })

    t.Run("chosen password survives a broker outage", func(t *testing.T) {
        f := newFixture(t)
        f.publisher.err = errors.New("broker down")
        f.expectSettings(nil)
        f.expectGetByCode(account{id: 7, code: "GLOW10", email: "glow@example.com", role: model.RoleAffiliate})
        f.expectPasswordChange("GLOW10", "ADMIN")
        f.expectRevokeAll(7)

        rec := call(t, f.admin.ResetPassword, http.MethodPost, "/", `{"new_password":"chosenpass1"}`,
            adminCaller, "code", "GLOW10")
        require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
        assert.NotContains(t, rec.Body.String(), "temporary_password")
        assert.Contains(t, rec.Body.String(), `"notification_queued":false`)
    })

    t.Run("chosen password too short", func(t *testing.T) {
        f := newFixture(t)
        f.expectSettings(nil)
        rec := call(t, f.admin.ResetPassword, http.MethodPost, "/", `{"new_password":"abc"}`,
            adminCaller, "code", "GLOW10")
        assert.Equal(t, http.StatusBadRequest, rec.Code)
        assert.Empty(t, f.publisher.events)
    })
}

func TestPasswordHistory(t *testing.T) {
    f := newFixture(t)
    f.expectGetByCode(account{id: 7, code: "GLOW10", role: model.RoleAffiliate})
    at := time.Date(2024, 6, 2, 9, 30, 0, 0, time.UTC)
    f.mock.ExpectQuery(q("FROM password_change_history")).
        WillReturnRows(sqlmock.NewRows([]string{"id", "coupon_code", "changed_by", "changed_at"}).
            AddRow(2, "GLOW10", "ADMIN", at).
            AddRow(1, "GLOW10", model.ActorSelf, at.Add(-time.Hour)))

    rec := call(t, f.admin.PasswordHistory, http.MethodGet, "/", "", adminCaller, "code", "glow10")
    require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

    var resp struct {
        Items []model.PasswordChange `json:"items"`
    }
    decode(t, rec, &resp)
    require.Len(t, resp.Items, 2)
    assert.Equal(t, "ADMIN", resp.Items[0].ChangedBy)
}

func TestListUsageScope(t *testing.T) {
    t.Run("saved preference picks personal", func(t *testing.T) {
        f := newFixture(t)
        f.expectGetByID(account{id: 1, code: "ADMIN", role: model.RoleAdmin, viewAll: false})
        f.expectSettings(nil)
        f.mock.ExpectQuery(q("SELECT COUNT(*) FROM coupon_usage WHERE code = ?")).
            WithArgs("ADMIN").WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))
        f.mock.ExpectQuery(q("ORDER BY used_at DESC")).WillReturnRows(sqlmock.NewRows(usageColumns))

        rec := call(t, f.admin.ListUsage, http.MethodGet, "/v1/admin/usage?code=GLOW10", "", adminCaller)
        require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
        assert.Contains(t, rec.Body.String(), `"scope":"personal"`)
        assert.Contains(t, rec.Body.String(), `"items":[]`)
    })

    t.Run("explicit all with code filter", func(t *testing.T) {
        f := newFixture(t)
        f.expectSettings(nil)
        f.mock.ExpectQuery(q("SELECT COUNT(*) FROM coupon_usage WHERE code = ?")).
            WithArgs("GLOW10").WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))
        f.mock.ExpectQuery(q("ORDER BY used_at DESC")).
            WillReturnRows(usageRow(sqlmock.NewRows(usageColumns), 11, "GLOW10", "Serum", "12.50", nil))

        rec := call(t, f.admin.ListUsage, http.MethodGet, "/v1/admin/usage?scope=all&code=glow10", "", adminCaller)
        require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
        assert.Contains(t, rec.Body.String(), `"scope":"all"`)
    })

    t.Run("unknown scope", func(t *testing.T) {
        f := newFixture(t)
        rec := call(t, f.admin.ListUsage, http.MethodGet, "/v1/admin/usage?scope=team", "", adminCaller)
        assert.Equal(t, http.StatusBadRequest, rec.Code)
    })
}

func TestUpdatePreferences(t *testing.T) {
    f := newFixture(t)
    rec := call(t, f.admin.UpdatePreferences, http.MethodPut, "/", `{}`, adminCaller)
    assert.Equal(t, http.StatusBadRequest, rec.Code)

    f.mock.ExpectExec(q("UPDATE affiliate_users SET view_all_usage = ? WHERE id = ?")).
        WithArgs(true, 1).WillReturnResult(sqlmock.NewResult(0, 1))
    rec = call(t, f.admin.UpdatePreferences, http.MethodPut, "/", `{"view_all_usage":true}`, adminCaller)
    assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateUsage(t *testing.T) {
    t.Run("negative earnings", func(t *testing.T) {
        f := newFixture(t)
        rec := call(t, f.admin.CreateUsage, http.MethodPost, "/",
            `{"code":"GLOW10","product_name":"Serum","quantity":1,"earnings":"-1.00"}`, adminCaller)
        assert.Equal(t, http.StatusBadRequest, rec.Code)
        assert.Contains(t, rec.Body.String(), "earnings")
    })

    t.Run("unknown affiliate", func(t *testing.T) {
        f := newFixture(t)
        f.mock.ExpectExec(q("INSERT INTO coupon_usage")).
            WillReturnError(&mysql.MySQLError{Number: 1452, Message: "foreign key"})
        rec := call(t, f.admin.CreateUsage, http.MethodPost, "/",
            `{"code":"ghost","used_at":"2024-05-14","product_name":"Serum","quantity":1,"earnings":"3.20"}`, adminCaller)
        assert.Equal(t, http.StatusNotFound, rec.Code)
    })

    t.Run("recorded", func(t *testing.T) {
        f := newFixture(t)
        f.mock.ExpectExec(q("INSERT INTO coupon_usage")).
            WithArgs("GLOW10", "2024-05-14", "Serum", 2, "3.20", model.StatusPending, nil).
            WillReturnResult(sqlmock.NewResult(11, 1))
        f.mock.ExpectQuery(q("FROM coupon_usage WHERE id = ?")).WithArgs(11).
            WillReturnRows(usageRow(sqlmock.NewRows(usageColumns), 11, "GLOW10", "Serum", "3.20", nil))
        rec := call(t, f.admin.CreateUsage, http.MethodPost, "/",
            `{"code":"glow10","used_at":"2024-05-14","product_name":" Serum ","quantity":2,"earnings":"3.199"}`, adminCaller)
        assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
    })
}

func TestUpdateUsage(t *testing.T) {
    t.Run("bad id", func(t *testing.T) {
        f := newFixture(t)
        rec := call(t, f.admin.UpdateUsage, http.MethodPatch, "/", `{}`, adminCaller, "id", "abc")
        assert.Equal(t, http.StatusBadRequest, rec.Code)
    })

    t.Run("unknown status", func(t *testing.T) {
        f := newFixture(t)
        rec := call(t, f.admin.UpdateUsage, http.MethodPatch, "/", `{"order_status":"lost"}`, adminCaller, "id", "11")
        assert.Equal(t, http.StatusBadRequest, rec.Code)
    })

    t.Run("empty payout date clears it", func(t *testing.T) {
        f := newFixture(t)
        f.mock.ExpectExec(q("UPDATE coupon_usage SET payout_date = NULL WHERE id = ?")).
            WithArgs(11).WillReturnResult(sqlmock.NewResult(0, 1))
        f.mock.ExpectQuery(q("FROM coupon_usage WHERE id = ?")).WithArgs(11).
            WillReturnRows(usageRow(sqlmock.NewRows(usageColumns), 11, "GLOW10", "Serum", "12.50", nil))

        rec := call(t, f.admin.UpdateUsage, http.MethodPatch, "/", `{"payout_date":""}`, adminCaller, "id", "11")
        require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
        assert.Contains(t, rec.Body.String(), `"payout_date":null`)
    })
}

func TestMarkPaid(t *testing.T) {
    f := newFixture(t)
    f.expectGetByCode(account{id: 7, code: "GLOW10", role: model.RoleAffiliate})
    f.mock.ExpectExec(q("UPDATE coupon_usage SET payout_date = ? WHERE code = ? AND order_status = ? AND payout_date IS NULL")).
        WithArgs("2024-06-30", "GLOW10", model.StatusCompleted).
        WillReturnResult(sqlmock.NewResult(0, 3))

    rec := call(t, f.admin.MarkPaid, http.MethodPost, "/", `{"code":"glow10","payout_date":"2024-06-30"}`, adminCaller)
    require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

    var resp struct {
        Code       string `json:"code"`
        PayoutDate string `json:"payout_date"`
        Paid       int64  `json:"paid"`
    }
    decode(t, rec, &resp)
    assert.Equal(t, "GLOW10", resp.Code)
    assert.Equal(t, "2024-06-30", resp.PayoutDate)
    assert.Equal(t, int64(3), resp.Paid)
}

func TestSettings(t *testing.T) {
    t.Run("defaults fill missing rows", func(t *testing.T) {
        f := newFixture(t)
        f.expectSettings(map[string]string{model.SettingMaxPageSize: "50"})
        rec := call(t, f.admin.GetSettings, http.MethodGet, "/", "", adminCaller)
        require.Equal(t, http.StatusOK, rec.Code)

        var s model.Settings
        decode(t, rec, &s)
        assert.Equal(t, 50, s.MaxPageSize)
        assert.Equal(t, 30, s.DashboardRefreshSeconds)
    })

    t.Run("out of range", func(t *testing.T) {
        f := newFixture(t)
        rec := call(t, f.admin.UpdateSettings, http.MethodPut, "/",
            `{"dashboard_refresh_seconds":1,"default_page_size":20,"max_page_size":100,"min_password_length":8}`, adminCaller)
        assert.Equal(t, http.StatusBadRequest, rec.Code)
        assert.Contains(t, rec.Body.String(), "dashboard_refresh_seconds")
    })

    t.Run("saved in one transaction", func(t *testing.T) {
        f := newFixture(t)
        f.mock.ExpectBegin()
        for i := 0; i < 6; i++ {
            f.mock.ExpectExec(q("INSERT INTO system_settings")).WillReturnResult(sqlmock.NewResult(0, 1))
        }
        f.mock.ExpectCommit()

        rec := call(t, f.admin.UpdateSettings, http.MethodPut, "/",
            `{"dashboard_refresh_seconds":60,"default_page_size":25,"max_page_size":100,"min_password_length":10,
              "affiliate_export_enabled":false,"support_email":" help@example.com "}`, adminCaller)
        require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
        assert.Contains(t, rec.Body.String(), `"support_email":"help@example.com"`)
    })
}

func TestExportAffiliatesOmitsHashes(t *testing.T) {
    f := newFixture(t)
    f.mock.ExpectQuery(q("SELECT COUNT(*) FROM affiliate_users WHERE 1=1")).
        WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))
    f.mock.ExpectQuery(q("ORDER BY coupon_code")).
        WillReturnRows(account{id: 7, code: "GLOW10", hash: "$2a$10$secret", email: "glow@example.com",
            role: model.RoleAffiliate}.rows())

    rec := call(t, f.admin.ExportAffiliates, http.MethodGet, "/?format=json", "", adminCaller)
    require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
    assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
    assert.Contains(t, rec.Body.String(), "GLOW10")
    assert.NotContains(t, rec.Body.String(), "$2a$10$secret")
}
