package handler

import (
    "context"
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "regexp"
    "strings"
    "sync"
    "testing"
    "time"

    "github.com/DATA-DOG/go-sqlmock"
    "github.com/labstack/echo/v4"
    "github.com/stretchr/testify/require"
    "golang.org/x/crypto/bcrypt"

    "github.com/iliyamo/affiliate-dashboard/internal/cache"
    "github.com/iliyamo/affiliate-dashboard/internal/config"
    "github.com/iliyamo/affiliate-dashboard/internal/middleware"
    "github.com/iliyamo/affiliate-dashboard/internal/model"
    "github.com/iliyamo/affiliate-dashboard/internal/queue"
    "github.com/iliyamo/affiliate-dashboard/internal/repository"
    "github.com/iliyamo/affiliate-dashboard/internal/utils"
)

var affiliateColumns = []string{"id", "coupon_code", "password_hash", "email", "role", "payment_method",
    "payment_details", "notify_email", "notify_payouts", "view_all_usage", "is_active", "created_at", "updated_at"}

var usageColumns = []string{"id", "code", "used_at", "product_name", "quantity", "earnings",
    "order_status", "payout_date", "created_at"}

// account is a row returned for affiliate_users lookups.
type account struct {
    id       uint64
    code     string
    hash     string
    email    string
    role     string
    viewAll  bool
    inactive bool
}

func (a account) rows() *sqlmock.Rows {
    now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
    return sqlmock.NewRows(affiliateColumns).AddRow(a.id, a.code, a.hash, a.email, a.role, "paypal", "pp@example.com",
        true, true, a.viewAll, !a.inactive, now, now)
}

type caller struct {
    id   uint64
    code string
    role string
}

var (
    affiliateCaller = &caller{id: 7, code: "GLOW10", role: model.RoleAffiliate}
    adminCaller     = &caller{id: 1, code: "ADMIN", role: model.RoleAdmin}
)

type fakePublisher struct {
    mu     sync.Mutex
    events []queue.PasswordResetEvent
    err    error
}

func (p *fakePublisher) PublishPasswordReset(_ context.Context, ev queue.PasswordResetEvent) error {
    p.mu.Lock()
    defer p.mu.Unlock()
    if p.err != nil {
        return p.err
    }
    p.events = append(p.events, ev)
    return nil
}

// memorySummaries is an in-process SummaryStore.  Like the Redis client it
// refuses to work on a context that is already done.
type memorySummaries struct {
    byCode map[string]model.EarningsSummary
}

func (m *memorySummaries) Put(ctx context.Context, s model.EarningsSummary) error {
    if err := ctx.Err(); err != nil {
        return err
    }
    m.byCode[s.Code] = s
    return nil
}

func (m *memorySummaries) Get(ctx context.Context, code string) (model.EarningsSummary, error) {
    if err := ctx.Err(); err != nil {
        return model.EarningsSummary{}, err
    }
    s, ok := m.byCode[code]
    if !ok {
        return model.EarningsSummary{}, cache.ErrMiss
    }
    return s, nil
}

func (m *memorySummaries) Invalidate(_ context.Context, code string) error {
    delete(m.byCode, code)
    return nil
}

type fixture struct {
    mock      sqlmock.Sqlmock
    cfg       config.Config
    auth      *AuthHandler
    aff       *AffiliateHandler
    admin     *AdminHandler
    publisher *fakePublisher
    summaries *memorySummaries
}

func newFixture(t *testing.T) *fixture {
    t.Helper()
    db, mock, err := sqlmock.New()
    require.NoError(t, err)
    t.Cleanup(func() {
        require.NoError(t, mock.ExpectationsWereMet())
        db.Close()
    })

    cfg := config.Config{JWTSecret: "test-secret", AccessTTLMin: 15, RefreshTTLDays: 7, BcryptCost: bcrypt.MinCost}
    affiliates := repository.NewAffiliateRepo(db)
    usage := repository.NewUsageRepo(db)
    settings := repository.NewSettingsRepo(db)
    tokens := repository.NewTokenRepo(db)
    summaries := &memorySummaries{byCode: map[string]model.EarningsSummary{}}
    pub := &fakePublisher{}

    return &fixture{
        mock:      mock,
        cfg:       cfg,
        auth:      NewAuthHandler(cfg, affiliates, tokens),
        publisher: pub,
        summaries: summaries,
        aff: &AffiliateHandler{
            Affiliates: affiliates, Usage: usage, Settings: settings, Tokens: tokens,
            Summaries: summaries, BcryptCost: bcrypt.MinCost,
        },
        admin: &AdminHandler{
            Affiliates: affiliates, Usage: usage, History: repository.NewPasswordHistoryRepo(db),
            Settings: settings, Tokens: tokens, Summaries: summaries, Publisher: pub,
            BcryptCost: bcrypt.MinCost,
        },
    }
}

// call runs h against a request built from method, target and an optional
// JSON body.  params are path parameter name/value pairs.
func call(t *testing.T, h echo.HandlerFunc, method, target, body string, who *caller, params ...string) *httptest.ResponseRecorder {
    t.Helper()
    var req *http.Request
    if body != "" {
        req = httptest.NewRequest(method, target, strings.NewReader(body))
        req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
    } else {
        req = httptest.NewRequest(method, target, nil)
    }
    rec := httptest.NewRecorder()
    c := echo.New().NewContext(req, rec)
    if who != nil {
        c.Set(middleware.CtxUserID, float64(who.id))
        c.Set(middleware.CtxCode, who.code)
        c.Set(middleware.CtxRole, who.role)
    }
    if len(params) > 0 {
        var names, values []string
        for i := 0; i+1 < len(params); i += 2 {
            names = append(names, params[i])
            values = append(values, params[i+1])
        }
        c.SetParamNames(names...)
        c.SetParamValues(values...)
    }
    require.NoError(t, h(c))
    return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
    t.Helper()
    require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func mustHash(t *testing.T, plain string) string {
    t.Helper()
    h, err := utils.HashPassword(plain, bcrypt.MinCost)
    require.NoError(t, err)
    return h
}

func q(s string) string { return regexp.QuoteMeta(s) }

// expectSettings answers the settings lookup with the given stored rows.
func (f *fixture) expectSettings(stored map[string]string) {
    rows := sqlmock.NewRows([]string{"setting_key", "setting_value"})
    for k, v := range stored {
        rows.AddRow(k, v)
    }
    f.mock.ExpectQuery(q("SELECT setting_key, setting_value FROM system_settings")).WillReturnRows(rows)
}

func (f *fixture) expectGetByCode(a account) {
    f.mock.ExpectQuery(q("FROM affiliate_users WHERE coupon_code = ? LIMIT 1")).
        WithArgs(a.code).WillReturnRows(a.rows())
}

func (f *fixture) expectGetByID(a account) {
    f.mock.ExpectQuery(q("FROM affiliate_users WHERE id = ? LIMIT 1")).
        WithArgs(a.id).WillReturnRows(a.rows())
}

func (f *fixture) expectStoreRefresh(userID uint64) {
    f.mock.ExpectExec(q("INSERT INTO refresh_tokens")).
        WithArgs(userID, sqlmock.AnyArg(), sqlmock.AnyArg()).
        WillReturnResult(sqlmock.NewResult(1, 1))
}

func (f *fixture) expectPasswordChange(code, actor string) {
    f.mock.ExpectBegin()
    f.mock.ExpectExec(q("UPDATE affiliate_users SET password_hash = ? WHERE coupon_code = ?")).
        WithArgs(sqlmock.AnyArg(), code).WillReturnResult(sqlmock.NewResult(0, 1))
    f.mock.ExpectExec(q("INSERT INTO password_change_history")).
        WithArgs(code, actor).WillReturnResult(sqlmock.NewResult(1, 1))
    f.mock.ExpectCommit()
}

func (f *fixture) expectRevokeAll(userID uint64) {
    f.mock.ExpectExec(q("UPDATE refresh_tokens SET revoked_at=NOW() WHERE user_id=?")).
        WithArgs(userID).WillReturnResult(sqlmock.NewResult(0, 2))
}
