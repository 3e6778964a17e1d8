package handler

import (
    "context"
    "errors"
    "net/http"
    "strconv"
    "strings"
    "time"

    validation "github.com/go-ozzo/ozzo-validation/v4"
    "github.com/go-ozzo/ozzo-validation/v4/is"
    "github.com/labstack/echo/v4"
    "github.com/rs/zerolog/log"
    "github.com/shopspring/decimal"

    "github.com/iliyamo/affiliate-dashboard/internal/model"
    "github.com/iliyamo/affiliate-dashboard/internal/queue"
    "github.com/iliyamo/affiliate-dashboard/internal/repository"
    "github.com/iliyamo/affiliate-dashboard/internal/utils"
)

// tempPasswordLen is the length of generated reset passwords.
const tempPasswordLen = 12

// ResetPublisher emits password reset notifications.
type ResetPublisher interface {
    PublishPasswordReset(ctx context.Context, event queue.PasswordResetEvent) error
}

// AdminHandler bundles repositories for administrators to manage affiliates,
// usage records and settings.
type AdminHandler struct {
    Affiliates *repository.AffiliateRepo
    Usage      *repository.UsageRepo
    History    *repository.PasswordHistoryRepo
    Settings   *repository.SettingsRepo
    Tokens     *repository.TokenRepo
    Summaries  SummaryStore
    Publisher  ResetPublisher
    BcryptCost int
}

// ----- affiliates -----

// ListAffiliates returns a page of accounts filtered by q and role.
func (h *AdminHandler) ListAffiliates(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
    defer cancel()

    page, size := pageParams(c, loadSettings(ctx, h.Settings))
    f := affiliateFilter(c)
    f.Limit = size
    f.Offset = utils.Offset(page, size)

    items, total, err := h.Affiliates.List(ctx, f)
    if err != nil {
        return repoError(c, err, "list affiliates failed")
    }
    return c.JSON(http.StatusOK, newList(items, page, size, total))
}

func affiliateFilter(c echo.Context) model.AffiliateFilter {
    return model.AffiliateFilter{
        Query: strings.TrimSpace(c.QueryParam("q")),
        Role:  strings.ToUpper(strings.TrimSpace(c.QueryParam("role"))),
    }
}

type createAffiliateReq struct {
    CouponCode     string `json:"coupon_code"`
    Password       string `json:"password"`
    Email          string `json:"email"`
    Role           string `json:"role"`
    PaymentMethod  string `json:"payment_method"`
    PaymentDetails string `json:"payment_details"`
    NotifyEmail    *bool  `json:"notify_email"`
    NotifyPayouts  *bool  `json:"notify_payouts"`
}

func (r createAffiliateReq) validate(minPassword int) error {
    return validation.ValidateStruct(&r,
        validation.Field(&r.CouponCode, validation.Required, validation.Match(model.CouponPattern).
            Error("use 3-32 letters, digits, '-' or '_'")),
        validation.Field(&r.Password, validation.Required, validation.Length(minPassword, 128)),
        validation.Field(&r.Email, validation.Required, is.EmailFormat, validation.Length(0, 255)),
        validation.Field(&r.Role, validation.In(model.RoleAffiliate, model.RoleAdmin)),
        validation.Field(&r.PaymentMethod, validation.In(anyStrings(model.PaymentMethods)...)),
        validation.Field(&r.PaymentDetails, validation.Length(0, 500)),
    )
}

func anyStrings(in []string) []interface{} {
    out := make([]interface{}, len(in))
    for i, s := range in {
        out[i] = s
    }
    return out
}

func boolOr(p *bool, def bool) bool {
    if p == nil {
        return def
    }
    return *p
}

// CreateAffiliate registers a new account.  Duplicate codes yield 409.
func (h *AdminHandler) CreateAffiliate(c echo.Context) error {
    var req createAffiliateReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    req.CouponCode = model.NormalizeCoupon(req.CouponCode)
    req.Role = strings.ToUpper(strings.TrimSpace(req.Role))

    ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
    defer cancel()

    if err := req.validate(loadSettings(ctx, h.Settings).MinPasswordLength); err != nil {
        return invalid(c, err)
    }
    hash, err := utils.HashPassword(req.Password, h.BcryptCost)
    if err != nil {
        return repoError(c, err, "hash password failed")
    }
    a := model.Affiliate{
        CouponCode:     req.CouponCode,
        Email:          req.Email,
        Role:           req.Role,
        PaymentMethod:  req.PaymentMethod,
        PaymentDetails: req.PaymentDetails,
        NotifyEmail:    boolOr(req.NotifyEmail, true),
        NotifyPayouts:  boolOr(req.NotifyPayouts, true),
        IsActive:       true,
    }
    if err := h.Affiliates.Create(ctx, &a, hash); err != nil {
        return repoError(c, err, "create affiliate failed")
    }
    created, err := h.Affiliates.GetByCode(ctx, a.CouponCode)
    if err != nil {
        return repoError(c, err, "load affiliate failed")
    }
    log.Info().Str("coupon_code", a.CouponCode).Str("by", currentCode(c)).Msg("affiliate created")
    return c.JSON(http.StatusCreated, created)
}

// GetAffiliate returns one account.
func (h *AdminHandler) GetAffiliate(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
    defer cancel()

    a, err := h.Affiliates.GetByCode(ctx, c.Param("code"))
    if err != nil {
        return repoError(c, err, "load affiliate failed")
    }
    return c.JSON(http.StatusOK, a)
}

// UpdateAffiliate applies profile and admin-only changes.  Administrators
// cannot demote or deactivate themselves.
func (h *AdminHandler) UpdateAffiliate(c echo.Context) error {
    code := model.NormalizeCoupon(c.Param("code"))
    var req model.AdminUpdate
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    if req.Role != nil {
        role := strings.ToUpper(strings.TrimSpace(*req.Role))
        req.Role = &role
    }
    if err := req.Validate(); err != nil {
        return invalid(c, err)
    }
    if code == currentCode(c) {
        if (req.Role != nil && *req.Role != model.RoleAdmin) || (req.IsActive != nil && !*req.IsActive) {
            return c.JSON(http.StatusForbidden, echo.Map{"error": "cannot demote or deactivate your own account"})
        }
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
    defer cancel()

    if err := h.Affiliates.Update(ctx, code, req); err != nil {
        return repoError(c, err, "update affiliate failed")
    }
    a, err := h.Affiliates.GetByCode(ctx, code)
    if err != nil {
        return repoError(c, err, "load affiliate failed")
    }
    if !a.IsActive {
        if err := h.Tokens.RevokeAllForUser(ctx, a.ID); err != nil {
            log.Warn().Err(err).Str("coupon_code", code).Msg("revoke sessions of deactivated account failed")
        }
    }
    return c.JSON(http.StatusOK, a)
}

// DeleteAffiliate removes an account.  Accounts with usage need force=true,
// which deletes the usage as well.
func (h *AdminHandler) DeleteAffiliate(c echo.Context) error {
    code := model.NormalizeCoupon(c.Param("code"))
    if code == currentCode(c) {
        return c.JSON(http.StatusForbidden, echo.Map{"error": "cannot delete your own account"})
    }
    force, _ := strconv.ParseBool(c.QueryParam("force"))

    ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
    defer cancel()

    if err := h.Affiliates.Delete(ctx, code, force); err != nil {
        if errors.Is(err, repository.ErrConflict) {
            return c.JSON(http.StatusConflict, echo.Map{"error": "affiliate has usage records; retry with force=true"})
        }
        return repoError(c, err, "delete affiliate failed")
    }
    if err := h.Summaries.Invalidate(ctx, code); err != nil {
        log.Warn().Err(err).Str("coupon_code", code).Msg("summary cache invalidate failed")
    }
    log.Info().Str("coupon_code", code).Bool("force", force).Str("by", currentCode(c)).Msg("affiliate deleted")
    return c.NoContent(http.StatusNoContent)
}

type resetPasswordReq struct {
    NewPassword string `json:"new_password"`
}

type resetPasswordResp struct {
    CouponCode         string `json:"coupon_code"`
    TemporaryPassword  string `json:"temporary_password,omitempty"`
    NotificationQueued bool   `json:"notification_queued"`
}

// ResetPassword sets a new password for an affiliate.  Without a body
// password a temporary one is generated, returned once and mailed to the
// affiliate.  The change is recorded with the admin's code as actor.
func (h *AdminHandler) ResetPassword(c echo.Context) error {
    code := model.NormalizeCoupon(c.Param("code"))
    var req resetPasswordReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
    defer cancel()

    settings := loadSettings(ctx, h.Settings)
    generated := ""
    if req.NewPassword == "" {
        pw, err := utils.GeneratePassword(max(tempPasswordLen, settings.MinPasswordLength))
        if err != nil {
            return repoError(c, err, "generate password failed")
        }
        req.NewPassword, generated = pw, pw
    }
    if err := validation.ValidateStruct(&req,
        validation.Field(&req.NewPassword, validation.Length(settings.MinPasswordLength, 128)),
    ); err != nil {
        return invalid(c, err)
    }

    a, err := h.Affiliates.GetByCode(ctx, code)
    if err != nil {
        return repoError(c, err, "load affiliate failed")
    }
    hash, err := utils.HashPassword(req.NewPassword, h.BcryptCost)
    if err != nil {
        return repoError(c, err, "hash password failed")
    }
    actor := currentCode(c)
    if err := h.Affiliates.ChangePassword(ctx, code, hash, actor); err != nil {
        return repoError(c, err, "reset password failed")
    }
    if err := h.Tokens.RevokeAllForUser(ctx, a.ID); err != nil {
        log.Warn().Err(err).Str("coupon_code", code).Msg("revoke sessions after reset failed")
    }

    queued := false
    if h.Publisher != nil {
        err := h.Publisher.PublishPasswordReset(ctx, queue.PasswordResetEvent{
            CouponCode:   code,
            Email:        a.Email,
            ResetBy:      actor,
            TempPassword: generated,
            NotifyEmail:  a.NotifyEmail,
            SupportEmail: settings.SupportEmail,
        })
        if err != nil {
            log.Warn().Err(err).Str("coupon_code", code).Msg("password reset notification not queued")
        } else {
            queued = true
        }
    }
    log.Info().Str("coupon_code", code).Str("by", actor).Bool("generated", generated != "").Msg("password reset")
    return c.JSON(http.StatusOK, resetPasswordResp{
        CouponCode:         code,
        TemporaryPassword:  generated,
        NotificationQueued: queued,
    })
}

// PasswordHistory lists recent password changes of an affiliate.
func (h *AdminHandler) PasswordHistory(c echo.Context) error {
    code := model.NormalizeCoupon(c.Param("code"))
    limit, _ := strconv.Atoi(c.QueryParam("limit"))

    ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
    defer cancel()

    if _, err := h.Affiliates.GetByCode(ctx, code); err != nil {
        return repoError(c, err, "load affiliate failed")
    }
    items, err := h.History.ListByCode(ctx, code, limit)
    if err != nil {
        return repoError(c, err, "load password history failed")
    }
    return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// ----- usage -----

const (
    scopeAll      = "all"
    scopePersonal = "personal"
)

// resolveScope picks the usage scope from the query or, when absent, from
// the administrator's saved preference.
func (h *AdminHandler) resolveScope(ctx context.Context, c echo.Context) (string, error) {
    switch scope := strings.ToLower(strings.TrimSpace(c.QueryParam("scope"))); scope {
    case scopeAll, scopePersonal:
        return scope, nil
    case "":
    default:
        return "", errBadScope
    }
    uid, err := getUserID(c)
    if err != nil {
        return "", err
    }
    admin, err := h.Affiliates.GetByID(ctx, uid)
    if err != nil {
        return "", err
    }
    if admin.ViewAllUsage {
        return scopeAll, nil
    }
    return scopePersonal, nil
}

var errBadScope = badRequest("scope must be all or personal")

// scopedUsageFilter combines the query filters with the resolved scope.
func (h *AdminHandler) scopedUsageFilter(ctx context.Context, c echo.Context) (model.UsageFilter, string, error) {
    f, err := usageFilter(c)
    if err != nil {
        return f, "", err
    }
    scope, err := h.resolveScope(ctx, c)
    if err != nil {
        return f, "", err
    }
    if scope == scopePersonal {
        f.Code = currentCode(c)
    } else {
        f.Code = c.QueryParam("code")
    }
    return f, scope, nil
}

func (h *AdminHandler) filterError(c echo.Context, err error) error {
    var br badRequestError
    if errors.As(err, &br) {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
    }
    return repoError(c, err, "resolve usage scope failed")
}

type usageListResp struct {
    listResponse[model.Usage]
    Scope string `json:"scope"`
}

// ListUsage lists usage across affiliates or for the admin's own code.
func (h *AdminHandler) ListUsage(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
    defer cancel()

    f, scope, err := h.scopedUsageFilter(ctx, c)
    if err != nil {
        return h.filterError(c, err)
    }
    page, size := pageParams(c, loadSettings(ctx, h.Settings))
    f.Limit = size
    f.Offset = utils.Offset(page, size)

    items, total, err := h.Usage.List(ctx, f)
    if err != nil {
        return repoError(c, err, "list usage failed")
    }
    return c.JSON(http.StatusOK, usageListResp{
        listResponse: newList(items, page, size, total),
        Scope:        scope,
    })
}

type preferencesReq struct {
    ViewAllUsage *bool `json:"view_all_usage"`
}

// UpdatePreferences stores the admin's default usage scope.
func (h *AdminHandler) UpdatePreferences(c echo.Context) error {
    uid, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    var req preferencesReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    if err := validation.ValidateStruct(&req, validation.Field(&req.ViewAllUsage, validation.NotNil)); err != nil {
        return invalid(c, err)
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
    defer cancel()

    if err := h.Affiliates.SetViewAllUsage(ctx, uid, *req.ViewAllUsage); err != nil {
        return repoError(c, err, "save preferences failed")
    }
    return c.JSON(http.StatusOK, echo.Map{"view_all_usage": *req.ViewAllUsage})
}

type createUsageReq struct {
    Code        string          `json:"code"`
    UsedAt      string          `json:"used_at"`
    ProductName string          `json:"product_name"`
    Quantity    int             `json:"quantity"`
    Earnings    decimal.Decimal `json:"earnings"`
    OrderStatus string          `json:"order_status"`
    PayoutDate  string          `json:"payout_date"`
}

func (r createUsageReq) Validate() error {
    return validation.ValidateStruct(&r,
        validation.Field(&r.Code, validation.Required),
        validation.Field(&r.UsedAt, validation.Date(model.DateLayout)),
        validation.Field(&r.ProductName, validation.Required, validation.Length(1, 255)),
        validation.Field(&r.Quantity, validation.Required, validation.Min(1)),
        validation.Field(&r.Earnings, validation.By(nonNegative)),
        validation.Field(&r.OrderStatus, validation.In(anyStrings(model.OrderStatuses)...)),
        validation.Field(&r.PayoutDate, validation.Date(model.DateLayout)),
    )
}

func nonNegative(v interface{}) error {
    if d, ok := v.(decimal.Decimal); ok && d.IsNegative() {
        return validation.NewError("validation_negative", "must not be negative")
    }
    return nil
}

// CreateUsage records a coupon usage for an existing affiliate.
func (h *AdminHandler) CreateUsage(c echo.Context) error {
    var req createUsageReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    req.OrderStatus = strings.ToLower(strings.TrimSpace(req.OrderStatus))
    if err := req.Validate(); err != nil {
        return invalid(c, err)
    }
    usedAt := time.Now().UTC().Truncate(24 * time.Hour)
    if d, _ := parseDate(req.UsedAt); d != nil {
        usedAt = *d
    }
    payout, _ := parseDate(req.PayoutDate)

    u := model.Usage{
        Code:        req.Code,
        UsedAt:      usedAt,
        ProductName: strings.TrimSpace(req.ProductName),
        Quantity:    req.Quantity,
        Earnings:    req.Earnings.Round(2),
        OrderStatus: req.OrderStatus,
        PayoutDate:  payout,
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
    defer cancel()

    if err := h.Usage.Create(ctx, &u); err != nil {
        return repoError(c, err, "record usage failed")
    }
    created, err := h.Usage.GetByID(ctx, u.ID)
    if err != nil {
        return repoError(c, err, "load usage failed")
    }
    return c.JSON(http.StatusCreated, created)
}

type updateUsageReq struct {
    OrderStatus *string `json:"order_status"`
    PayoutDate  *string `json:"payout_date"` // "" clears the payout
}

// UpdateUsage changes the status and/or payout date of one record.
func (h *AdminHandler) UpdateUsage(c echo.Context) error {
    id, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
    }
    var req updateUsageReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    var up repository.UsageUpdate
    if req.OrderStatus != nil {
        s := strings.ToLower(strings.TrimSpace(*req.OrderStatus))
        if !isOrderStatus(s) {
            return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown order status"})
        }
        up.OrderStatus = &s
    }
    if req.PayoutDate != nil {
        d, err := parseDate(*req.PayoutDate)
        if err != nil {
            return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
        }
        up.PayoutDate = d
        up.ClearPayout = d == nil
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
    defer cancel()

    if err := h.Usage.Update(ctx, id, up); err != nil {
        return repoError(c, err, "update usage failed")
    }
    u, err := h.Usage.GetByID(ctx, id)
    if err != nil {
        return repoError(c, err, "load usage failed")
    }
    return c.JSON(http.StatusOK, u)
}

type payoutReq struct {
    Code       string `json:"code"`
    PayoutDate string `json:"payout_date"`
}

// MarkPaid stamps every completed, unpaid record of a code with the payout
// date (today when omitted) and reports how many rows changed.
func (h *AdminHandler) MarkPaid(c echo.Context) error {
    var req payoutReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    if err := validation.ValidateStruct(&req,
        validation.Field(&req.Code, validation.Required),
        validation.Field(&req.PayoutDate, validation.Date(model.DateLayout)),
    ); err != nil {
        return invalid(c, err)
    }
    payout := time.Now().UTC()
    if d, _ := parseDate(req.PayoutDate); d != nil {
        payout = *d
    }
    code := model.NormalizeCoupon(req.Code)

    ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
    defer cancel()

    if _, err := h.Affiliates.GetByCode(ctx, code); err != nil {
        return repoError(c, err, "load affiliate failed")
    }
    n, err := h.Usage.MarkPaid(ctx, code, payout)
    if err != nil {
        return repoError(c, err, "mark paid failed")
    }
    log.Info().Str("coupon_code", code).Int64("rows", n).Str("by", currentCode(c)).Msg("payout recorded")
    return c.JSON(http.StatusOK, echo.Map{
        "code":        code,
        "payout_date": payout.Format(model.DateLayout),
        "paid":        n,
    })
}

// ----- settings -----

// GetSettings returns the effective settings.
func (h *AdminHandler) GetSettings(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
    defer cancel()

    s, err := h.Settings.Load(ctx)
    if err != nil {
        return repoError(c, err, "load settings failed")
    }
    return c.JSON(http.StatusOK, s)
}

// UpdateSettings validates and stores the whole settings document.
func (h *AdminHandler) UpdateSettings(c echo.Context) error {
    var s model.Settings
    if err := c.Bind(&s); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    s.SupportEmail = strings.TrimSpace(s.SupportEmail)
    if err := s.Validate(); err != nil {
        return invalid(c, err)
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
    defer cancel()

    if err := h.Settings.Save(ctx, s); err != nil {
        return repoError(c, err, "save settings failed")
    }
    log.Info().Str("by", currentCode(c)).Msg("settings updated")
    return c.JSON(http.StatusOK, s)
}

// currentCode is the caller's coupon code or "" when the claim is missing.
func currentCode(c echo.Context) string {
    code, _ := getCode(c)
    return code
}
