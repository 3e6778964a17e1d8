package handler

import (
    "context"
    "errors"
    "net/http"
    "strings"
    "time"

    validation "github.com/go-ozzo/ozzo-validation/v4"
    "github.com/labstack/echo/v4"
    "github.com/rs/zerolog/log"

    "github.com/iliyamo/affiliate-dashboard/internal/cache"
    "github.com/iliyamo/affiliate-dashboard/internal/export"
    "github.com/iliyamo/affiliate-dashboard/internal/model"
    "github.com/iliyamo/affiliate-dashboard/internal/repository"
    "github.com/iliyamo/affiliate-dashboard/internal/utils"
)

// summaryMonths is how many calendar months the earnings chart covers,
// including the current one.
const summaryMonths = 12

// SummaryStore keeps the last good earnings summary per coupon code.
type SummaryStore interface {
    Put(ctx context.Context, s model.EarningsSummary) error
    Get(ctx context.Context, code string) (model.EarningsSummary, error)
    Invalidate(ctx context.Context, code string) error
}

// AffiliateHandler serves the dashboard of the logged-in affiliate.  Every
// query is scoped to the coupon code carried by the access token.
type AffiliateHandler struct {
    Affiliates *repository.AffiliateRepo
    Usage      *repository.UsageRepo
    Settings   *repository.SettingsRepo
    Tokens     *repository.TokenRepo
    Summaries  SummaryStore
    BcryptCost int
}

type summaryResp struct {
    model.EarningsSummary
    Stale                  bool `json:"stale"`
    RefreshIntervalSeconds int  `json:"refresh_interval_seconds"`
}

// Summary returns the earnings cards and the monthly chart.  When the
// database read fails the last summary kept in Redis is served with
// stale=true.
func (h *AffiliateHandler) Summary(c echo.Context) error {
    code, err := getCode(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
    defer cancel()

    settings := loadSettings(ctx, h.Settings)
    now := time.Now().UTC()
    since := time.Date(now.Year(), now.Month()-(summaryMonths-1), 1, 0, 0, 0, 0, time.UTC)

    s, err := h.Usage.Summary(ctx, code, since, summaryMonths)

    // The DB deadline may already be spent; the cache gets its own.
    cctx, ccancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), cacheTimeout)
    defer ccancel()

    if err != nil {
        log.Error().Err(err).Str("coupon_code", code).Msg("summary query failed")
        cached, cerr := h.Summaries.Get(cctx, code)
        if cerr != nil {
            if !errors.Is(cerr, cache.ErrMiss) {
                log.Warn().Err(cerr).Str("coupon_code", code).Msg("summary cache read failed")
            }
            return c.JSON(http.StatusInternalServerError, echo.Map{"error": "summary unavailable"})
        }
        return c.JSON(http.StatusOK, summaryResp{
            EarningsSummary:        cached,
            Stale:                  true,
            RefreshIntervalSeconds: settings.DashboardRefreshSeconds,
        })
    }
    if err := h.Summaries.Put(cctx, s); err != nil {
        log.Warn().Err(err).Str("coupon_code", code).Msg("summary cache write failed")
    }
    return c.JSON(http.StatusOK, summaryResp{
        EarningsSummary:        s,
        RefreshIntervalSeconds: settings.DashboardRefreshSeconds,
    })
}

// UsageHistory lists the caller's coupon usage, newest first.
func (h *AffiliateHandler) UsageHistory(c echo.Context) error {
    code, err := getCode(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    f, err := usageFilter(c)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
    defer cancel()

    page, size := pageParams(c, loadSettings(ctx, h.Settings))
    f.Code = code
    f.Limit = size
    f.Offset = utils.Offset(page, size)

    items, total, err := h.Usage.List(ctx, f)
    if err != nil {
        return repoError(c, err, "list usage failed")
    }
    return c.JSON(http.StatusOK, newList(items, page, size, total))
}

// ExportUsage downloads the caller's filtered usage as csv, json or xlsx.
func (h *AffiliateHandler) ExportUsage(c echo.Context) error {
    code, err := getCode(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    format, err := export.ParseFormat(c.QueryParam("format"))
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
    }
    f, err := usageFilter(c)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
    defer cancel()

    if !loadSettings(ctx, h.Settings).AffiliateExportEnabled {
        return c.JSON(http.StatusForbidden, echo.Map{"error": "export disabled by administrator"})
    }
    f.Code = code
    items, _, err := h.Usage.List(ctx, f)
    if err != nil {
        return repoError(c, err, "export usage failed")
    }
    data, err := export.Usage(items, format)
    if err != nil {
        return repoError(c, err, "render export failed")
    }
    attachment(c, export.Filename("usage-"+strings.ToLower(code), format, time.Now()))
    return c.Blob(http.StatusOK, format.ContentType(), data)
}

// UpdateProfile applies email, payment and notification changes.
func (h *AffiliateHandler) UpdateProfile(c echo.Context) error {
    code, err := getCode(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    var req model.ProfileUpdate
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    if err := req.Validate(); err != nil {
        return invalid(c, err)
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
    defer cancel()

    if err := h.Affiliates.Update(ctx, code, model.AdminUpdate{ProfileUpdate: req}); err != nil {
        return repoError(c, err, "update profile failed")
    }
    a, err := h.Affiliates.GetByCode(ctx, code)
    if err != nil {
        return repoError(c, err, "load profile failed")
    }
    return c.JSON(http.StatusOK, a)
}

type changePasswordReq struct {
    CurrentPassword string `json:"current_password"`
    NewPassword     string `json:"new_password"`
}

// ChangePassword replaces the caller's password after checking the current
// one.  Existing refresh tokens are revoked so other devices sign in again.
func (h *AffiliateHandler) ChangePassword(c echo.Context) error {
    code, err := getCode(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    var req changePasswordReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
    defer cancel()

    settings := loadSettings(ctx, h.Settings)
    if err := validation.ValidateStruct(&req,
        validation.Field(&req.CurrentPassword, validation.Required),
        validation.Field(&req.NewPassword, validation.Required, validation.Length(settings.MinPasswordLength, 128),
            validation.NotIn(req.CurrentPassword).Error("must differ from the current password")),
    ); err != nil {
        return invalid(c, err)
    }

    a, err := h.Affiliates.GetByCode(ctx, code)
    if err != nil {
        return repoError(c, err, "load profile failed")
    }
    if ok, _ := utils.VerifyPassword(a.PasswordHash, req.CurrentPassword); !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "current password is incorrect"})
    }
    hash, err := utils.HashPassword(req.NewPassword, h.BcryptCost)
    if err != nil {
        return repoError(c, err, "hash password failed")
    }
    if err := h.Affiliates.ChangePassword(ctx, code, hash, model.ActorSelf); err != nil {
        return repoError(c, err, "change password failed")
    }
    if err := h.Tokens.RevokeAllForUser(ctx, a.ID); err != nil {
        log.Warn().Err(err).Str("coupon_code", code).Msg("revoke sessions after password change failed")
    }
    log.Info().Str("coupon_code", code).Msg("password changed")
    return c.JSON(http.StatusOK, echo.Map{"message": "password updated"})
}
