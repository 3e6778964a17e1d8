package handler

import (
    "context"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/rs/zerolog/log"

    "github.com/iliyamo/affiliate-dashboard/internal/export"
)

// ExportAffiliates downloads every account matching q and role.  Password
// hashes never leave the service.
func (h *AdminHandler) ExportAffiliates(c echo.Context) error {
    format, err := export.ParseFormat(c.QueryParam("format"))
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
    defer cancel()

    items, _, err := h.Affiliates.List(ctx, affiliateFilter(c))
    if err != nil {
        return repoError(c, err, "export affiliates failed")
    }
    data, err := export.Affiliates(items, format)
    if err != nil {
        return repoError(c, err, "render export failed")
    }
    log.Info().Str("by", currentCode(c)).Int("rows", len(items)).Str("format", string(format)).Msg("affiliates exported")
    attachment(c, export.Filename("affiliates", format, time.Now()))
    return c.Blob(http.StatusOK, format.ContentType(), data)
}

// ExportUsage downloads usage with the same scope and filters as ListUsage,
// without paging.
func (h *AdminHandler) ExportUsage(c echo.Context) error {
    format, err := export.ParseFormat(c.QueryParam("format"))
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
    defer cancel()

    f, scope, err := h.scopedUsageFilter(ctx, c)
    if err != nil {
        return h.filterError(c, err)
    }
    items, _, err := h.Usage.List(ctx, f)
    if err != nil {
        return repoError(c, err, "export usage failed")
    }
    data, err := export.Usage(items, format)
    if err != nil {
        return repoError(c, err, "render export failed")
    }
    prefix := "usage-all"
    if f.Code != "" {
        prefix = "usage-" + strings.ToLower(f.Code)
    }
    log.Info().Str("by", currentCode(c)).Str("scope", scope).Int("rows", len(items)).Msg("usage exported")
    attachment(c, export.Filename(prefix, format, time.Now()))
    return c.Blob(http.StatusOK, format.ContentType(), data)
}
