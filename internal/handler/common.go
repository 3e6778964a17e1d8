package handler // handler defines http handlers

import (
    "context"
    "errors"   // errors provides sentinel values used in getUserID
    "net/http" // status codes for the shared error responses
    "strconv"  // strconv converts strings to numeric types
    "strings"  // strings provides trimming and case helpers
    "time"

    validation "github.com/go-ozzo/ozzo-validation/v4"
    "github.com/labstack/echo/v4" // echo defines request context types
    "github.com/rs/zerolog/log"

    "github.com/iliyamo/affiliate-dashboard/internal/middleware"
    "github.com/iliyamo/affiliate-dashboard/internal/model"
    "github.com/iliyamo/affiliate-dashboard/internal/repository"
    "github.com/iliyamo/affiliate-dashboard/internal/utils"
)

// dbTimeout bounds every request's database work.
const dbTimeout = 5 * time.Second

// cacheTimeout bounds a Redis round-trip made outside dbTimeout.
const cacheTimeout = time.Second

// getUserID extracts the user_id from echo.Context and converts it to uint64
func getUserID(c echo.Context) (uint64, error) {
    switch t := c.Get(middleware.CtxUserID).(type) {
    case uint64:
        return t, nil
    case int:
        return uint64(t), nil
    case int64:
        return uint64(t), nil
    case float64: // JSON numbers in JWT claims decode as float64
        return uint64(t), nil
    case string:
        if n, err := strconv.ParseUint(t, 10, 64); err == nil {
            return n, nil
        }
    }
    return 0, errors.New("invalid user_id in context")
}

// getCode returns the caller's coupon code from the token claims.
func getCode(c echo.Context) (string, error) {
    if s, ok := c.Get(middleware.CtxCode).(string); ok && s != "" {
        return model.NormalizeCoupon(s), nil
    }
    return "", errors.New("invalid coupon_code in context")
}

// repoError maps repository sentinels to HTTP responses and logs anything
// unexpected.  what names the failed operation in the 500 body.
func repoError(c echo.Context, err error, what string) error {
    switch {
    case errors.Is(err, repository.ErrAffiliateNotFound):
        return c.JSON(http.StatusNotFound, echo.Map{"error": "affiliate not found"})
    case errors.Is(err, repository.ErrUsageNotFound):
        return c.JSON(http.StatusNotFound, echo.Map{"error": "usage record not found"})
    case errors.Is(err, repository.ErrCouponExists):
        return c.JSON(http.StatusConflict, echo.Map{"error": "coupon code already exists"})
    case errors.Is(err, repository.ErrConflict):
        return c.JSON(http.StatusConflict, echo.Map{"error": "conflict"})
    case errors.Is(err, repository.ErrForbidden):
        return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
    }
    log.Error().Err(err).Str("path", c.Path()).Msg(what)
    return c.JSON(http.StatusInternalServerError, echo.Map{"error": what})
}

// invalid renders ozzo validation errors as a 400 with per-field messages.
func invalid(c echo.Context, err error) error {
    var fields validation.Errors
    if errors.As(err, &fields) {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation failed", "fields": fields})
    }
    return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
}

// loadSettings returns the stored settings or the defaults when the table
// cannot be read.  Dashboards must keep working on partial outages.
func loadSettings(ctx context.Context, repo *repository.SettingsRepo) model.Settings {
    s, err := repo.Load(ctx)
    if err != nil {
        log.Warn().Err(err).Msg("settings unavailable, using defaults")
        return model.DefaultSettings()
    }
    return s
}

// pageParams reads page and page_size clamped to the configured bounds.
func pageParams(c echo.Context, s model.Settings) (page, size int) {
    page, _ = strconv.Atoi(c.QueryParam("page"))
    size, _ = strconv.Atoi(c.QueryParam("page_size"))
    return utils.NormalizePage(page, size, s.DefaultPageSize, s.MaxPageSize)
}

// badRequestError marks input problems that map to 400.
type badRequestError struct{ msg string }

func (e badRequestError) Error() string { return e.msg }

func badRequest(msg string) error { return badRequestError{msg: msg} }

// parseDate parses an optional YYYY-MM-DD query or body value.
func parseDate(raw string) (*time.Time, error) {
    raw = strings.TrimSpace(raw)
    if raw == "" {
        return nil, nil
    }
    t, err := time.ParseInLocation(model.DateLayout, raw, time.UTC)
    if err != nil {
        return nil, badRequest("dates must use YYYY-MM-DD")
    }
    return &t, nil
}

// usageFilter builds a filter from the from, to, status and product query
// parameters.  Code and paging are left to the caller.
func usageFilter(c echo.Context) (model.UsageFilter, error) {
    var f model.UsageFilter
    var err error
    if f.From, err = parseDate(c.QueryParam("from")); err != nil {
        return f, err
    }
    if f.To, err = parseDate(c.QueryParam("to")); err != nil {
        return f, err
    }
    if f.From != nil && f.To != nil && f.To.Before(*f.From) {
        return f, badRequest("to must not be before from")
    }
    if status := strings.ToLower(strings.TrimSpace(c.QueryParam("status"))); status != "" {
        if !isOrderStatus(status) {
            return f, badRequest("unknown order status")
        }
        f.Status = status
    }
    f.Product = strings.TrimSpace(c.QueryParam("product"))
    return f, nil
}

func isOrderStatus(s string) bool {
    for _, v := range model.OrderStatuses {
        if v == s {
            return true
        }
    }
    return false
}

// attachment sets Content-Disposition for a download.
func attachment(c echo.Context, filename string) {
    c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
}

// listResponse is the envelope of every paginated listing.
type listResponse[T any] struct {
    Items []T        `json:"items"`
    Page  utils.Page `json:"page"`
}

func newList[T any](items []T, page, size int, total int64) listResponse[T] {
    if items == nil {
        items = []T{}
    }
    return listResponse[T]{Items: items, Page: utils.NewPage(page, size, total)}
}
