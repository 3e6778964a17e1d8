package middleware

// identity.go defines helper functions shared across middleware files. It
// provides a caller identifier used by the response cache and rate limiter
// keys. The coupon code claim is preferred, then the numeric subject; when no
// token has been validated "anon" is returned.

import (
    "fmt"

    "github.com/labstack/echo/v4"
)

func currentUserID(c echo.Context) string {
    if s, ok := c.Get(CtxCode).(string); ok && s != "" {
        return s
    }
    switch v := c.Get(CtxUserID).(type) {
    case string:
        if v != "" {
            return v
        }
    case float64:
        return fmt.Sprintf("%.0f", v)
    case uint64:
        return fmt.Sprintf("%d", v)
    }
    return "anon"
}
