package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
    "net/http" // HTTP status codes for responses
    "strings"  // string utilities for prefix checking and trimming

    "github.com/labstack/echo/v4" // Echo framework used for defining middleware and handlers

    "github.com/iliyamo/affiliate-dashboard/internal/utils" // token parsing shared with the auth handler
)

// Context keys populated by JWTAuth.
const (
    CtxUserID = "user_id"
    CtxRole   = "role"
    CtxCode   = "coupon_code"
)

// JWTAuth returns an Echo middleware that validates a Bearer access token and
// injects the token's subject, role and coupon code claims into the request
// context.  Handlers read them via c.Get(CtxUserID), c.Get(CtxRole) and
// c.Get(CtxCode).
func JWTAuth(secret string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            auth := c.Request().Header.Get("Authorization")
            if !strings.HasPrefix(auth, "Bearer ") {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
            }
            raw := strings.TrimPrefix(auth, "Bearer ")

            claims, err := utils.ParseAccessToken(secret, raw)
            if err != nil {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
            }

            // We leave type assertions to downstream consumers; sub is a
            // JSON number and therefore arrives as float64.
            c.Set(CtxUserID, claims["sub"])
            c.Set(CtxRole, claims["role"])
            c.Set(CtxCode, claims["code"])
            return next(c)
        }
    }
}
