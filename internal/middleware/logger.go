package middleware

import (
    "net/http"
    "time"

    "github.com/google/uuid"
    "github.com/labstack/echo/v4"
    "github.com/rs/zerolog/log"
)

// RequestID assigns every request an id, reusing an inbound X-Request-ID when
// the caller supplies one.  The id is echoed back in the response header.
func RequestID() echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            id := c.Request().Header.Get(echo.HeaderXRequestID)
            if id == "" {
                id = uuid.NewString()
            }
            c.Set("request_id", id)
            c.Response().Header().Set(echo.HeaderXRequestID, id)
            return next(c)
        }
    }
}

// Logger writes one structured line per request.
func Logger() echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            start := time.Now()
            err := next(c)
            if err != nil {
                // let echo's error handler settle the status before we log it
                c.Error(err)
            }

            status := c.Response().Status
            ev := log.Info()
            if status >= http.StatusInternalServerError {
                ev = log.Error().Err(err)
            }
            reqID, _ := c.Get("request_id").(string)
            ev.Str("request_id", reqID).
                Str("method", c.Request().Method).
                Str("uri", c.Request().RequestURI).
                Int("status", status).
                Dur("latency_ms", time.Since(start)).
                Str("ip", c.RealIP()).
                Str("user", currentUserID(c)).
                Msg("HTTP Request")
            return nil
        }
    }
}

// Recovery converts a panic into a 500 response and logs it.
func Recovery() echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) (err error) {
            defer func() {
                if r := recover(); r != nil {
                    reqID, _ := c.Get("request_id").(string)
                    log.Error().
                        Str("request_id", reqID).
                        Interface("panic", r).
                        Msg("Panic recovered")
                    err = c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
                }
            }()
            return next(c)
        }
    }
}
