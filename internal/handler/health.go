package handler // declare the package name; contains HTTP handlers

import (
    "context"
    "database/sql"
    "net/http" // net/http provides status codes and response helpers
    "time"

    "github.com/labstack/echo/v4" // echo is the web framework used for this project
    "github.com/redis/go-redis/v9"
    "github.com/rs/zerolog/log"
)

// Health is a simple health‑check endpoint used by load balancers and
// monitoring systems to verify that the service is running.  It returns
// a plain text "ok" message with an HTTP 200 status code.
func Health(c echo.Context) error {
    return c.String(http.StatusOK, "ok")
}

// ReadyHandler checks the backing services.  Dashboards call it to decide
// whether to show the offline banner.
type ReadyHandler struct {
    DB    *sql.DB
    Redis *redis.Client // optional
}

// Ready pings MySQL and Redis.  Only MySQL decides the status code; a
// missing or unreachable Redis just disables caching.
func (h *ReadyHandler) Ready(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
    defer cancel()

    checks := map[string]string{"mysql": "ok", "redis": "disabled"}
    status := http.StatusOK

    if err := h.DB.PingContext(ctx); err != nil {
        log.Warn().Err(err).Msg("readiness: mysql unreachable")
        checks["mysql"] = "down"
        status = http.StatusServiceUnavailable
    }
    if h.Redis != nil {
        checks["redis"] = "ok"
        if err := h.Redis.Ping(ctx).Err(); err != nil {
            log.Warn().Err(err).Msg("readiness: redis unreachable")
            checks["redis"] = "down"
        }
    }
    state := "ready"
    if status != http.StatusOK {
        state = "unavailable"
    }
    return c.JSON(status, echo.Map{"status": state, "checks": checks})
}
