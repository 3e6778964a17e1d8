package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/affiliate-dashboard/internal/handler"
	"github.com/iliyamo/affiliate-dashboard/internal/middleware"
	"github.com/iliyamo/affiliate-dashboard/internal/model"
)

// RegisterAffiliate registers the dashboard endpoints of the logged-in
// account under /v1/me.  Admins have coupon codes too, so both roles are
// accepted.  Usage history goes through respCache; the summary is not
// response-cached because it may be a stale fallback and must reflect
// payouts right away.
func RegisterAffiliate(e *echo.Echo, h *handler.AffiliateHandler, jwtSecret string, respCache echo.MiddlewareFunc) {
	g := e.Group("/v1/me",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAffiliate, model.RoleAdmin),
	)
	g.GET("/summary", h.Summary)
	g.GET("/usage", h.UsageHistory, respCache)
	g.GET("/usage/export", h.ExportUsage)
	g.PATCH("", h.UpdateProfile)
	g.POST("/password", h.ChangePassword)
}
