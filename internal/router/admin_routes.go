package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/affiliate-dashboard/internal/handler"
	"github.com/iliyamo/affiliate-dashboard/internal/middleware"
	"github.com/iliyamo/affiliate-dashboard/internal/model"
)

// RegisterAdmin registers ADMIN-scoped endpoints under /v1/admin.
// All routes require a valid JWT and the ADMIN role.
func RegisterAdmin(e *echo.Echo, h *handler.AdminHandler, jwtSecret string) {
	g := e.Group("/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin),
	)

	// ---- Affiliates ----
	g.GET("/affiliates", h.ListAffiliates)
	g.POST("/affiliates", h.CreateAffiliate)
	// static segment registered before :code so it is never read as a code
	g.GET("/affiliates/export", h.ExportAffiliates)
	g.GET("/affiliates/:code", h.GetAffiliate)
	g.PATCH("/affiliates/:code", h.UpdateAffiliate)
	g.DELETE("/affiliates/:code", h.DeleteAffiliate)
	g.POST("/affiliates/:code/reset-password", h.ResetPassword)
	g.GET("/affiliates/:code/password-history", h.PasswordHistory)

	// ---- Usage ----
	g.GET("/usage", h.ListUsage)
	g.POST("/usage", h.CreateUsage)
	g.GET("/usage/export", h.ExportUsage)
	g.POST("/usage/payout", h.MarkPaid)
	g.PATCH("/usage/:id", h.UpdateUsage)

	// ---- Preferences & settings ----
	g.PUT("/preferences", h.UpdatePreferences)
	g.GET("/settings", h.GetSettings)
	g.PUT("/settings", h.UpdateSettings)
}
