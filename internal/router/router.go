package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/iliyamo/affiliate-dashboard/internal/handler"    // handlers that implement the endpoints
	"github.com/iliyamo/affiliate-dashboard/internal/middleware" // JWT authentication and role enforcement
	"github.com/iliyamo/affiliate-dashboard/internal/model"      // role names
)

// RegisterRoutes registers routes that do not require authentication: the
// liveness check and the connectivity check polled by dashboards.
func RegisterRoutes(e *echo.Echo, ready *handler.ReadyHandler) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", ready.Ready)
}

// RegisterAuth registers the login, token and profile routes.  Unauthenticated
// operations live under /v1/auth; the two login endpoints sit behind
// limiter so credentials cannot be guessed at full speed.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1/auth")
	g.POST("/login", a.Login, limiter)
	g.POST("/admin/login", a.AdminLogin, limiter)
	// rotates the refresh token
	g.POST("/refresh", a.Refresh)
	g.POST("/refresh-access", a.RefreshAccess)
	// accepts a refresh token in the body or a bearer token; neither is
	// enforced by middleware
	g.POST("/logout", a.Logout)

	auth := e.Group("/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAffiliate, model.RoleAdmin),
	)
	auth.GET("/me", a.Me)
}
