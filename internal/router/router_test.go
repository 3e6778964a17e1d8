package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/affiliate-dashboard/internal/config"
	"github.com/iliyamo/affiliate-dashboard/internal/handler"
	"github.com/iliyamo/affiliate-dashboard/internal/middleware"
	"github.com/iliyamo/affiliate-dashboard/internal/model"
	"github.com/iliyamo/affiliate-dashboard/internal/utils"
)

const secret = "router-secret"

func passThrough(next echo.HandlerFunc) echo.HandlerFunc { return next }

func newServer() *echo.Echo {
	e := echo.New()
	RegisterRoutes(e, &handler.ReadyHandler{})
	RegisterAuth(e, handler.NewAuthHandler(config.Config{JWTSecret: secret}, nil, nil), secret, passThrough)
	RegisterAffiliate(e, &handler.AffiliateHandler{}, secret, passThrough)
	RegisterAdmin(e, &handler.AdminHandler{}, secret)
	return e
}

func bearer(t *testing.T, role string) string {
	t.Helper()
	tok, err := utils.NewAccessToken(secret, 7, "GLOW10", role, 5)
	require.NoError(t, err)
	return "Bearer " + tok.Token
}

func serve(e *echo.Echo, method, target, auth string) int {
	req := httptest.NewRequest(method, target, nil)
	if auth != "" {
		req.Header.Set(echo.HeaderAuthorization, auth)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec.Code
}

func TestHealthIsPublic(t *testing.T) {
	assert.Equal(t, http.StatusOK, serve(newServer(), http.MethodGet, "/healthz", ""))
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	e := newServer()
	for _, target := range []string{"/v1/me", "/v1/me/summary", "/v1/me/usage", "/v1/admin/affiliates", "/v1/admin/settings"} {
		assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, target, ""), target)
	}
}

func TestAdminRoutesRejectAffiliates(t *testing.T) {
	e := newServer()
	auth := bearer(t, model.RoleAffiliate)
	for _, r := range []struct{ method, target string }{
		{http.MethodGet, "/v1/admin/affiliates"},
		{http.MethodGet, "/v1/admin/affiliates/export"},
		{http.MethodDelete, "/v1/admin/affiliates/GLOW10"},
		{http.MethodGet, "/v1/admin/usage"},
		{http.MethodPut, "/v1/admin/settings"},
	} {
		assert.Equal(t, http.StatusForbidden, serve(e, r.method, r.target, auth), r.target)
	}
}

func TestOnlyUsageHistoryIsResponseCached(t *testing.T) {
	const cached = 299
	marker := func(echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error { return c.String(cached, "cached") }
	}
	e := echo.New()
	e.Use(middleware.Recovery())
	RegisterAffiliate(e, &handler.AffiliateHandler{}, secret, marker)
	auth := bearer(t, model.RoleAffiliate)

	assert.Equal(t, cached, serve(e, http.MethodGet, "/v1/me/usage", auth))
	assert.NotEqual(t, cached, serve(e, http.MethodGet, "/v1/me/summary", auth))
}
