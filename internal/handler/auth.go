package handler

import (
    "context"      // provides context with cancellation for DB calls
    "database/sql" // sql.ErrNoRows signals an unknown refresh token
    "errors"
    "net/http" // HTTP status codes and primitives
    "strings"  // string manipulation utilities
    "time"     // token expiry timestamps

    validation "github.com/go-ozzo/ozzo-validation/v4"
    "github.com/go-ozzo/ozzo-validation/v4/is"
    "github.com/labstack/echo/v4" // Echo framework for HTTP routing
    "github.com/rs/zerolog/log"

    "github.com/iliyamo/affiliate-dashboard/internal/config"     // app configuration
    "github.com/iliyamo/affiliate-dashboard/internal/model"      // account roles and coupon rules
    "github.com/iliyamo/affiliate-dashboard/internal/repository" // DB repositories
    "github.com/iliyamo/affiliate-dashboard/internal/utils"      // helper functions (hashing, token issuing)
)

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
    Cfg        config.Config
    Affiliates *repository.AffiliateRepo
    Tokens     *repository.TokenRepo
}

func NewAuthHandler(cfg config.Config, a *repository.AffiliateRepo, t *repository.TokenRepo) *AuthHandler {
    return &AuthHandler{Cfg: cfg, Affiliates: a, Tokens: t}
}

// ----- DTOs -----

type couponLoginReq struct {
    CouponCode string `json:"coupon_code"`
    Password   string `json:"password"`
}

func (r couponLoginReq) Validate() error {
    return validation.ValidateStruct(&r,
        validation.Field(&r.CouponCode, validation.Required),
        validation.Field(&r.Password, validation.Required),
    )
}

type adminLoginReq struct {
    Email    string `json:"email"`
    Password string `json:"password"`
}

func (r adminLoginReq) Validate() error {
    return validation.ValidateStruct(&r,
        validation.Field(&r.Email, validation.Required, is.EmailFormat),
        validation.Field(&r.Password, validation.Required),
    )
}

type refreshReq struct {
    RefreshToken string `json:"refresh_token"`
}

type tokenPart struct {
    Token   string    `json:"token"`
    Expires time.Time `json:"expires"`
}
type userPart struct {
    ID         uint64 `json:"id"`
    CouponCode string `json:"coupon_code"`
    Email      string `json:"email"`
    Role       string `json:"role"`
}
type authResp struct {
    User    userPart  `json:"user"`
    Access  tokenPart `json:"access"`
    Refresh tokenPart `json:"refresh"`
}

var invalidCredentials = echo.Map{"error": "invalid credentials"}

// Login authenticates an affiliate by coupon code and password.
func (h *AuthHandler) Login(c echo.Context) error {
    var req couponLoginReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    if err := req.Validate(); err != nil {
        return invalid(c, err)
    }
    code := model.NormalizeCoupon(req.CouponCode)
    if !model.CouponPattern.MatchString(code) {
        return c.JSON(http.StatusUnauthorized, invalidCredentials)
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
    defer cancel()

    a, err := h.Affiliates.GetByCode(ctx, code)
    if err != nil {
        if errors.Is(err, repository.ErrAffiliateNotFound) {
            return c.JSON(http.StatusUnauthorized, invalidCredentials)
        }
        return repoError(c, err, "query failed")
    }
    // administrators sign in through /auth/admin/login
    if a.Role != model.RoleAffiliate {
        return c.JSON(http.StatusUnauthorized, invalidCredentials)
    }
    return h.completeLogin(ctx, c, a, req.Password)
}

// AdminLogin authenticates an administrator by email and password.
func (h *AuthHandler) AdminLogin(c echo.Context) error {
    var req adminLoginReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    req.Email = strings.ToLower(strings.TrimSpace(req.Email))
    if err := req.Validate(); err != nil {
        return invalid(c, err)
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
    defer cancel()

    a, err := h.Affiliates.GetByEmail(ctx, req.Email)
    if err != nil {
        if errors.Is(err, repository.ErrAffiliateNotFound) {
            return c.JSON(http.StatusUnauthorized, invalidCredentials)
        }
        return repoError(c, err, "query failed")
    }
    return h.completeLogin(ctx, c, a, req.Password)
}

// completeLogin checks the password, upgrades legacy plaintext values and
// issues a token pair.
func (h *AuthHandler) completeLogin(ctx context.Context, c echo.Context, a model.Affiliate, password string) error {
    ok, needsUpgrade := utils.VerifyPassword(a.PasswordHash, password)
    if !ok {
        log.Info().Str("coupon_code", a.CouponCode).Str("ip", c.RealIP()).Msg("failed login")
        return c.JSON(http.StatusUnauthorized, invalidCredentials)
    }
    if !a.IsActive {
        return c.JSON(http.StatusForbidden, echo.Map{"error": "account disabled"})
    }
    if needsUpgrade {
        if hash, err := utils.HashPassword(password, h.Cfg.BcryptCost); err == nil {
            if err := h.Affiliates.UpgradePasswordHash(ctx, a.ID, hash); err != nil {
                log.Warn().Err(err).Str("coupon_code", a.CouponCode).Msg("password hash upgrade failed")
            }
        }
    }

    resp, err := h.issuePair(ctx, a)
    if err != nil {
        return repoError(c, err, "issue tokens failed")
    }
    return c.JSON(http.StatusOK, resp)
}

func (h *AuthHandler) issuePair(ctx context.Context, a model.Affiliate) (authResp, error) {
    access, err := utils.NewAccessToken(h.Cfg.JWTSecret, a.ID, a.CouponCode, a.Role, h.Cfg.AccessTTLMin)
    if err != nil {
        return authResp{}, err
    }
    refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
    if err != nil {
        return authResp{}, err
    }
    if err := h.Tokens.StoreRefresh(ctx, a.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
        return authResp{}, err
    }
    return authResp{
        User:    userPart{ID: a.ID, CouponCode: a.CouponCode, Email: a.Email, Role: a.Role},
        Access:  tokenPart{Token: access.Token, Expires: access.Exp},
        Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp}, // raw back to client
    }, nil
}

// accountForRefresh validates a raw refresh token and loads its active owner.
func (h *AuthHandler) accountForRefresh(ctx context.Context, raw string) (model.Affiliate, string, error) {
    hash := utils.HashRefreshRaw(raw)
    userID, err := h.Tokens.ValidateRefresh(ctx, hash)
    if err != nil {
        return model.Affiliate{}, "", err
    }
    a, err := h.Affiliates.GetByID(ctx, userID)
    if err != nil {
        return model.Affiliate{}, "", err
    }
    if !a.IsActive {
        return model.Affiliate{}, "", sql.ErrNoRows
    }
    return a, hash, nil
}

func bindRefresh(c echo.Context) (string, bool) {
    var req refreshReq
    if err := c.Bind(&req); err != nil {
        return "", false
    }
    raw := strings.TrimSpace(req.RefreshToken)
    return raw, raw != ""
}

func isAuthMiss(err error) bool {
    return errors.Is(err, sql.ErrNoRows) || errors.Is(err, repository.ErrAffiliateNotFound)
}

// Refresh: validate by hash, revoke old, issue new.
func (h *AuthHandler) Refresh(c echo.Context) error {
    raw, ok := bindRefresh(c)
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token required"})
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
    defer cancel()

    a, hash, err := h.accountForRefresh(ctx, raw)
    if err != nil {
        if isAuthMiss(err) {
            return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
        }
        return repoError(c, err, "load user failed")
    }
    if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
        return repoError(c, err, "revoke refresh failed")
    }
    resp, err := h.issuePair(ctx, a)
    if err != nil {
        return repoError(c, err, "issue tokens failed")
    }
    return c.JSON(http.StatusOK, resp)
}

// RefreshAccess returns a new access token without rotating the refresh token.
func (h *AuthHandler) RefreshAccess(c echo.Context) error {
    raw, ok := bindRefresh(c)
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token required"})
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
    defer cancel()

    a, _, err := h.accountForRefresh(ctx, raw)
    if err != nil {
        if isAuthMiss(err) {
            return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
        }
        return repoError(c, err, "load user failed")
    }
    access, err := utils.NewAccessToken(h.Cfg.JWTSecret, a.ID, a.CouponCode, a.Role, h.Cfg.AccessTTLMin)
    if err != nil {
        return repoError(c, err, "issue access failed")
    }
    return c.JSON(http.StatusOK, echo.Map{
        "access": tokenPart{Token: access.Token, Expires: access.Exp},
    })
}

// Logout revokes a single refresh token when one is posted.  Otherwise a
// valid bearer token revokes every session of its owner.
func (h *AuthHandler) Logout(c echo.Context) error {
    var uid uint64
    if raw, found := strings.CutPrefix(c.Request().Header.Get("Authorization"), "Bearer "); found {
        if claims, err := utils.ParseAccessToken(h.Cfg.JWTSecret, raw); err == nil {
            if sub, ok := claims["sub"].(float64); ok {
                uid = uint64(sub)
            }
        }
    }
    refreshToken, _ := bindRefresh(c)

    ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
    defer cancel()

    switch {
    case refreshToken != "":
        hash := utils.HashRefreshRaw(refreshToken)
        if _, err := h.Tokens.ValidateRefresh(ctx, hash); err != nil {
            return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
        }
        if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
            return repoError(c, err, "logout failed")
        }
        return c.NoContent(http.StatusNoContent)
    case uid != 0:
        if err := h.Tokens.RevokeAllForUser(ctx, uid); err != nil {
            return repoError(c, err, "logout failed")
        }
        return c.NoContent(http.StatusNoContent)
    }
    return c.JSON(http.StatusBadRequest, echo.Map{"error": "provide Authorization header or refresh_token"})
}

// Me returns the caller's profile.
func (h *AuthHandler) Me(c echo.Context) error {
    uid, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
    defer cancel()

    a, err := h.Affiliates.GetByID(ctx, uid)
    if err != nil {
        return repoError(c, err, "load profile failed")
    }
    return c.JSON(http.StatusOK, a)
}
