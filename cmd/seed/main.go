// Command seed fills a development database with an administrator and
// deterministic demo affiliates and coupon usage.
package main

import (
	"context"
	"errors"
	"flag"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/iliyamo/affiliate-dashboard/internal/config"
	"github.com/iliyamo/affiliate-dashboard/internal/database"
	"github.com/iliyamo/affiliate-dashboard/internal/logger"
	"github.com/iliyamo/affiliate-dashboard/internal/mockdata"
	"github.com/iliyamo/affiliate-dashboard/internal/model"
	"github.com/iliyamo/affiliate-dashboard/internal/repository"
	"github.com/iliyamo/affiliate-dashboard/internal/utils"
)

func main() {
	var (
		affiliates  = flag.Int("affiliates", 20, "number of demo affiliates")
		usagePer    = flag.Int("usage", 40, "usage rows per affiliate")
		days        = flag.Int("days", 365, "spread usage over this many past days")
		seed        = flag.Uint64("seed", 1, "generator seed")
		password    = flag.String("password", "password123", "password given to every demo affiliate")
		adminCode   = flag.String("admin-code", "ADMIN", "coupon code of the administrator")
		adminEmail  = flag.String("admin-email", "admin@example.com", "administrator login email")
		adminPasswd = flag.String("admin-password", "admin12345", "administrator password")
	)
	flag.Parse()

	config.LoadDotEnv()
	cfg := config.Load()
	logger.Init(cfg.Env, cfg.LogLevel)

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := database.EnsureSchema(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("schema migration failed")
	}

	users := repository.NewAffiliateRepo(db)
	usage := repository.NewUsageRepo(db)
	settings := repository.NewSettingsRepo(db)

	admin := model.Affiliate{
		CouponCode:   *adminCode,
		Email:        *adminEmail,
		Role:         model.RoleAdmin,
		NotifyEmail:  true,
		ViewAllUsage: true,
		IsActive:     true,
	}
	if created := createAccount(ctx, users, &admin, *adminPasswd, cfg.BcryptCost); created {
		if err := users.SetViewAllUsage(ctx, admin.ID, true); err != nil {
			log.Warn().Err(err).Msg("could not set administrator preference")
		}
		log.Info().Str("coupon_code", admin.CouponCode).Str("email", admin.Email).Msg("administrator created")
	}

	gen := mockdata.New(*seed, time.Now())
	var rows int
	for _, a := range gen.Affiliates(*affiliates) {
		a := a
		if !createAccount(ctx, users, &a, *password, cfg.BcryptCost) {
			continue
		}
		for _, u := range gen.Usage(a.CouponCode, *usagePer, *days) {
			u := u
			if err := usage.Create(ctx, &u); err != nil {
				log.Fatal().Err(err).Str("coupon_code", a.CouponCode).Msg("insert usage failed")
			}
			rows++
		}
	}

	// Load overlays stored rows on the defaults, so saving it back fills in
	// missing keys without touching values an admin already changed.
	if s, err := settings.Load(ctx); err != nil {
		log.Warn().Err(err).Msg("could not read settings")
	} else if err := settings.Save(ctx, s); err != nil {
		log.Warn().Err(err).Msg("could not store default settings")
	}
	log.Info().Int("affiliates", *affiliates).Int("usage_rows", rows).Msg("seed complete")
}

// createAccount inserts a, returning false when the coupon code already
// exists so reruns leave earlier data untouched.
func createAccount(ctx context.Context, repo *repository.AffiliateRepo, a *model.Affiliate, password string, cost int) bool {
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		log.Fatal().Err(err).Msg("hash password failed")
	}
	if err := repo.Create(ctx, a, hash); err != nil {
		if errors.Is(err, repository.ErrCouponExists) {
			log.Info().Str("coupon_code", a.CouponCode).Msg("already present, skipping")
			return false
		}
		log.Fatal().Err(err).Str("coupon_code", a.CouponCode).Msg("insert account failed")
	}
	return true
}
