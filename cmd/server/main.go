package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4" // Echo web framework
	"github.com/rs/zerolog/log"

	"github.com/iliyamo/affiliate-dashboard/internal/cache"
	"github.com/iliyamo/affiliate-dashboard/internal/config" // Internal config loader
	"github.com/iliyamo/affiliate-dashboard/internal/database"
	"github.com/iliyamo/affiliate-dashboard/internal/handler"
	"github.com/iliyamo/affiliate-dashboard/internal/logger"
	"github.com/iliyamo/affiliate-dashboard/internal/mailer"
	"github.com/iliyamo/affiliate-dashboard/internal/middleware"
	"github.com/iliyamo/affiliate-dashboard/internal/queue"
	"github.com/iliyamo/affiliate-dashboard/internal/repository"
	"github.com/iliyamo/affiliate-dashboard/internal/router" // Internal router setup
	queue_publisher "github.com/iliyamo/affiliate-dashboard/internal/service"
)

func main() {
	config.LoadDotEnv()
	cfg := config.Load() // Load environment config
	logger.Init(cfg.Env, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer db.Close()

	schemaCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if err := database.EnsureSchema(schemaCtx, db); err != nil {
		cancel()
		log.Fatal().Err(err).Msg("schema migration failed")
	}
	cancel()

	rdb := config.NewRedisClient() // nil when Redis is unreachable
	if rdb != nil {
		defer rdb.Close()
	}
	cacheCfg := config.LoadCacheConfig()

	affiliates := repository.NewAffiliateRepo(db)
	usage := repository.NewUsageRepo(db)
	history := repository.NewPasswordHistoryRepo(db)
	settings := repository.NewSettingsRepo(db)
	tokens := repository.NewTokenRepo(db)
	summaries := cache.NewSummaryCache(rdb, cacheCfg.Prefix, cacheCfg.SummaryTTL)

	authH := handler.NewAuthHandler(cfg, affiliates, tokens)
	affH := &handler.AffiliateHandler{
		Affiliates: affiliates,
		Usage:      usage,
		Settings:   settings,
		Tokens:     tokens,
		Summaries:  summaries,
		BcryptCost: cfg.BcryptCost,
	}
	adminH := &handler.AdminHandler{
		Affiliates: affiliates,
		Usage:      usage,
		History:    history,
		Settings:   settings,
		Tokens:     tokens,
		Summaries:  summaries,
		Publisher:  queue_publisher.New(cfg.AMQPURL),
		BcryptCost: cfg.BcryptCost,
	}

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.RequestID(), middleware.Logger(), middleware.Recovery())

	router.RegisterRoutes(e, &handler.ReadyHandler{DB: db, Redis: rdb})
	router.RegisterAuth(e, authH, cfg.JWTSecret, middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))
	router.RegisterAffiliate(e, affH, cfg.JWTSecret, middleware.NewRedisCache(cacheCfg, rdb))
	router.RegisterAdmin(e, adminH, cfg.JWTSecret)

	if cfg.ConsumerOn {
		sender := mailer.New(config.LoadMailConfig())
		go func() {
			if err := queue.StartPasswordResetConsumer(ctx, cfg.AMQPURL, sender); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("reset consumer stopped")
			}
		}()
	}

	addr := ":" + cfg.Port // Address string with port
	go func() {
		log.Info().Str("addr", addr).Str("env", cfg.Env).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
