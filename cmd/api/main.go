package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"resume-match/internal/billing"
	"resume-match/internal/config"
	"resume-match/internal/db"
	"resume-match/internal/email"
	apihttp "resume-match/internal/http"
	"resume-match/internal/identity"
	"resume-match/internal/match"
	"resume-match/internal/repository"
	"resume-match/internal/service"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Account store: Postgres cuando hay DSN, memoria en modo offline.
	var accountRepo repository.AccountRepository
	var authEventRepo repository.AuthEventRepository
	var appErrorRepo repository.AppErrorRepository
	if cfg.StoreConfigured() {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("db connect", zap.Error(err))
		}
		defer pool.Close()
		if err := db.Ping(ctx, pool); err != nil {
			logger.Fatal("db ping", zap.Error(err))
		}
		accountRepo = repository.NewPgAccountRepository(pool)
		authEventRepo = repository.NewPgAuthEventRepository(pool)
		appErrorRepo = repository.NewPgAppErrorRepository(pool)
	} else {
		logger.Warn("database not configured, using in-memory account store")
		accountRepo = repository.NewMemoryAccountRepository()
	}

	var (
		limiter     service.RateLimiter
		tokenStore  identity.RefreshTokenStore
		redisClient *redis.Client
	)
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
		} else {
			limiter = service.NewRedisRateLimiter(redisClient, 10*time.Minute, 3)
			tokenStore = identity.NewRedisRefreshTokenStore(redisClient)
		}
		cancel()
	}

	emailSender := email.NewDisabledSender("email sender not configured")
	if cfg.SMTPHost != "" {
		sender, err := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.SMTPFromName, cfg.SMTPUseTLS)
		if err != nil {
			logger.Warn("smtp sender init failed", zap.Error(err))
		} else {
			emailSender = sender
		}
	}

	// Backend de identidad: remoto cuando hay credenciales, fallback
	// local en caso contrario.
	var backend identity.Backend
	if cfg.AuthConfigured() {
		backend = identity.NewHTTPBackend(cfg.AuthBaseURL, cfg.AuthAnonKey, logger)
	} else {
		logger.Warn("auth backend not configured, using local fallback")
		if cfg.JWTSecret == "" {
			logger.Warn("jwt secret not configured")
		}
		tokenSvc := identity.NewTokenServiceWithStore(
			cfg.JWTSecret,
			time.Duration(cfg.JWTAccessTTLMinutes)*time.Minute,
			time.Duration(cfg.JWTRefreshTTLMinutes)*time.Minute,
			tokenStore,
		)
		backend = identity.NewLocalBackend(tokenSvc, emailSender, cfg.VerifyLinkURL, logger)
	}

	audit := service.NewAuditLogger(logger, authEventRepo, appErrorRepo)
	reconciler := service.NewReconciler(logger, backend, accountRepo, audit, limiter, cfg.AuthConfigured())
	reconciler.Start()

	var billingClient billing.Client
	if cfg.StripeSecretKey != "" {
		billingClient = billing.NewHTTPClient("", cfg.StripeSecretKey)
	}
	billingSvc := service.NewBillingService(logger, accountRepo, billingClient, audit)

	var scorer match.Scorer = match.NewDisabledScorer()
	if cfg.ScorerAPIKey != "" {
		scorer = match.NewHTTPScorer(cfg.ScorerBaseURL, cfg.ScorerAPIKey, cfg.ScorerModel, logger)
	}

	authHandler := apihttp.NewAuthHandler(logger, reconciler)
	accountHandler := apihttp.NewAccountHandler(logger, reconciler)
	billingHandler := apihttp.NewBillingHandler(logger, billingSvc, cfg.StripeWebhookSecret, cfg.BillingConfigured())
	matchHandler := apihttp.NewMatchHandler(logger, reconciler, scorer)
	router := apihttp.NewRouter(logger, authHandler, accountHandler, billingHandler, matchHandler)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting server", zap.String("port", cfg.HTTPPort))

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}
