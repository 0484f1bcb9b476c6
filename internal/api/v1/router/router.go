package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"app/internal/api/v1/handler"
	"app/internal/config"
	"app/internal/middleware"
	"app/internal/repository"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

func New(cfg *config.Config, logger zerolog.Logger) (http.Handler, *pgxpool.Pool, error) {
	logger.Info().Str("environment", cfg.Environment).Msg("Router initializing")

	// 1. Open DB connection pool
	pool, err := pgxpool.New(context.Background(), cfg.DBConnectionString)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create DB pool")
		return nil, nil, err
	}
	if err := pool.Ping(context.Background()); err != nil {
		logger.Error().Err(err).Msg("Failed to ping DB")
		return nil, nil, err
	}
	logger.Info().Msg("Database connection successful")

	// 2. Initialize validator
	validate := validator.New(validator.WithRequiredStructEnabled())

	// 3. Initialize repositories
	userRepo := repository.NewUserRepo(pool)
	usageRepo := repository.NewUsageRepo(pool)
	settingRepo := repository.NewSettingRepo(pool)
	modelConfigRepo := repository.NewModelConfigRepo(pool)
	paymentEventRepo := repository.NewPaymentEventRepo(pool)
	adminActionRepo := repository.NewAdminActionRepo(pool)

	// 4. Initialize services
	configCache := service.NewConfigCache(
		settingRepo,
		userRepo,
		cfg.OpenRouterAPIKey,
		time.Duration(cfg.APIKeyCacheTTLSec)*time.Second,
		time.Duration(cfg.UserConfigCacheTTLSec)*time.Second,
		nil,
		logger,
	)
	planCatalog := service.NewPlanCatalog(cfg)
	openRouter := service.NewOpenRouterClient(cfg.OpenRouterBaseURL)

	usageSvc := service.NewUsageService(usageRepo, nil, logger)
	processSvc := service.NewProcessService(configCache, openRouter, usageSvc, logger)
	userSvc := service.NewUserService(userRepo, usageSvc, settingRepo, configCache, logger)
	settingsSvc := service.NewSettingsService(settingRepo, adminActionRepo, configCache, logger)
	modelSvc := service.NewModelService(modelConfigRepo, adminActionRepo, logger)
	stripeSvc := service.NewStripeService(cfg, userRepo, paymentEventRepo, planCatalog, configCache, logger)

	// 5. Initialize handlers
	processHandler := handler.NewProcessHandler(processSvc, validate)
	userHandler := handler.NewUserHandler(userSvc, validate)
	billingHandler := handler.NewBillingHandler(stripeSvc, validate)
	adminHandler := handler.NewAdminHandler(settingsSvc, modelSvc, usageSvc, validate)

	// 6. Middleware
	adminAuth := middleware.AdminAuth(cfg.AdminJWTSecret)

	// 7. Routes. API under /v1; the Stripe webhook stays at the top
	// level because signature verification needs the raw body and no
	// extra middleware in front of it.
	apiV1Mux := http.NewServeMux()
	processHandler.RegisterRoutes(apiV1Mux)
	userHandler.RegisterRoutes(apiV1Mux)
	billingHandler.RegisterRoutes(apiV1Mux)
	adminHandler.RegisterRoutes(apiV1Mux, adminAuth)

	mux := http.NewServeMux()
	mux.Handle("/v1/", http.StripPrefix("/v1", apiV1Mux))
	mux.HandleFunc("POST /webhook/stripe", stripeSvc.HandleWebhook)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"status":      "ok",
			"environment": cfg.Environment,
		})
	})

	// 8. CORS: the extension calls from arbitrary youtube.com pages.
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	return middleware.RequestLogger(c.Handler(mux)), pool, nil
}
