package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BradenHooton/riskgate/internal/auth"
	"github.com/BradenHooton/riskgate/internal/background"
	"github.com/BradenHooton/riskgate/internal/config"
	"github.com/BradenHooton/riskgate/internal/database"
	"github.com/BradenHooton/riskgate/internal/geo"
	"github.com/BradenHooton/riskgate/internal/handlers"
	middlewareCustom "github.com/BradenHooton/riskgate/internal/middleware"
	"github.com/BradenHooton/riskgate/internal/repositories"
	"github.com/BradenHooton/riskgate/internal/risk"
	"github.com/BradenHooton/riskgate/internal/routes"
	"github.com/BradenHooton/riskgate/internal/services"
	pkgauth "github.com/BradenHooton/riskgate/pkg/auth"
	pkghttp "github.com/BradenHooton/riskgate/pkg/http"
	pkglogger "github.com/BradenHooton/riskgate/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Server.LogLevel)); err != nil {
		logger.Warn("unknown log level, using info", slog.String("log_level", cfg.Server.LogLevel))
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	db, err := database.NewConnection(startupCtx, &cfg.Database, logger)
	if err != nil {
		startupCancel()
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(startupCtx); err != nil {
		startupCancel()
		logger.Error("failed to apply migrations", slog.Any("error", err))
		os.Exit(1)
	}
	startupCancel()

	// Risk classifier. Without a model every evaluated login escalates to MFA.
	var classifier risk.Classifier
	classifierLoaded := false
	if model, err := risk.LoadClassifier(cfg.Risk.ModelPath); err != nil {
		logger.Warn("risk classifier unavailable, failing closed",
			slog.String("path", cfg.Risk.ModelPath),
			slog.Any("error", err))
		classifier = risk.Unavailable(err)
	} else {
		classifier = model
		classifierLoaded = true
		logger.Info("risk classifier loaded", slog.String("path", cfg.Risk.ModelPath))
	}

	// Optional GeoIP fallback for attempts without coordinates
	var locator *geo.Resolver
	if cfg.Risk.GeoIPPath != "" {
		locator, err = geo.Open(cfg.Risk.GeoIPPath)
		if err != nil {
			logger.Error("failed to open geoip database", slog.Any("error", err))
			os.Exit(1)
		}
		defer locator.Close()
	}

	ipConfig, err := pkghttp.NewIPConfig(cfg.Server.TrustedProxies)
	if err != nil {
		logger.Error("invalid trusted proxies", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize repositories
	tenantRepo := repositories.NewTenantRepository(db)
	accountRepo := repositories.NewAccountRepository(db)

	// Initialize security components
	auditLogger := pkglogger.NewAuditLogger(logger)
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.SessionTokenExpiry)
	hasher := pkgauth.NewPasswordHasher(cfg.Auth.BcryptCost)
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelay:   cfg.Auth.FailureDelay,
		RandomDelay: cfg.Auth.FailureJitter,
	})
	engine := risk.NewEngine(classifier, logger)

	// Initialize services
	tenantService := services.NewTenantService(tenantRepo, auth.NewTenantKeyManager(), logger, auditLogger)
	authService := services.NewAuthService(accountRepo, engine, hasher, tokenManager, locator, timingDelay, logger, auditLogger)
	userService := services.NewUserService(accountRepo, hasher, logger, auditLogger)

	// Initialize cleanup manager
	cleanupManager := background.NewCleanupManager(accountRepo, logger, cfg.History.Retention, cfg.History.CleanupInterval)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	deps := routes.Deps{
		AuthHandler:   handlers.NewAuthHandler(authService, ipConfig, logger),
		TenantHandler: handlers.NewTenantHandler(tenantService, cfg.Auth.TenantCreationToken),
		UserHandler:   handlers.NewUserHandler(userService),
		Health:        handlers.Health(db, classifierLoaded),
		Tenants:       tenantService,
		TokenManager:  tokenManager,
		AuditLogger:   auditLogger,
		IPConfig:      ipConfig,
		RateLimit: middlewareCustom.RateLimitConfig{
			RequestsPerMinute: cfg.Auth.LoginRatePerMinute,
			IPConfig:          ipConfig,
		},
	}
	if cfg.Risk.MetricsEnabled {
		deps.Metrics = promhttp.Handler()
	}
	routes.RegisterRoutes(router, deps)

	if cfg.Auth.TenantCreationToken == "" {
		logger.Warn("TENANT_CREATION_TOKEN not set, tenant creation is open")
	}

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}
