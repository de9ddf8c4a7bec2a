package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/regulacao-api/internal/config"
	"github.com/jwalitptl/regulacao-api/internal/handler"
	authhandler "github.com/jwalitptl/regulacao-api/internal/handler/auth"
	cataloghandler "github.com/jwalitptl/regulacao-api/internal/handler/catalog"
	"github.com/jwalitptl/regulacao-api/internal/handler/health"
	notificationhandler "github.com/jwalitptl/regulacao-api/internal/handler/notification"
	patienthandler "github.com/jwalitptl/regulacao-api/internal/handler/patient"
	requesthandler "github.com/jwalitptl/regulacao-api/internal/handler/request"
	"github.com/jwalitptl/regulacao-api/internal/middleware"
	"github.com/jwalitptl/regulacao-api/internal/repository/postgres"
	"github.com/jwalitptl/regulacao-api/internal/router"
	authService "github.com/jwalitptl/regulacao-api/internal/service/auth"
	catalogService "github.com/jwalitptl/regulacao-api/internal/service/catalog"
	notificationService "github.com/jwalitptl/regulacao-api/internal/service/notification"
	"github.com/jwalitptl/regulacao-api/internal/service/notify"
	patientService "github.com/jwalitptl/regulacao-api/internal/service/patient"
	requestService "github.com/jwalitptl/regulacao-api/internal/service/request"
	"github.com/jwalitptl/regulacao-api/internal/storage"
	"github.com/jwalitptl/regulacao-api/migrations"
	"github.com/jwalitptl/regulacao-api/pkg/auth"
	"github.com/jwalitptl/regulacao-api/pkg/logger"
	"github.com/jwalitptl/regulacao-api/pkg/metrics"
	"github.com/jwalitptl/regulacao-api/pkg/security"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	appLogger := logger.NewLogger(&cfg.Log)
	log := appLogger.ZL

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize database
	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		n, err := migrations.Up(db.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to apply migrations")
		}
		log.Info().Int("applied", n).Msg("migrations applied")
	}

	ctx := context.Background()
	store, err := newStore(ctx, cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize file store")
	}
	uploader := storage.NewUploader(store, cfg.Storage.MaxSize)

	// Initialize repositories
	staffRepo := postgres.NewStaffRepository(db)
	patientRepo := postgres.NewPatientRepository(db)
	requestRepo := postgres.NewRequestRepository(db)
	catalogRepo := postgres.NewCatalogRepository(db)
	unitRepo := postgres.NewHealthUnitRepository(db)
	notificationRepo := postgres.NewNotificationRepository(db)

	// Initialize services
	appMetrics := metrics.NewMetrics("regulacao", "api", nil)
	jwtSvc := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, time.Duration(cfg.JWT.ExpiryHours)*time.Hour)
	hasher := security.NewBcryptHasher(security.PasswordPolicy{
		Cost:      cfg.Security.BcryptCost,
		MinLength: cfg.Security.PasswordMinLength,
	})
	authSvc := authService.NewService(staffRepo, jwtSvc, hasher, log)
	catalogSvc := catalogService.NewService(catalogRepo, unitRepo, requestRepo, cfg.Quota.CacheTTL)
	patientSvc := patientService.NewService(patientRepo, uploader, log)
	requestSvc := requestService.NewService(requestRepo, patientSvc, catalogSvc, uploader,
		[]notify.Formatter{
			&notify.WhatsAppFormatter{ResultBaseURL: cfg.Notify.ResultBaseURL, CountryCode: cfg.Notify.CountryCode},
			&notify.EmailFormatter{ResultBaseURL: cfg.Notify.ResultBaseURL},
		},
		appMetrics, log,
		requestService.Options{
			DuplicateWindow: time.Duration(cfg.Intake.DuplicateWindowDays) * 24 * time.Hour,
			Concurrency:     cfg.Intake.Concurrency,
			EnforceQuota:    cfg.Quota.Enforce,
		})
	notificationSvc := notificationService.NewService(notificationRepo, log)

	if admin, err := authSvc.EnsureAdmin(ctx, cfg.Bootstrap.AdminName, cfg.Bootstrap.AdminEmail, cfg.Bootstrap.AdminPassword); err != nil {
		log.Fatal().Err(err).Msg("failed to bootstrap admin account")
	} else if admin != nil {
		log.Info().Int64("staff_id", admin.ID).Str("email", admin.Email).Msg("bootstrap admin created")
	}

	// Initialize handlers
	base := handler.NewBaseHandler(cfg.Storage.MaxSize)
	r := router.NewRouter(middleware.NewAuthMiddleware(authSvc), router.Handlers{
		Health:       health.NewHandler(db, nil),
		Auth:         authhandler.NewHandler(base, authSvc),
		Patient:      patienthandler.NewHandler(base, patientSvc),
		Request:      requesthandler.NewHandler(base, requestSvc),
		Catalog:      cataloghandler.NewHandler(base, catalogSvc),
		Notification: notificationhandler.NewHandler(base, notificationSvc),
	}, router.RouterConfig{
		RateLimitEnabled: cfg.RateLimit.Enabled,
		RateLimit:        rate.Limit(cfg.RateLimit.RequestsPerSecond),
		RateBurst:        cfg.RateLimit.Burst,
		CORSConfig:       middleware.DefaultCORSConfig(cfg.Security.AllowedOrigins...),
		MaxBodyBytes:     cfg.Server.MaxBodyBytes,
		RequestTimeout:   cfg.Server.WriteTimeout,
		CatalogMaxAge:    60,
		MetricsPrefix:    "regulacao_http",
	}).Setup()

	// Create server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}

func newStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Driver {
	case "memory":
		return storage.NewMemoryStore(), nil
	case "minio", "":
		return storage.NewMinioStore(ctx, cfg)
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}
