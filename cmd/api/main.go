package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	alertHandler "github.com/cmw1990/connect-and-care-api/internal/handler/alert"
	authHandler "github.com/cmw1990/connect-and-care-api/internal/handler/auth"
	healthHandler "github.com/cmw1990/connect-and-care-api/internal/handler/health"
	medicationHandler "github.com/cmw1990/connect-and-care-api/internal/handler/medication"
	pharmacyHandler "github.com/cmw1990/connect-and-care-api/internal/handler/pharmacy"

	"github.com/cmw1990/connect-and-care-api/internal/config"
	"github.com/cmw1990/connect-and-care-api/internal/middleware"
	"github.com/cmw1990/connect-and-care-api/internal/repository/postgres"
	"github.com/cmw1990/connect-and-care-api/internal/router"
	alertService "github.com/cmw1990/connect-and-care-api/internal/service/alert"
	auditService "github.com/cmw1990/connect-and-care-api/internal/service/audit"
	authService "github.com/cmw1990/connect-and-care-api/internal/service/auth"
	eventService "github.com/cmw1990/connect-and-care-api/internal/service/event"
	"github.com/cmw1990/connect-and-care-api/internal/service/interaction"
	medicationService "github.com/cmw1990/connect-and-care-api/internal/service/medication"
	notificationService "github.com/cmw1990/connect-and-care-api/internal/service/notification"
	pharmacyService "github.com/cmw1990/connect-and-care-api/internal/service/pharmacy"
	pkgauth "github.com/cmw1990/connect-and-care-api/pkg/auth"
	"github.com/cmw1990/connect-and-care-api/pkg/logger"
	redisbroker "github.com/cmw1990/connect-and-care-api/pkg/messaging/redis"
	"github.com/cmw1990/connect-and-care-api/pkg/metrics"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(nil)

	db, err := postgres.NewDB(postgres.DatabaseConfig{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Name:     cfg.Database.Name,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	broker, err := redisbroker.NewRedisBroker(redisbroker.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   3,
		RetryBackoff: 100 * time.Millisecond,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, &log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer broker.Close()

	m := metrics.NewMetrics("care", "api")

	// Repositories
	medicationRepo := postgres.NewMedicationRepository(db)
	medicationLogRepo := postgres.NewMedicationLogRepository(db)
	prescriptionRepo := postgres.NewPrescriptionRepository(db)
	pharmacyOrderRepo := postgres.NewPharmacyOrderRepository(db)
	careAlertRepo := postgres.NewCareAlertRepository(db)
	notificationRepo := postgres.NewNotificationRepository(db)
	caregiverRepo := postgres.NewCaregiverRepository(db)
	outboxRepo := postgres.NewOutboxRepository(db)
	auditRepo := postgres.NewAuditRepository(db)

	// Services
	auditSvc := auditService.NewService(auditRepo, appLogger)
	eventSvc := eventService.NewService(outboxRepo)
	notifSvc := notificationService.NewService(notificationRepo)
	alertSvc := alertService.NewService(careAlertRepo, notifSvc, eventSvc, broker, auditSvc, appLogger, m)
	medicationSvc := medicationService.NewService(
		medicationRepo, medicationLogRepo, notifSvc, alertSvc, eventSvc, broker, auditSvc, appLogger, m)
	checker := interaction.NewClient(interaction.Config{
		BaseURL: cfg.Interaction.BaseURL,
		Timeout: time.Duration(cfg.Interaction.TimeoutSeconds) * time.Second,
	})
	pharmacySvc := pharmacyService.NewService(
		prescriptionRepo, pharmacyOrderRepo, medicationRepo, notifSvc, checker, auditSvc, appLogger)
	jwtSvc := pkgauth.NewJWTService(cfg.JWT.Secret, cfg.JWTExpiry())
	authSvc := authService.NewService(caregiverRepo, jwtSvc, auditSvc)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(authSvc)
	careAccess := middleware.NewCareAccessMiddleware(auditSvc)

	// Handlers
	r := router.NewRouter(
		authMiddleware,
		careAccess,
		authHandler.NewHandler(authSvc),
		healthHandler.NewHandler(db),
		medicationHandler.NewHandler(medicationSvc),
		alertHandler.NewHandler(alertSvc),
		pharmacyHandler.NewHandler(pharmacySvc),
		router.Config{
			RateLimit:     rate.Limit(cfg.RateLimit.RequestsPerSecond),
			RateBurst:     cfg.RateLimit.Burst,
			CORSConfig:    middleware.DefaultCORSConfig(),
			MetricsPrefix: "care_api",
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
	}

	go func() {
		appLogger.Info("Starting API server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("forced shutdown")
	}

	appLogger.Info("Server exited")
}
