package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/cmw1990/connect-and-care-api/internal/config"
	"github.com/cmw1990/connect-and-care-api/internal/email"
	"github.com/cmw1990/connect-and-care-api/internal/repository/postgres"
	alertService "github.com/cmw1990/connect-and-care-api/internal/service/alert"
	auditService "github.com/cmw1990/connect-and-care-api/internal/service/audit"
	eventService "github.com/cmw1990/connect-and-care-api/internal/service/event"
	"github.com/cmw1990/connect-and-care-api/internal/service/interaction"
	medicationService "github.com/cmw1990/connect-and-care-api/internal/service/medication"
	notificationService "github.com/cmw1990/connect-and-care-api/internal/service/notification"
	pharmacyService "github.com/cmw1990/connect-and-care-api/internal/service/pharmacy"
	"github.com/cmw1990/connect-and-care-api/pkg/logger"
	redisbroker "github.com/cmw1990/connect-and-care-api/pkg/messaging/redis"
	"github.com/cmw1990/connect-and-care-api/pkg/metrics"
	"github.com/cmw1990/connect-and-care-api/pkg/worker"
)

const sweepInterval = 15 * time.Minute

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

	m := metrics.NewMetrics("care", "worker")

	// Repositories
	medicationRepo := postgres.NewMedicationRepository(db)
	medicationLogRepo := postgres.NewMedicationLogRepository(db)
	prescriptionRepo := postgres.NewPrescriptionRepository(db)
	pharmacyOrderRepo := postgres.NewPharmacyOrderRepository(db)
	careAlertRepo := postgres.NewCareAlertRepository(db)
	notificationRepo := postgres.NewNotificationRepository(db)
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

	emailSvc := email.NewService(email.Config{
		Host:     cfg.Email.Host,
		Port:     cfg.Email.Port,
		Username: cfg.Email.Username,
		Password: cfg.Email.Password,
		From:     cfg.Email.From,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Event consumers: warm caches and subscribe to change channels.
	if err := alertSvc.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start alert service")
	}
	defer alertSvc.Stop()

	if err := medicationSvc.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start medication service")
	}
	defer medicationSvc.Stop()

	outboxProcessor := worker.NewOutboxProcessor(outboxRepo, broker, worker.OutboxProcessorConfig{
		BatchSize:     cfg.Outbox.BatchSize,
		PollInterval:  time.Duration(cfg.Outbox.PollIntervalSeconds) * time.Second,
		RetryAttempts: 3,
		RetryDelay:    time.Second,
		Retention:     time.Duration(cfg.Outbox.RetentionDays) * 24 * time.Hour,
	}, appLogger, m)
	go outboxProcessor.Start(ctx)

	dispatcher := worker.NewNotificationDispatcher(notificationRepo, broker, emailSvc,
		worker.NotificationDispatcherConfig{
			BatchSize:    cfg.Dispatcher.BatchSize,
			PollInterval: time.Duration(cfg.Dispatcher.PollIntervalSeconds) * time.Second,
		}, appLogger, m)
	go dispatcher.Start(ctx)

	go runSweeps(ctx, appLogger, medicationSvc, pharmacySvc,
		time.Duration(cfg.Medication.OverdueGraceMinutes)*time.Minute)

	setupHealthAndMetrics(appLogger, cfg.Metrics.Port)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	appLogger.Info("Shutting down worker")
	cancel()
}

// runSweeps periodically marks overdue pending doses and expires lapsed
// prescriptions.
func runSweeps(ctx context.Context, l *logger.Logger, medSvc *medicationService.Service, rxSvc *pharmacyService.Service, grace time.Duration) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			overdue, err := medSvc.MarkOverdueDoses(ctx, grace)
			if err != nil {
				l.Error(err, "Failed to mark overdue doses")
			} else if overdue > 0 {
				l.Info("Marked overdue doses", "count", overdue)
			}

			expired, err := rxSvc.ExpireDuePrescriptions(ctx)
			if err != nil {
				l.Error(err, "Failed to expire prescriptions")
			} else if expired > 0 {
				l.Info("Expired prescriptions", "count", expired)
			}
		}
	}
}

func setupHealthAndMetrics(l *logger.Logger, port int) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		if err := http.ListenAndServe(fmt.Sprintf(":%d", port), mux); err != nil {
			l.Error(err, "Health check server failed")
			os.Exit(1)
		}
	}()
}
