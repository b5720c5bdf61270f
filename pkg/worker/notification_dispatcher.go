package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cmw1990/connect-and-care-api/internal/email"
	"github.com/cmw1990/connect-and-care-api/internal/model"
	"github.com/cmw1990/connect-and-care-api/internal/repository"
	"github.com/cmw1990/connect-and-care-api/pkg/logger"
	"github.com/cmw1990/connect-and-care-api/pkg/messaging"
	"github.com/cmw1990/connect-and-care-api/pkg/metrics"
)

type NotificationDispatcherConfig struct {
	BatchSize    int
	PollInterval time.Duration
}

// NotificationDispatcher fires scheduled notifications whose time has come.
// Push notifications are published to the patient's device channel; email
// notifications go through SMTP. Rows are claimed with a row lock so multiple
// dispatcher instances never fire the same notification twice.
type NotificationDispatcher struct {
	repo     repository.NotificationRepository
	broker   messaging.Broker
	emailSvc email.Service
	config   NotificationDispatcherConfig
	logger   *logger.Logger
	metrics  *metrics.Metrics
}

func NewNotificationDispatcher(
	repo repository.NotificationRepository,
	broker messaging.Broker,
	emailSvc email.Service,
	config NotificationDispatcherConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *NotificationDispatcher {
	if config.BatchSize <= 0 {
		panic("BatchSize must be greater than 0")
	}
	if config.PollInterval <= 0 {
		panic("PollInterval must be greater than 0")
	}

	return &NotificationDispatcher{
		repo:     repo,
		broker:   broker,
		emailSvc: emailSvc,
		config:   config,
		logger:   logger,
		metrics:  metrics,
	}
}

func (d *NotificationDispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	d.logger.Info("Starting notification dispatcher")

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Shutting down notification dispatcher")
			return
		case <-ticker.C:
			if err := d.dispatchDue(ctx); err != nil {
				d.logger.Error(err, "Failed to dispatch notifications")
			}
		}
	}
}

func (d *NotificationDispatcher) dispatchDue(ctx context.Context) error {
	timer := prometheus.NewTimer(d.metrics.DispatchLatency)
	defer timer.ObserveDuration()

	due, err := d.repo.GetDueWithLock(ctx, time.Now(), d.config.BatchSize)
	if err != nil {
		d.metrics.DatabaseOperations.WithLabelValues("get_due_notifications", "error").Inc()
		return fmt.Errorf("failed to get due notifications: %w", err)
	}
	d.metrics.DatabaseOperations.WithLabelValues("get_due_notifications", "success").Inc()

	for _, n := range due {
		if err := d.dispatch(ctx, n); err != nil {
			d.metrics.NotificationsFailed.WithLabelValues(n.Channel).Inc()
			d.logger.Error(err, "Failed to dispatch notification",
				"notification_id", n.ID.String(),
				"channel", n.Channel)

			errStr := err.Error()
			if updateErr := d.repo.MarkStatus(ctx, n.ID, model.NotificationStatusFailed, &errStr); updateErr != nil {
				d.logger.Error(updateErr, "Failed to mark notification failed", "notification_id", n.ID.String())
			}
			continue
		}

		d.metrics.NotificationsDispatched.WithLabelValues(n.Channel).Inc()
		if err := d.repo.MarkStatus(ctx, n.ID, model.NotificationStatusSent, nil); err != nil {
			d.logger.Error(err, "Failed to mark notification sent", "notification_id", n.ID.String())
		}
	}

	return nil
}

func (d *NotificationDispatcher) dispatch(ctx context.Context, n *model.ScheduledNotification) error {
	switch n.Channel {
	case model.ChannelEmail:
		if n.Recipient == "" {
			return fmt.Errorf("email notification %s has no recipient", n.ID)
		}
		return d.emailSvc.SendCustom(ctx, n.Recipient, n.Title, n.Body)
	default:
		push := &model.DevicePush{
			NotificationID: n.ID,
			Title:          n.Title,
			Body:           n.Body,
			Sound:          n.Sound,
			ActionType:     n.ActionType,
			Payload:        n.Payload,
		}
		return d.broker.Publish(ctx, model.DevicePushChannel(n.PatientID), push)
	}
}
