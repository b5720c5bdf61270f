package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cmw1990/connect-and-care-api/internal/model"
	"github.com/cmw1990/connect-and-care-api/internal/repository"
)

// Service owns durable notification scheduling. Rows are fired by the
// dispatcher worker; everything here is write-side bookkeeping.
type Service interface {
	Schedule(ctx context.Context, n *model.ScheduledNotification) error
	ScheduleAlert(ctx context.Context, alert *model.CareAlert) error
	Cancel(ctx context.Context, dedupeKey string) error
	CancelForMedication(ctx context.Context, medicationID uuid.UUID) (int64, error)
	CountScheduledForMedication(ctx context.Context, medicationID uuid.UUID) (int, error)
}

type service struct {
	repo repository.NotificationRepository
}

func NewService(repo repository.NotificationRepository) Service {
	return &service{repo: repo}
}

func (s *service) Schedule(ctx context.Context, n *model.ScheduledNotification) error {
	if n.PatientID == uuid.Nil {
		return fmt.Errorf("patient ID is required")
	}
	if n.DedupeKey == "" {
		return fmt.Errorf("dedupe key is required")
	}
	if n.Title == "" {
		return fmt.Errorf("title is required")
	}
	if n.FireAt.IsZero() {
		return fmt.Errorf("fire time is required")
	}

	if err := s.repo.Create(ctx, n); err != nil {
		return fmt.Errorf("failed to schedule notification: %w", err)
	}
	return nil
}

// ScheduleAlert queues an immediate notification for a care alert, rendered
// with the priority emoji/sound templates.
func (s *service) ScheduleAlert(ctx context.Context, alert *model.CareAlert) error {
	n := &model.ScheduledNotification{
		PatientID:  alert.PatientID,
		DedupeKey:  fmt.Sprintf("alert_%s", alert.ID),
		Title:      AlertTitle(alert),
		Body:       AlertBody(alert),
		FireAt:     time.Now(),
		Sound:      AlertSound(alert.Priority),
		ActionType: model.ActionCareAlert,
		Payload: model.NotificationPayload{
			"alert_id": alert.ID.String(),
			"type":     string(alert.Type),
			"priority": string(alert.Priority),
		},
	}
	return s.Schedule(ctx, n)
}

func (s *service) Cancel(ctx context.Context, dedupeKey string) error {
	return s.repo.CancelByKey(ctx, dedupeKey)
}

// CancelForMedication removes every pending reminder for a medication.
// Reminder dedupe keys are prefixed with the medication ID.
func (s *service) CancelForMedication(ctx context.Context, medicationID uuid.UUID) (int64, error) {
	return s.repo.CancelByKeyPrefix(ctx, ReminderKeyPrefix(medicationID))
}

func (s *service) CountScheduledForMedication(ctx context.Context, medicationID uuid.UUID) (int, error) {
	return s.repo.CountScheduledByKeyPrefix(ctx, ReminderKeyPrefix(medicationID))
}

// ReminderKey builds the dedupe key for one reminder occurrence.
func ReminderKey(medicationID uuid.UUID, fireAt time.Time) string {
	return fmt.Sprintf("%s_%s", medicationID, fireAt.UTC().Format(time.RFC3339))
}

// ReminderKeyPrefix matches every reminder key for a medication.
func ReminderKeyPrefix(medicationID uuid.UUID) string {
	return medicationID.String() + "_"
}
