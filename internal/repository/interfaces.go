package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/cmw1990/connect-and-care-api/internal/model"
)

// All repository interfaces in one file
type (
	MedicationRepository interface {
		Create(ctx context.Context, med *model.Medication) error
		Get(ctx context.Context, id uuid.UUID) (*model.Medication, error)
		Update(ctx context.Context, med *model.Medication) error
		UpdateAdherenceRate(ctx context.Context, id uuid.UUID, rate float64) error
		List(ctx context.Context, filters *model.MedicationFilters) ([]*model.Medication, error)
		ListActive(ctx context.Context) ([]*model.Medication, error)
	}

	MedicationLogRepository interface {
		Create(ctx context.Context, log *model.MedicationLog) error
		Get(ctx context.Context, id uuid.UUID) (*model.MedicationLog, error)
		UpdateStatus(ctx context.Context, id uuid.UUID, status model.MedicationLogStatus, takenTime *time.Time, notes string, sideEffects []string) error
		List(ctx context.Context, filters *model.MedicationLogFilters) ([]*model.MedicationLog, error)
		ListRecent(ctx context.Context, medicationID uuid.UUID, limit int) ([]*model.MedicationLog, error)
		MarkOverdue(ctx context.Context, cutoff time.Time) ([]*model.MedicationLog, error)
	}

	PrescriptionRepository interface {
		Create(ctx context.Context, p *model.Prescription) error
		Get(ctx context.Context, id uuid.UUID) (*model.Prescription, error)
		Update(ctx context.Context, p *model.Prescription) error
		DecrementRefills(ctx context.Context, id uuid.UUID) error
		ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.Prescription, error)
		ExpireDue(ctx context.Context, now time.Time) (int64, error)
	}

	PharmacyOrderRepository interface {
		Create(ctx context.Context, order *model.PharmacyOrder) error
		Get(ctx context.Context, id uuid.UUID) (*model.PharmacyOrder, error)
		UpdateStatus(ctx context.Context, id uuid.UUID, status model.PharmacyOrderStatus, completedAt *time.Time) error
		ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.PharmacyOrder, error)
	}

	CareAlertRepository interface {
		Create(ctx context.Context, alert *model.CareAlert) error
		Get(ctx context.Context, id uuid.UUID) (*model.CareAlert, error)
		Update(ctx context.Context, alert *model.CareAlert) error
		ListActive(ctx context.Context, patientID *uuid.UUID) ([]*model.CareAlert, error)
		ListHistory(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]*model.CareAlert, error)
	}

	NotificationRepository interface {
		Create(ctx context.Context, n *model.ScheduledNotification) error
		Get(ctx context.Context, id uuid.UUID) (*model.ScheduledNotification, error)
		CancelByKey(ctx context.Context, dedupeKey string) error
		CancelByKeyPrefix(ctx context.Context, prefix string) (int64, error)
		CountScheduledByKeyPrefix(ctx context.Context, prefix string) (int, error)
		GetDueWithLock(ctx context.Context, now time.Time, limit int) ([]*model.ScheduledNotification, error)
		MarkStatus(ctx context.Context, id uuid.UUID, status model.NotificationStatus, lastError *string) error
	}

	CaregiverRepository interface {
		Create(ctx context.Context, cg *model.Caregiver) error
		Get(ctx context.Context, id uuid.UUID) (*model.Caregiver, error)
		GetByEmail(ctx context.Context, email string) (*model.Caregiver, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		GetPendingWithLock(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, lastError *string) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}

	AuditRepository interface {
		Create(ctx context.Context, log *model.AuditLog) error
		List(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]*model.AuditLog, error)
	}
)
