package model

import (
	"time"

	"github.com/google/uuid"
)

type MedicationLogStatus string

const (
	MedicationLogStatusPending MedicationLogStatus = "pending"
	MedicationLogStatusTaken   MedicationLogStatus = "taken"
	MedicationLogStatusMissed  MedicationLogStatus = "missed"
	MedicationLogStatusSkipped MedicationLogStatus = "skipped"
)

// MedicationLog is one record per scheduled dose occurrence. The history is
// append-only: once status leaves pending the row is immutable.
type MedicationLog struct {
	ID            uuid.UUID           `db:"id" json:"id"`
	MedicationID  uuid.UUID           `db:"medication_id" json:"medication_id"`
	PatientID     uuid.UUID           `db:"patient_id" json:"patient_id"`
	ScheduledTime time.Time           `db:"scheduled_time" json:"scheduled_time"`
	TakenTime     *time.Time          `db:"taken_time" json:"taken_time,omitempty"`
	Status        MedicationLogStatus `db:"status" json:"status"`
	Notes         string              `db:"notes" json:"notes,omitempty"`
	SideEffects   StringList          `db:"side_effects" json:"side_effects,omitempty"`
	CreatedAt     time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time           `db:"updated_at" json:"updated_at"`
}

type LogDoseRequest struct {
	Status      MedicationLogStatus `json:"status" binding:"required,oneof=taken skipped"`
	Notes       string              `json:"notes" binding:"max=2000"`
	SideEffects []string            `json:"side_effects"`
}

type CreateDoseLogRequest struct {
	PatientID     uuid.UUID `json:"patient_id" binding:"required"`
	ScheduledTime time.Time `json:"scheduled_time" binding:"required"`
}

type MedicationLogFilters struct {
	MedicationID uuid.UUID
	PatientID    uuid.UUID
	Status       MedicationLogStatus
	From         time.Time
	To           time.Time
}
