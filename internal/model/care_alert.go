package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type AlertType string

const (
	AlertTypeEmergency   AlertType = "emergency"
	AlertTypeMedication  AlertType = "medication"
	AlertTypeVitalSigns  AlertType = "vital_signs"
	AlertTypeAppointment AlertType = "appointment"
	AlertTypeCareUpdate  AlertType = "care_update"
)

type AlertPriority string

const (
	AlertPriorityHigh   AlertPriority = "high"
	AlertPriorityMedium AlertPriority = "medium"
	AlertPriorityLow    AlertPriority = "low"
)

type AlertStatus string

const (
	AlertStatusActive       AlertStatus = "active"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusResolved     AlertStatus = "resolved"
)

// alertStatusRank orders alert statuses; transitions only move forward.
var alertStatusRank = map[AlertStatus]int{
	AlertStatusActive:       0,
	AlertStatusAcknowledged: 1,
	AlertStatusResolved:     2,
}

// CanTransitionTo reports whether status may advance to next. The lifecycle is
// monotonic: active -> acknowledged -> resolved, no reverse transitions.
func (s AlertStatus) CanTransitionTo(next AlertStatus) bool {
	cur, ok := alertStatusRank[s]
	if !ok {
		return false
	}
	nxt, ok := alertStatusRank[next]
	if !ok {
		return false
	}
	return nxt > cur
}

type VitalSigns struct {
	HeartRate     int     `json:"heart_rate,omitempty"`
	BloodPressure string  `json:"blood_pressure,omitempty"`
	Temperature   float64 `json:"temperature,omitempty"`
	OxygenLevel   int     `json:"oxygen_level,omitempty"`
}

type MedicationDetails struct {
	Name          string     `json:"name"`
	Dosage        string     `json:"dosage,omitempty"`
	ScheduledTime *time.Time `json:"scheduled_time,omitempty"`
}

type AppointmentDetails struct {
	Title    string    `json:"title"`
	Time     time.Time `json:"time"`
	Location string    `json:"location,omitempty"`
}

// AlertMetadata carries the optional structured payload for an alert. At most
// one of the sub-structs is expected per alert type; consumers render the
// first populated block.
type AlertMetadata struct {
	Location           string              `json:"location,omitempty"`
	VitalSigns         *VitalSigns         `json:"vital_signs,omitempty"`
	MedicationDetails  *MedicationDetails  `json:"medication_details,omitempty"`
	AppointmentDetails *AppointmentDetails `json:"appointment_details,omitempty"`
}

func (m AlertMetadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *AlertMetadata) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("unexpected metadata column type %T", value)
	}
	return json.Unmarshal(b, m)
}

// CareAlert is a prioritized, typed notification record surfaced to
// caregivers, independent of its originating feature.
type CareAlert struct {
	ID             uuid.UUID     `db:"id" json:"id"`
	PatientID      uuid.UUID     `db:"patient_id" json:"patient_id"`
	CaregiverID    *uuid.UUID    `db:"caregiver_id" json:"caregiver_id,omitempty"`
	Type           AlertType     `db:"type" json:"type"`
	Priority       AlertPriority `db:"priority" json:"priority"`
	Status         AlertStatus   `db:"status" json:"status"`
	Title          string        `db:"title" json:"title"`
	Description    string        `db:"description" json:"description,omitempty"`
	Metadata       AlertMetadata `db:"metadata" json:"metadata"`
	Resolution     string        `db:"resolution" json:"resolution,omitempty"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	AcknowledgedAt *time.Time    `db:"acknowledged_at" json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time    `db:"resolved_at" json:"resolved_at,omitempty"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}

type CreateAlertRequest struct {
	PatientID   uuid.UUID     `json:"patient_id" binding:"required"`
	Type        AlertType     `json:"type" binding:"required,oneof=emergency medication vital_signs appointment care_update"`
	Priority    AlertPriority `json:"priority" binding:"required,oneof=high medium low"`
	Title       string        `json:"title" binding:"required,max=200"`
	Description string        `json:"description" binding:"max=2000"`
	Metadata    AlertMetadata `json:"metadata"`
}

type AcknowledgeAlertRequest struct {
	CaregiverID uuid.UUID `json:"caregiver_id" binding:"required"`
}

type ResolveAlertRequest struct {
	Resolution string `json:"resolution" binding:"required,max=2000"`
}
