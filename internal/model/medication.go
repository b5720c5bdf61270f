package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type MedicationStatus string

const (
	MedicationStatusActive       MedicationStatus = "active"
	MedicationStatusDiscontinued MedicationStatus = "discontinued"
	MedicationStatusCompleted    MedicationStatus = "completed"
)

// Schedule describes the weekly dosing pattern for a medication.
// Times are "HH:MM" clock values; DaysOfWeek uses 0=Sunday..6=Saturday.
type Schedule struct {
	Times      []string   `json:"times" binding:"omitempty,dive,clocktime"`
	DaysOfWeek []int      `json:"days_of_week" binding:"omitempty,dive,min=0,max=6"`
	StartDate  time.Time  `json:"start_date"`
	EndDate    *time.Time `json:"end_date,omitempty"`
}

func (s Schedule) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *Schedule) Scan(value interface{}) error {
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("unexpected schedule column type %T", value)
	}
	return json.Unmarshal(b, s)
}

// Pharmacy is the optional pharmacy contact block on a medication.
type Pharmacy struct {
	Name    string `json:"name,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

func (p Pharmacy) Value() (driver.Value, error) {
	return json.Marshal(p)
}

func (p *Pharmacy) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("unexpected pharmacy column type %T", value)
	}
	return json.Unmarshal(b, p)
}

type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal([]string{})
	}
	return json.Marshal(l)
}

func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("unexpected list column type %T", value)
	}
	return json.Unmarshal(b, l)
}

// Medication represents a prescribed drug for one patient. Medications are
// never hard-deleted; discontinuation supersedes deletion.
type Medication struct {
	ID             uuid.UUID        `db:"id" json:"id"`
	PatientID      uuid.UUID        `db:"patient_id" json:"patient_id"`
	Name           string           `db:"name" json:"name"`
	Dosage         string           `db:"dosage" json:"dosage"`
	Frequency      string           `db:"frequency" json:"frequency"`
	Schedule       Schedule         `db:"schedule" json:"schedule"`
	Instructions   string           `db:"instructions" json:"instructions,omitempty"`
	SideEffects    StringList       `db:"side_effects" json:"side_effects,omitempty"`
	Interactions   StringList       `db:"interactions" json:"interactions,omitempty"`
	Status         MedicationStatus `db:"status" json:"status"`
	AdherenceRate  float64          `db:"adherence_rate" json:"adherence_rate"`
	PrescriberID   uuid.UUID        `db:"prescriber_id" json:"prescriber_id"`
	Pharmacy       *Pharmacy        `db:"pharmacy" json:"pharmacy,omitempty"`
	RefillsLeft    int              `db:"refills_left" json:"refills_left"`
	LastRefillDate *time.Time       `db:"last_refill_date" json:"last_refill_date,omitempty"`
	NextRefillDate *time.Time       `db:"next_refill_date" json:"next_refill_date,omitempty"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updated_at"`
}

type CreateMedicationRequest struct {
	PatientID    uuid.UUID `json:"patient_id" binding:"required"`
	Name         string    `json:"name" binding:"required,max=200"`
	Dosage       string    `json:"dosage" binding:"required,max=100"`
	Frequency    string    `json:"frequency" binding:"max=200"`
	Schedule     Schedule  `json:"schedule" binding:"required"`
	Instructions string    `json:"instructions" binding:"max=2000"`
	PrescriberID uuid.UUID `json:"prescriber_id" binding:"required"`
	Pharmacy     *Pharmacy `json:"pharmacy"`
	RefillsLeft  int       `json:"refills_left" binding:"min=0"`
}

type UpdateMedicationRequest struct {
	Dosage       *string           `json:"dosage"`
	Frequency    *string           `json:"frequency"`
	Schedule     *Schedule         `json:"schedule"`
	Instructions *string           `json:"instructions"`
	Status       *MedicationStatus `json:"status"`
	Pharmacy     *Pharmacy         `json:"pharmacy"`
}

type MedicationFilters struct {
	PatientID uuid.UUID
	Status    MedicationStatus
}
