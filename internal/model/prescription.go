package model

import (
	"time"

	"github.com/google/uuid"
)

type PrescriptionStatus string

const (
	PrescriptionStatusActive    PrescriptionStatus = "active"
	PrescriptionStatusExpired   PrescriptionStatus = "expired"
	PrescriptionStatusCancelled PrescriptionStatus = "cancelled"
)

// Prescription links a medication to a prescriber, an expiration date and a
// remaining refill count.
type Prescription struct {
	ID             uuid.UUID          `db:"id" json:"id"`
	MedicationID   uuid.UUID          `db:"medication_id" json:"medication_id"`
	PatientID      uuid.UUID          `db:"patient_id" json:"patient_id"`
	PrescriberID   uuid.UUID          `db:"prescriber_id" json:"prescriber_id"`
	PharmacyName   string             `db:"pharmacy_name" json:"pharmacy_name,omitempty"`
	ExpirationDate time.Time          `db:"expiration_date" json:"expiration_date"`
	RefillsLeft    int                `db:"refills_left" json:"refills_left"`
	Status         PrescriptionStatus `db:"status" json:"status"`
	CreatedAt      time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time          `db:"updated_at" json:"updated_at"`
}

type CreatePrescriptionRequest struct {
	MedicationID   uuid.UUID `json:"medication_id" binding:"required"`
	PatientID      uuid.UUID `json:"patient_id" binding:"required"`
	PrescriberID   uuid.UUID `json:"prescriber_id" binding:"required"`
	PharmacyName   string    `json:"pharmacy_name" binding:"max=200"`
	ExpirationDate time.Time `json:"expiration_date" binding:"required"`
	RefillsLeft    int       `json:"refills_left" binding:"min=0"`
}
