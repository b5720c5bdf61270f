package model

import (
	"time"

	"github.com/google/uuid"
)

type PharmacyOrderStatus string

const (
	PharmacyOrderStatusPending    PharmacyOrderStatus = "pending"
	PharmacyOrderStatusProcessing PharmacyOrderStatus = "processing"
	PharmacyOrderStatusReady      PharmacyOrderStatus = "ready"
	PharmacyOrderStatusCompleted  PharmacyOrderStatus = "completed"
	PharmacyOrderStatusCancelled  PharmacyOrderStatus = "cancelled"
)

// PharmacyOrder is a refill request raised against a prescription.
type PharmacyOrder struct {
	ID             uuid.UUID           `db:"id" json:"id"`
	PrescriptionID uuid.UUID           `db:"prescription_id" json:"prescription_id"`
	PatientID      uuid.UUID           `db:"patient_id" json:"patient_id"`
	Status         PharmacyOrderStatus `db:"status" json:"status"`
	RequestedAt    time.Time           `db:"requested_at" json:"requested_at"`
	EstimatedReady *time.Time          `db:"estimated_ready" json:"estimated_ready,omitempty"`
	CompletedAt    *time.Time          `db:"completed_at" json:"completed_at,omitempty"`
	NotifyChannel  string              `db:"notify_channel" json:"notify_channel"`
	CreatedAt      time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time           `db:"updated_at" json:"updated_at"`
}

// orderTransitions holds the allowed forward transitions for pharmacy orders.
var orderTransitions = map[PharmacyOrderStatus][]PharmacyOrderStatus{
	PharmacyOrderStatusPending:    {PharmacyOrderStatusProcessing, PharmacyOrderStatusCancelled},
	PharmacyOrderStatusProcessing: {PharmacyOrderStatusReady, PharmacyOrderStatusCancelled},
	PharmacyOrderStatusReady:      {PharmacyOrderStatusCompleted, PharmacyOrderStatusCancelled},
}

// CanTransitionTo reports whether an order may move from its current status to next.
func (o *PharmacyOrder) CanTransitionTo(next PharmacyOrderStatus) bool {
	for _, allowed := range orderTransitions[o.Status] {
		if allowed == next {
			return true
		}
	}
	return false
}

type RequestRefillRequest struct {
	NotifyChannel string `json:"notify_channel" binding:"omitempty,oneof=push email"`
}
