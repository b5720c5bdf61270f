package model

import (
	"time"

	"github.com/google/uuid"
)

// AuditLog records access to and mutation of care records.
type AuditLog struct {
	ID         uuid.UUID              `db:"id" json:"id"`
	ActorID    uuid.UUID              `db:"actor_id" json:"actor_id"`
	PatientID  uuid.UUID              `db:"patient_id" json:"patient_id"`
	Action     string                 `db:"action" json:"action"`
	Resource   string                 `db:"resource" json:"resource"`
	ResourceID uuid.UUID              `db:"resource_id" json:"resource_id"`
	Metadata   map[string]interface{} `db:"-" json:"metadata,omitempty"`
	CreatedAt  time.Time              `db:"created_at" json:"created_at"`
}
