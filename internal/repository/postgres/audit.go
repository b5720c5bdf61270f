package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cmw1990/connect-and-care-api/internal/model"
	"github.com/cmw1990/connect-and-care-api/internal/repository"
)

type auditRepository struct {
	db *sqlx.DB
}

func NewAuditRepository(db *sqlx.DB) repository.AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Create(ctx context.Context, log *model.AuditLog) error {
	query := `
		INSERT INTO audit_logs (id, actor_id, patient_id, action, resource, resource_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	log.ID = uuid.New()
	log.CreatedAt = time.Now()

	var metadata json.RawMessage
	if log.Metadata != nil {
		b, err := json.Marshal(log.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal audit metadata: %w", err)
		}
		metadata = b
	}

	_, err := r.db.ExecContext(ctx, query,
		log.ID,
		log.ActorID,
		log.PatientID,
		log.Action,
		log.Resource,
		log.ResourceID,
		metadata,
		log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return nil
}

func (r *auditRepository) List(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]*model.AuditLog, error) {
	query := `
		SELECT id, actor_id, patient_id, action, resource, resource_id, created_at
		FROM audit_logs
		WHERE patient_id = $1 AND created_at >= $2 AND created_at <= $3
		ORDER BY created_at DESC
	`
	var logs []*model.AuditLog
	err := r.db.SelectContext(ctx, &logs, query, patientID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return logs, nil
}
