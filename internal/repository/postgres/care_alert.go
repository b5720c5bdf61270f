package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cmw1990/connect-and-care-api/internal/model"
	"github.com/cmw1990/connect-and-care-api/internal/repository"
	apperrors "github.com/cmw1990/connect-and-care-api/pkg/errors"
)

type careAlertRepository struct {
	db *sqlx.DB
}

func NewCareAlertRepository(db *sqlx.DB) repository.CareAlertRepository {
	return &careAlertRepository{db: db}
}

const careAlertColumns = `
	id, patient_id, caregiver_id, type, priority, status, title,
	description, metadata, resolution, created_at, acknowledged_at,
	resolved_at, updated_at
`

func (r *careAlertRepository) Create(ctx context.Context, alert *model.CareAlert) error {
	query := `
		INSERT INTO care_alerts (` + careAlertColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	alert.ID = uuid.New()
	alert.CreatedAt = time.Now()
	alert.UpdatedAt = time.Now()
	if alert.Status == "" {
		alert.Status = model.AlertStatusActive
	}

	_, err := r.db.ExecContext(ctx, query,
		alert.ID,
		alert.PatientID,
		alert.CaregiverID,
		alert.Type,
		alert.Priority,
		alert.Status,
		alert.Title,
		alert.Description,
		alert.Metadata,
		alert.Resolution,
		alert.CreatedAt,
		alert.AcknowledgedAt,
		alert.ResolvedAt,
		alert.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create care alert: %w", err)
	}
	return nil
}

func (r *careAlertRepository) Get(ctx context.Context, id uuid.UUID) (*model.CareAlert, error) {
	query := `SELECT ` + careAlertColumns + ` FROM care_alerts WHERE id = $1`

	var alert model.CareAlert
	err := r.db.GetContext(ctx, &alert, query, id)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFound("care alert", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get care alert: %w", err)
	}
	return &alert, nil
}

func (r *careAlertRepository) Update(ctx context.Context, alert *model.CareAlert) error {
	query := `
		UPDATE care_alerts
		SET caregiver_id = $1, status = $2, resolution = $3,
			acknowledged_at = $4, resolved_at = $5, updated_at = $6
		WHERE id = $7
	`
	alert.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		alert.CaregiverID,
		alert.Status,
		alert.Resolution,
		alert.AcknowledgedAt,
		alert.ResolvedAt,
		alert.UpdatedAt,
		alert.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update care alert: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NewNotFound("care alert", nil)
	}
	return nil
}

func (r *careAlertRepository) ListActive(ctx context.Context, patientID *uuid.UUID) ([]*model.CareAlert, error) {
	query := `SELECT ` + careAlertColumns + ` FROM care_alerts WHERE status = $1`
	args := []interface{}{model.AlertStatusActive}

	if patientID != nil {
		query += " AND patient_id = $2"
		args = append(args, *patientID)
	}

	query += " ORDER BY created_at DESC"

	var alerts []*model.CareAlert
	err := r.db.SelectContext(ctx, &alerts, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list active care alerts: %w", err)
	}
	return alerts, nil
}

func (r *careAlertRepository) ListHistory(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]*model.CareAlert, error) {
	query := `
		SELECT ` + careAlertColumns + `
		FROM care_alerts
		WHERE patient_id = $1 AND created_at >= $2 AND created_at <= $3
		ORDER BY created_at DESC
	`
	var alerts []*model.CareAlert
	err := r.db.SelectContext(ctx, &alerts, query, patientID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list care alert history: %w", err)
	}
	return alerts, nil
}
