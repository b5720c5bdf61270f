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

type medicationLogRepository struct {
	db *sqlx.DB
}

func NewMedicationLogRepository(db *sqlx.DB) repository.MedicationLogRepository {
	return &medicationLogRepository{db: db}
}

const medicationLogColumns = `
	id, medication_id, patient_id, scheduled_time, taken_time,
	status, notes, side_effects, created_at, updated_at
`

func (r *medicationLogRepository) Create(ctx context.Context, log *model.MedicationLog) error {
	query := `
		INSERT INTO medication_logs (` + medicationLogColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	log.ID = uuid.New()
	log.CreatedAt = time.Now()
	log.UpdatedAt = time.Now()
	if log.Status == "" {
		log.Status = model.MedicationLogStatusPending
	}

	_, err := r.db.ExecContext(ctx, query,
		log.ID,
		log.MedicationID,
		log.PatientID,
		log.ScheduledTime,
		log.TakenTime,
		log.Status,
		log.Notes,
		log.SideEffects,
		log.CreatedAt,
		log.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create medication log: %w", err)
	}
	return nil
}

func (r *medicationLogRepository) Get(ctx context.Context, id uuid.UUID) (*model.MedicationLog, error) {
	query := `SELECT ` + medicationLogColumns + ` FROM medication_logs WHERE id = $1`

	var log model.MedicationLog
	err := r.db.GetContext(ctx, &log, query, id)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFound("medication log", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get medication log: %w", err)
	}
	return &log, nil
}

// UpdateStatus transitions a log out of pending. The WHERE clause keeps the
// history append-only: a row whose status already left pending is never touched.
func (r *medicationLogRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.MedicationLogStatus, takenTime *time.Time, notes string, sideEffects []string) error {
	query := `
		UPDATE medication_logs
		SET status = $1, taken_time = $2, notes = $3, side_effects = $4, updated_at = $5
		WHERE id = $6 AND status = $7
	`
	result, err := r.db.ExecContext(ctx, query,
		status, takenTime, notes, model.StringList(sideEffects), time.Now(),
		id, model.MedicationLogStatusPending,
	)
	if err != nil {
		return fmt.Errorf("failed to update medication log: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NewConflict("medication log is not pending")
	}
	return nil
}

func (r *medicationLogRepository) List(ctx context.Context, filters *model.MedicationLogFilters) ([]*model.MedicationLog, error) {
	query := `SELECT ` + medicationLogColumns + ` FROM medication_logs WHERE 1=1`
	args := []interface{}{}
	argCount := 1

	if filters != nil {
		if filters.MedicationID != uuid.Nil {
			query += fmt.Sprintf(" AND medication_id = $%d", argCount)
			args = append(args, filters.MedicationID)
			argCount++
		}
		if filters.PatientID != uuid.Nil {
			query += fmt.Sprintf(" AND patient_id = $%d", argCount)
			args = append(args, filters.PatientID)
			argCount++
		}
		if filters.Status != "" {
			query += fmt.Sprintf(" AND status = $%d", argCount)
			args = append(args, filters.Status)
			argCount++
		}
		if !filters.From.IsZero() {
			query += fmt.Sprintf(" AND scheduled_time >= $%d", argCount)
			args = append(args, filters.From)
			argCount++
		}
		if !filters.To.IsZero() {
			query += fmt.Sprintf(" AND scheduled_time <= $%d", argCount)
			args = append(args, filters.To)
			argCount++
		}
	}

	query += " ORDER BY scheduled_time DESC"

	var logs []*model.MedicationLog
	err := r.db.SelectContext(ctx, &logs, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list medication logs: %w", err)
	}
	return logs, nil
}

func (r *medicationLogRepository) ListRecent(ctx context.Context, medicationID uuid.UUID, limit int) ([]*model.MedicationLog, error) {
	query := `
		SELECT ` + medicationLogColumns + `
		FROM medication_logs
		WHERE medication_id = $1 AND status != $2
		ORDER BY scheduled_time DESC
		LIMIT $3
	`
	var logs []*model.MedicationLog
	err := r.db.SelectContext(ctx, &logs, query, medicationID, model.MedicationLogStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent medication logs: %w", err)
	}
	return logs, nil
}

// MarkOverdue flips pending logs whose scheduled time passed the cutoff to
// missed and returns the transitioned rows.
func (r *medicationLogRepository) MarkOverdue(ctx context.Context, cutoff time.Time) ([]*model.MedicationLog, error) {
	query := `
		UPDATE medication_logs
		SET status = $1, updated_at = $2
		WHERE status = $3 AND scheduled_time < $4
		RETURNING ` + medicationLogColumns + `
	`
	var logs []*model.MedicationLog
	err := r.db.SelectContext(ctx, &logs, query,
		model.MedicationLogStatusMissed, time.Now(),
		model.MedicationLogStatusPending, cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to mark overdue medication logs: %w", err)
	}
	return logs, nil
}
