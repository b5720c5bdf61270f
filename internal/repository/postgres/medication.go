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

type medicationRepository struct {
	db *sqlx.DB
}

func NewMedicationRepository(db *sqlx.DB) repository.MedicationRepository {
	return &medicationRepository{db: db}
}

const medicationColumns = `
	id, patient_id, name, dosage, frequency, schedule, instructions,
	side_effects, interactions, status, adherence_rate, prescriber_id,
	pharmacy, refills_left, last_refill_date, next_refill_date,
	created_at, updated_at
`

func (r *medicationRepository) Create(ctx context.Context, med *model.Medication) error {
	query := `
		INSERT INTO medications (` + medicationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	med.ID = uuid.New()
	med.CreatedAt = time.Now()
	med.UpdatedAt = time.Now()
	if med.Status == "" {
		med.Status = model.MedicationStatusActive
	}

	_, err := r.db.ExecContext(ctx, query,
		med.ID,
		med.PatientID,
		med.Name,
		med.Dosage,
		med.Frequency,
		med.Schedule,
		med.Instructions,
		med.SideEffects,
		med.Interactions,
		med.Status,
		med.AdherenceRate,
		med.PrescriberID,
		med.Pharmacy,
		med.RefillsLeft,
		med.LastRefillDate,
		med.NextRefillDate,
		med.CreatedAt,
		med.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create medication: %w", err)
	}
	return nil
}

func (r *medicationRepository) Get(ctx context.Context, id uuid.UUID) (*model.Medication, error) {
	query := `SELECT ` + medicationColumns + ` FROM medications WHERE id = $1`

	var med model.Medication
	err := r.db.GetContext(ctx, &med, query, id)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFound("medication", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get medication: %w", err)
	}
	return &med, nil
}

func (r *medicationRepository) Update(ctx context.Context, med *model.Medication) error {
	query := `
		UPDATE medications
		SET dosage = $1, frequency = $2, schedule = $3, instructions = $4,
			status = $5, pharmacy = $6, refills_left = $7,
			last_refill_date = $8, next_refill_date = $9, updated_at = $10
		WHERE id = $11
	`
	med.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		med.Dosage,
		med.Frequency,
		med.Schedule,
		med.Instructions,
		med.Status,
		med.Pharmacy,
		med.RefillsLeft,
		med.LastRefillDate,
		med.NextRefillDate,
		med.UpdatedAt,
		med.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update medication: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NewNotFound("medication", nil)
	}
	return nil
}

func (r *medicationRepository) UpdateAdherenceRate(ctx context.Context, id uuid.UUID, rate float64) error {
	query := `
		UPDATE medications
		SET adherence_rate = $1, updated_at = $2
		WHERE id = $3
	`
	_, err := r.db.ExecContext(ctx, query, rate, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update adherence rate: %w", err)
	}
	return nil
}

func (r *medicationRepository) List(ctx context.Context, filters *model.MedicationFilters) ([]*model.Medication, error) {
	query := `SELECT ` + medicationColumns + ` FROM medications WHERE 1=1`
	args := []interface{}{}
	argCount := 1

	if filters != nil {
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
	}

	query += " ORDER BY created_at DESC"

	var medications []*model.Medication
	err := r.db.SelectContext(ctx, &medications, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list medications: %w", err)
	}
	return medications, nil
}

func (r *medicationRepository) ListActive(ctx context.Context) ([]*model.Medication, error) {
	query := `SELECT ` + medicationColumns + ` FROM medications WHERE status = $1`

	var medications []*model.Medication
	err := r.db.SelectContext(ctx, &medications, query, model.MedicationStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list active medications: %w", err)
	}
	return medications, nil
}
