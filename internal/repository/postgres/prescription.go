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

type prescriptionRepository struct {
	db *sqlx.DB
}

func NewPrescriptionRepository(db *sqlx.DB) repository.PrescriptionRepository {
	return &prescriptionRepository{db: db}
}

const prescriptionColumns = `
	id, medication_id, patient_id, prescriber_id, pharmacy_name,
	expiration_date, refills_left, status, created_at, updated_at
`

func (r *prescriptionRepository) Create(ctx context.Context, p *model.Prescription) error {
	query := `
		INSERT INTO prescriptions (` + prescriptionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = time.Now()
	if p.Status == "" {
		p.Status = model.PrescriptionStatusActive
	}

	_, err := r.db.ExecContext(ctx, query,
		p.ID,
		p.MedicationID,
		p.PatientID,
		p.PrescriberID,
		p.PharmacyName,
		p.ExpirationDate,
		p.RefillsLeft,
		p.Status,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create prescription: %w", err)
	}
	return nil
}

func (r *prescriptionRepository) Get(ctx context.Context, id uuid.UUID) (*model.Prescription, error) {
	query := `SELECT ` + prescriptionColumns + ` FROM prescriptions WHERE id = $1`

	var p model.Prescription
	err := r.db.GetContext(ctx, &p, query, id)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFound("prescription", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prescription: %w", err)
	}
	return &p, nil
}

func (r *prescriptionRepository) Update(ctx context.Context, p *model.Prescription) error {
	query := `
		UPDATE prescriptions
		SET pharmacy_name = $1, expiration_date = $2, refills_left = $3,
			status = $4, updated_at = $5
		WHERE id = $6
	`
	p.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		p.PharmacyName,
		p.ExpirationDate,
		p.RefillsLeft,
		p.Status,
		p.UpdatedAt,
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update prescription: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NewNotFound("prescription", nil)
	}
	return nil
}

// DecrementRefills atomically consumes one refill. The guard in the WHERE
// clause rejects concurrent requests racing past a zero counter.
func (r *prescriptionRepository) DecrementRefills(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE prescriptions
		SET refills_left = refills_left - 1, updated_at = $1
		WHERE id = $2 AND refills_left > 0
	`
	result, err := r.db.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to decrement refills: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NewPrecondition("no refills remaining")
	}
	return nil
}

func (r *prescriptionRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.Prescription, error) {
	query := `
		SELECT ` + prescriptionColumns + `
		FROM prescriptions
		WHERE patient_id = $1
		ORDER BY created_at DESC
	`
	var prescriptions []*model.Prescription
	err := r.db.SelectContext(ctx, &prescriptions, query, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list prescriptions: %w", err)
	}
	return prescriptions, nil
}

func (r *prescriptionRepository) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE prescriptions
		SET status = $1, updated_at = $2
		WHERE status = $3 AND expiration_date < $4
	`
	result, err := r.db.ExecContext(ctx, query,
		model.PrescriptionStatusExpired, time.Now(),
		model.PrescriptionStatusActive, now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to expire prescriptions: %w", err)
	}
	return result.RowsAffected()
}
