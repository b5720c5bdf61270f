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

type caregiverRepository struct {
	db *sqlx.DB
}

func NewCaregiverRepository(db *sqlx.DB) repository.CaregiverRepository {
	return &caregiverRepository{db: db}
}

func (r *caregiverRepository) Create(ctx context.Context, cg *model.Caregiver) error {
	query := `
		INSERT INTO caregivers (id, email, password_hash, name, phone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	cg.ID = uuid.New()
	cg.CreatedAt = time.Now()
	cg.UpdatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		cg.ID,
		cg.Email,
		cg.PasswordHash,
		cg.Name,
		cg.Phone,
		cg.CreatedAt,
		cg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create caregiver: %w", err)
	}
	return nil
}

func (r *caregiverRepository) Get(ctx context.Context, id uuid.UUID) (*model.Caregiver, error) {
	query := `
		SELECT id, email, password_hash, name, phone, created_at, updated_at
		FROM caregivers
		WHERE id = $1
	`
	var cg model.Caregiver
	err := r.db.GetContext(ctx, &cg, query, id)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFound("caregiver", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get caregiver: %w", err)
	}
	return &cg, nil
}

func (r *caregiverRepository) GetByEmail(ctx context.Context, email string) (*model.Caregiver, error) {
	query := `
		SELECT id, email, password_hash, name, phone, created_at, updated_at
		FROM caregivers
		WHERE email = $1
	`
	var cg model.Caregiver
	err := r.db.GetContext(ctx, &cg, query, email)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFound("caregiver", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get caregiver by email: %w", err)
	}
	return &cg, nil
}
