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

type pharmacyOrderRepository struct {
	db *sqlx.DB
}

func NewPharmacyOrderRepository(db *sqlx.DB) repository.PharmacyOrderRepository {
	return &pharmacyOrderRepository{db: db}
}

const pharmacyOrderColumns = `
	id, prescription_id, patient_id, status, requested_at,
	estimated_ready, completed_at, notify_channel, created_at, updated_at
`

func (r *pharmacyOrderRepository) Create(ctx context.Context, order *model.PharmacyOrder) error {
	query := `
		INSERT INTO pharmacy_orders (` + pharmacyOrderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	order.ID = uuid.New()
	order.CreatedAt = time.Now()
	order.UpdatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		order.ID,
		order.PrescriptionID,
		order.PatientID,
		order.Status,
		order.RequestedAt,
		order.EstimatedReady,
		order.CompletedAt,
		order.NotifyChannel,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create pharmacy order: %w", err)
	}
	return nil
}

func (r *pharmacyOrderRepository) Get(ctx context.Context, id uuid.UUID) (*model.PharmacyOrder, error) {
	query := `SELECT ` + pharmacyOrderColumns + ` FROM pharmacy_orders WHERE id = $1`

	var order model.PharmacyOrder
	err := r.db.GetContext(ctx, &order, query, id)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFound("pharmacy order", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pharmacy order: %w", err)
	}
	return &order, nil
}

func (r *pharmacyOrderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.PharmacyOrderStatus, completedAt *time.Time) error {
	query := `
		UPDATE pharmacy_orders
		SET status = $1, completed_at = $2, updated_at = $3
		WHERE id = $4
	`
	result, err := r.db.ExecContext(ctx, query, status, completedAt, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update pharmacy order: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NewNotFound("pharmacy order", nil)
	}
	return nil
}

func (r *pharmacyOrderRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.PharmacyOrder, error) {
	query := `
		SELECT ` + pharmacyOrderColumns + `
		FROM pharmacy_orders
		WHERE patient_id = $1
		ORDER BY requested_at DESC
	`
	var orders []*model.PharmacyOrder
	err := r.db.SelectContext(ctx, &orders, query, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pharmacy orders: %w", err)
	}
	return orders, nil
}
