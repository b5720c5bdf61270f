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

type notificationRepository struct {
	db *sqlx.DB
}

func NewNotificationRepository(db *sqlx.DB) repository.NotificationRepository {
	return &notificationRepository{db: db}
}

const notificationColumns = `
	id, patient_id, dedupe_key, title, body, fire_at, sound, action_type,
	payload, channel, recipient, status, last_error, sent_at, created_at, updated_at
`

// Create inserts a scheduled notification. Re-scheduling the same dedupe key
// replaces the pending row, which keeps reminder expansion idempotent.
func (r *notificationRepository) Create(ctx context.Context, n *model.ScheduledNotification) error {
	query := `
		INSERT INTO scheduled_notifications (` + notificationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (dedupe_key) WHERE status = 'scheduled'
		DO UPDATE SET title = EXCLUDED.title, body = EXCLUDED.body,
			fire_at = EXCLUDED.fire_at, sound = EXCLUDED.sound,
			payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at
	`
	n.ID = uuid.New()
	n.CreatedAt = time.Now()
	n.UpdatedAt = time.Now()
	if n.Status == "" {
		n.Status = model.NotificationStatusScheduled
	}
	if n.Channel == "" {
		n.Channel = model.ChannelPush
	}

	_, err := r.db.ExecContext(ctx, query,
		n.ID,
		n.PatientID,
		n.DedupeKey,
		n.Title,
		n.Body,
		n.FireAt,
		n.Sound,
		n.ActionType,
		n.Payload,
		n.Channel,
		n.Recipient,
		n.Status,
		n.LastError,
		n.SentAt,
		n.CreatedAt,
		n.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create scheduled notification: %w", err)
	}
	return nil
}

func (r *notificationRepository) Get(ctx context.Context, id uuid.UUID) (*model.ScheduledNotification, error) {
	query := `SELECT ` + notificationColumns + ` FROM scheduled_notifications WHERE id = $1`

	var n model.ScheduledNotification
	err := r.db.GetContext(ctx, &n, query, id)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFound("scheduled notification", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scheduled notification: %w", err)
	}
	return &n, nil
}

func (r *notificationRepository) CancelByKey(ctx context.Context, dedupeKey string) error {
	query := `
		UPDATE scheduled_notifications
		SET status = $1, updated_at = $2
		WHERE dedupe_key = $3 AND status = $4
	`
	_, err := r.db.ExecContext(ctx, query,
		model.NotificationStatusCancelled, time.Now(),
		dedupeKey, model.NotificationStatusScheduled,
	)
	if err != nil {
		return fmt.Errorf("failed to cancel notification: %w", err)
	}
	return nil
}

func (r *notificationRepository) CancelByKeyPrefix(ctx context.Context, prefix string) (int64, error) {
	query := `
		UPDATE scheduled_notifications
		SET status = $1, updated_at = $2
		WHERE dedupe_key LIKE $3 AND status = $4
	`
	result, err := r.db.ExecContext(ctx, query,
		model.NotificationStatusCancelled, time.Now(),
		prefix+"%", model.NotificationStatusScheduled,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel notifications: %w", err)
	}
	return result.RowsAffected()
}

func (r *notificationRepository) CountScheduledByKeyPrefix(ctx context.Context, prefix string) (int, error) {
	query := `
		SELECT COUNT(*) FROM scheduled_notifications
		WHERE dedupe_key LIKE $1 AND status = $2
	`
	var count int
	err := r.db.GetContext(ctx, &count, query, prefix+"%", model.NotificationStatusScheduled)
	if err != nil {
		return 0, fmt.Errorf("failed to count scheduled notifications: %w", err)
	}
	return count, nil
}

// GetDueWithLock claims due rows for dispatch. SKIP LOCKED lets concurrent
// dispatcher instances share the queue without double-firing.
func (r *notificationRepository) GetDueWithLock(ctx context.Context, now time.Time, limit int) ([]*model.ScheduledNotification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM scheduled_notifications
		WHERE status = $1 AND fire_at <= $2
		ORDER BY fire_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT $3
	`
	var notifications []*model.ScheduledNotification
	err := r.db.SelectContext(ctx, &notifications, query, model.NotificationStatusScheduled, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get due notifications: %w", err)
	}
	return notifications, nil
}

func (r *notificationRepository) MarkStatus(ctx context.Context, id uuid.UUID, status model.NotificationStatus, lastError *string) error {
	query := `
		UPDATE scheduled_notifications
		SET status = $1, last_error = $2,
			sent_at = CASE WHEN $1 = 'sent' THEN NOW() ELSE sent_at END,
			updated_at = $3
		WHERE id = $4
	`
	_, err := r.db.ExecContext(ctx, query, status, lastError, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark notification status: %w", err)
	}
	return nil
}
