package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taskpulse/taskpulse/internal/domain"
	"github.com/taskpulse/taskpulse/internal/platform/logger"
	"github.com/taskpulse/taskpulse/internal/store"
)

// PostgresReminderStore implements the store.ReminderStore interface
// using PostgreSQL. Status transitions are guarded with
// "WHERE status = 'pending'" so a terminal status can never be
// overwritten, even under concurrent duplicate triggers.
type PostgresReminderStore struct {
	db store.DBTX
}

// NewPostgresReminderStore creates a new PostgresReminderStore.
func NewPostgresReminderStore(db store.DBTX) *PostgresReminderStore {
	return &PostgresReminderStore{
		db: db,
	}
}

// Ensure PostgresReminderStore implements store.ReminderStore
var _ store.ReminderStore = (*PostgresReminderStore)(nil)

// CreateReminder persists a new pending reminder. A duplicate
// (task, trigger time) pair is mapped to store.ErrDuplicate.
func (s *PostgresReminderStore) CreateReminder(ctx context.Context, reminder *domain.Reminder) error {
	log := logger.FromContext(ctx)

	if err := reminder.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO reminders (id, task_id, user_id, reminder_time, status,
			delivery_method, retry_count, sent_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.db.ExecContext(ctx, query,
		reminder.ID,
		reminder.TaskID,
		reminder.UserID,
		reminder.ReminderTime,
		reminder.Status,
		reminder.DeliveryMethod,
		reminder.RetryCount,
		reminder.SentAt,
		reminder.CreatedAt,
	)
	if err != nil {
		log.Error("failed to create reminder",
			"reminder_id", reminder.ID,
			"task_id", reminder.TaskID,
			"error", err)
		return MapError(err)
	}

	return nil
}

// GetReminder retrieves a reminder by ID.
func (s *PostgresReminderStore) GetReminder(ctx context.Context, id uuid.UUID) (*domain.Reminder, error) {
	query := `
		SELECT id, task_id, user_id, reminder_time, status, delivery_method,
			retry_count, sent_at, created_at
		FROM reminders
		WHERE id = $1
	`

	var (
		reminder domain.Reminder
		sentAt   sql.NullTime
	)

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&reminder.ID,
		&reminder.TaskID,
		&reminder.UserID,
		&reminder.ReminderTime,
		&reminder.Status,
		&reminder.DeliveryMethod,
		&reminder.RetryCount,
		&sentAt,
		&reminder.CreatedAt,
	)
	if err != nil {
		if store.IsNotFoundError(MapError(err)) {
			return nil, store.ErrReminderNotFound
		}
		return nil, fmt.Errorf("failed to get reminder: %w", MapError(err))
	}

	if sentAt.Valid {
		t := sentAt.Time.UTC()
		reminder.SentAt = &t
	}
	reminder.ReminderTime = reminder.ReminderTime.UTC()

	return &reminder, nil
}

// MarkSent transitions a pending reminder to sent. Returns false when
// the reminder was no longer pending.
func (s *PostgresReminderStore) MarkSent(
	ctx context.Context,
	id uuid.UUID,
	sentAt time.Time,
	retryCount int,
) (bool, error) {
	query := `
		UPDATE reminders
		SET status = $1, sent_at = $2, retry_count = $3
		WHERE id = $4 AND status = $5
	`

	return s.guardedUpdate(ctx, query,
		domain.ReminderStatusSent, sentAt, retryCount, id, domain.ReminderStatusPending)
}

// MarkFailed transitions a pending reminder to failed. Returns false
// when the reminder was no longer pending.
func (s *PostgresReminderStore) MarkFailed(
	ctx context.Context,
	id uuid.UUID,
	retryCount int,
) (bool, error) {
	query := `
		UPDATE reminders
		SET status = $1, retry_count = $2
		WHERE id = $3 AND status = $4
	`

	return s.guardedUpdate(ctx, query,
		domain.ReminderStatusFailed, retryCount, id, domain.ReminderStatusPending)
}

// RecordAttempts updates the retry count without touching the status.
func (s *PostgresReminderStore) RecordAttempts(ctx context.Context, id uuid.UUID, retryCount int) error {
	query := `
		UPDATE reminders
		SET retry_count = $1
		WHERE id = $2
	`

	if _, err := s.db.ExecContext(ctx, query, retryCount, id); err != nil {
		return fmt.Errorf("failed to record reminder attempts: %w", MapError(err))
	}

	return nil
}

// WithTx returns a ReminderStore bound to the provided transaction.
func (s *PostgresReminderStore) WithTx(tx *sql.Tx) store.ReminderStore {
	return &PostgresReminderStore{db: tx}
}

// guardedUpdate executes a status-guarded UPDATE and reports whether a
// row actually transitioned.
func (s *PostgresReminderStore) guardedUpdate(
	ctx context.Context,
	query string,
	args ...any,
) (bool, error) {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update reminder status: %w", MapError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}
