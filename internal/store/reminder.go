package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/taskpulse/taskpulse/internal/domain"
)

// ReminderStore defines persistence operations for reminders. Status
// transitions are optimistic: MarkSent and MarkFailed only succeed
// while the reminder is still pending, which makes terminal states
// sticky under duplicate triggers.
type ReminderStore interface {
	// CreateReminder persists a new pending reminder. Returns
	// ErrDuplicate (possibly wrapped) if a reminder already exists for
	// the same (task, trigger time).
	CreateReminder(ctx context.Context, reminder *domain.Reminder) error

	// GetReminder retrieves a reminder by ID. Returns
	// ErrReminderNotFound if no such reminder exists.
	GetReminder(ctx context.Context, id uuid.UUID) (*domain.Reminder, error)

	// MarkSent transitions a pending reminder to sent, recording the
	// send time and the retries consumed. Returns false (and no error)
	// if the reminder was not pending, so callers can treat the
	// transition as already performed.
	MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time, retryCount int) (bool, error)

	// MarkFailed transitions a pending reminder to failed, recording
	// the attempts made. Returns false if the reminder was not pending.
	MarkFailed(ctx context.Context, id uuid.UUID, retryCount int) (bool, error)

	// RecordAttempts updates the retry count of a reminder without
	// changing its status. Used when shutdown interrupts a delivery so
	// the consumed attempts survive for later reconciliation.
	RecordAttempts(ctx context.Context, id uuid.UUID, retryCount int) error

	// WithTx returns a ReminderStore bound to the provided transaction.
	WithTx(tx *sql.Tx) ReminderStore
}
