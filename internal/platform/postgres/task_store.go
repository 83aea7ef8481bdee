package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taskpulse/taskpulse/internal/domain"
	"github.com/taskpulse/taskpulse/internal/platform/logger"
	"github.com/taskpulse/taskpulse/internal/store"
)

// PostgresTaskStore implements the store.TaskStore interface using PostgreSQL.
type PostgresTaskStore struct {
	db store.DBTX
}

// NewPostgresTaskStore creates a new PostgresTaskStore.
func NewPostgresTaskStore(db store.DBTX) *PostgresTaskStore {
	return &PostgresTaskStore{
		db: db,
	}
}

// Ensure PostgresTaskStore implements store.TaskStore
var _ store.TaskStore = (*PostgresTaskStore)(nil)

// CreateTask persists a new task. A violation of the open-instance
// uniqueness index is mapped to store.ErrDuplicate.
func (s *PostgresTaskStore) CreateTask(ctx context.Context, task *domain.Task) error {
	log := logger.FromContext(ctx)

	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	tags, err := json.Marshal(task.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal task tags: %w", err)
	}

	query := `
		INSERT INTO tasks (id, user_id, title, description, completed, priority, tags,
			due_date, recurrence_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = s.db.ExecContext(ctx, query,
		task.ID,
		task.UserID,
		task.Title,
		task.Description,
		task.Completed,
		task.Priority,
		tags,
		task.DueDate,
		task.RecurrenceID,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to create task",
			"task_id", task.ID,
			"user_id", task.UserID,
			"error", err)
		return MapError(err)
	}

	return nil
}

// GetTask retrieves a task by ID.
func (s *PostgresTaskStore) GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := `
		SELECT id, user_id, title, description, completed, priority, tags,
			due_date, recurrence_id, created_at, updated_at
		FROM tasks
		WHERE id = $1
	`

	task, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if store.IsNotFoundError(MapError(err)) {
			return nil, store.ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", MapError(err))
	}

	return task, nil
}

// FindOpenInstance looks up a non-completed task for the given
// recurrence rule, owner, and due date.
func (s *PostgresTaskStore) FindOpenInstance(
	ctx context.Context,
	recurrenceID uuid.UUID,
	userID string,
	dueDate time.Time,
) (*domain.Task, error) {
	query := `
		SELECT id, user_id, title, description, completed, priority, tags,
			due_date, recurrence_id, created_at, updated_at
		FROM tasks
		WHERE recurrence_id = $1 AND user_id = $2 AND due_date = $3 AND NOT completed
		LIMIT 1
	`

	task, err := scanTask(s.db.QueryRowContext(ctx, query, recurrenceID, userID, dueDate))
	if err != nil {
		if store.IsNotFoundError(MapError(err)) {
			return nil, store.ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to find open instance: %w", MapError(err))
	}

	return task, nil
}

// WithTx returns a TaskStore bound to the provided transaction.
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return &PostgresTaskStore{db: tx}
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanTask reads one task row into a domain.Task.
func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		task         domain.Task
		description  sql.NullString
		priority     sql.NullString
		tags         []byte
		dueDate      sql.NullTime
		recurrenceID uuid.NullUUID
	)

	err := row.Scan(
		&task.ID,
		&task.UserID,
		&task.Title,
		&description,
		&task.Completed,
		&priority,
		&tags,
		&dueDate,
		&recurrenceID,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.Description = description.String
	task.Priority = priority.String
	if dueDate.Valid {
		t := dueDate.Time.UTC()
		task.DueDate = &t
	}
	if recurrenceID.Valid {
		id := recurrenceID.UUID
		task.RecurrenceID = &id
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &task.Tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal task tags: %w", err)
		}
	}

	return &task, nil
}
