package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/taskpulse/taskpulse/internal/domain"
)

// TaskStore defines persistence operations for tasks. The engine only
// creates tasks (the recurring generator's next instances); mutation
// of existing tasks belongs to the external CRUD API.
type TaskStore interface {
	// CreateTask persists a new task. Returns ErrDuplicate (possibly
	// wrapped) if the insert violates the open-instance uniqueness
	// constraint on (recurrence rule, owner, due date).
	CreateTask(ctx context.Context, task *domain.Task) error

	// GetTask retrieves a task by ID. Returns ErrTaskNotFound if no
	// such task exists.
	GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// FindOpenInstance looks up a non-completed task sharing the given
	// recurrence rule, owner, and due date — the semantic existence
	// check backing generator idempotency. Returns ErrTaskNotFound when
	// absent.
	FindOpenInstance(
		ctx context.Context,
		recurrenceID uuid.UUID,
		userID string,
		dueDate time.Time,
	) (*domain.Task, error)

	// WithTx returns a TaskStore bound to the provided transaction.
	WithTx(tx *sql.Tx) TaskStore
}

// RecurrenceRuleStore defines read access to recurrence rules. Rules
// are created by the external CRUD API together with the first task of
// a lineage.
type RecurrenceRuleStore interface {
	// GetRecurrenceRule retrieves a rule by ID. Returns
	// ErrRecurrenceRuleNotFound if no such rule exists.
	GetRecurrenceRule(ctx context.Context, id uuid.UUID) (*domain.RecurrenceRule, error)

	// CreateRecurrenceRule persists a new rule.
	CreateRecurrenceRule(ctx context.Context, rule *domain.RecurrenceRule) error

	// WithTx returns a RecurrenceRuleStore bound to the provided transaction.
	WithTx(tx *sql.Tx) RecurrenceRuleStore
}
