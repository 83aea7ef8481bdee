package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/taskpulse/taskpulse/internal/domain/recurrence"
)

// Task-specific validation errors
var (
	// ErrTaskIDEmpty is returned when a task ID is empty or nil.
	ErrTaskIDEmpty = errors.New("task ID cannot be empty")

	// ErrTaskUserIDEmpty is returned when a task's owner ID is empty.
	ErrTaskUserIDEmpty = errors.New("task user ID cannot be empty")

	// ErrTaskTitleEmpty is returned when a task's title is empty.
	ErrTaskTitleEmpty = errors.New("task title cannot be empty")

	// ErrTaskDueDateMissing is returned when an operation requires a due
	// date and the task has none.
	ErrTaskDueDateMissing = errors.New("task has no due date")
)

// Task represents a single task instance owned by a user. Title,
// description, priority, and tags are opaque to the engine: they are
// copied verbatim when generating recurring instances and never
// interpreted. A non-nil RecurrenceID links the task to the
// RecurrenceRule governing its repetition.
type Task struct {
	ID           uuid.UUID  `json:"id"`
	UserID       string     `json:"user_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	Completed    bool       `json:"completed"`
	Priority     string     `json:"priority,omitempty"`
	Tags         []string   `json:"tags,omitempty"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	RecurrenceID *uuid.UUID `json:"recurrence_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Validate checks if the Task has valid data.
// Returns an error if any field fails validation.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrTaskIDEmpty
	}

	if t.UserID == "" {
		return ErrTaskUserIDEmpty
	}

	if t.Title == "" {
		return ErrTaskTitleEmpty
	}

	return nil
}

// IsRecurring reports whether the task is linked to a recurrence rule.
func (t *Task) IsRecurring() bool {
	return t.RecurrenceID != nil && *t.RecurrenceID != uuid.Nil
}

// NextInstance creates the successor task for a completed recurring
// task. The opaque attributes are copied verbatim, the instance starts
// uncompleted with a fresh identity, and the recurrence link is
// preserved so every instance in a lineage shares one rule.
// Returns an error if the source task is not recurring or validation
// of the new instance fails.
func (t *Task) NextInstance(dueDate time.Time) (*Task, error) {
	if !t.IsRecurring() {
		return nil, errors.New("task has no recurrence link")
	}

	now := time.Now().UTC()
	next := &Task{
		ID:           uuid.New(),
		UserID:       t.UserID,
		Title:        t.Title,
		Description:  t.Description,
		Completed:    false,
		Priority:     t.Priority,
		Tags:         append([]string(nil), t.Tags...),
		DueDate:      &dueDate,
		RecurrenceID: t.RecurrenceID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := next.Validate(); err != nil {
		return nil, err
	}

	return next, nil
}

// RecurrenceRule-specific validation errors
var (
	// ErrRecurrenceRuleIDEmpty is returned when a rule ID is empty or nil.
	ErrRecurrenceRuleIDEmpty = errors.New("recurrence rule ID cannot be empty")
)

// RecurrenceRule describes how a lineage of task instances repeats.
// Every generated instance in the lineage references the same rule.
// Metadata holds free-form, pattern-specific details (e.g. weekday
// name for weekly rules) and is never interpreted by the calculator.
type RecurrenceRule struct {
	ID        uuid.UUID              `json:"id"`
	Pattern   recurrence.Pattern     `json:"pattern"`
	Interval  int                    `json:"interval"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// NewRecurrenceRule creates a validated RecurrenceRule with a fresh
// identity. Returns an error if the pattern/interval pair is outside
// the allowed bounds.
func NewRecurrenceRule(
	pattern recurrence.Pattern,
	interval int,
	metadata map[string]interface{},
) (*RecurrenceRule, error) {
	rule := &RecurrenceRule{
		ID:        uuid.New(),
		Pattern:   pattern,
		Interval:  interval,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}

	if err := rule.Validate(); err != nil {
		return nil, err
	}

	return rule, nil
}

// Validate checks if the RecurrenceRule has valid data.
func (r *RecurrenceRule) Validate() error {
	if r.ID == uuid.Nil {
		return ErrRecurrenceRuleIDEmpty
	}

	return recurrence.Validate(r.Pattern, r.Interval)
}
