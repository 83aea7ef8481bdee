package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ReminderStatus represents the delivery state of a reminder.
// Transitions are one-way: pending -> sent or pending -> failed.
// Once a reminder reaches a terminal status it never leaves it.
type ReminderStatus string

// Possible reminder status values
const (
	ReminderStatusPending ReminderStatus = "pending"
	ReminderStatusSent    ReminderStatus = "sent"
	ReminderStatusFailed  ReminderStatus = "failed"
)

// DeliveryMethodWebhook is the only delivery method currently
// supported by the dispatcher.
const DeliveryMethodWebhook = "webhook"

// Reminder-specific validation errors
var (
	// ErrReminderIDEmpty is returned when a reminder ID is empty or nil.
	ErrReminderIDEmpty = errors.New("reminder ID cannot be empty")

	// ErrReminderTaskIDEmpty is returned when a reminder's task ID is empty or nil.
	ErrReminderTaskIDEmpty = errors.New("reminder task ID cannot be empty")

	// ErrReminderUserIDEmpty is returned when a reminder's owner ID is empty.
	ErrReminderUserIDEmpty = errors.New("reminder user ID cannot be empty")

	// ErrReminderTimeZero is returned when a reminder's trigger time is unset.
	ErrReminderTimeZero = errors.New("reminder time cannot be zero")
)

// Reminder is a scheduled notification for a task. One record exists
// per (task, validated offset), created when the task is created.
// RetryCount records delivery attempts consumed beyond the first
// successful or final one.
type Reminder struct {
	ID             uuid.UUID      `json:"id"`
	TaskID         uuid.UUID      `json:"task_id"`
	UserID         string         `json:"user_id"`
	ReminderTime   time.Time      `json:"reminder_time"`
	Status         ReminderStatus `json:"status"`
	DeliveryMethod string         `json:"delivery_method"`
	RetryCount     int            `json:"retry_count"`
	SentAt         *time.Time     `json:"sent_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// NewReminder creates a pending Reminder with a fresh identity.
// Returns an error if validation fails.
func NewReminder(taskID uuid.UUID, userID string, reminderTime time.Time) (*Reminder, error) {
	reminder := &Reminder{
		ID:             uuid.New(),
		TaskID:         taskID,
		UserID:         userID,
		ReminderTime:   reminderTime,
		Status:         ReminderStatusPending,
		DeliveryMethod: DeliveryMethodWebhook,
		RetryCount:     0,
		CreatedAt:      time.Now().UTC(),
	}

	if err := reminder.Validate(); err != nil {
		return nil, err
	}

	return reminder, nil
}

// Validate checks if the Reminder has valid data.
func (r *Reminder) Validate() error {
	if r.ID == uuid.Nil {
		return ErrReminderIDEmpty
	}

	if r.TaskID == uuid.Nil {
		return ErrReminderTaskIDEmpty
	}

	if r.UserID == "" {
		return ErrReminderUserIDEmpty
	}

	if r.ReminderTime.IsZero() {
		return ErrReminderTimeZero
	}

	return nil
}

// IsTerminal reports whether the reminder has reached a terminal
// status.
func (r *Reminder) IsTerminal() bool {
	return r.Status == ReminderStatusSent || r.Status == ReminderStatusFailed
}
