package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/taskpulse/taskpulse/internal/domain"
	"github.com/taskpulse/taskpulse/internal/store"
)

// Validation runs before any SQL is issued, so these tests exercise the
// stores without a database connection.

func TestCreateTaskRejectsInvalidTask(t *testing.T) {
	t.Parallel()

	s := NewPostgresTaskStore(nil)

	err := s.CreateTask(context.Background(), &domain.Task{
		ID:     uuid.New(),
		UserID: "",
		Title:  "untitled",
	})
	assert.ErrorIs(t, err, store.ErrInvalidEntity)
	assert.ErrorContains(t, err, "user ID")
}

func TestCreateReminderRejectsInvalidReminder(t *testing.T) {
	t.Parallel()

	s := NewPostgresReminderStore(nil)

	err := s.CreateReminder(context.Background(), &domain.Reminder{
		ID:           uuid.New(),
		TaskID:       uuid.Nil,
		UserID:       "user-1",
		ReminderTime: time.Now().Add(time.Hour),
	})
	assert.ErrorIs(t, err, store.ErrInvalidEntity)
}

func TestCreateRecurrenceRuleRejectsOutOfRangeInterval(t *testing.T) {
	t.Parallel()

	s := NewPostgresRecurrenceRuleStore(nil)

	rule := &domain.RecurrenceRule{
		ID:       uuid.New(),
		Pattern:  "daily",
		Interval: 366,
	}
	err := s.CreateRecurrenceRule(context.Background(), rule)
	assert.ErrorIs(t, err, store.ErrInvalidEntity)
}
