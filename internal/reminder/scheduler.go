package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/taskpulse/taskpulse/internal/domain"
	"github.com/taskpulse/taskpulse/internal/events"
	"github.com/taskpulse/taskpulse/internal/scheduler"
	"github.com/taskpulse/taskpulse/internal/store"
)

// Scheduling validation errors
var (
	// ErrDueDateNotFuture is returned when a computed trigger time is
	// not strictly in the future.
	ErrDueDateNotFuture = errors.New("reminder trigger time must be in the future")
)

// ScheduleRequest describes the reminders to create for one task.
type ScheduleRequest struct {
	TaskID      uuid.UUID
	UserID      string
	Title       string
	Description string
	DueDate     time.Time
	Offsets     []string
}

// jobPayload is carried on the one-shot trigger job so the dispatcher
// can log context before loading the reminder.
type jobPayload struct {
	ReminderID uuid.UUID `json:"reminder_id"`
	TaskID     uuid.UUID `json:"task_id"`
	UserID     string    `json:"user_id"`
	TaskTitle  string    `json:"task_title"`
}

// Scheduler creates reminder records and registers their trigger jobs.
type Scheduler struct {
	reminders store.ReminderStore
	jobs      scheduler.JobScheduler
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time // Injectable for testing
}

// NewScheduler creates a Scheduler.
func NewScheduler(
	reminders store.ReminderStore,
	jobs scheduler.JobScheduler,
	publisher events.Publisher,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		reminders: reminders,
		jobs:      jobs,
		publisher: publisher,
		logger:    logger.With("component", "reminder_scheduler"),
		now:       time.Now,
	}
}

// Schedule validates every offset, then creates one pending reminder
// per offset and registers its trigger job. Validation failures are
// synchronous: an unparseable offset or a trigger that is not strictly
// in the future fails the whole request before anything is persisted.
// Job-registration failures after the record is written are non-fatal;
// the reminder stays pending for later reconciliation.
func (s *Scheduler) Schedule(ctx context.Context, req ScheduleRequest) ([]*domain.Reminder, error) {
	log := s.logger.With(
		"task_id", req.TaskID,
		"user_id", req.UserID,
	)

	triggers, err := s.validateOffsets(req)
	if err != nil {
		return nil, err
	}

	created := make([]*domain.Reminder, 0, len(triggers))
	for _, trigger := range triggers {
		rem, err := domain.NewReminder(req.TaskID, req.UserID, trigger)
		if err != nil {
			return created, fmt.Errorf("failed to build reminder: %w", err)
		}

		if err := s.reminders.CreateReminder(ctx, rem); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				// Same task and trigger already registered; nothing new
				// to schedule.
				log.Info("reminder already exists for trigger time, skipping",
					"reminder_time", trigger)
				continue
			}
			return created, fmt.Errorf("failed to persist reminder: %w", err)
		}

		s.registerJob(ctx, log, rem, req)
		s.publishScheduled(ctx, log, rem, req)
		created = append(created, rem)
	}

	log.Info("reminders scheduled",
		"requested", len(req.Offsets),
		"created", len(created))

	return created, nil
}

// validateOffsets parses every offset and computes trigger times,
// failing the whole set on the first invalid entry so no partial state
// is written for a bad request.
func (s *Scheduler) validateOffsets(req ScheduleRequest) ([]time.Time, error) {
	now := s.now()
	triggers := make([]time.Time, 0, len(req.Offsets))

	for _, expr := range req.Offsets {
		offset, err := ParseOffset(expr)
		if err != nil {
			return nil, err
		}

		trigger := req.DueDate.Add(-offset)
		if !trigger.After(now) {
			return nil, fmt.Errorf("%w: offset %q yields %s",
				ErrDueDateNotFuture, expr, trigger.Format(time.RFC3339))
		}

		triggers = append(triggers, trigger)
	}

	return triggers, nil
}

// JobID derives the one-shot job identifier for a reminder. The
// dispatcher is idempotent per reminder, so re-registering the same ID
// is harmless.
func JobID(reminderID uuid.UUID) string {
	return "reminder-" + reminderID.String()
}

func (s *Scheduler) registerJob(
	ctx context.Context,
	log *slog.Logger,
	rem *domain.Reminder,
	req ScheduleRequest,
) {
	payload, err := json.Marshal(jobPayload{
		ReminderID: rem.ID,
		TaskID:     req.TaskID,
		UserID:     req.UserID,
		TaskTitle:  req.Title,
	})
	if err != nil {
		log.Error("failed to marshal job payload", "error", err, "reminder_id", rem.ID)
		return
	}

	err = s.jobs.Schedule(ctx, scheduler.Job{
		ID:      JobID(rem.ID),
		FireAt:  rem.ReminderTime,
		Payload: payload,
	})
	if err != nil {
		// The record is committed; the trigger can be re-registered by a
		// reconciliation sweep.
		log.Error("failed to register reminder trigger job; reminder stays pending",
			"error", err,
			"reminder_id", rem.ID,
			"reminder_time", rem.ReminderTime)
	}
}

func (s *Scheduler) publishScheduled(
	ctx context.Context,
	log *slog.Logger,
	rem *domain.Reminder,
	req ScheduleRequest,
) {
	env, err := events.NewEnvelope(events.TypeReminderScheduled, req.UserID, events.ReminderPayload{
		ReminderID:   rem.ID,
		TaskID:       req.TaskID,
		TaskTitle:    req.Title,
		ReminderTime: rem.ReminderTime,
	})
	if err != nil {
		log.Error("failed to build reminder.scheduled envelope", "error", err)
		return
	}

	if err := s.publisher.Publish(ctx, events.TopicReminderLifecycle, env); err != nil {
		log.Error("failed to publish reminder.scheduled event",
			"error", err,
			"reminder_id", rem.ID)
	}
}
