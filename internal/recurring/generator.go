// Package recurring implements the generator that produces the next
// task instance when a recurring task is completed. The generator is a
// pure event consumer: it never polls and never runs on a schedule.
package recurring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/taskpulse/taskpulse/internal/domain"
	"github.com/taskpulse/taskpulse/internal/domain/recurrence"
	"github.com/taskpulse/taskpulse/internal/events"
	"github.com/taskpulse/taskpulse/internal/store"
)

// Generator consumes task-lifecycle events and creates successor
// instances for completed recurring tasks.
type Generator struct {
	tasks     store.TaskStore
	rules     store.RecurrenceRuleStore
	publisher events.Publisher
	logger    *slog.Logger
}

// Ensure Generator implements events.Handler
var _ events.Handler = (*Generator)(nil)

// NewGenerator creates a Generator.
func NewGenerator(
	tasks store.TaskStore,
	rules store.RecurrenceRuleStore,
	publisher events.Publisher,
	logger *slog.Logger,
) *Generator {
	return &Generator{
		tasks:     tasks,
		rules:     rules,
		publisher: publisher,
		logger:    logger.With("component", "recurring_generator"),
	}
}

// HandleEnvelope processes one task-lifecycle event. Only
// task.completed events for recurring tasks produce an effect; every
// other event is acknowledged without one. The store's open-instance
// lookup, not the event ID, is the idempotency check: a redelivered
// completion finds the successor already present and skips.
func (g *Generator) HandleEnvelope(ctx context.Context, env *events.Envelope) (events.Outcome, error) {
	log := g.logger.With(
		"event_id", env.EventID,
		"event_type", env.EventType,
		"user_id", env.UserID,
	)

	if env.EventType != events.TypeTaskCompleted {
		return events.OutcomeSkip, nil
	}

	var payload events.TaskPayload
	if err := env.UnmarshalPayload(&payload); err != nil {
		log.Warn("dropping event with malformed task payload", "error", err)
		return events.OutcomeDrop, nil
	}

	if payload.RecurrenceID == nil {
		log.Debug("completed task is not recurring, skipping", "task_id", payload.ID)
		return events.OutcomeSkip, nil
	}

	if payload.DueDate == nil {
		log.Warn("dropping completion of recurring task without due date",
			"task_id", payload.ID,
			"recurrence_id", *payload.RecurrenceID)
		return events.OutcomeDrop, nil
	}

	rule, err := g.rules.GetRecurrenceRule(ctx, *payload.RecurrenceID)
	if err != nil {
		if store.IsNotFoundError(err) {
			// The rule was deleted after the task completed; there is
			// nothing left to generate from and redelivery cannot help.
			log.Warn("dropping completion referencing deleted recurrence rule",
				"task_id", payload.ID,
				"recurrence_id", *payload.RecurrenceID)
			return events.OutcomeDrop, nil
		}
		return events.OutcomeRetry, fmt.Errorf("failed to load recurrence rule: %w", err)
	}

	nextDue, err := recurrence.Next(*payload.DueDate, rule.Pattern, rule.Interval, rule.Metadata)
	if err != nil {
		log.Warn("dropping completion with invalid recurrence rule",
			"task_id", payload.ID,
			"recurrence_id", rule.ID,
			"error", err)
		return events.OutcomeDrop, nil
	}

	existing, err := g.tasks.FindOpenInstance(ctx, rule.ID, env.UserID, nextDue)
	if err != nil && !store.IsNotFoundError(err) {
		return events.OutcomeRetry, fmt.Errorf("failed to check for open instance: %w", err)
	}
	if existing != nil {
		log.Info("next instance already exists, skipping",
			"task_id", payload.ID,
			"existing_task_id", existing.ID,
			"next_due", nextDue)
		return events.OutcomeSkip, nil
	}

	completed := &domain.Task{
		ID:           payload.ID,
		UserID:       env.UserID,
		Title:        payload.Title,
		Description:  payload.Description,
		Completed:    true,
		Priority:     payload.Priority,
		Tags:         payload.Tags,
		DueDate:      payload.DueDate,
		RecurrenceID: payload.RecurrenceID,
	}

	next, err := completed.NextInstance(nextDue)
	if err != nil {
		log.Warn("dropping completion that cannot produce a successor",
			"task_id", payload.ID,
			"error", err)
		return events.OutcomeDrop, nil
	}

	if err := g.tasks.CreateTask(ctx, next); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// Lost the race against a concurrent duplicate delivery; the
			// successor exists, which is the outcome we wanted.
			log.Info("next instance created concurrently, skipping",
				"task_id", payload.ID,
				"next_due", nextDue)
			return events.OutcomeSkip, nil
		}
		return events.OutcomeRetry, fmt.Errorf("failed to create next instance: %w", err)
	}

	log.Info("generated next recurring instance",
		"task_id", payload.ID,
		"next_task_id", next.ID,
		"recurrence_id", rule.ID,
		"next_due", nextDue)

	g.publishCreated(ctx, log, next)

	return events.OutcomeCreate, nil
}

// publishCreated emits the task.created and broadcast events for a new
// instance. The task row is already committed, so publish failures are
// logged and tolerated rather than failing the handler.
func (g *Generator) publishCreated(ctx context.Context, log *slog.Logger, task *domain.Task) {
	payload := events.TaskPayload{
		ID:           task.ID,
		Title:        task.Title,
		Description:  task.Description,
		Completed:    task.Completed,
		Priority:     task.Priority,
		Tags:         task.Tags,
		DueDate:      task.DueDate,
		RecurrenceID: task.RecurrenceID,
		Source:       events.SourceRecurringGenerator,
	}

	env, err := events.NewEnvelope(events.TypeTaskCreated, task.UserID, payload)
	if err != nil {
		log.Error("failed to build task.created envelope", "error", err)
		return
	}
	if err := g.publisher.Publish(ctx, events.TopicTaskLifecycle, env); err != nil {
		log.Error("failed to publish task.created event",
			"error", err,
			"next_task_id", task.ID)
	}

	broadcast, err := events.NewEnvelope(events.TypeTaskCreated, task.UserID, events.BroadcastPayload{
		TaskID:   task.ID,
		TaskData: &payload,
	})
	if err != nil {
		log.Error("failed to build broadcast envelope", "error", err)
		return
	}
	if err := g.publisher.Publish(ctx, events.TopicTaskBroadcast, broadcast); err != nil {
		log.Error("failed to publish broadcast event",
			"error", err,
			"next_task_id", task.ID)
	}
}
