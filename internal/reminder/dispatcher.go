package reminder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/taskpulse/taskpulse/internal/config"
	"github.com/taskpulse/taskpulse/internal/domain"
	"github.com/taskpulse/taskpulse/internal/events"
	"github.com/taskpulse/taskpulse/internal/scheduler"
	"github.com/taskpulse/taskpulse/internal/store"
)

// DispatcherConfig holds delivery settings with resolved durations.
type DispatcherConfig struct {
	WebhookURL  string
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration
}

// DispatcherConfigFrom converts the loaded webhook configuration.
func DispatcherConfigFrom(cfg config.WebhookConfig) DispatcherConfig {
	return DispatcherConfig{
		WebhookURL:  cfg.URL,
		Timeout:     time.Duration(cfg.TimeoutSeconds) * time.Second,
		MaxRetries:  cfg.MaxRetries,
		BackoffBase: time.Duration(cfg.BackoffBaseSeconds) * time.Second,
	}
}

// deliveryRequest is the JSON body POSTed to the notification webhook.
type deliveryRequest struct {
	ReminderID      uuid.UUID  `json:"reminder_id"`
	TaskID          uuid.UUID  `json:"task_id"`
	UserID          string     `json:"user_id"`
	TaskTitle       string     `json:"task_title"`
	TaskDescription string     `json:"task_description,omitempty"`
	DueDate         *time.Time `json:"due_date,omitempty"`
	ReminderTime    time.Time  `json:"reminder_time"`
	Message         string     `json:"message"`
}

// Dispatcher performs reminder delivery when a trigger job fires. It
// re-validates reminder and task state on every invocation, so
// duplicate or stale triggers resolve as no-ops.
type Dispatcher struct {
	reminders store.ReminderStore
	tasks     store.TaskStore
	publisher events.Publisher
	client    *http.Client
	cfg       DispatcherConfig
	logger    *slog.Logger
	now       func() time.Time // Injectable for testing
}

// Ensure Dispatcher implements events.Handler
var _ events.Handler = (*Dispatcher)(nil)

// NewDispatcher creates a Dispatcher.
func NewDispatcher(
	reminders store.ReminderStore,
	tasks store.TaskStore,
	publisher events.Publisher,
	cfg DispatcherConfig,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		reminders: reminders,
		tasks:     tasks,
		publisher: publisher,
		client:    &http.Client{Timeout: cfg.Timeout},
		cfg:       cfg,
		logger:    logger.With("component", "reminder_dispatcher"),
		now:       time.Now,
	}
}

// Dispatch resolves one trigger for the given reminder. The passed
// context governs cancellation between attempts only: an attempt
// already in flight runs to completion under its own timeout so the
// consumed retry slot can be recorded.
func (d *Dispatcher) Dispatch(ctx context.Context, reminderID uuid.UUID) (events.Outcome, error) {
	log := d.logger.With("reminder_id", reminderID)

	rem, err := d.reminders.GetReminder(ctx, reminderID)
	if err != nil {
		if store.IsNotFoundError(err) {
			log.Warn("trigger fired for unknown reminder, dropping")
			return events.OutcomeDrop, nil
		}
		return events.OutcomeRetry, fmt.Errorf("failed to load reminder: %w", err)
	}

	if rem.Status != domain.ReminderStatusPending {
		// Duplicate trigger; the earlier invocation already resolved it.
		log.Info("reminder already resolved, skipping", "status", rem.Status)
		return events.OutcomeSkip, nil
	}

	task, err := d.tasks.GetTask(ctx, rem.TaskID)
	if err != nil {
		if store.IsNotFoundError(err) {
			log.Info("task deleted before trigger, marking reminder failed",
				"task_id", rem.TaskID)
			if _, markErr := d.reminders.MarkFailed(ctx, rem.ID, rem.RetryCount); markErr != nil {
				return events.OutcomeRetry, fmt.Errorf("failed to mark reminder failed: %w", markErr)
			}
			d.publishLifecycle(ctx, log, events.TypeReminderFailed, rem, "")
			return events.OutcomeDrop, nil
		}
		return events.OutcomeRetry, fmt.Errorf("failed to load task: %w", err)
	}

	if task.Completed {
		// Nothing to remind about; resolve as sent without delivery.
		log.Info("task completed before trigger, marking reminder sent",
			"task_id", task.ID)
		if _, markErr := d.reminders.MarkSent(ctx, rem.ID, d.now().UTC(), rem.RetryCount); markErr != nil {
			return events.OutcomeRetry, fmt.Errorf("failed to mark reminder sent: %w", markErr)
		}
		return events.OutcomeSkip, nil
	}

	return d.deliver(ctx, log, rem, task)
}

// deliver POSTs the notification with bounded retry. Backoff between
// attempts is cooperative: the wait is a timer raced against ctx so
// shutdown interrupts the delay, never an in-flight attempt.
func (d *Dispatcher) deliver(
	ctx context.Context,
	log *slog.Logger,
	rem *domain.Reminder,
	task *domain.Task,
) (events.Outcome, error) {
	body, err := json.Marshal(d.buildRequest(rem, task))
	if err != nil {
		return events.OutcomeDrop, fmt.Errorf("failed to marshal delivery request: %w", err)
	}

	totalAttempts := d.cfg.MaxRetries + 1

	for attempt := 1; attempt <= totalAttempts; attempt++ {
		err := d.post(body)
		if err == nil {
			retries := attempt - 1
			changed, markErr := d.reminders.MarkSent(ctx, rem.ID, d.now().UTC(), retries)
			if markErr != nil {
				return events.OutcomeRetry, fmt.Errorf("delivered but failed to mark sent: %w", markErr)
			}
			if !changed {
				log.Warn("reminder resolved concurrently after delivery", "attempts", attempt)
				return events.OutcomeSkip, nil
			}
			log.Info("reminder delivered",
				"task_id", task.ID,
				"attempts", attempt,
				"retry_count", retries)
			d.publishLifecycle(ctx, log, events.TypeReminderDelivered, rem, task.Title)
			return events.OutcomeCreate, nil
		}

		log.Warn("webhook delivery attempt failed",
			"attempt", attempt,
			"max_attempts", totalAttempts,
			"error", err)

		if attempt == totalAttempts {
			break
		}

		// Backoff 2, 4, 8 units of the configured base.
		backoff := d.cfg.BackoffBase << attempt
		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			// Record the consumed attempts; the reminder stays pending
			// so a later trigger can finish the job.
			if recErr := d.reminders.RecordAttempts(context.Background(), rem.ID, attempt); recErr != nil {
				log.Error("failed to record attempts on shutdown", "error", recErr)
			}
			return events.OutcomeRetry, ctx.Err()
		}
	}

	if _, markErr := d.reminders.MarkFailed(ctx, rem.ID, totalAttempts); markErr != nil {
		return events.OutcomeRetry, fmt.Errorf("failed to mark reminder failed: %w", markErr)
	}
	log.Error("reminder delivery exhausted all attempts",
		"task_id", task.ID,
		"attempts", totalAttempts)
	d.publishLifecycle(ctx, log, events.TypeReminderFailed, rem, task.Title)

	return events.OutcomeDrop, nil
}

// post performs one delivery attempt under its own timeout, detached
// from the dispatch context so shutdown lets it finish.
func (d *Dispatcher) post(body []byte) error {
	attemptCtx, cancel := context.WithTimeout(context.Background(), d.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, d.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

func (d *Dispatcher) buildRequest(rem *domain.Reminder, task *domain.Task) deliveryRequest {
	message := fmt.Sprintf("Reminder: %s is due", task.Title)
	if task.DueDate != nil {
		message = fmt.Sprintf("Reminder: %s is due at %s",
			task.Title, task.DueDate.Format(time.RFC3339))
	}

	return deliveryRequest{
		ReminderID:      rem.ID,
		TaskID:          task.ID,
		UserID:          rem.UserID,
		TaskTitle:       task.Title,
		TaskDescription: task.Description,
		DueDate:         task.DueDate,
		ReminderTime:    rem.ReminderTime,
		Message:         message,
	}
}

func (d *Dispatcher) publishLifecycle(
	ctx context.Context,
	log *slog.Logger,
	eventType string,
	rem *domain.Reminder,
	title string,
) {
	env, err := events.NewEnvelope(eventType, rem.UserID, events.ReminderPayload{
		ReminderID:   rem.ID,
		TaskID:       rem.TaskID,
		TaskTitle:    title,
		ReminderTime: rem.ReminderTime,
		RetryCount:   rem.RetryCount,
	})
	if err != nil {
		log.Error("failed to build reminder lifecycle envelope", "error", err)
		return
	}

	if err := d.publisher.Publish(ctx, events.TopicReminderLifecycle, env); err != nil {
		log.Error("failed to publish reminder lifecycle event",
			"error", err,
			"event_type", eventType)
	}
}

// DispatchJob adapts Dispatch to the scheduler callback signature.
func (d *Dispatcher) DispatchJob(ctx context.Context, job scheduler.Job) {
	var payload jobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		d.logger.Error("trigger job carried malformed payload",
			"job_id", job.ID,
			"error", err)
		return
	}

	if _, err := d.Dispatch(ctx, payload.ReminderID); err != nil {
		d.logger.Error("reminder dispatch failed",
			"job_id", job.ID,
			"reminder_id", payload.ReminderID,
			"error", err)
	}
}

// HandleEnvelope consumes reminder-lifecycle events, dispatching on
// reminder.triggered and acknowledging everything else.
func (d *Dispatcher) HandleEnvelope(ctx context.Context, env *events.Envelope) (events.Outcome, error) {
	if env.EventType != events.TypeReminderTriggered {
		return events.OutcomeSkip, nil
	}

	var payload events.ReminderPayload
	if err := env.UnmarshalPayload(&payload); err != nil {
		d.logger.Warn("dropping reminder.triggered event with malformed payload",
			"event_id", env.EventID,
			"error", err)
		return events.OutcomeDrop, nil
	}

	return d.Dispatch(ctx, payload.ReminderID)
}
