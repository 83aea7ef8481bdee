package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/taskpulse/taskpulse/internal/api/shared"
	"github.com/taskpulse/taskpulse/internal/events"
	"github.com/taskpulse/taskpulse/internal/platform/logger"
)

// ReminderDispatcher resolves one reminder trigger.
type ReminderDispatcher interface {
	Dispatch(ctx context.Context, reminderID uuid.UUID) (events.Outcome, error)
}

// triggerJobRequest is the body an external scheduler POSTs when a
// one-shot reminder job fires. Only reminder_id is required; the rest
// is logging context.
type triggerJobRequest struct {
	JobID      string    `json:"job_id,omitempty"`
	ReminderID uuid.UUID `json:"reminder_id"`
	TaskID     uuid.UUID `json:"task_id,omitempty"`
	UserID     string    `json:"user_id,omitempty"`
	TaskTitle  string    `json:"task_title,omitempty"`
}

// JobsHandler exposes the scheduler callback endpoint.
type JobsHandler struct {
	dispatcher ReminderDispatcher
}

// NewJobsHandler creates a JobsHandler.
func NewJobsHandler(dispatcher ReminderDispatcher) *JobsHandler {
	return &JobsHandler{dispatcher: dispatcher}
}

// TriggerReminder handles POST /api/jobs/reminder. The dispatcher is
// idempotent per reminder, so a re-invoked job resolves as a no-op and
// still acknowledges.
func (h *JobsHandler) TriggerReminder(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	var req triggerJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.RespondWithJSON(w, r, http.StatusOK, ackResponse{Status: events.OutcomeDrop.Ack()})
		return
	}
	if req.ReminderID == uuid.Nil {
		log.Warn("trigger job without reminder_id, dropping", "job_id", req.JobID)
		shared.RespondWithJSON(w, r, http.StatusOK, ackResponse{Status: events.OutcomeDrop.Ack()})
		return
	}

	outcome, err := h.dispatcher.Dispatch(r.Context(), req.ReminderID)
	if err != nil {
		log.Error("reminder dispatch failed",
			"error", err,
			"job_id", req.JobID,
			"reminder_id", req.ReminderID,
			"outcome", outcome.String())
	}

	shared.RespondWithJSON(w, r, http.StatusOK, ackResponse{Status: outcome.Ack()})
}
