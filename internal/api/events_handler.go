package api

import (
	"io"
	"net/http"

	"github.com/taskpulse/taskpulse/internal/api/shared"
	"github.com/taskpulse/taskpulse/internal/events"
	"github.com/taskpulse/taskpulse/internal/platform/logger"
)

// ackResponse is the body returned to the event transport.
type ackResponse struct {
	Status string `json:"status"`
}

// EventsHandler exposes one consumer endpoint per topic.
type EventsHandler struct {
	taskLifecycle     events.Handler
	reminderLifecycle events.Handler
	taskBroadcast     events.Handler
}

// NewEventsHandler creates an EventsHandler dispatching each topic to
// its consumer.
func NewEventsHandler(taskLifecycle, reminderLifecycle, taskBroadcast events.Handler) *EventsHandler {
	return &EventsHandler{
		taskLifecycle:     taskLifecycle,
		reminderLifecycle: reminderLifecycle,
		taskBroadcast:     taskBroadcast,
	}
}

// TaskLifecycle handles POST /events/task-lifecycle.
func (h *EventsHandler) TaskLifecycle(w http.ResponseWriter, r *http.Request) {
	h.consume(w, r, h.taskLifecycle)
}

// ReminderLifecycle handles POST /events/reminder-lifecycle.
func (h *EventsHandler) ReminderLifecycle(w http.ResponseWriter, r *http.Request) {
	h.consume(w, r, h.reminderLifecycle)
}

// TaskBroadcast handles POST /events/task-broadcast.
func (h *EventsHandler) TaskBroadcast(w http.ResponseWriter, r *http.Request) {
	h.consume(w, r, h.taskBroadcast)
}

// consume decodes the envelope and runs the topic handler. Receipt is
// always acknowledged with 200; the body status carries the outcome.
func (h *EventsHandler) consume(w http.ResponseWriter, r *http.Request, handler events.Handler) {
	log := logger.FromContext(r.Context())

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Warn("failed to read event body", "error", err, "path", r.URL.Path)
		shared.RespondWithJSON(w, r, http.StatusOK, ackResponse{Status: events.OutcomeDrop.Ack()})
		return
	}

	env, err := events.ParseEnvelope(body)
	if err != nil {
		// Malformed envelopes are poison; redelivery cannot repair them.
		log.Warn("dropping malformed event",
			"error", err,
			"path", r.URL.Path)
		shared.RespondWithJSON(w, r, http.StatusOK, ackResponse{Status: events.OutcomeDrop.Ack()})
		return
	}

	outcome, err := handler.HandleEnvelope(r.Context(), env)
	if err != nil {
		log.Error("event handler failed",
			"error", err,
			"event_id", env.EventID,
			"event_type", env.EventType,
			"outcome", outcome.String())
	}

	shared.RespondWithJSON(w, r, http.StatusOK, ackResponse{Status: outcome.Ack()})
}
