package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/taskpulse/taskpulse/internal/api/shared"
	"github.com/taskpulse/taskpulse/internal/domain"
	"github.com/taskpulse/taskpulse/internal/platform/logger"
	"github.com/taskpulse/taskpulse/internal/reminder"
)

// ReminderScheduler is the scheduling service consumed by the API.
type ReminderScheduler interface {
	Schedule(ctx context.Context, req reminder.ScheduleRequest) ([]*domain.Reminder, error)
}

// scheduleRemindersRequest is the POST /api/reminders body.
type scheduleRemindersRequest struct {
	TaskID      uuid.UUID `json:"task_id"`
	UserID      string    `json:"user_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	DueDate     string    `json:"due_date"`
	Offsets     []string  `json:"offsets"`
}

// scheduleRemindersResponse lists the reminders actually created.
type scheduleRemindersResponse struct {
	Reminders []*domain.Reminder `json:"reminders"`
}

// RemindersHandler exposes reminder scheduling.
type RemindersHandler struct {
	scheduler ReminderScheduler
}

// NewRemindersHandler creates a RemindersHandler.
func NewRemindersHandler(scheduler ReminderScheduler) *RemindersHandler {
	return &RemindersHandler{scheduler: scheduler}
}

// Schedule handles POST /api/reminders. Validation failures (bad due
// date, unparseable offset, past trigger) report synchronously with
// 400; nothing enters the async pipeline.
func (h *RemindersHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	var req scheduleRemindersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.TaskID == uuid.Nil || req.UserID == "" || req.Title == "" {
		shared.RespondWithError(w, r, http.StatusBadRequest,
			"task_id, user_id, and title are required")
		return
	}
	if len(req.Offsets) == 0 {
		shared.RespondWithError(w, r, http.StatusBadRequest,
			"at least one offset is required")
		return
	}

	// RFC3339 requires an explicit zone; a timezone-naive due date is a
	// validation failure, not something to guess about.
	dueDate, err := time.Parse(time.RFC3339, req.DueDate)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest,
			"due_date must be RFC3339 with an explicit timezone")
		return
	}

	created, err := h.scheduler.Schedule(r.Context(), reminder.ScheduleRequest{
		TaskID:      req.TaskID,
		UserID:      req.UserID,
		Title:       req.Title,
		Description: req.Description,
		DueDate:     dueDate,
		Offsets:     req.Offsets,
	})
	if err != nil {
		if errors.Is(err, reminder.ErrInvalidOffset) || errors.Is(err, reminder.ErrDueDateNotFuture) {
			shared.RespondWithError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"failed to schedule reminders", err)
		return
	}

	log.Info("reminders scheduled via API",
		"task_id", req.TaskID,
		"created", len(created))

	if created == nil {
		created = []*domain.Reminder{}
	}
	shared.RespondWithJSON(w, r, http.StatusCreated, scheduleRemindersResponse{Reminders: created})
}
