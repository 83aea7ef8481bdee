package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskpulse/taskpulse/internal/domain"
	"github.com/taskpulse/taskpulse/internal/events"
	"github.com/taskpulse/taskpulse/internal/reminder"
)

// stubHandler returns a scripted outcome and records envelopes.
type stubHandler struct {
	outcome  events.Outcome
	err      error
	received []*events.Envelope
}

func (h *stubHandler) HandleEnvelope(ctx context.Context, env *events.Envelope) (events.Outcome, error) {
	h.received = append(h.received, env)
	return h.outcome, h.err
}

// stubScheduler returns scripted reminders or an error.
type stubScheduler struct {
	created []*domain.Reminder
	err     error
	gotReq  *reminder.ScheduleRequest
}

func (s *stubScheduler) Schedule(ctx context.Context, req reminder.ScheduleRequest) ([]*domain.Reminder, error) {
	s.gotReq = &req
	return s.created, s.err
}

// stubDispatcher returns a scripted outcome.
type stubDispatcher struct {
	outcome events.Outcome
	err     error
	gotID   uuid.UUID
}

func (d *stubDispatcher) Dispatch(ctx context.Context, id uuid.UUID) (events.Outcome, error) {
	d.gotID = id
	return d.outcome, d.err
}

// stubHub serves nothing and reports fixed gauges.
type stubHub struct {
	owners, connections int
}

func (h *stubHub) ServeConnection(w http.ResponseWriter, r *http.Request, ownerID string) {
	w.WriteHeader(http.StatusNotImplemented)
}
func (h *stubHub) Owners() int      { return h.owners }
func (h *stubHub) Connections() int { return h.connections }

type routerFixture struct {
	router     http.Handler
	task       *stubHandler
	remEvents  *stubHandler
	broadcast  *stubHandler
	scheduler  *stubScheduler
	dispatcher *stubDispatcher
	hub        *stubHub
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()

	f := &routerFixture{
		task:       &stubHandler{outcome: events.OutcomeCreate},
		remEvents:  &stubHandler{outcome: events.OutcomeSkip},
		broadcast:  &stubHandler{outcome: events.OutcomeSkip},
		scheduler:  &stubScheduler{},
		dispatcher: &stubDispatcher{outcome: events.OutcomeCreate},
		hub:        &stubHub{owners: 2, connections: 5},
	}
	f.router = NewRouter(RouterDeps{
		TaskLifecycle:     f.task,
		ReminderLifecycle: f.remEvents,
		TaskBroadcast:     f.broadcast,
		Scheduler:         f.scheduler,
		Dispatcher:        f.dispatcher,
		Hub:               f.hub,
		Gauges:            f.hub,
	})
	return f
}

func (f *routerFixture) post(t *testing.T, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeAck(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var ack ackResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
	return ack.Status
}

func TestConsumerEndpointAcknowledgesFlatEnvelope(t *testing.T) {
	t.Parallel()

	f := newRouterFixture(t)
	env, err := events.NewEnvelope(events.TypeTaskCompleted, "user-1", events.TaskPayload{ID: uuid.New()})
	require.NoError(t, err)

	rec := f.post(t, "/events/task-lifecycle", env)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "SUCCESS", decodeAck(t, rec))
	require.Len(t, f.task.received, 1)
	assert.Equal(t, events.TypeTaskCompleted, f.task.received[0].EventType)
}

func TestConsumerEndpointAcceptsWrappedEnvelope(t *testing.T) {
	t.Parallel()

	f := newRouterFixture(t)
	env, err := events.NewEnvelope(events.TypeTaskCreated, "user-1", events.TaskPayload{ID: uuid.New()})
	require.NoError(t, err)

	rec := f.post(t, "/events/task-broadcast", map[string]interface{}{"data": env})
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.broadcast.received, 1)
}

func TestConsumerEndpointDropsMalformedBody(t *testing.T) {
	t.Parallel()

	f := newRouterFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/events/task-lifecycle",
		bytes.NewBufferString("not json at all"))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "DROP", decodeAck(t, rec))
	assert.Empty(t, f.task.received)
}

func TestConsumerEndpointReportsRetry(t *testing.T) {
	t.Parallel()

	f := newRouterFixture(t)
	f.remEvents.outcome = events.OutcomeRetry

	env, err := events.NewEnvelope(events.TypeReminderTriggered, "user-1", events.ReminderPayload{
		ReminderID: uuid.New(),
	})
	require.NoError(t, err)

	rec := f.post(t, "/events/reminder-lifecycle", env)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "RETRY", decodeAck(t, rec))
}

func TestScheduleRemindersReturnsCreated(t *testing.T) {
	t.Parallel()

	f := newRouterFixture(t)
	rem, err := domain.NewReminder(uuid.New(), "user-1", time.Now().Add(time.Hour))
	require.NoError(t, err)
	f.scheduler.created = []*domain.Reminder{rem}

	rec := f.post(t, "/api/reminders", scheduleRemindersRequest{
		TaskID:  rem.TaskID,
		UserID:  "user-1",
		Title:   "write minutes",
		DueDate: time.Now().Add(2 * time.Hour).Format(time.RFC3339),
		Offsets: []string{"1 hour before"},
	})

	assert.Equal(t, http.StatusCreated, rec.Code)
	var resp scheduleRemindersResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Reminders, 1)
	assert.Equal(t, rem.ID, resp.Reminders[0].ID)

	require.NotNil(t, f.scheduler.gotReq)
	assert.Equal(t, []string{"1 hour before"}, f.scheduler.gotReq.Offsets)
}

func TestScheduleRemindersRejectsNaiveDueDate(t *testing.T) {
	t.Parallel()

	f := newRouterFixture(t)
	rec := f.post(t, "/api/reminders", scheduleRemindersRequest{
		TaskID:  uuid.New(),
		UserID:  "user-1",
		Title:   "write minutes",
		DueDate: "2026-09-01T12:00:00", // no zone
		Offsets: []string{"1 hour before"},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "timezone")
	assert.Nil(t, f.scheduler.gotReq)
}

func TestScheduleRemindersRejectsValidationFailure(t *testing.T) {
	t.Parallel()

	f := newRouterFixture(t)
	f.scheduler.err = reminder.ErrInvalidOffset

	rec := f.post(t, "/api/reminders", scheduleRemindersRequest{
		TaskID:  uuid.New(),
		UserID:  "user-1",
		Title:   "write minutes",
		DueDate: time.Now().Add(time.Hour).Format(time.RFC3339),
		Offsets: []string{"1 hour after"},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScheduleRemindersRequiresFields(t *testing.T) {
	t.Parallel()

	f := newRouterFixture(t)
	rec := f.post(t, "/api/reminders", scheduleRemindersRequest{
		UserID:  "user-1",
		DueDate: time.Now().Add(time.Hour).Format(time.RFC3339),
		Offsets: []string{"1 hour before"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTriggerReminderJob(t *testing.T) {
	t.Parallel()

	f := newRouterFixture(t)
	reminderID := uuid.New()

	rec := f.post(t, "/api/jobs/reminder", triggerJobRequest{
		JobID:      "reminder-" + reminderID.String(),
		ReminderID: reminderID,
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "SUCCESS", decodeAck(t, rec))
	assert.Equal(t, reminderID, f.dispatcher.gotID)
}

func TestTriggerReminderJobWithoutIDDrops(t *testing.T) {
	t.Parallel()

	f := newRouterFixture(t)
	rec := f.post(t, "/api/jobs/reminder", map[string]string{"job_id": "reminder-x"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "DROP", decodeAck(t, rec))
	assert.Equal(t, uuid.Nil, f.dispatcher.gotID)
}

func TestHealthReportsHubGauges(t *testing.T) {
	t.Parallel()

	f := newRouterFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, resp.Hub.Owners)
	assert.Equal(t, 5, resp.Hub.Connections)
}
