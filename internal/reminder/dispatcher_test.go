package reminder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskpulse/taskpulse/internal/domain"
	"github.com/taskpulse/taskpulse/internal/events"
	"github.com/taskpulse/taskpulse/internal/scheduler"
)

// webhookMock counts requests and returns scripted status codes.
type webhookMock struct {
	server   *httptest.Server
	calls    atomic.Int32
	statuses []int // consumed in order; last value repeats
	bodies   chan deliveryRequest
}

func newWebhookMock(t *testing.T, statuses ...int) *webhookMock {
	t.Helper()

	m := &webhookMock{
		statuses: statuses,
		bodies:   make(chan deliveryRequest, 16),
	}
	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := int(m.calls.Add(1)) - 1

		var body deliveryRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			m.bodies <- body
		}

		status := m.statuses[len(m.statuses)-1]
		if call < len(m.statuses) {
			status = m.statuses[call]
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(m.server.Close)
	return m
}

type dispatcherFixture struct {
	dispatcher *Dispatcher
	reminders  *fakeReminderStore
	tasks      *fakeTaskStore
	publisher  *capturePublisher
	webhook    *webhookMock
}

func newDispatcherFixture(t *testing.T, statuses ...int) *dispatcherFixture {
	t.Helper()

	reminders := newFakeReminderStore()
	tasks := newFakeTaskStore()
	publisher := newCapturePublisher()
	webhook := newWebhookMock(t, statuses...)

	cfg := DispatcherConfig{
		WebhookURL:  webhook.server.URL,
		Timeout:     2 * time.Second,
		MaxRetries:  3,
		BackoffBase: time.Millisecond,
	}

	return &dispatcherFixture{
		dispatcher: NewDispatcher(reminders, tasks, publisher, cfg, discardLogger()),
		reminders:  reminders,
		tasks:      tasks,
		publisher:  publisher,
		webhook:    webhook,
	}
}

// seed creates a pending reminder and its task.
func (f *dispatcherFixture) seed(t *testing.T, completed bool) *domain.Reminder {
	t.Helper()

	due := time.Now().Add(time.Hour).UTC()
	task := &domain.Task{
		ID:          uuid.New(),
		UserID:      "user-1",
		Title:       "renew passport",
		Description: "bring photos",
		Completed:   completed,
		DueDate:     &due,
	}
	f.tasks.put(task)

	rem, err := domain.NewReminder(task.ID, task.UserID, due.Add(-30*time.Minute))
	require.NoError(t, err)
	require.NoError(t, f.reminders.CreateReminder(context.Background(), rem))
	return rem
}

func TestDispatchDeliversOnFirstAttempt(t *testing.T) {
	t.Parallel()

	f := newDispatcherFixture(t, http.StatusOK)
	rem := f.seed(t, false)

	outcome, err := f.dispatcher.Dispatch(context.Background(), rem.ID)
	require.NoError(t, err)
	assert.Equal(t, events.OutcomeCreate, outcome)
	assert.Equal(t, int32(1), f.webhook.calls.Load())

	stored := f.reminders.get(rem.ID)
	assert.Equal(t, domain.ReminderStatusSent, stored.Status)
	assert.Equal(t, 0, stored.RetryCount)
	assert.NotNil(t, stored.SentAt)

	delivered := f.publisher.byType(events.TopicReminderLifecycle, events.TypeReminderDelivered)
	assert.Len(t, delivered, 1)
}

func TestDispatchRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	// 503 on the first three attempts, 200 on the fourth.
	f := newDispatcherFixture(t, http.StatusServiceUnavailable, http.StatusServiceUnavailable,
		http.StatusServiceUnavailable, http.StatusOK)
	rem := f.seed(t, false)

	outcome, err := f.dispatcher.Dispatch(context.Background(), rem.ID)
	require.NoError(t, err)
	assert.Equal(t, events.OutcomeCreate, outcome)
	assert.Equal(t, int32(4), f.webhook.calls.Load())

	stored := f.reminders.get(rem.ID)
	assert.Equal(t, domain.ReminderStatusSent, stored.Status)
	assert.Equal(t, 3, stored.RetryCount)
}

func TestDispatchExhaustsRetriesAndFails(t *testing.T) {
	t.Parallel()

	f := newDispatcherFixture(t, http.StatusServiceUnavailable)
	rem := f.seed(t, false)

	outcome, err := f.dispatcher.Dispatch(context.Background(), rem.ID)
	require.NoError(t, err)
	assert.Equal(t, events.OutcomeDrop, outcome)
	assert.Equal(t, int32(4), f.webhook.calls.Load())

	stored := f.reminders.get(rem.ID)
	assert.Equal(t, domain.ReminderStatusFailed, stored.Status)
	assert.Equal(t, 4, stored.RetryCount)

	failed := f.publisher.byType(events.TopicReminderLifecycle, events.TypeReminderFailed)
	assert.Len(t, failed, 1)
}

func TestDispatchPayloadAndMessage(t *testing.T) {
	t.Parallel()

	f := newDispatcherFixture(t, http.StatusOK)
	rem := f.seed(t, false)

	_, err := f.dispatcher.Dispatch(context.Background(), rem.ID)
	require.NoError(t, err)

	select {
	case body := <-f.webhook.bodies:
		assert.Equal(t, rem.ID, body.ReminderID)
		assert.Equal(t, rem.TaskID, body.TaskID)
		assert.Equal(t, "user-1", body.UserID)
		assert.Equal(t, "renew passport", body.TaskTitle)
		assert.Equal(t, "bring photos", body.TaskDescription)
		require.NotNil(t, body.DueDate)
		assert.Equal(t, "Reminder: renew passport is due at "+body.DueDate.Format(time.RFC3339), body.Message)
	case <-time.After(time.Second):
		t.Fatal("webhook body not captured")
	}
}

func TestDispatchIsNoOpWhenAlreadyResolved(t *testing.T) {
	t.Parallel()

	f := newDispatcherFixture(t, http.StatusOK)
	rem := f.seed(t, false)

	first, err := f.dispatcher.Dispatch(context.Background(), rem.ID)
	require.NoError(t, err)
	assert.Equal(t, events.OutcomeCreate, first)

	second, err := f.dispatcher.Dispatch(context.Background(), rem.ID)
	require.NoError(t, err)
	assert.Equal(t, events.OutcomeSkip, second)
	assert.Equal(t, int32(1), f.webhook.calls.Load())
}

func TestDispatchMarksSentWithoutDeliveryWhenTaskCompleted(t *testing.T) {
	t.Parallel()

	f := newDispatcherFixture(t, http.StatusOK)
	rem := f.seed(t, true)

	outcome, err := f.dispatcher.Dispatch(context.Background(), rem.ID)
	require.NoError(t, err)
	assert.Equal(t, events.OutcomeSkip, outcome)
	assert.Equal(t, int32(0), f.webhook.calls.Load())
	assert.Equal(t, domain.ReminderStatusSent, f.reminders.get(rem.ID).Status)
}

func TestDispatchMarksFailedWithoutDeliveryWhenTaskDeleted(t *testing.T) {
	t.Parallel()

	f := newDispatcherFixture(t, http.StatusOK)
	rem := f.seed(t, false)
	delete(f.tasks.tasks, rem.TaskID)

	outcome, err := f.dispatcher.Dispatch(context.Background(), rem.ID)
	require.NoError(t, err)
	assert.Equal(t, events.OutcomeDrop, outcome)
	assert.Equal(t, int32(0), f.webhook.calls.Load())
	assert.Equal(t, domain.ReminderStatusFailed, f.reminders.get(rem.ID).Status)
}

func TestDispatchDropsUnknownReminder(t *testing.T) {
	t.Parallel()

	f := newDispatcherFixture(t, http.StatusOK)

	outcome, err := f.dispatcher.Dispatch(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, events.OutcomeDrop, outcome)
	assert.Equal(t, int32(0), f.webhook.calls.Load())
}

func TestDispatchShutdownDuringBackoffRecordsAttempts(t *testing.T) {
	t.Parallel()

	f := newDispatcherFixture(t, http.StatusServiceUnavailable)
	f.dispatcher.cfg.BackoffBase = 200 * time.Millisecond
	rem := f.seed(t, false)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	outcome, err := f.dispatcher.Dispatch(ctx, rem.ID)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, events.OutcomeRetry, outcome)

	// The consumed attempt is recorded and the reminder stays pending.
	stored := f.reminders.get(rem.ID)
	assert.Equal(t, domain.ReminderStatusPending, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
}

func TestHandleEnvelopeDispatchesOnTriggered(t *testing.T) {
	t.Parallel()

	f := newDispatcherFixture(t, http.StatusOK)
	rem := f.seed(t, false)

	env, err := events.NewEnvelope(events.TypeReminderTriggered, "user-1", events.ReminderPayload{
		ReminderID: rem.ID,
		TaskID:     rem.TaskID,
	})
	require.NoError(t, err)

	outcome, err := f.dispatcher.HandleEnvelope(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, events.OutcomeCreate, outcome)
}

func TestHandleEnvelopeIgnoresOtherTypes(t *testing.T) {
	t.Parallel()

	f := newDispatcherFixture(t, http.StatusOK)

	env, err := events.NewEnvelope(events.TypeReminderScheduled, "user-1", events.ReminderPayload{})
	require.NoError(t, err)

	outcome, err := f.dispatcher.HandleEnvelope(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, events.OutcomeSkip, outcome)
	assert.Equal(t, int32(0), f.webhook.calls.Load())
}

func TestDispatchJobRunsDispatcher(t *testing.T) {
	t.Parallel()

	f := newDispatcherFixture(t, http.StatusOK)
	rem := f.seed(t, false)

	payload, err := json.Marshal(jobPayload{ReminderID: rem.ID, TaskID: rem.TaskID, UserID: "user-1"})
	require.NoError(t, err)

	f.dispatcher.DispatchJob(context.Background(), scheduler.Job{
		ID:      JobID(rem.ID),
		FireAt:  rem.ReminderTime,
		Payload: payload,
	})
	assert.Equal(t, domain.ReminderStatusSent, f.reminders.get(rem.ID).Status)
}
