package reminder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskpulse/taskpulse/internal/domain"
	"github.com/taskpulse/taskpulse/internal/events"
)

type schedulerFixture struct {
	sched     *Scheduler
	reminders *fakeReminderStore
	jobs      *captureJobScheduler
	publisher *capturePublisher
	now       time.Time
}

func newSchedulerFixture(t *testing.T) *schedulerFixture {
	t.Helper()

	reminders := newFakeReminderStore()
	jobs := newCaptureJobScheduler()
	publisher := newCapturePublisher()

	s := NewScheduler(reminders, jobs, publisher, discardLogger())
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	return &schedulerFixture{
		sched:     s,
		reminders: reminders,
		jobs:      jobs,
		publisher: publisher,
		now:       now,
	}
}

func (f *schedulerFixture) request(offsets ...string) ScheduleRequest {
	return ScheduleRequest{
		TaskID:  uuid.New(),
		UserID:  "user-1",
		Title:   "submit the report",
		DueDate: f.now.Add(72 * time.Hour),
		Offsets: offsets,
	}
}

func TestScheduleCreatesOneReminderPerOffset(t *testing.T) {
	t.Parallel()

	f := newSchedulerFixture(t)
	req := f.request("1 hour before", "1 day before")

	created, err := f.sched.Schedule(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, created, 2)

	assert.True(t, created[0].ReminderTime.Equal(req.DueDate.Add(-time.Hour)))
	assert.True(t, created[1].ReminderTime.Equal(req.DueDate.Add(-24*time.Hour)))
	for _, rem := range created {
		assert.Equal(t, domain.ReminderStatusPending, rem.Status)
		assert.Equal(t, req.TaskID, rem.TaskID)
		assert.NotNil(t, f.reminders.get(rem.ID))
	}
}

func TestScheduleRegistersTriggerJobs(t *testing.T) {
	t.Parallel()

	f := newSchedulerFixture(t)
	created, err := f.sched.Schedule(context.Background(), f.request("2 hours before"))
	require.NoError(t, err)
	require.Len(t, created, 1)

	assert.Equal(t, 1, f.jobs.count())
	job, ok := f.jobs.jobs[JobID(created[0].ID)]
	require.True(t, ok)
	assert.True(t, job.FireAt.Equal(created[0].ReminderTime))
}

func TestScheduleEmitsScheduledEvents(t *testing.T) {
	t.Parallel()

	f := newSchedulerFixture(t)
	_, err := f.sched.Schedule(context.Background(), f.request("1 hour before"))
	require.NoError(t, err)

	scheduled := f.publisher.byType(events.TopicReminderLifecycle, events.TypeReminderScheduled)
	require.Len(t, scheduled, 1)
	assert.Equal(t, "user-1", scheduled[0].UserID)
}

func TestScheduleFailsWholeRequestOnBadOffset(t *testing.T) {
	t.Parallel()

	f := newSchedulerFixture(t)
	req := f.request("1 hour before", "1 hour after")

	_, err := f.sched.Schedule(context.Background(), req)
	require.ErrorIs(t, err, ErrInvalidOffset)

	// Nothing persisted for the valid offset either.
	assert.Empty(t, f.reminders.reminders)
	assert.Equal(t, 0, f.jobs.count())
}

func TestScheduleRejectsPastTrigger(t *testing.T) {
	t.Parallel()

	f := newSchedulerFixture(t)
	req := f.request("4 days before") // due in 3 days, trigger lands in the past

	_, err := f.sched.Schedule(context.Background(), req)
	require.ErrorIs(t, err, ErrDueDateNotFuture)
	assert.Empty(t, f.reminders.reminders)
}

func TestScheduleRejectsTriggerExactlyNow(t *testing.T) {
	t.Parallel()

	f := newSchedulerFixture(t)
	req := f.request("3 days before") // due in 3 days, trigger == now

	_, err := f.sched.Schedule(context.Background(), req)
	assert.ErrorIs(t, err, ErrDueDateNotFuture)
}

func TestScheduleSkipsDuplicateTriggerTime(t *testing.T) {
	t.Parallel()

	f := newSchedulerFixture(t)
	req := f.request("1 hour before")

	first, err := f.sched.Schedule(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := f.sched.Schedule(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, second)
	assert.Len(t, f.reminders.reminders, 1)
}

func TestScheduleJobRegistrationFailureIsNonFatal(t *testing.T) {
	t.Parallel()

	f := newSchedulerFixture(t)
	f.jobs.scheduleErr = errors.New("scheduler unavailable")

	created, err := f.sched.Schedule(context.Background(), f.request("1 hour before"))
	require.NoError(t, err)
	require.Len(t, created, 1)

	// The record exists and stays pending for reconciliation.
	rem := f.reminders.get(created[0].ID)
	require.NotNil(t, rem)
	assert.Equal(t, domain.ReminderStatusPending, rem.Status)
}
