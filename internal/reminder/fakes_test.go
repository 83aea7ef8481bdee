package reminder

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskpulse/taskpulse/internal/domain"
	"github.com/taskpulse/taskpulse/internal/events"
	"github.com/taskpulse/taskpulse/internal/scheduler"
	"github.com/taskpulse/taskpulse/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeReminderStore is an in-memory ReminderStore enforcing the same
// status guards as the real one.
type fakeReminderStore struct {
	mu        sync.Mutex
	reminders map[uuid.UUID]*domain.Reminder
	createErr error
}

func newFakeReminderStore() *fakeReminderStore {
	return &fakeReminderStore{reminders: make(map[uuid.UUID]*domain.Reminder)}
}

func (s *fakeReminderStore) CreateReminder(ctx context.Context, rem *domain.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	for _, existing := range s.reminders {
		if existing.TaskID == rem.TaskID && existing.ReminderTime.Equal(rem.ReminderTime) {
			return store.ErrDuplicate
		}
	}
	clone := *rem
	s.reminders[rem.ID] = &clone
	return nil
}

func (s *fakeReminderStore) GetReminder(ctx context.Context, id uuid.UUID) (*domain.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rem, ok := s.reminders[id]; ok {
		clone := *rem
		return &clone, nil
	}
	return nil, store.ErrReminderNotFound
}

func (s *fakeReminderStore) MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time, retryCount int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rem, ok := s.reminders[id]
	if !ok || rem.Status != domain.ReminderStatusPending {
		return false, nil
	}
	rem.Status = domain.ReminderStatusSent
	rem.SentAt = &sentAt
	rem.RetryCount = retryCount
	return true, nil
}

func (s *fakeReminderStore) MarkFailed(ctx context.Context, id uuid.UUID, retryCount int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rem, ok := s.reminders[id]
	if !ok || rem.Status != domain.ReminderStatusPending {
		return false, nil
	}
	rem.Status = domain.ReminderStatusFailed
	rem.RetryCount = retryCount
	return true, nil
}

func (s *fakeReminderStore) RecordAttempts(ctx context.Context, id uuid.UUID, retryCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rem, ok := s.reminders[id]; ok {
		rem.RetryCount = retryCount
	}
	return nil
}

func (s *fakeReminderStore) WithTx(tx *sql.Tx) store.ReminderStore { return s }

func (s *fakeReminderStore) get(id uuid.UUID) *domain.Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	rem := s.reminders[id]
	if rem == nil {
		return nil
	}
	clone := *rem
	return &clone
}

// fakeTaskStore provides task lookups for dispatch tests.
type fakeTaskStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*domain.Task
}

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{tasks: make(map[uuid.UUID]*domain.Task)}
}

func (s *fakeTaskStore) put(task *domain.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = task
}

func (s *fakeTaskStore) CreateTask(ctx context.Context, task *domain.Task) error {
	s.put(task)
	return nil
}

func (s *fakeTaskStore) GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if task, ok := s.tasks[id]; ok {
		return task, nil
	}
	return nil, store.ErrTaskNotFound
}

func (s *fakeTaskStore) FindOpenInstance(
	ctx context.Context,
	recurrenceID uuid.UUID,
	userID string,
	dueDate time.Time,
) (*domain.Task, error) {
	return nil, store.ErrTaskNotFound
}

func (s *fakeTaskStore) WithTx(tx *sql.Tx) store.TaskStore { return s }

// capturePublisher records published envelopes per topic.
type capturePublisher struct {
	mu        sync.Mutex
	published map[string][]*events.Envelope
}

func newCapturePublisher() *capturePublisher {
	return &capturePublisher{published: make(map[string][]*events.Envelope)}
}

func (p *capturePublisher) Publish(ctx context.Context, topic string, env *events.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published[topic] = append(p.published[topic], env)
	return nil
}

func (p *capturePublisher) byType(topic, eventType string) []*events.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*events.Envelope
	for _, env := range p.published[topic] {
		if env.EventType == eventType {
			out = append(out, env)
		}
	}
	return out
}

// captureJobScheduler records registered jobs.
type captureJobScheduler struct {
	mu          sync.Mutex
	jobs        map[string]scheduler.Job
	scheduleErr error
}

func newCaptureJobScheduler() *captureJobScheduler {
	return &captureJobScheduler{jobs: make(map[string]scheduler.Job)}
}

func (s *captureJobScheduler) Schedule(ctx context.Context, job scheduler.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scheduleErr != nil {
		return s.scheduleErr
	}
	s.jobs[job.ID] = job
	return nil
}

func (s *captureJobScheduler) Cancel(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, jobID)
	return nil
}

func (s *captureJobScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}
