// Package scheduler provides durable-timer job registration for
// reminder delivery. The JobScheduler interface abstracts the backing
// mechanism so the dispatcher does not care whether jobs fire from an
// external scheduler service or from in-process timers.
package scheduler

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Job is a one-shot scheduled callback registration. ID is the
// idempotency key: scheduling the same ID twice replaces the earlier
// registration instead of duplicating it.
type Job struct {
	ID      string
	FireAt  time.Time
	Payload json.RawMessage
}

// Callback is invoked when a job's trigger time arrives.
type Callback func(ctx context.Context, job Job)

// JobScheduler registers and cancels one-shot jobs.
type JobScheduler interface {
	// Schedule registers the job. A job with the same ID replaces any
	// earlier registration. Jobs whose FireAt is already past fire
	// immediately.
	Schedule(ctx context.Context, job Job) error

	// Cancel removes a pending job. Cancelling an unknown ID is a no-op.
	Cancel(ctx context.Context, jobID string) error
}

// TimerScheduler is an in-process JobScheduler backed by time.Timer.
// Registrations do not survive a restart; the dispatcher re-validates
// reminder state on every fire, so a stale or duplicate fire is
// harmless.
type TimerScheduler struct {
	callback Callback
	logger   *slog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool

	wg sync.WaitGroup
}

// Ensure TimerScheduler implements JobScheduler
var _ JobScheduler = (*TimerScheduler)(nil)

// NewTimerScheduler creates a TimerScheduler that invokes callback when
// jobs fire.
func NewTimerScheduler(callback Callback, logger *slog.Logger) *TimerScheduler {
	return &TimerScheduler{
		callback: callback,
		logger:   logger.With("component", "scheduler"),
		timers:   make(map[string]*time.Timer),
	}
}

// Schedule registers a job, replacing any earlier registration with the
// same ID.
func (s *TimerScheduler) Schedule(ctx context.Context, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSchedulerStopped
	}

	if existing, ok := s.timers[job.ID]; ok {
		existing.Stop()
		s.logger.Debug("replacing scheduled job", "job_id", job.ID)
	}

	delay := time.Until(job.FireAt)
	if delay < 0 {
		delay = 0
	}

	s.timers[job.ID] = time.AfterFunc(delay, func() {
		s.fire(job)
	})

	s.logger.Debug("job scheduled",
		"job_id", job.ID,
		"fire_at", job.FireAt,
		"delay_ms", delay.Milliseconds())

	return nil
}

// Cancel removes a pending job.
func (s *TimerScheduler) Cancel(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, ok := s.timers[jobID]; ok {
		timer.Stop()
		delete(s.timers, jobID)
		s.logger.Debug("job cancelled", "job_id", jobID)
	}

	return nil
}

// Stop cancels all pending jobs and waits for in-flight callbacks to
// finish.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	s.closed = true
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// fire runs the callback for a triggered job on its own goroutine so a
// slow delivery cannot delay other timers.
func (s *TimerScheduler) fire(job Job) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	delete(s.timers, job.ID)
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.callback(context.Background(), job)
	}()
}
