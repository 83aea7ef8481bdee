package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Topic names
const (
	// TopicTaskLifecycle carries task CRUD events published after
	// database writes.
	TopicTaskLifecycle = "task-lifecycle"

	// TopicReminderLifecycle carries reminder scheduling and delivery
	// events.
	TopicReminderLifecycle = "reminder-lifecycle"

	// TopicTaskBroadcast carries the UI-facing projection fanned out to
	// live websocket connections.
	TopicTaskBroadcast = "task-broadcast"
)

// Event type constants
const (
	TypeTaskCreated   = "task.created"
	TypeTaskUpdated   = "task.updated"
	TypeTaskCompleted = "task.completed"
	TypeTaskDeleted   = "task.deleted"

	TypeReminderScheduled = "reminder.scheduled"
	TypeReminderTriggered = "reminder.triggered"
	TypeReminderDelivered = "reminder.delivered"
	TypeReminderFailed    = "reminder.failed"
)

// SourceRecurringGenerator tags task.created events produced by the
// recurring task generator, so downstream consumers can distinguish
// system-generated tasks from user-created ones.
const SourceRecurringGenerator = "recurring-generator"

// Envelope parsing errors
var (
	// ErrMalformedEnvelope is returned when an inbound event body cannot
	// be decoded into an envelope.
	ErrMalformedEnvelope = errors.New("malformed event envelope")

	// ErrMissingEventType is returned when an envelope carries no
	// event_type.
	ErrMissingEventType = errors.New("envelope missing event_type")
)

// Envelope is the wire format shared by every topic. EventID is an
// idempotency key, but consumers must not rely on it alone: the
// transport can redeliver, so handlers key on semantic existence
// checks in the store as well.
type Envelope struct {
	EventID       uuid.UUID       `json:"event_id"`
	EventType     string          `json:"event_type"`
	Timestamp     time.Time       `json:"timestamp"`
	UserID        string          `json:"user_id"`
	Payload       json.RawMessage `json:"payload"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}

// NewEnvelope creates an envelope with a fresh event and correlation
// ID, the current timestamp, and the payload serialized as JSON.
func NewEnvelope(eventType, userID string, payload interface{}) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}

	return &Envelope{
		EventID:       uuid.New(),
		EventType:     eventType,
		Timestamp:     time.Now().UTC(),
		UserID:        userID,
		Payload:       data,
		CorrelationID: uuid.New().String(),
	}, nil
}

// UnmarshalPayload decodes the envelope payload into the provided
// structure.
func (e *Envelope) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// ParseEnvelope decodes an inbound event body. Transports wrap the
// envelope under a "data" key; direct publishes send it flat.
// Consumers accept both forms.
func ParseEnvelope(body []byte) (*Envelope, error) {
	var wrapper struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	raw := body
	if len(wrapper.Data) > 0 {
		raw = wrapper.Data
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	if env.EventType == "" {
		return nil, ErrMissingEventType
	}

	return &env, nil
}

// TaskPayload is the task snapshot carried by task-lifecycle events.
// Source identifies the event origin (api, recurring-generator).
type TaskPayload struct {
	ID           uuid.UUID  `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	Completed    bool       `json:"completed"`
	Priority     string     `json:"priority,omitempty"`
	Tags         []string   `json:"tags,omitempty"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	RecurrenceID *uuid.UUID `json:"recurrence_id,omitempty"`
	Source       string     `json:"source,omitempty"`
}

// ReminderPayload is carried by reminder-lifecycle events.
type ReminderPayload struct {
	ReminderID   uuid.UUID `json:"reminder_id"`
	TaskID       uuid.UUID `json:"task_id"`
	TaskTitle    string    `json:"task_title,omitempty"`
	ReminderTime time.Time `json:"reminder_time"`
	RetryCount   int       `json:"retry_count,omitempty"`
}

// BroadcastPayload is carried by task-broadcast events. TaskData is
// the snapshot forwarded to connected clients and may be nil for
// deletions.
type BroadcastPayload struct {
	TaskID   uuid.UUID    `json:"task_id"`
	TaskData *TaskPayload `json:"task_data,omitempty"`
}
