package events

import (
	"context"
	"log/slog"
	"sync"
)

// Handler processes one envelope and reports how it was resolved.
// Handlers must be safe to invoke more than once for the same logical
// event and must not assume ordering across topics or owners.
type Handler interface {
	HandleEnvelope(ctx context.Context, env *Envelope) (Outcome, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, env *Envelope) (Outcome, error)

// HandleEnvelope calls the underlying function.
func (f HandlerFunc) HandleEnvelope(ctx context.Context, env *Envelope) (Outcome, error) {
	return f(ctx, env)
}

// Publisher publishes an envelope to a topic. Publish failures after a
// successful database write are logged and tolerated by callers: the
// store remains the source of truth.
type Publisher interface {
	Publish(ctx context.Context, topic string, env *Envelope) error
}

// Bus is an in-memory Publisher that dispatches envelopes synchronously
// to handlers registered per topic. It backs single-process deployments
// and tests; multi-process deployments publish through the sidecar and
// receive events on the HTTP consumer endpoints instead.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   *slog.Logger
}

// NewBus creates an empty Bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]Handler),
		logger:   logger.With("component", "event_bus"),
	}
}

// Subscribe registers a handler for a topic.
func (b *Bus) Subscribe(topic string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], handler)
	b.logger.Debug("registered event handler",
		"topic", topic,
		"handler_count", len(b.handlers[topic]))
}

// Publish dispatches the envelope to every handler subscribed to the
// topic. All handlers run even if one fails; the first error is
// returned. A Retry outcome cannot be honored in-memory, so it is
// logged for visibility.
func (b *Bus) Publish(ctx context.Context, topic string, env *Envelope) error {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[topic]))
	copy(handlers, b.handlers[topic])
	b.mu.RUnlock()

	b.logger.Debug("publishing event",
		"topic", topic,
		"event_id", env.EventID,
		"event_type", env.EventType,
		"handler_count", len(handlers))

	var firstErr error
	for _, handler := range handlers {
		outcome, err := handler.HandleEnvelope(ctx, env)
		if err != nil {
			b.logger.Error("handler failed to process event",
				"error", err,
				"topic", topic,
				"event_id", env.EventID,
				"event_type", env.EventType,
				"outcome", outcome.String())
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		if outcome == OutcomeRetry {
			b.logger.Warn("handler requested retry on in-memory bus; event will not be redelivered",
				"topic", topic,
				"event_id", env.EventID,
				"event_type", env.EventType)
		}
	}

	return firstErr
}

// Ensure Bus implements Publisher
var _ Publisher = (*Bus)(nil)
