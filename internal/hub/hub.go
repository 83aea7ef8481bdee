// Package hub implements the real-time broadcast hub: it admits
// websocket connections per owner under admission limits, fans
// task-broadcast events out to every live connection of the owner, and
// prunes dead connections. Connections are ephemeral and never
// persisted; a client that connects after an event was broadcast never
// sees it.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/taskpulse/taskpulse/internal/config"
	"github.com/taskpulse/taskpulse/internal/events"
	"github.com/taskpulse/taskpulse/internal/service/auth"
)

// Application close codes sent when a connection is refused.
const (
	// CloseSubjectMismatch: the credential is valid but identifies a
	// different owner than the one claimed in the path.
	CloseSubjectMismatch = 4001

	// CloseUnauthorized: strict admission policy and the credential is
	// missing or invalid.
	CloseUnauthorized = 4002

	// CloseMaxConnections: the owner already holds the maximum number of
	// live connections.
	CloseMaxConnections = 4003

	// CloseRateLimited: the owner opened too many connections within the
	// trailing rate window.
	CloseRateLimited = 4008
)

// Frame type discriminators.
const (
	FrameConnectionEstablished = "connection.established"
	FramePong                  = "pong"
)

// welcomeFrame is sent once immediately after admission.
type welcomeFrame struct {
	Type          string `json:"type"`
	ConnectionID  string `json:"connection_id"`
	UserID        string `json:"user_id"`
	Authenticated bool   `json:"authenticated"`
}

// broadcastFrame mirrors a task-broadcast envelope onto the socket.
type broadcastFrame struct {
	Type          string          `json:"type"`
	TaskID        uuid.UUID       `json:"task_id"`
	Data          json.RawMessage `json:"data,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}

// connection is one live socket. writeMu serializes writes: gorilla
// permits at most one concurrent writer per connection.
type connection struct {
	id      string
	ownerID string
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (c *connection) writeJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(v)
}

func (c *connection) writeClose(code int, reason string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	deadline := time.Now().Add(time.Second)
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), deadline)
}

// Hub owns the per-owner connection registry. All registry mutation
// happens under one mutex; broadcasts snapshot membership under the
// lock and perform network sends outside it.
type Hub struct {
	cfg      config.HubConfig
	strict   bool
	verifier auth.TokenVerifier
	upgrader websocket.Upgrader
	logger   *slog.Logger
	now      func() time.Time // Injectable for testing

	mu          sync.Mutex
	connections map[string]map[*connection]struct{}
	admissions  map[string][]time.Time
	closed      bool
}

// Ensure Hub implements events.Handler
var _ events.Handler = (*Hub)(nil)

// New creates a Hub. strict selects the admission policy for
// connections without a credential: refused when true, admitted
// unauthenticated when false.
func New(cfg config.HubConfig, verifier auth.TokenVerifier, strict bool, logger *slog.Logger) *Hub {
	return &Hub{
		cfg:      cfg,
		strict:   strict,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Cross-origin browsers are expected; token auth is the gate.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:      logger.With("component", "hub"),
		now:         time.Now,
		connections: make(map[string]map[*connection]struct{}),
		admissions:  make(map[string][]time.Time),
	}
}

// ServeConnection upgrades the request and runs the connection until it
// closes. The upgrade happens first so refusals can carry an
// application close code; policy checks run before the connection is
// registered or welcomed.
func (h *Hub) ServeConnection(w http.ResponseWriter, r *http.Request, ownerID string) {
	log := h.logger.With("owner_id", ownerID)

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "error", err)
		return
	}

	conn := &connection{
		id:      uuid.New().String(),
		ownerID: ownerID,
		ws:      ws,
	}

	authenticated, ok := h.authenticate(r, conn, log)
	if !ok {
		_ = ws.Close()
		return
	}

	if !h.admit(conn, log) {
		_ = ws.Close()
		return
	}

	welcome := welcomeFrame{
		Type:          FrameConnectionEstablished,
		ConnectionID:  conn.id,
		UserID:        ownerID,
		Authenticated: authenticated,
	}
	if err := conn.writeJSON(welcome); err != nil {
		log.Warn("failed to send welcome frame", "error", err, "connection_id", conn.id)
		h.remove(conn)
		_ = ws.Close()
		return
	}

	log.Info("connection established",
		"connection_id", conn.id,
		"authenticated", authenticated)

	h.readLoop(conn, log)
}

// authenticate applies the credential policy. Returns (authenticated,
// admitted): a missing credential under the permissive policy admits
// unauthenticated.
func (h *Hub) authenticate(r *http.Request, conn *connection, log *slog.Logger) (bool, bool) {
	token := r.URL.Query().Get("token")

	if token == "" {
		if h.strict {
			log.Info("refusing connection without credential under strict policy")
			conn.writeClose(CloseUnauthorized, "authentication required")
			return false, false
		}
		return false, true
	}

	subject, err := h.verifier.Verify(r.Context(), token)
	if err != nil {
		if h.strict {
			log.Info("refusing connection with invalid credential", "error", err)
			conn.writeClose(CloseUnauthorized, "invalid credential")
			return false, false
		}
		// Permissive policy tolerates a bad credential the same way it
		// tolerates a missing one.
		log.Debug("ignoring invalid credential under permissive policy", "error", err)
		return false, true
	}

	if subject != conn.ownerID {
		log.Warn("refusing connection with mismatched subject",
			"subject", subject)
		conn.writeClose(CloseSubjectMismatch, auth.ErrSubjectMismatch.Error())
		return false, false
	}

	return true, true
}

// admit checks the per-owner cap and the trailing rate window, then
// registers the connection. Both checks and the registration happen
// under one lock acquisition so two racing connects cannot both pass.
func (h *Hub) admit(conn *connection, log *slog.Logger) bool {
	now := h.now()

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		conn.writeClose(websocket.CloseGoingAway, "shutting down")
		return false
	}

	if len(h.connections[conn.ownerID]) >= h.cfg.MaxConnectionsPerOwner {
		log.Info("refusing connection over per-owner limit",
			"limit", h.cfg.MaxConnectionsPerOwner)
		conn.writeClose(CloseMaxConnections, "max connections reached")
		return false
	}

	window := time.Duration(h.cfg.RateLimitWindowSeconds) * time.Second
	recent := pruneOlderThan(h.admissions[conn.ownerID], now.Add(-window))
	if len(recent) >= h.cfg.MaxConnectionsPerWindow {
		h.admissions[conn.ownerID] = recent
		log.Info("refusing connection over rate limit",
			"window_seconds", h.cfg.RateLimitWindowSeconds,
			"limit", h.cfg.MaxConnectionsPerWindow)
		conn.writeClose(CloseRateLimited, "rate limited")
		return false
	}

	h.admissions[conn.ownerID] = append(recent, now)
	if h.connections[conn.ownerID] == nil {
		h.connections[conn.ownerID] = make(map[*connection]struct{})
	}
	h.connections[conn.ownerID][conn] = struct{}{}
	return true
}

// pruneOlderThan drops timestamps before cutoff, preserving order.
func pruneOlderThan(stamps []time.Time, cutoff time.Time) []time.Time {
	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	return kept
}

// readLoop answers ping frames and enforces the idle timeout. Any read
// error removes the connection; remove is the single removal path.
func (h *Hub) readLoop(conn *connection, log *slog.Logger) {
	defer func() {
		h.remove(conn)
		_ = conn.ws.Close()
		log.Info("connection closed", "connection_id", conn.id)
	}()

	idle := time.Duration(h.cfg.IdleTimeoutSeconds) * time.Second

	for {
		if err := conn.ws.SetReadDeadline(time.Now().Add(idle)); err != nil {
			return
		}

		messageType, data, err := conn.ws.ReadMessage()
		if err != nil {
			return
		}

		if messageType == websocket.TextMessage && string(data) == "ping" {
			if err := conn.writeJSON(map[string]string{"type": FramePong}); err != nil {
				return
			}
		}
	}
}

// remove unregisters a connection. Safe to call for a connection that
// was never registered or was already removed.
func (h *Hub) remove(conn *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	owned := h.connections[conn.ownerID]
	if owned == nil {
		return
	}
	delete(owned, conn)
	if len(owned) == 0 {
		delete(h.connections, conn.ownerID)
	}
}

// Broadcast delivers a frame to every connection the owner holds at
// this moment. Membership is snapshotted under the lock; sends run
// outside it so slow sockets never block admission or cleanup. A
// failed send closes and removes the connection.
func (h *Hub) Broadcast(ownerID string, frame broadcastFrame) int {
	h.mu.Lock()
	targets := make([]*connection, 0, len(h.connections[ownerID]))
	for conn := range h.connections[ownerID] {
		targets = append(targets, conn)
	}
	h.mu.Unlock()

	delivered := 0
	for _, conn := range targets {
		if err := conn.writeJSON(frame); err != nil {
			h.logger.Debug("dropping connection after failed send",
				"owner_id", ownerID,
				"connection_id", conn.id,
				"error", err)
			h.remove(conn)
			_ = conn.ws.Close()
			continue
		}
		delivered++
	}

	return delivered
}

// HandleEnvelope consumes task-broadcast events and fans them out to
// the envelope owner's live connections. Fan-out is best-effort and
// unreplayed, so every event acknowledges.
func (h *Hub) HandleEnvelope(ctx context.Context, env *events.Envelope) (events.Outcome, error) {
	var payload events.BroadcastPayload
	if err := env.UnmarshalPayload(&payload); err != nil {
		h.logger.Warn("dropping broadcast event with malformed payload",
			"event_id", env.EventID,
			"error", err)
		return events.OutcomeDrop, nil
	}

	var data json.RawMessage
	if payload.TaskData != nil {
		encoded, err := json.Marshal(payload.TaskData)
		if err != nil {
			return events.OutcomeDrop, nil
		}
		data = encoded
	}

	delivered := h.Broadcast(env.UserID, broadcastFrame{
		Type:          env.EventType,
		TaskID:        payload.TaskID,
		Data:          data,
		Timestamp:     env.Timestamp,
		CorrelationID: env.CorrelationID,
	})

	h.logger.Debug("broadcast delivered",
		"event_id", env.EventID,
		"user_id", env.UserID,
		"connections", delivered)

	if delivered == 0 {
		return events.OutcomeSkip, nil
	}
	return events.OutcomeCreate, nil
}

// Owners returns the number of owners with at least one live
// connection.
func (h *Hub) Owners() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.connections)
}

// Connections returns the total number of live connections.
func (h *Hub) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	total := 0
	for _, owned := range h.connections {
		total += len(owned)
	}
	return total
}

// Shutdown refuses new admissions and closes every live connection.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	h.closed = true
	var all []*connection
	for _, owned := range h.connections {
		for conn := range owned {
			all = append(all, conn)
		}
	}
	h.connections = make(map[string]map[*connection]struct{})
	h.mu.Unlock()

	for _, conn := range all {
		conn.writeClose(websocket.CloseGoingAway, "shutting down")
		_ = conn.ws.Close()
	}

	h.logger.Info("hub shut down", "connections_closed", len(all))
}
