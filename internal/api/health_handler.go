package api

import (
	"net/http"

	"github.com/taskpulse/taskpulse/internal/api/shared"
)

// HubGauges reports live connection counts.
type HubGauges interface {
	Owners() int
	Connections() int
}

// healthResponse is the GET /healthz body.
type healthResponse struct {
	Status string    `json:"status"`
	Hub    hubCounts `json:"hub"`
}

type hubCounts struct {
	Owners      int `json:"owners"`
	Connections int `json:"connections"`
}

// HealthHandler reports process liveness and hub gauges.
type HealthHandler struct {
	hub HubGauges
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(hub HubGauges) *HealthHandler {
	return &HealthHandler{hub: hub}
}

// Check handles GET /healthz.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, healthResponse{
		Status: "ok",
		Hub: hubCounts{
			Owners:      h.hub.Owners(),
			Connections: h.hub.Connections(),
		},
	})
}
