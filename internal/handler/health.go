package handler

import (
	"net/http"

	natsclient "github.com/capitalize-ai/calendar-agent/internal/nats"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	natsClient *natsclient.Client
	checks     map[string]func() bool
}

// NewHealthHandler creates a new health handler. A nil NATS client means the
// activity log is in memory and never blocks readiness. checks report
// optional integrations; a false check is shown but does not fail readiness.
func NewHealthHandler(natsClient *natsclient.Client, checks map[string]func() bool) *HealthHandler {
	return &HealthHandler{
		natsClient: natsClient,
		checks:     checks,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	configured := make(map[string]bool, len(h.checks))
	for name, check := range h.checks {
		configured[name] = check()
	}

	if h.natsClient != nil && !h.natsClient.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":     "not ready",
			"reason":     "NATS not connected",
			"configured": configured,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ready",
		"configured": configured,
	})
}
