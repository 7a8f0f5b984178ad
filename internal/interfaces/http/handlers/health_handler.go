// Liveness and readiness probes.

package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/turtacn/AgriBot-NLU/internal/application/nlu"
)

// ReadinessChecker reports the readiness of the engine and its dependencies.
type ReadinessChecker interface {
	Readiness(ctx context.Context) *nlu.ReadinessReport
}

// HealthHandler handles health check HTTP requests.
type HealthHandler struct {
	checker ReadinessChecker
	version string
	startAt time.Time
	timeout time.Duration
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(version string, checker ReadinessChecker) *HealthHandler {
	return &HealthHandler{
		checker: checker,
		version: version,
		startAt: time.Now(),
		timeout: 5 * time.Second,
	}
}

// RegisterRoutes registers health check routes.
func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.Liveness)
	r.Get("/readyz", h.Readiness)
}

// LivenessResponse is the response for liveness probe.
type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// ReadinessResponse is the response for readiness probe.
type ReadinessResponse struct {
	Status     string                         `json:"status"`
	Version    string                         `json:"version"`
	Components map[string]nlu.ComponentStatus `json:"components,omitempty"`
}

// Liveness handles GET /healthz. It never touches dependencies.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LivenessResponse{
		Status:  "alive",
		Version: h.version,
		Uptime:  time.Since(h.startAt).Truncate(time.Second).String(),
	})
}

// Readiness handles GET /readyz: 200 when every critical component is
// healthy, 503 otherwise. Non-critical failures are listed but do not
// change the status.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.checker == nil {
		writeJSON(w, http.StatusOK, ReadinessResponse{Status: "ready", Version: h.version})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	report := h.checker.Readiness(ctx)

	resp := ReadinessResponse{Version: h.version, Components: report.Components}
	if report.Ready {
		resp.Status = "ready"
		writeJSON(w, http.StatusOK, resp)
		return
	}
	resp.Status = "not_ready"
	writeJSON(w, http.StatusServiceUnavailable, resp)
}

//Personal.AI order the ending
