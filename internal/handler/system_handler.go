package handler

import (
	"context"
	"net/http"

	"github.com/darshjasani/Pulse/internal/middleware"
	"github.com/darshjasani/Pulse/internal/system"
)

// SystemServiceInterface is the health/metrics surface the handler needs.
type SystemServiceInterface interface {
	Health(ctx context.Context) system.Health
	Metrics(ctx context.Context) (*system.Metrics, error)
}

// SystemHandler serves the operational JSON endpoints.
type SystemHandler struct {
	service SystemServiceInterface
}

// NewSystemHandler constructs a SystemHandler.
func NewSystemHandler(service SystemServiceInterface) *SystemHandler {
	return &SystemHandler{service: service}
}

// Health reports subsystem liveness. Always 200: degraded dependencies
// are reported in the body, never as a 5xx from this endpoint.
// GET /system/health
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Health(r.Context()))
}

// Metrics reports the human-facing counters.
// GET /system/metrics
func (h *SystemHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	m, err := h.service.Metrics(r.Context())
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}
