package handlers

import (
	"net/http"

	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/service"
)

// SystemHandler serves the liveness and version endpoints.
type SystemHandler struct {
	systemService *service.SystemService
}

// NewSystemHandler creates a new SystemHandler
func NewSystemHandler(systemService *service.SystemService) *SystemHandler {
	return &SystemHandler{
		systemService: systemService,
	}
}

// Health reports database connectivity and the applied schema version.
//
// Endpoint: GET /api/system/health
// Response: 200 OK with model.HealthStatus, 503 when the database is unreachable
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := h.systemService.CheckHealth(r.Context())
	if !status.Healthy() {
		respondJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// Version returns the application version, the database version, the
// enabled features and whether migrations are pending.
//
// Endpoint: GET /api/system/version
// Response: 200 OK with model.VersionInfo
func (h *SystemHandler) Version(w http.ResponseWriter, r *http.Request) {
	info, err := h.systemService.CheckVersion(r.Context())
	if err != nil {
		respondError(w, "failed to get version information", err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}
