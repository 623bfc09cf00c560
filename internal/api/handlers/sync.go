package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/api/request"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/service"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/validation"
)

// SyncHandler starts syncs and reports their latest results.
type SyncHandler struct {
	syncService *service.SyncService
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(syncService *service.SyncService) *SyncHandler {
	return &SyncHandler{
		syncService: syncService,
	}
}

// Trigger starts a sync in the background.
//
// Endpoint: POST /api/sync/{kind} where kind is ibkr, market-data, currency or all
// Body (optional): {"daysBack": 30}
// Response: 202 Accepted with the running sync result
// Error: 400 for an unknown kind, 409 Conflict when the kind is already running
func (h *SyncHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	kind := strings.ReplaceAll(chi.URLParam(r, "kind"), "-", "_")
	if !service.ValidSyncKind(kind) {
		respondError(w, "unknown sync kind", &validation.Error{Fields: map[string]string{"kind": "must be ibkr, market-data, currency or all"}})
		return
	}

	var req request.TriggerSyncRequest
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			respondError(w, "invalid request body", err)
			return
		}
	}
	if err := validation.ValidateTriggerSync(req); err != nil {
		respondError(w, "validation failed", err)
		return
	}

	opts := service.SyncOptions{}
	if req.DaysBack != nil {
		opts.DaysBack = *req.DaysBack
	}
	if err := h.syncService.Trigger(kind, opts); err != nil {
		respondError(w, "failed to start sync", err)
		return
	}
	respondJSON(w, http.StatusAccepted, h.syncService.Status()[kind])
}

// Status handles GET /api/sync/status with the latest result per kind.
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.syncService.Status())
}
