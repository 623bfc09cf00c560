package handlers

import (
	"net/http"

	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/api/request"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/service"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/validation"
)

// IbkrHandler handles HTTP requests for ibkr endpoints.
// It serves as the HTTP layer adapter, parsing requests and delegating
// business logic to the IbkrConfigService.
type IbkrHandler struct {
	ibkrConfigService *service.IbkrConfigService
}

// NewIbkrHandler creates a new IbkrHandler with the provided service dependency.
func NewIbkrHandler(ibkrConfigService *service.IbkrConfigService) *IbkrHandler {
	return &IbkrHandler{
		ibkrConfigService: ibkrConfigService,
	}
}

// GetConfig returns the flex query configuration without the token.
func (h *IbkrHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	config, err := h.ibkrConfigService.GetIbkrConfig(r.Context())
	if err != nil {
		respondError(w, "failed to retrieve ibkr config", err)
		return
	}

	respondJSON(w, http.StatusOK, config)
}

// UpdateConfig stores new flex query credentials, encrypting the token.
func (h *IbkrHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req request.UpdateIbkrConfigRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, "invalid request body", err)
		return
	}
	if err := validation.ValidateUpdateIbkrConfig(req); err != nil {
		respondError(w, "validation failed", err)
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	config, err := h.ibkrConfigService.SaveIbkrConfig(r.Context(), *req.FlexQueryID, *req.FlexToken, enabled)
	if err != nil {
		respondError(w, "failed to save ibkr config", err)
		return
	}

	respondJSON(w, http.StatusOK, config)
}
