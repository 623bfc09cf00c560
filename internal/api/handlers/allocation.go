package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/api/request"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/model"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/service"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/validation"
)

// AllocationHandler serves the sector and geographic breakdown and the
// per-security classification behind it.
type AllocationHandler struct {
	allocationService *service.AllocationService
}

// NewAllocationHandler creates a new AllocationHandler.
func NewAllocationHandler(allocationService *service.AllocationService) *AllocationHandler {
	return &AllocationHandler{allocationService: allocationService}
}

// Allocation handles GET /api/portfolio/allocation.
//
// Response: 200 OK with model.PortfolioAllocation
func (h *AllocationHandler) Allocation(w http.ResponseWriter, r *http.Request) {
	allocation, err := h.allocationService.GetAllocation(r.Context())
	if err != nil {
		respondError(w, "failed to get portfolio allocation", err)
		return
	}
	respondJSON(w, http.StatusOK, allocation)
}

// SetSecurityAllocation classifies one security.
//
// Endpoint: PUT /api/securities/{uuid}/allocation
// Body: {"assetType": "Stock", "sector": "Technology", "country": "United States"}
// Response: 200 OK with the stored model.SecurityAllocation
// Error: 404 Not Found for an unknown security
func (h *AllocationHandler) SetSecurityAllocation(w http.ResponseWriter, r *http.Request) {
	var req request.SetAllocationRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, "invalid request body", err)
		return
	}
	if err := validation.ValidateSetAllocation(req); err != nil {
		respondError(w, "validation failed", err)
		return
	}

	stored, err := h.allocationService.SetSecurityAllocation(r.Context(), chi.URLParam(r, "uuid"), model.SecurityAllocation{
		AssetType: req.AssetType,
		Sector:    req.Sector,
		Country:   req.Country,
	})
	if err != nil {
		respondError(w, "failed to save security allocation", err)
		return
	}
	respondJSON(w, http.StatusOK, stored)
}
