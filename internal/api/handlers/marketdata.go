package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/api/request"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/service"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/validation"
)

// MarketDataHandler exposes the price cache and the ticker mappings.
type MarketDataHandler struct {
	priceService   *service.PriceService
	tickerResolver *service.TickerResolver
}

// NewMarketDataHandler creates a new MarketDataHandler.
func NewMarketDataHandler(priceService *service.PriceService, tickerResolver *service.TickerResolver) *MarketDataHandler {
	return &MarketDataHandler{
		priceService:   priceService,
		tickerResolver: tickerResolver,
	}
}

// DeletePricesResponse reports how many cached prices were removed.
type DeletePricesResponse struct {
	SecurityID string `json:"securityId"`
	Deleted    int64  `json:"deleted"`
}

// Status handles GET /api/market-data/status.
func (h *MarketDataHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.priceService.GetStatus(r.Context())
	if err != nil {
		respondError(w, "failed to get market data status", err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// DeletePrices removes cached prices for a security so they are fetched
// again on the next sync.
//
// Endpoint: DELETE /api/market-data/prices/{uuid}?from=YYYY-MM-DD
// Response: 200 OK with DeletePricesResponse
func (h *MarketDataHandler) DeletePrices(w http.ResponseWriter, r *http.Request) {
	securityID := chi.URLParam(r, "uuid")
	from, err := validation.ParseOptionalDate("from", r.URL.Query().Get("from"))
	if err != nil {
		respondError(w, "invalid from date", err)
		return
	}

	n, err := h.priceService.DeletePrices(r.Context(), securityID, from)
	if err != nil {
		respondError(w, "failed to delete prices", err)
		return
	}
	respondJSON(w, http.StatusOK, DeletePricesResponse{SecurityID: securityID, Deleted: n})
}

// TickerMappings handles GET /api/ticker-mappings.
func (h *MarketDataHandler) TickerMappings(w http.ResponseWriter, r *http.Request) {
	mappings, err := h.tickerResolver.ListMappings(r.Context())
	if err != nil {
		respondError(w, "failed to list ticker mappings", err)
		return
	}
	respondJSON(w, http.StatusOK, mappings)
}

// SetTickerMapping stores a manual mapping that overrides discovery.
//
// Endpoint: PUT /api/ticker-mappings
// Body: {"symbol": "VWRL", "exchange": "AEB", "ticker": "VWRL.AS", "notes": "..."}
// Response: 200 OK with the stored model.TickerMapping
func (h *MarketDataHandler) SetTickerMapping(w http.ResponseWriter, r *http.Request) {
	var req request.SetTickerMappingRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, "invalid request body", err)
		return
	}
	if err := validation.ValidateSetTickerMapping(req); err != nil {
		respondError(w, "validation failed", err)
		return
	}

	mapping, err := h.tickerResolver.SetManualMapping(r.Context(), req.Symbol, req.Exchange, req.Ticker, req.Notes)
	if err != nil {
		respondError(w, "failed to save ticker mapping", err)
		return
	}
	respondJSON(w, http.StatusOK, mapping)
}
