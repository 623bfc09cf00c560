package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/model"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/service"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/validation"
)

// DefaultRangeDays is the window used when a request gives no start_date.
const DefaultRangeDays = 365

// PortfolioHandler handles HTTP requests for portfolio valuation endpoints.
// It serves as the HTTP layer adapter, parsing requests and delegating
// business logic to the valuation, portfolio and benchmark services.
type PortfolioHandler struct {
	portfolioService *service.PortfolioService
	valuationService *service.ValuationService
	benchmarkService *service.BenchmarkService
	now              func() time.Time
}

// NewPortfolioHandler creates a new PortfolioHandler with the provided service dependencies.
func NewPortfolioHandler(
	portfolioService *service.PortfolioService,
	valuationService *service.ValuationService,
	benchmarkService *service.BenchmarkService,
) *PortfolioHandler {
	return &PortfolioHandler{
		portfolioService: portfolioService,
		valuationService: valuationService,
		benchmarkService: benchmarkService,
		now:              time.Now,
	}
}

// PositionsResponse lists today's positions.
type PositionsResponse struct {
	Positions []model.Position `json:"positions"`
	Warnings  []string         `json:"warnings"`
}

func (h *PortfolioHandler) dateRange(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()
	return validation.ParseDateRange(q.Get("start_date"), q.Get("end_date"), DefaultRangeDays, h.now())
}

// ValueOverTime handles GET requests for the daily portfolio valuation.
//
// Endpoint: GET /api/portfolio/value-over-time?start_date=YYYY-MM-DD&end_date=YYYY-MM-DD
// Response: 200 OK with model.ValueSeries
// Error: 400 Bad Request for malformed, inverted or over-long ranges
func (h *PortfolioHandler) ValueOverTime(w http.ResponseWriter, r *http.Request) {
	start, end, err := h.dateRange(r)
	if err != nil {
		respondError(w, "invalid date range", err)
		return
	}

	series, err := h.valuationService.ValueOverTime(r.Context(), start, end)
	if err != nil {
		respondError(w, "failed to value portfolio", err)
		return
	}
	respondJSON(w, http.StatusOK, series)
}

// Summary handles GET /api/portfolio/summary.
func (h *PortfolioHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.portfolioService.GetSummary(r.Context())
	if err != nil {
		respondError(w, "failed to get portfolio summary", err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// Positions handles GET /api/portfolio/positions.
func (h *PortfolioHandler) Positions(w http.ResponseWriter, r *http.Request) {
	positions, warnings, err := h.portfolioService.GetPositions(r.Context())
	if err != nil {
		respondError(w, "failed to get positions", err)
		return
	}
	respondJSON(w, http.StatusOK, PositionsResponse{Positions: positions, Warnings: warnings})
}

// AnnualizedReturn handles GET requests for the money-weighted return over a window.
//
// Endpoint: GET /api/portfolio/annualized-return?start_date&end_date
// Response: 200 OK with model.AnnualizedReturn; xirr is null with a message
// when there is not enough data or the solver does not converge
func (h *PortfolioHandler) AnnualizedReturn(w http.ResponseWriter, r *http.Request) {
	start, end, err := h.dateRange(r)
	if err != nil {
		respondError(w, "invalid date range", err)
		return
	}

	result, err := h.portfolioService.GetAnnualizedReturn(r.Context(), start, end)
	if err != nil {
		respondError(w, "failed to compute annualized return", err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// Benchmarks handles GET /api/portfolio/benchmarks.
func (h *PortfolioHandler) Benchmarks(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.benchmarkService.ListBenchmarks())
}

// CompareBenchmark handles GET requests comparing the portfolio with a benchmark.
//
// Endpoint: GET /api/portfolio/benchmark/{key}?start_date&end_date
// Response: 200 OK with model.BenchmarkComparison
// Error: 404 Not Found for an unknown key, 429 when the provider rate limits
func (h *PortfolioHandler) CompareBenchmark(w http.ResponseWriter, r *http.Request) {
	start, end, err := h.dateRange(r)
	if err != nil {
		respondError(w, "invalid date range", err)
		return
	}

	comparison, err := h.benchmarkService.Compare(r.Context(), chi.URLParam(r, "key"), start, end)
	if err != nil {
		respondError(w, "failed to compare with benchmark", err)
		return
	}
	respondJSON(w, http.StatusOK, comparison)
}
